package auth

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"

	"github.com/forest6511/pinvault/pkg/crypto"
)

var testParams = HashParams{
	Argon2Params: crypto.Argon2Params{Memory: 1024, Time: 1, Threads: 1},
	SaltLength:   16,
	HashLength:   32,
}

func newTestAuth(t *testing.T, opts ...Option) *Authenticator {
	t.Helper()
	dir := t.TempDir()
	opts = append([]Option{WithHashParams(testParams)}, opts...)
	return New(filepath.Join(dir, "pin.hash"), opts...)
}

func TestValidatePIN(t *testing.T) {
	for _, pin := range []string{"0000", "4242", "12345", "999999"} {
		assert.NoError(t, ValidatePIN(pin), pin)
	}
	for _, pin := range []string{"", "123", "1234567", "12a4", "12 34", "١٢٣٤"} {
		assert.ErrorIs(t, ValidatePIN(pin), ErrInvalidPIN, pin)
	}
}

func TestHashPINFormat(t *testing.T) {
	record, err := HashPIN("4242", DefaultHashParams())
	require.NoError(t, err)

	re := regexp.MustCompile(`^\$argon2id\$v=19\$m=65536,t=3,p=4\$[A-Za-z0-9+/]{22}\$[A-Za-z0-9+/]{43}$`)
	assert.Regexp(t, re, record)

	ok, err := VerifyPIN(record, "4242")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPINUsesFreshSalt(t *testing.T) {
	r1, err := HashPIN("1234", testParams)
	require.NoError(t, err)
	r2, err := HashPIN("1234", testParams)
	require.NoError(t, err)
	assert.NotEqual(t, r1, r2)

	for _, r := range []string{r1, r2} {
		ok, err := VerifyPIN(r, "1234")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestVerifyPINAcceptsExternalRecords(t *testing.T) {
	salt := []byte("0123456789abcdef")
	encode := func(variant string, hash []byte) string {
		return fmt.Sprintf("$%s$v=19$m=1024,t=2,p=2$%s$%s", variant,
			base64.RawStdEncoding.EncodeToString(salt),
			base64.RawStdEncoding.EncodeToString(hash))
	}

	id := encode("argon2id", argon2.IDKey([]byte("4242"), salt, 2, 1024, 2, 32))
	ok, err := VerifyPIN(id, "4242")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = VerifyPIN(id, "0000")
	require.NoError(t, err)
	assert.False(t, ok)

	i := encode("argon2i", argon2.Key([]byte("4242"), salt, 2, 1024, 2, 16))
	ok, err = VerifyPIN(i, "4242")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPINMalformed(t *testing.T) {
	good, err := HashPIN("4242", testParams)
	require.NoError(t, err)
	parts := strings.Split(good, "$")

	tests := []struct {
		name   string
		record string
	}{
		{"empty", ""},
		{"plain text", "4242"},
		{"bcrypt", "$2b$12$abcdefghijklmnopqrstuu5GH3VfNQNgd6sEQhA6v1DZf0XJqDgZy"},
		{"wrong version", strings.Replace(good, "v=19", "v=16", 1)},
		{"bad params", strings.Replace(good, parts[3], "m=x,t=1,p=1", 1)},
		{"version suffix", strings.Replace(good, "v=19", "v=19x", 1)},
		{"version missing key", strings.Replace(good, "v=19", "19", 1)},
		{"params suffix", strings.Replace(good, parts[3], parts[3]+"junk", 1)},
		{"params extra field", strings.Replace(good, parts[3], parts[3]+",x=1", 1)},
		{"params missing field", strings.Replace(good, parts[3], "m=1024,t=1", 1)},
		{"params reordered", strings.Replace(good, parts[3], "t=1,m=1024,p=1", 1)},
		{"signed param", strings.Replace(good, parts[3], "m=+1024,t=1,p=1", 1)},
		{"threads overflow", strings.Replace(good, parts[3], "m=1024,t=1,p=257", 1)},
		{"zero time", strings.Replace(good, parts[3], "m=1024,t=0,p=1", 1)},
		{"huge memory", strings.Replace(good, parts[3], "m=99999999,t=1,p=1", 1)},
		{"bad salt", strings.Replace(good, parts[4], "!!!", 1)},
		{"short hash", strings.Replace(good, parts[5], "AAAA", 1)},
		{"truncated", strings.Join(parts[:5], "$")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifyPIN(tt.record, "4242")
			assert.False(t, ok)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestSetPinAndVerify(t *testing.T) {
	a := newTestAuth(t)
	assert.False(t, a.Exists())

	require.NoError(t, a.SetPin("4242"))
	assert.True(t, a.Exists())

	info, err := os.Stat(a.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	ok, err := a.Verify("4242")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Verify("0000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetPinRefusesOverwrite(t *testing.T) {
	a := newTestAuth(t)
	require.NoError(t, a.SetPin("4242"))
	assert.ErrorIs(t, a.SetPin("1111"), ErrPinAlreadySet)

	ok, err := a.Verify("4242")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetPinValidates(t *testing.T) {
	a := newTestAuth(t)
	assert.ErrorIs(t, a.SetPin("12"), ErrInvalidPIN)
	assert.False(t, a.Exists())
}

func TestVerifyWithoutRecord(t *testing.T) {
	a := newTestAuth(t)
	ok, err := a.Verify("4242")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrPinNotSet)
}

func TestUnreadableRecordIsNotAbsent(t *testing.T) {
	a := newTestAuth(t)
	require.NoError(t, os.MkdirAll(a.Path(), 0700))

	assert.True(t, a.Exists(), "an unreadable record must not look like first-time setup")
	assert.ErrorIs(t, a.SetPin("4242"), ErrPinAlreadySet)

	ok, err := a.Verify("4242")
	assert.False(t, ok)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPinNotSet)
}

func TestCorruptRecordIsAnError(t *testing.T) {
	a := newTestAuth(t)
	require.NoError(t, os.WriteFile(a.Path(), []byte("garbage"), 0600))

	ok, err := a.Verify("4242")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestRecordWithTrailingNewline(t *testing.T) {
	a := newTestAuth(t)
	record, err := HashPIN("4242", testParams)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(a.Path(), []byte(record+"\n"), 0600))

	ok, err := a.Verify("4242")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChangePin(t *testing.T) {
	a := newTestAuth(t)
	require.NoError(t, a.SetPin("4242"))

	assert.ErrorIs(t, a.ChangePin("0000", "1111"), ErrPinMismatch)
	assert.ErrorIs(t, a.ChangePin("4242", "11"), ErrInvalidPIN)
	assert.ErrorIs(t, a.ChangePin("4242", "4242"), ErrSamePIN)

	require.NoError(t, a.ChangePin("4242", "1111"))

	ok, err := a.Verify("4242")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = a.Verify("1111")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCooldown(t *testing.T) {
	dir := t.TempDir()
	a := New(filepath.Join(dir, "pin.hash"),
		WithHashParams(testParams),
		WithAttemptsFile(filepath.Join(dir, "pin.attempts")))
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }

	require.NoError(t, a.SetPin("4242"))

	for i := 0; i < CooldownThreshold1; i++ {
		ok, err := a.Verify("0000")
		require.NoError(t, err, "attempt %d", i+1)
		assert.False(t, ok)
	}
	assert.Equal(t, CooldownDuration1, a.RemainingCooldown())

	ok, err := a.Verify("4242")
	assert.False(t, ok, "correct PIN is refused during cooldown")
	assert.ErrorIs(t, err, ErrCooldownActive)

	clock = clock.Add(CooldownDuration1 + time.Second)
	ok, err = a.Verify("4242")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = os.Stat(filepath.Join(dir, "pin.attempts"))
	assert.True(t, os.IsNotExist(err), "success resets the counter")
}

func TestCooldownEscalates(t *testing.T) {
	dir := t.TempDir()
	a := New(filepath.Join(dir, "pin.hash"),
		WithHashParams(testParams),
		WithAttemptsFile(filepath.Join(dir, "pin.attempts")))
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }
	require.NoError(t, a.SetPin("4242"))

	fail := func(n int) {
		for i := 0; i < n; i++ {
			clock = clock.Add(a.RemainingCooldown())
			ok, err := a.Verify("0000")
			require.NoError(t, err)
			require.False(t, ok)
		}
	}

	fail(CooldownThreshold2)
	assert.Equal(t, CooldownDuration2, a.RemainingCooldown())

	fail(CooldownThreshold3 - CooldownThreshold2)
	assert.Equal(t, CooldownDuration3, a.RemainingCooldown())
}

func TestCorruptAttemptsFileResets(t *testing.T) {
	dir := t.TempDir()
	attempts := filepath.Join(dir, "pin.attempts")
	a := New(filepath.Join(dir, "pin.hash"), WithHashParams(testParams), WithAttemptsFile(attempts))
	require.NoError(t, a.SetPin("4242"))
	require.NoError(t, os.WriteFile(attempts, []byte("{not json"), 0600))

	ok, err := a.Verify("4242")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckRecord(t *testing.T) {
	record, err := HashPIN("4242", testParams)
	require.NoError(t, err)
	assert.NoError(t, CheckRecord(record))
	assert.ErrorIs(t, CheckRecord("$argon2id$v=19$m=1,t=1,p=1$x$y"), ErrMalformedRecord)
}
