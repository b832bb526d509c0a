package crypto

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testArgon2 = Argon2Params{Memory: 1024, Time: 1, Threads: 1}

func TestSHA256DeriverIsDeterministic(t *testing.T) {
	d := SHA256Deriver{}
	k1, err := d.DeriveKey("1234")
	require.NoError(t, err)
	k2, err := d.DeriveKey("1234")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("1234"))
	assert.Equal(t, sum[:], k1)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeyLength)

	other, err := d.DeriveKey("12345")
	require.NoError(t, err)
	assert.NotEqual(t, k1, other)
}

func TestArgon2DeriverCreatesAndReusesSalt(t *testing.T) {
	saltPath := filepath.Join(t.TempDir(), "data", "vault.salt")
	d := Argon2Deriver{SaltPath: saltPath, Params: testArgon2}

	k1, err := d.DeriveKeyForWrite("4242")
	require.NoError(t, err)
	assert.Len(t, k1, KeyLength)

	salt, err := os.ReadFile(saltPath)
	require.NoError(t, err)
	assert.Len(t, salt, SaltLength)

	k2, err := d.DeriveKey("4242")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	sum := sha256.Sum256([]byte("4242"))
	assert.NotEqual(t, sum[:], k1, "argon2 key must differ from the plain hash")
}

func TestArgon2DeriverDifferentVaultsDifferentKeys(t *testing.T) {
	a := Argon2Deriver{SaltPath: filepath.Join(t.TempDir(), "vault.salt"), Params: testArgon2}
	b := Argon2Deriver{SaltPath: filepath.Join(t.TempDir(), "vault.salt"), Params: testArgon2}

	ka, err := a.DeriveKeyForWrite("4242")
	require.NoError(t, err)
	kb, err := b.DeriveKeyForWrite("4242")
	require.NoError(t, err)
	assert.NotEqual(t, ka, kb)
}

func TestArgon2DeriverRejectsCorruptSalt(t *testing.T) {
	saltPath := filepath.Join(t.TempDir(), "vault.salt")
	require.NoError(t, os.WriteFile(saltPath, []byte("short"), 0600))

	d := Argon2Deriver{SaltPath: saltPath, Params: testArgon2}
	_, err := d.DeriveKey("4242")
	assert.ErrorIs(t, err, ErrInvalidSalt)
	_, err = d.DeriveKeyForWrite("4242")
	assert.ErrorIs(t, err, ErrInvalidSalt)
}

func TestArgon2DeriverReadNeverCreatesSalt(t *testing.T) {
	saltPath := filepath.Join(t.TempDir(), "data", "vault.salt")
	d := Argon2Deriver{SaltPath: saltPath, Params: testArgon2}

	_, err := d.DeriveKey("4242")
	assert.ErrorIs(t, err, ErrSaltMissing)
	assert.NoFileExists(t, saltPath)
	assert.NoDirExists(t, filepath.Dir(saltPath))
}

func TestSHA256DeriverWriteMatchesRead(t *testing.T) {
	d := SHA256Deriver{}
	r, err := d.DeriveKey("1234")
	require.NoError(t, err)
	w, err := d.DeriveKeyForWrite("1234")
	require.NoError(t, err)
	assert.Equal(t, r, w)
}

func TestNewKeyDeriver(t *testing.T) {
	d, err := NewKeyDeriver("", "", Argon2Params{})
	require.NoError(t, err)
	assert.IsType(t, SHA256Deriver{}, d)

	d, err = NewKeyDeriver(KDFArgon2id, "/tmp/vault.salt", testArgon2)
	require.NoError(t, err)
	assert.IsType(t, Argon2Deriver{}, d)

	_, err = NewKeyDeriver(KDFArgon2id, "", testArgon2)
	assert.Error(t, err)

	_, err = NewKeyDeriver(KDFArgon2id, "/tmp/vault.salt", Argon2Params{})
	assert.Error(t, err)

	_, err = NewKeyDeriver("md5", "", testArgon2)
	assert.Error(t, err)
}
