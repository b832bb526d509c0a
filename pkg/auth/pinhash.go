package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/forest6511/pinvault/pkg/crypto"
)

// Limits applied when parsing a stored record, so a tampered file cannot
// make Verify allocate unbounded memory.
const (
	maxRecordMemory  = 4 * 1024 * 1024 // KiB
	maxRecordTime    = 64
	minRecordHashLen = 16
	maxRecordHashLen = 128
)

// HashParams configures HashPIN.
type HashParams struct {
	crypto.Argon2Params
	SaltLength int
	HashLength uint32
}

// DefaultHashParams matches argon2-cffi's PasswordHasher defaults, which
// are also the OWASP parameters used for key derivation.
func DefaultHashParams() HashParams {
	return HashParams{
		Argon2Params: crypto.DefaultArgon2Params(),
		SaltLength:   16,
		HashLength:   32,
	}
}

// HashPIN hashes pin with Argon2id and a fresh random salt, and returns the
// self-describing encoding
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
//
// with salt and hash in unpadded standard base64.
func HashPIN(pin string, p HashParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: failed to generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(pin), salt, p.Time, p.Memory, p.Threads, p.HashLength)
	defer crypto.SecureWipe(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

type pinRecord struct {
	variant string
	params  crypto.Argon2Params
	salt    []byte
	hash    []byte
}

func parseRecord(encoded string) (*pinRecord, error) {
	parts := strings.Split(strings.TrimSpace(encoded), "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: expected 5 '$'-separated fields", ErrMalformedRecord)
	}

	rec := &pinRecord{variant: parts[1]}
	if rec.variant != "argon2id" && rec.variant != "argon2i" {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedRecord, rec.variant)
	}

	v, ok := strings.CutPrefix(parts[2], "v=")
	version, err := strconv.Atoi(v)
	if !ok || err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedRecord, parts[2])
	}

	p := &rec.params
	if err := parseParams(parts[3], p); err != nil {
		return nil, fmt.Errorf("%w: bad parameters %q", ErrMalformedRecord, parts[3])
	}
	if err := p.Validate(); err != nil || p.Memory > maxRecordMemory || p.Time > maxRecordTime {
		return nil, fmt.Errorf("%w: parameters out of range %q", ErrMalformedRecord, parts[3])
	}

	if rec.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(rec.salt) < 8 {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedRecord)
	}
	if rec.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil ||
		len(rec.hash) < minRecordHashLen || len(rec.hash) > maxRecordHashLen {
		return nil, fmt.Errorf("%w: bad hash", ErrMalformedRecord)
	}
	return rec, nil
}

// parseParams reads exactly "m=<uint32>,t=<uint32>,p=<uint8>".
func parseParams(field string, p *crypto.Argon2Params) error {
	kv := strings.Split(field, ",")
	if len(kv) != 3 {
		return fmt.Errorf("expected 3 parameters, got %d", len(kv))
	}
	var vals [3]uint64
	for i, key := range []string{"m=", "t=", "p="} {
		raw, ok := strings.CutPrefix(kv[i], key)
		if !ok {
			return fmt.Errorf("expected %s...", key)
		}
		bits := 32
		if key == "p=" {
			bits = 8
		}
		n, err := strconv.ParseUint(raw, 10, bits)
		if err != nil {
			return err
		}
		vals[i] = n
	}
	p.Memory, p.Time, p.Threads = uint32(vals[0]), uint32(vals[1]), uint8(vals[2])
	return nil
}

// VerifyPIN recomputes the hash of candidate with the parameters embedded in
// encoded and compares the digests in constant time.
func VerifyPIN(encoded, candidate string) (bool, error) {
	rec, err := parseRecord(encoded)
	if err != nil {
		return false, err
	}

	p := rec.params
	n := uint32(len(rec.hash))
	var got []byte
	if rec.variant == "argon2i" {
		got = argon2.Key([]byte(candidate), rec.salt, p.Time, p.Memory, p.Threads, n)
	} else {
		got = argon2.IDKey([]byte(candidate), rec.salt, p.Time, p.Memory, p.Threads, n)
	}
	defer crypto.SecureWipe(got)

	return subtle.ConstantTimeCompare(got, rec.hash) == 1, nil
}

// CheckRecord reports whether encoded is a PIN record VerifyPIN can use.
func CheckRecord(encoded string) error {
	_, err := parseRecord(encoded)
	return err
}
