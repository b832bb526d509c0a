package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SaltLength is the length of the per-vault Argon2id salt.
const SaltLength = 16

// KDF names accepted by NewKeyDeriver.
const (
	KDFSHA256   = "sha256"
	KDFArgon2id = "argon2id"
)

// Errors
var (
	ErrInvalidSalt = errors.New("crypto: vault salt is corrupted")
	ErrSaltMissing = errors.New("crypto: vault salt file is missing")
)

// KeyDeriver turns a PIN into a KeyLength-byte symmetric key.
// The same PIN must always yield the same key: the key is never stored.
//
// DeriveKey never changes anything on disk and is what readers use.
// DeriveKeyForWrite may create per-vault state (a salt) first; only code
// about to seal a new vault should call it.
type KeyDeriver interface {
	DeriveKey(pin string) ([]byte, error)
	DeriveKeyForWrite(pin string) ([]byte, error)
}

// SHA256Deriver derives the key as a single SHA-256 of the PIN.
//
// There is no salt and no stretching, so a 4-6 digit PIN falls to an offline
// search in well under a second. It stays the default because it is the key
// schedule of existing vault.enc files.
type SHA256Deriver struct{}

// DeriveKey implements KeyDeriver.
func (SHA256Deriver) DeriveKey(pin string) ([]byte, error) {
	sum := sha256.Sum256([]byte(pin))
	return sum[:], nil
}

// DeriveKeyForWrite implements KeyDeriver. There is no state to create.
func (d SHA256Deriver) DeriveKeyForWrite(pin string) ([]byte, error) {
	return d.DeriveKey(pin)
}

// Argon2Deriver stretches the PIN with Argon2id and a per-vault salt kept
// in SaltPath. The salt file is created by the first DeriveKeyForWrite;
// DeriveKey without it fails with ErrSaltMissing.
type Argon2Deriver struct {
	SaltPath string
	Params   Argon2Params
}

// DeriveKey implements KeyDeriver.
func (d Argon2Deriver) DeriveKey(pin string) ([]byte, error) {
	salt, err := d.readSalt()
	if err != nil {
		return nil, err
	}
	return DeriveKeyWithParams([]byte(pin), salt, d.Params), nil
}

// DeriveKeyForWrite implements KeyDeriver.
func (d Argon2Deriver) DeriveKeyForWrite(pin string) ([]byte, error) {
	salt, err := d.salt()
	if err != nil {
		return nil, err
	}
	return DeriveKeyWithParams([]byte(pin), salt, d.Params), nil
}

func (d Argon2Deriver) readSalt() ([]byte, error) {
	salt, err := os.ReadFile(d.SaltPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSaltMissing, d.SaltPath)
		}
		return nil, fmt.Errorf("crypto: failed to read salt file: %w", err)
	}
	if len(salt) != SaltLength {
		return nil, ErrInvalidSalt
	}
	return salt, nil
}

// salt returns the persisted salt, creating it if there is none.
func (d Argon2Deriver) salt() ([]byte, error) {
	salt, err := d.readSalt()
	if !errors.Is(err, ErrSaltMissing) {
		return salt, err
	}

	salt = make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(d.SaltPath), 0700); err != nil {
		return nil, fmt.Errorf("crypto: failed to create salt directory: %w", err)
	}
	// O_EXCL: if another process won the race, use its salt.
	f, err := os.OpenFile(d.SaltPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return d.salt()
		}
		return nil, fmt.Errorf("crypto: failed to create salt file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to write salt file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("crypto: failed to sync salt file: %w", err)
	}
	return salt, nil
}

// NewKeyDeriver returns the deriver registered under name.
// saltPath and params are only used by KDFArgon2id.
func NewKeyDeriver(name, saltPath string, params Argon2Params) (KeyDeriver, error) {
	switch name {
	case "", KDFSHA256:
		return SHA256Deriver{}, nil
	case KDFArgon2id:
		if saltPath == "" {
			return nil, errors.New("crypto: argon2id kdf requires a salt path")
		}
		if err := params.Validate(); err != nil {
			return nil, err
		}
		return Argon2Deriver{SaltPath: saltPath, Params: params}, nil
	default:
		return nil, fmt.Errorf("crypto: unknown kdf %q", name)
	}
}
