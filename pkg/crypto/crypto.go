// Package crypto provides the cryptographic primitives for pinvault.
//
// It covers the two halves of unlocking a vault: turning a PIN into a
// 32-byte key (KeyDeriver) and sealing the serialized notes under that key
// with an authenticated cipher (Cipher).
//
// # Security Features
//
//   - AES-256-GCM, XChaCha20-Poly1305 and Fernet authenticated encryption
//   - Argon2id key derivation (64MB memory, 3 iterations, 4 threads)
//   - Cryptographically secure random nonce generation
//   - Secure memory wiping for sensitive data
//
// # Example Usage
//
//	kdf := crypto.SHA256Deriver{}
//	key, err := kdf.DeriveKey("1234")
//	defer crypto.SecureWipe(key)
//
//	c := crypto.FernetCipher{}
//	sealed, err := c.Seal(key, plaintext)
//	plaintext, err := c.Open(key, sealed)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters following OWASP recommendations.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// Argon2Params holds the cost parameters of an Argon2id derivation.
type Argon2Params struct {
	Memory  uint32 `yaml:"memory"`  // KiB
	Time    uint32 `yaml:"time"`    // iterations
	Threads uint8  `yaml:"threads"` // parallelism
}

// DefaultArgon2Params returns the OWASP parameters above.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Memory: Argon2Memory, Time: Argon2Time, Threads: Argon2Threads}
}

// Validate rejects parameters argon2 cannot run with.
func (p Argon2Params) Validate() error {
	if p.Time < 1 {
		return fmt.Errorf("crypto: argon2 time must be at least 1, got %d", p.Time)
	}
	if p.Threads < 1 {
		return fmt.Errorf("crypto: argon2 threads must be at least 1, got %d", p.Threads)
	}
	if p.Memory < 8*uint32(p.Threads) {
		return fmt.Errorf("crypto: argon2 memory must be at least %d KiB, got %d", 8*uint32(p.Threads), p.Memory)
	}
	return nil
}

// DeriveKey derives a 256-bit encryption key from a password using Argon2id
// with the default OWASP parameters.
//
// The salt should be at least 16 bytes of cryptographically secure random data.
func DeriveKey(password, salt []byte) []byte {
	return DeriveKeyWithParams(password, salt, DefaultArgon2Params())
}

// DeriveKeyWithParams is DeriveKey with explicit cost parameters.
func DeriveKeyWithParams(password, salt []byte, p Argon2Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, KeyLength)
}

// Encrypt encrypts plaintext using AES-256-GCM authenticated encryption.
//
// The function generates a cryptographically secure random 12-byte nonce
// using crypto/rand. The authentication tag is appended to the ciphertext.
//
// Returns:
//   - ciphertext: encrypted data with authentication tag
//   - nonce: 12-byte nonce (must be stored with ciphertext for decryption)
//   - err: ErrInvalidKeyLength if key is not 32 bytes
func Encrypt(key, plaintext []byte) (ciphertext []byte, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt decrypts ciphertext using AES-256-GCM authenticated encryption.
//
// The function verifies the authentication tag before returning the plaintext.
// If the tag verification fails (indicating tampering or corruption),
// ErrDecryptionFailed is returned.
func Decrypt(key, ciphertext, nonce []byte) (plaintext []byte, err error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// GCM tag is 16 bytes
	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err = gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive keeps b "in use" after the loop so the writes stay.
	runtime.KeepAlive(b)
}
