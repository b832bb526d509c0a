package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher names accepted by NewCipher.
const (
	CipherFernet     = "fernet"
	CipherAESGCM     = "aes-256-gcm"
	CipherXChaCha    = "xchacha20-poly1305"
	fernetMinDecoded = 1 + 8 + 16 + 16 + 32 // version, timestamp, IV, one block, HMAC
)

// Cipher seals and opens a payload under a KeyLength-byte key.
//
// Seal must use a fresh nonce on every call. Open must fail closed with
// ErrDecryptionFailed on a wrong key or any modification of sealed.
type Cipher interface {
	Seal(key, plaintext []byte) ([]byte, error)
	Open(key, sealed []byte) ([]byte, error)
}

// FernetCipher produces Fernet tokens (AES-128-CBC + HMAC-SHA256, base64url).
// The first half of the key signs, the second half encrypts.
type FernetCipher struct{}

// Seal implements Cipher.
func (FernetCipher) Seal(key, plaintext []byte) ([]byte, error) {
	k, err := fernetKey(key)
	if err != nil {
		return nil, err
	}
	tok, err := fernet.EncryptAndSign(plaintext, k)
	if err != nil {
		return nil, fmt.Errorf("crypto: fernet encryption failed: %w", err)
	}
	return tok, nil
}

// Open implements Cipher. Token age is not checked.
func (FernetCipher) Open(key, sealed []byte) ([]byte, error) {
	k, err := fernetKey(key)
	if err != nil {
		return nil, err
	}
	raw, err := base64.URLEncoding.DecodeString(string(sealed))
	if err != nil || len(raw) < fernetMinDecoded {
		return nil, ErrDecryptionFailed
	}
	msg := fernet.VerifyAndDecrypt(sealed, -1, []*fernet.Key{k})
	if msg == nil {
		return nil, ErrDecryptionFailed
	}
	return msg, nil
}

func fernetKey(key []byte) (*fernet.Key, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	var k fernet.Key
	copy(k[:], key)
	return &k, nil
}

// GCMCipher stores nonce || ciphertext || tag using AES-256-GCM.
type GCMCipher struct{}

// Seal implements Cipher.
func (GCMCipher) Seal(key, plaintext []byte) ([]byte, error) {
	ciphertext, nonce, err := Encrypt(key, plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(nonce)+len(ciphertext))
	copy(out, nonce)
	copy(out[len(nonce):], ciphertext)
	return out, nil
}

// Open implements Cipher.
func (GCMCipher) Open(key, sealed []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(sealed) < NonceLength {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := Decrypt(key, sealed[NonceLength:], sealed[:NonceLength])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// XChaChaCipher stores nonce || ciphertext || tag using XChaCha20-Poly1305
// with a 24-byte random nonce.
type XChaChaCipher struct{}

// Seal implements Cipher.
func (XChaChaCipher) Seal(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create XChaCha20-Poly1305: %w", err)
	}
	out := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}
	return aead.Seal(out, out, plaintext, nil), nil
}

// Open implements Cipher.
func (XChaChaCipher) Open(key, sealed []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create XChaCha20-Poly1305: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// NewCipher returns the cipher registered under name. The empty name
// selects Fernet, the format of existing vault files.
func NewCipher(name string) (Cipher, error) {
	switch name {
	case "", CipherFernet:
		return FernetCipher{}, nil
	case CipherAESGCM:
		return GCMCipher{}, nil
	case CipherXChaCha:
		return XChaChaCipher{}, nil
	default:
		return nil, fmt.Errorf("crypto: unknown cipher %q", name)
	}
}
