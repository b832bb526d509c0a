// Package store owns the encrypted note vault file.
//
// Every operation takes the PIN explicitly, re-derives the key, and reads or
// rewrites the whole file: there is no session key and no partial update.
//
// Reads follow a ReadPolicy. ReadLenient, the default, reports any read,
// decrypt or parse failure as an empty vault, which is how existing vaults
// have always behaved. Under that policy a Save with the wrong PIN replaces
// the vault with a single note. ReadStrict surfaces the failure instead.
// A vault whose KDF salt has gone missing is never treated as empty, since
// the next write would seal it under a fresh salt.
package store

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/forest6511/pinvault/internal/fsutil"
	"github.com/forest6511/pinvault/pkg/crypto"
)

// Errors
var (
	ErrEmptyTitle  = errors.New("store: note title cannot be empty")
	ErrAuthFailed  = errors.New("store: vault could not be decrypted (wrong PIN or tampered file)")
	ErrCorrupt     = errors.New("store: vault does not contain a note map")
	ErrIO          = errors.New("store: vault file access failed")
	ErrInvalidText = errors.New("store: note title and body must be valid UTF-8")

	errNullNotes = errors.New("note map is null")
)

// ReadPolicy decides what Load does with a vault that cannot be read.
type ReadPolicy int

const (
	// ReadLenient treats every read failure as an empty vault.
	ReadLenient ReadPolicy = iota
	// ReadStrict returns the failure to the caller.
	ReadStrict
)

// String returns the configuration name of the policy.
func (p ReadPolicy) String() string {
	switch p {
	case ReadLenient:
		return "lenient"
	case ReadStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseReadPolicy parses "lenient" or "strict". Empty means lenient.
func ParseReadPolicy(s string) (ReadPolicy, error) {
	switch s {
	case "", "lenient":
		return ReadLenient, nil
	case "strict":
		return ReadStrict, nil
	default:
		return ReadLenient, fmt.Errorf("store: unknown read policy %q", s)
	}
}

// Store reads and writes the vault file at path.
type Store struct {
	path     string
	kdf      crypto.KeyDeriver
	cipher   crypto.Cipher
	policy   ReadPolicy
	log      zerolog.Logger
	lockPath string     // empty: no cycle guard
	mu       sync.Mutex // serializes guarded cycles within the process
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the read policy used by Load, Save and Delete.
func WithPolicy(p ReadPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger that records swallowed read failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithLocking guards each load-mutate-save cycle with an in-process mutex
// and an exclusive advisory lock on lockPath. Without it, concurrent
// Save/Delete calls race and the last writer wins.
func WithLocking(lockPath string) Option {
	return func(s *Store) { s.lockPath = lockPath }
}

// New creates a Store for the vault file at path.
func New(path string, kdf crypto.KeyDeriver, c crypto.Cipher, opts ...Option) *Store {
	s := &Store{
		path:   path,
		kdf:    kdf,
		cipher: c,
		policy: ReadLenient,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the vault file path.
func (s *Store) Path() string {
	return s.path
}

// Policy returns the store's read policy.
func (s *Store) Policy() ReadPolicy {
	return s.policy
}

// Read decrypts the vault regardless of policy. A missing or zero-length
// file is an empty vault. Failures wrap ErrIO, ErrAuthFailed or ErrCorrupt.
func (s *Store) Read(pin string) (Notes, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Notes{}, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if len(data) == 0 {
		return Notes{}, nil
	}

	key, err := s.kdf.DeriveKey(pin)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to derive key: %w", ErrIO, err)
	}
	defer crypto.SecureWipe(key)

	plaintext, err := s.cipher.Open(key, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer crypto.SecureWipe(plaintext)

	notes, err := decodeNotes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return notes, nil
}

// Load reads the vault under the store's policy.
func (s *Store) Load(pin string) (Notes, error) {
	notes, err := s.Read(pin)
	if err == nil {
		return notes, nil
	}
	if s.policy == ReadStrict || errors.Is(err, crypto.ErrSaltMissing) {
		return nil, err
	}
	s.log.Warn().Err(err).Str("path", s.path).Msg("vault unreadable, treating as empty")
	return Notes{}, nil
}

// Titles returns the sorted note titles.
func (s *Store) Titles(pin string) ([]string, error) {
	notes, err := s.Load(pin)
	if err != nil {
		return nil, err
	}
	return notes.Titles(), nil
}

// Save inserts or replaces one note and rewrites the vault.
func (s *Store) Save(pin, title, body string) error {
	if err := validateNote(title, body); err != nil {
		return err
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	notes, err := s.Load(pin)
	if err != nil {
		return err
	}
	notes[title] = body
	return s.write(pin, notes)
}

// Delete removes a note. Deleting a title that is not present succeeds and
// leaves the vault file untouched.
func (s *Store) Delete(pin, title string) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	notes, err := s.Load(pin)
	if err != nil {
		return err
	}
	if _, ok := notes[title]; !ok {
		return nil
	}
	delete(notes, title)
	return s.write(pin, notes)
}

// Rewrite replaces the whole vault with notes sealed under pin.
func (s *Store) Rewrite(pin string, notes Notes) error {
	for title, body := range notes {
		if err := validateNote(title, body); err != nil {
			return err
		}
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	return s.write(pin, notes)
}

// Rekey re-encrypts the vault from oldPin to newPin in one guarded cycle
// and returns the number of notes carried over. The vault is read strictly:
// if it does not open under oldPin nothing is written. A vault that does
// not exist yet stays absent.
func (s *Store) Rekey(oldPin, newPin string) (int, error) {
	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	notes, err := s.Read(oldPin)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err := s.write(newPin, notes); err != nil {
		return 0, err
	}
	return len(notes), nil
}

// validateNote rejects what the JSON encoding would not carry back
// unchanged: invalid UTF-8 is silently replaced with U+FFFD.
func validateNote(title, body string) error {
	if title == "" {
		return ErrEmptyTitle
	}
	if !utf8.ValidString(title) || !utf8.ValidString(body) {
		return ErrInvalidText
	}
	return nil
}

func (s *Store) write(pin string, notes Notes) error {
	plaintext, err := encodeNotes(notes)
	if err != nil {
		return fmt.Errorf("store: failed to encode notes: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	key, err := s.kdf.DeriveKeyForWrite(pin)
	if err != nil {
		return fmt.Errorf("%w: failed to derive key: %w", ErrIO, err)
	}
	defer crypto.SecureWipe(key)

	sealed, err := s.cipher.Seal(key, plaintext)
	if err != nil {
		return fmt.Errorf("store: failed to seal vault: %w", err)
	}

	if err := fsutil.WriteFileAtomic(s.path, sealed, fsutil.FileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

func (s *Store) lock() (func(), error) {
	if s.lockPath == "" {
		return func() {}, nil
	}
	s.mu.Lock()
	fl, err := fsutil.Lock(s.lockPath)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.log.Warn().Err(err).Msg("failed to release vault lock")
		}
		s.mu.Unlock()
	}, nil
}
