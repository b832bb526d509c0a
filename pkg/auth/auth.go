// Package auth stores and checks the vault PIN.
//
// The PIN is kept as a salted Argon2 hash record in a single file, in the
// PHC string format used by argon2-cffi. The record only gates access; the
// vault key is derived separately from the PIN itself.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forest6511/pinvault/internal/fsutil"
)

// PIN length limits for new PINs.
const (
	MinPINLength = 4
	MaxPINLength = 6
)

// Errors
var (
	ErrInvalidPIN      = errors.New("auth: PIN must be 4-6 digits")
	ErrPinAlreadySet   = errors.New("auth: PIN already set")
	ErrPinNotSet       = errors.New("auth: PIN not set")
	ErrPinMismatch     = errors.New("auth: current PIN is incorrect")
	ErrSamePIN         = errors.New("auth: new PIN must differ from the current PIN")
	ErrMalformedRecord = errors.New("auth: PIN record is malformed")
	ErrCooldownActive  = errors.New("auth: too many failed attempts")
)

// Authenticator manages the PIN record at a fixed path.
type Authenticator struct {
	path         string
	attemptsPath string // empty: no cooldown
	params       HashParams
	log          zerolog.Logger
	now          func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithHashParams sets the Argon2 cost of newly written records. Existing
// records are verified with the parameters they carry.
func WithHashParams(p HashParams) Option {
	return func(a *Authenticator) { a.params = p }
}

// WithAttemptsFile enables the failed-attempt cooldown, persisted at path.
func WithAttemptsFile(path string) Option {
	return func(a *Authenticator) { a.attemptsPath = path }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Authenticator) { a.log = l }
}

// New creates an Authenticator for the record at path.
func New(path string, opts ...Option) *Authenticator {
	a := &Authenticator{
		path:   path,
		params: DefaultHashParams(),
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Path returns the record path.
func (a *Authenticator) Path() string {
	return a.path
}

// ValidatePIN checks that pin is 4 to 6 ASCII digits.
func ValidatePIN(pin string) error {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return ErrInvalidPIN
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

// Exists reports whether a PIN record is present. Only a definite
// "does not exist" counts as absent: a record that cannot be inspected
// is reported as present so callers never fall back to first-time setup.
func (a *Authenticator) Exists() bool {
	_, err := os.Stat(a.path)
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	a.log.Warn().Err(err).Str("path", a.path).Msg("cannot stat PIN record, assuming it exists")
	return true
}

// SetPin writes the first PIN record. It refuses to overwrite an existing
// record; use ChangePin for that.
func (a *Authenticator) SetPin(pin string) error {
	if err := ValidatePIN(pin); err != nil {
		return err
	}
	if a.Exists() {
		return ErrPinAlreadySet
	}
	return a.Replace(pin)
}

// Replace writes a fresh record for pin unconditionally.
func (a *Authenticator) Replace(pin string) error {
	record, err := HashPIN(pin, a.params)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(a.path, []byte(record), fsutil.FileMode); err != nil {
		return fmt.Errorf("auth: failed to write PIN record: %w", err)
	}
	return nil
}

// Verify checks candidate against the stored record. A wrong PIN is
// (false, nil). A missing record is ErrPinNotSet, an unreadable one is an
// I/O error, and neither is ever reported as a plain mismatch.
func (a *Authenticator) Verify(candidate string) (bool, error) {
	remaining, err := a.checkCooldown()
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, fmt.Errorf("%w: try again in %s", ErrCooldownActive, remaining.Round(time.Second))
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, ErrPinNotSet
		}
		return false, fmt.Errorf("auth: failed to read PIN record: %w", err)
	}

	ok, err := VerifyPIN(strings.TrimSpace(string(data)), candidate)
	if err != nil {
		return false, err
	}

	if !ok {
		if err := a.recordFailure(); err != nil {
			a.log.Warn().Err(err).Msg("failed to record failed PIN attempt")
		}
		a.log.Info().Msg("PIN verification failed")
		return false, nil
	}
	if err := a.clearAttempts(); err != nil {
		a.log.Warn().Err(err).Msg("failed to reset PIN attempt counter")
	}
	return true, nil
}

// ChangePin replaces the record after checking oldPin. It does not touch
// the vault; callers that derive the vault key from the PIN must re-encrypt
// first (see vault.Vault.ChangePin).
func (a *Authenticator) ChangePin(oldPin, newPin string) error {
	if err := ValidatePIN(newPin); err != nil {
		return err
	}
	ok, err := a.Verify(oldPin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPinMismatch
	}
	if oldPin == newPin {
		return ErrSamePIN
	}
	return a.Replace(newPin)
}
