package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest6511/pinvault/pkg/auth"
	"github.com/forest6511/pinvault/pkg/crypto"
)

// IntegrityCheckResult contains the results of a data directory check.
type IntegrityCheckResult struct {
	Valid            bool     `json:"valid"`
	PinSet           bool     `json:"pin_set"`
	PinRecordValid   bool     `json:"pin_record_valid"`
	VaultExists      bool     `json:"vault_exists"`
	VaultReadable    bool     `json:"vault_readable"`
	Notes            int      `json:"notes"`
	PermissionsValid bool     `json:"permissions_valid"`
	Errors           []string `json:"errors,omitempty"`
}

func (r *IntegrityCheckResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// CheckIntegrity checks the data directory without changing it:
//  1. Directory and file permissions (0700 / 0600)
//  2. PIN record parses
//  3. Salt file has the right size when the argon2id KDF is configured
//  4. Vault decrypts under pin, when pin is not empty
func (v *Vault) CheckIntegrity(pin string) (*IntegrityCheckResult, error) {
	result := &IntegrityCheckResult{Valid: true, PermissionsValid: true}

	if info, err := os.Stat(v.cfg.DataDir); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			result.PermissionsValid = false
			result.fail("data directory has insecure permissions: %04o (expected 0700)", perm)
		}
	}
	for _, path := range []string{v.cfg.VaultPath(), v.cfg.PinPath(), v.cfg.SaltPath()} {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			if perm := info.Mode().Perm(); perm&0077 != 0 {
				result.PermissionsValid = false
				result.fail("%s has insecure permissions: %04o (expected 0600)", filepath.Base(path), perm)
			}
		}
	}

	data, err := os.ReadFile(v.cfg.PinPath())
	switch {
	case os.IsNotExist(err):
		result.fail("PIN record not found: %s", v.cfg.PinPath())
	case err != nil:
		result.PinSet = true
		result.fail("failed to read PIN record: %v", err)
	default:
		result.PinSet = true
		if err := auth.CheckRecord(string(data)); err != nil {
			result.fail("PIN record is malformed: %v", err)
		} else {
			result.PinRecordValid = true
		}
	}

	if _, err := os.Stat(v.cfg.VaultPath()); err == nil {
		result.VaultExists = true
	}

	saltMissing := false
	if v.cfg.KDF == crypto.KDFArgon2id {
		info, err := os.Stat(v.cfg.SaltPath())
		switch {
		case os.IsNotExist(err):
			if result.VaultExists {
				saltMissing = true
				result.fail("salt file missing: %s (the vault cannot be decrypted without it)", v.cfg.SaltPath())
			}
		case err == nil && info.Size() != crypto.SaltLength:
			result.fail("salt file has incorrect size: expected %d, got %d", crypto.SaltLength, info.Size())
		}
	}

	if result.VaultExists && pin != "" && !saltMissing {
		notes, err := v.store.Read(pin)
		if err != nil {
			result.fail("vault does not open: %v", err)
		} else {
			result.VaultReadable = true
			result.Notes = len(notes)
		}
	}

	return result, nil
}

// checkAndWarnPermissions logs a warning for every insecure permission.
// It never blocks an operation.
func (v *Vault) checkAndWarnPermissions() {
	if info, err := os.Stat(v.cfg.DataDir); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			v.log.Warn().Str("mode", fmt.Sprintf("%04o", perm)).
				Msg("data directory has insecure permissions (expected 0700)")
		}
	}
	for _, path := range []string{v.cfg.VaultPath(), v.cfg.PinPath()} {
		if info, err := os.Stat(path); err == nil {
			if perm := info.Mode().Perm(); perm&0077 != 0 {
				v.log.Warn().Str("file", filepath.Base(path)).Str("mode", fmt.Sprintf("%04o", perm)).
					Msg("file has insecure permissions (expected 0600)")
			}
		}
	}
}
