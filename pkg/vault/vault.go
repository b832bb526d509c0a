// Package vault is the entry point for everything that touches the data
// directory: PIN setup and verification, note storage, PIN change,
// export/import and reset.
//
// Every note operation takes the PIN explicitly; the Vault holds no key
// between calls. The one exception is the audit log, which is keyed by the
// first successful VerifyPin or SetPin and stays keyed for the Vault's
// lifetime.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/forest6511/pinvault/internal/config"
	"github.com/forest6511/pinvault/internal/fsutil"
	"github.com/forest6511/pinvault/pkg/audit"
	"github.com/forest6511/pinvault/pkg/auth"
	"github.com/forest6511/pinvault/pkg/backup"
	"github.com/forest6511/pinvault/pkg/crypto"
	"github.com/forest6511/pinvault/pkg/store"
)

// Errors
var (
	ErrPinMismatch      = auth.ErrPinMismatch
	ErrVaultUnusable    = errors.New("vault: vault does not open under the current PIN")
	ErrUnsafeReset      = errors.New("vault: refusing to remove this data directory")
	ErrInsufficientDisk = errors.New("vault: insufficient disk space")
)

// Vault wires the store, the authenticator and the audit log to one
// data directory.
type Vault struct {
	cfg    *config.Config
	log    zerolog.Logger
	kdf    crypto.KeyDeriver
	store  *store.Store
	auth   *auth.Authenticator
	audit  *audit.Logger
	source string
}

// Option configures a Vault.
type Option func(*options)

type options struct {
	log        zerolog.Logger
	hashParams *auth.HashParams
	source     string
}

// WithLogger sets the logger passed to every component.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithHashParams overrides the Argon2 cost of new PIN records.
func WithHashParams(p auth.HashParams) Option {
	return func(o *options) { o.hashParams = &p }
}

// WithSource sets the source recorded on audit events.
func WithSource(source string) Option {
	return func(o *options) { o.source = source }
}

// New builds a Vault from cfg. Nothing is created on disk until a write.
func New(cfg *config.Config, opts ...Option) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: zerolog.Nop(), source: audit.SourceAPI}
	for _, opt := range opts {
		opt(&o)
	}

	kdf, err := crypto.NewKeyDeriver(cfg.KDF, cfg.SaltPath(), cfg.Argon2)
	if err != nil {
		return nil, err
	}
	c, err := crypto.NewCipher(cfg.Cipher)
	if err != nil {
		return nil, err
	}
	policy, err := store.ParseReadPolicy(cfg.ReadPolicy)
	if err != nil {
		return nil, err
	}

	storeOpts := []store.Option{store.WithPolicy(policy), store.WithLogger(o.log)}
	if cfg.Locking {
		storeOpts = append(storeOpts, store.WithLocking(cfg.LockPath()))
	}

	authOpts := []auth.Option{auth.WithLogger(o.log)}
	if o.hashParams != nil {
		authOpts = append(authOpts, auth.WithHashParams(*o.hashParams))
	}
	if cfg.Cooldown {
		authOpts = append(authOpts, auth.WithAttemptsFile(cfg.AttemptsPath()))
	}

	return &Vault{
		cfg:    cfg,
		log:    o.log,
		kdf:    kdf,
		store:  store.New(cfg.VaultPath(), kdf, c, storeOpts...),
		auth:   auth.New(cfg.PinPath(), authOpts...),
		audit:  audit.NewLogger(cfg.AuditDir()),
		source: o.source,
	}, nil
}

// Path returns the data directory.
func (v *Vault) Path() string {
	return v.cfg.DataDir
}

// Config returns the configuration the Vault was built from.
func (v *Vault) Config() *config.Config {
	return v.cfg
}

// PinExists reports whether a PIN has been set. An unreadable PIN record
// counts as set.
func (v *Vault) PinExists() bool {
	return v.auth.Exists()
}

// SetPin performs first-time setup.
func (v *Vault) SetPin(pin string) error {
	if err := v.auth.SetPin(pin); err != nil {
		return err
	}
	v.log.Info().Str("path", v.auth.Path()).Msg("PIN set")
	v.keyAudit(pin)
	v.record(audit.OpPinSet, "", nil)
	return nil
}

// VerifyPin checks a login attempt. A wrong PIN is (false, nil).
func (v *Vault) VerifyPin(pin string) (bool, error) {
	ok, err := v.auth.Verify(pin)
	if err != nil || !ok {
		return false, err
	}
	v.checkAndWarnPermissions()
	v.keyAudit(pin)
	return true, nil
}

// RemainingCooldown returns how long PIN attempts are refused.
func (v *Vault) RemainingCooldown() time.Duration {
	return v.auth.RemainingCooldown()
}

// ChangePin moves the vault and the PIN record from oldPin to newPin.
//
// The vault is re-encrypted under the new PIN before the record changes.
// If the current vault does not open under oldPin nothing is changed. If
// the record cannot be written the vault is restored from vault.enc.bak.
func (v *Vault) ChangePin(oldPin, newPin string) error {
	if err := auth.ValidatePIN(newPin); err != nil {
		return err
	}
	ok, err := v.auth.Verify(oldPin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPinMismatch
	}
	if oldPin == newPin {
		return auth.ErrSamePIN
	}
	v.keyAudit(oldPin)

	vaultPath, bakPath := v.cfg.VaultPath(), v.cfg.RekeyBackupPath()
	hadVault := fsutil.Exists(vaultPath)
	if hadVault {
		if err := fsutil.CopyFile(vaultPath, bakPath, fsutil.FileMode); err != nil {
			return fmt.Errorf("vault: failed to back up vault before PIN change: %w", err)
		}
	}

	n, err := v.store.Rekey(oldPin, newPin)
	if err != nil {
		if hadVault {
			_ = os.Remove(bakPath)
		}
		if errors.Is(err, store.ErrAuthFailed) || errors.Is(err, store.ErrCorrupt) {
			return fmt.Errorf("%w: %w", ErrVaultUnusable, err)
		}
		return err
	}

	if err := v.auth.Replace(newPin); err != nil {
		v.restoreVault(hadVault, bakPath, vaultPath)
		return err
	}

	if hadVault {
		if err := os.Remove(bakPath); err != nil {
			v.log.Warn().Err(err).Msg("failed to remove PIN change backup")
		}
	}
	v.log.Info().Int("notes", n).Msg("PIN changed, vault re-encrypted")

	v.rekeyAudit(newPin)
	v.record(audit.OpPinChange, "", nil)
	return nil
}

func (v *Vault) restoreVault(hadVault bool, bakPath, vaultPath string) {
	var err error
	if hadVault {
		err = fsutil.CopyFile(bakPath, vaultPath, fsutil.FileMode)
	} else if err = os.Remove(vaultPath); errors.Is(err, os.ErrNotExist) {
		// Rekey leaves an absent vault absent.
		err = nil
	}
	if err != nil {
		v.log.Error().Err(err).Str("backup", bakPath).
			Msg("failed to restore vault after PIN change failure")
	}
}

// LoadNotes returns the notes under the configured read policy.
func (v *Vault) LoadNotes(pin string) (store.Notes, error) {
	return v.store.Load(pin)
}

// ReadNotes returns the notes, reporting any read failure.
func (v *Vault) ReadNotes(pin string) (store.Notes, error) {
	return v.store.Read(pin)
}

// Titles returns the sorted note titles under the configured read policy.
func (v *Vault) Titles(pin string) ([]string, error) {
	return v.store.Titles(pin)
}

// SaveNote inserts or replaces a note.
func (v *Vault) SaveNote(pin, title, body string) error {
	if err := v.checkDiskSpaceForWrite(len(body)); err != nil {
		return err
	}
	err := v.store.Save(pin, title, body)
	v.record(audit.OpNoteSave, title, err)
	return err
}

// DeleteNote removes a note. Deleting a missing note is not an error.
func (v *Vault) DeleteNote(pin, title string) error {
	err := v.store.Delete(pin, title)
	v.record(audit.OpNoteDelete, title, err)
	return err
}

// ExportVault copies the encrypted vault file to dest.
func (v *Vault) ExportVault(dest string) error {
	err := backup.Export(v.cfg.VaultPath(), dest)
	v.record(audit.OpVaultExport, "", err)
	return err
}

// ImportVault replaces the encrypted vault file with src. The file is not
// checked: a vault sealed under another PIN will not open afterwards.
func (v *Vault) ImportVault(src string) error {
	if info, err := os.Stat(src); err == nil {
		if err := v.checkDiskSpaceForWrite(int(info.Size())); err != nil {
			return err
		}
	}
	err := backup.Import(src, v.cfg.VaultPath())
	v.record(audit.OpVaultImport, "", err)
	return err
}

// Snapshot exports the vault into the snapshot directory and prunes old
// snapshots. It returns "" when there is no vault yet.
func (v *Vault) Snapshot() (string, error) {
	path, err := backup.Snapshot(v.cfg.VaultPath(), v.cfg.SnapshotDir())
	if err != nil {
		if errors.Is(err, backup.ErrVaultNotFound) {
			return "", nil
		}
		return "", err
	}
	if n, err := backup.Prune(v.cfg.SnapshotDir(), v.cfg.SnapshotKeep); err != nil {
		v.log.Warn().Err(err).Msg("failed to prune snapshots")
	} else if n > 0 {
		v.log.Debug().Int("removed", n).Msg("pruned old snapshots")
	}
	return path, nil
}

// Reset deletes the whole data directory: vault, PIN record, settings,
// audit log and snapshots.
func (v *Vault) Reset() error {
	abs, err := filepath.Abs(v.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("vault: failed to resolve data directory: %w", err)
	}
	home, _ := os.UserHomeDir()
	if filepath.Dir(abs) == abs || abs == home {
		return fmt.Errorf("%w: %s", ErrUnsafeReset, abs)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("vault: failed to remove data directory: %w", err)
	}
	v.log.Info().Str("path", abs).Msg("all data removed")
	return nil
}

// AuditLogger returns the audit logger.
func (v *Vault) AuditLogger() *audit.Logger {
	return v.audit
}

// AuditVerify verifies the audit log. It needs a prior VerifyPin.
func (v *Vault) AuditVerify() (*audit.VerifyResult, error) {
	return v.audit.Verify()
}

// auditKey derives the audit HMAC key. The salt may only be created while
// there is no vault it would fail to open.
func (v *Vault) auditKey(pin string) ([]byte, error) {
	key, err := v.kdf.DeriveKey(pin)
	if !errors.Is(err, crypto.ErrSaltMissing) {
		return key, err
	}
	if _, statErr := os.Stat(v.cfg.VaultPath()); !errors.Is(statErr, os.ErrNotExist) {
		return nil, err
	}
	return v.kdf.DeriveKeyForWrite(pin)
}

func (v *Vault) keyAudit(pin string) {
	key, err := v.auditKey(pin)
	if err != nil {
		v.log.Warn().Err(err).Msg("audit: failed to derive key")
		return
	}
	defer crypto.SecureWipe(key)
	if err := v.audit.SetHMACKey(key); err != nil {
		v.log.Warn().Err(err).Msg("audit: failed to set key")
	}
}

func (v *Vault) rekeyAudit(pin string) {
	key, err := v.auditKey(pin)
	if err != nil {
		v.log.Warn().Err(err).Msg("audit: failed to derive key")
		return
	}
	defer crypto.SecureWipe(key)
	if err := v.audit.Rekey(key); err != nil {
		v.log.Warn().Err(err).Msg("audit: chain not re-signed, starting a new key")
		if err := v.audit.SetHMACKey(key); err != nil {
			v.log.Warn().Err(err).Msg("audit: failed to set key")
		}
	}
}

// record appends an audit event. Audit failures never fail the operation.
func (v *Vault) record(op, title string, opErr error) {
	if !v.audit.Keyed() {
		v.log.Debug().Str("op", op).Msg("audit: log not keyed, event skipped")
		return
	}
	var err error
	if opErr != nil {
		err = v.audit.LogError(op, v.source, title, opErr)
	} else {
		err = v.audit.LogSuccess(op, v.source, title)
	}
	if err != nil {
		v.log.Warn().Err(err).Str("op", op).Msg("audit: failed to record event")
	}
}
