// Package config loads pinvault's optional YAML configuration.
//
// Every field has a default that reproduces the on-disk layout and formats
// of the desktop note program that first wrote these vaults, so running
// without a config file reads and writes the vaults it created.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/pinvault/pkg/crypto"
	"github.com/forest6511/pinvault/pkg/store"
)

// FileName is the config file looked up in the data directory.
const FileName = "pinvault.yaml"

// Default file layout
const (
	DefaultDataDir      = "data"
	DefaultVaultFile    = "vault.enc"
	DefaultPinFile      = "pin.hash"
	DefaultSettingsFile = "settings.json"
	DefaultSnapshotKeep = 10

	saltFile     = "vault.salt"
	attemptsFile = "pin.attempts"
	lockFile     = "vault.lock"
	auditDir     = "audit"
	snapshotDir  = "backups"
)

var (
	// ErrNotFound is returned when an explicitly named config file is missing.
	ErrNotFound = errors.New("config: file not found")

	// ErrInsecure is returned for a config file other users can write.
	ErrInsecure = errors.New("config: file is writable by other users")
)

// Config is the core configuration.
type Config struct {
	DataDir      string `yaml:"data_dir"`
	VaultFile    string `yaml:"vault_file"`
	PinFile      string `yaml:"pin_file"`
	SettingsFile string `yaml:"settings_file"`

	// KDF is "sha256" (compatible with existing vaults) or "argon2id".
	KDF string `yaml:"kdf"`
	// Cipher is "fernet" (compatible), "aes-256-gcm" or "xchacha20-poly1305".
	Cipher string `yaml:"cipher"`
	// ReadPolicy is "lenient" (unreadable vault loads as empty) or "strict".
	ReadPolicy string `yaml:"read_policy"`

	Argon2 crypto.Argon2Params `yaml:"argon2"`

	// Locking serializes concurrent vault writers with a lock file.
	Locking bool `yaml:"locking"`
	// Cooldown throttles repeated wrong PINs.
	Cooldown bool `yaml:"cooldown"`
	// SnapshotKeep is how many exit snapshots to retain (0 = all).
	SnapshotKeep int `yaml:"snapshot_keep"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:      DefaultDataDir,
		VaultFile:    DefaultVaultFile,
		PinFile:      DefaultPinFile,
		SettingsFile: DefaultSettingsFile,
		KDF:          crypto.KDFSHA256,
		Cipher:       crypto.CipherFernet,
		ReadPolicy:   store.ReadLenient.String(),
		Argon2:       crypto.DefaultArgon2Params(),
		Locking:      true,
		Cooldown:     true,
		SnapshotKeep: DefaultSnapshotKeep,
		LogLevel:     zerolog.WarnLevel.String(),
	}
}

// Find returns the config file inside dataDir, or "" if there is none.
func Find(dataDir string) string {
	path := filepath.Join(dataDir, FileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("config: failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	// The file selects the KDF and cipher, so it must not be
	// replaceable by other users.
	if runtime.GOOS != "windows" && info.Mode().Perm()&0022 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %o", ErrInsecure, path, info.Mode().Perm())
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every field names something pinvault supports.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir cannot be empty")
	}
	for name, v := range map[string]string{
		"vault_file":    c.VaultFile,
		"pin_file":      c.PinFile,
		"settings_file": c.SettingsFile,
	} {
		if v == "" {
			return fmt.Errorf("config: %s cannot be empty", name)
		}
	}

	if _, err := crypto.NewKeyDeriver(c.KDF, c.SaltPath(), c.Argon2); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := crypto.NewCipher(c.Cipher); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := store.ParseReadPolicy(c.ReadPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
		}
	}
	if c.SnapshotKeep < 0 {
		return errors.New("config: snapshot_keep cannot be negative")
	}
	return nil
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// VaultPath returns the encrypted vault file path.
func (c *Config) VaultPath() string { return c.resolve(c.VaultFile) }

// PinPath returns the PIN record path.
func (c *Config) PinPath() string { return c.resolve(c.PinFile) }

// SettingsPath returns the settings file path.
func (c *Config) SettingsPath() string { return c.resolve(c.SettingsFile) }

// SaltPath returns the per-vault salt used by the argon2id KDF.
func (c *Config) SaltPath() string { return c.resolve(saltFile) }

// AttemptsPath returns the failed-attempt state file.
func (c *Config) AttemptsPath() string { return c.resolve(attemptsFile) }

// LockPath returns the writer lock file.
func (c *Config) LockPath() string { return c.resolve(lockFile) }

// RekeyBackupPath returns where the vault is kept during a PIN change.
func (c *Config) RekeyBackupPath() string { return c.VaultPath() + ".bak" }

// AuditDir returns the audit log directory.
func (c *Config) AuditDir() string { return c.resolve(auditDir) }

// SnapshotDir returns the directory for exit snapshots.
func (c *Config) SnapshotDir() string { return c.resolve(snapshotDir) }
