package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forest6511/pinvault/internal/cli"
	"github.com/forest6511/pinvault/internal/config"
	"github.com/forest6511/pinvault/internal/logging"
	"github.com/forest6511/pinvault/pkg/audit"
	"github.com/forest6511/pinvault/pkg/auth"
	"github.com/forest6511/pinvault/pkg/security"
	"github.com/forest6511/pinvault/pkg/settings"
	"github.com/forest6511/pinvault/pkg/vault"
)

var (
	dataDir    string
	configFile string
	logLevel   string

	v        *vault.Vault
	prefs    *settings.Settings
	prompter *cli.Prompter
	logger   zerolog.Logger

	// mutated is set by commands that change the vault file, so the
	// backup_on_exit preference knows when to snapshot.
	mutated bool
)

var rootCmd = &cobra.Command{
	Use:   "pinvault",
	Short: "pinvault is a PIN-protected encrypted notes vault",
	Long: `A single-user notes vault. Notes are kept in one encrypted file
that is unlocked with a 4-6 digit PIN.

Set PINVAULT_PIN to supply the PIN without a prompt.`,
	SilenceUsage: true,
	// PersistentPreRunE runs before every subcommand and builds the Vault
	// from the configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		mutated = false

		path := configFile
		if path == "" {
			path = config.Find(dataDir)
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("data-dir") || path == "" {
			cfg.DataDir = dataDir
		}

		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logger, err = logging.New(level, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		v, err = vault.New(cfg, vault.WithLogger(logger), vault.WithSource(audit.SourceCLI))
		if err != nil {
			return err
		}

		prefs, err = settings.Load(cfg.SettingsPath())
		if err != nil {
			logger.Warn().Err(err).Msg("settings unreadable, using defaults")
		}

		prompter = cli.NewPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
		return nil
	},
	// PersistentPostRunE only runs after a successful command.
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if !mutated || prefs == nil || !prefs.Bool(settings.KeyBackupOnExit) {
			return nil
		}
		path, err := v.Snapshot()
		if err != nil {
			logger.Warn().Err(err).Msg("backup on exit failed")
			return nil
		}
		if path != "" {
			logger.Info().Str("path", path).Msg("vault snapshot written")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", config.DefaultDataDir, "Data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: <data-dir>/"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
}

// unlock reads the PIN and verifies it. The returned PIN is what every
// note operation needs.
func unlock() (string, error) {
	if !v.PinExists() {
		return "", errors.New("no PIN set, run 'pinvault init' first")
	}
	pin, err := prompter.ReadPIN("Enter PIN: ")
	if err != nil {
		return "", err
	}
	ok, err := v.VerifyPin(pin)
	if err != nil {
		if errors.Is(err, auth.ErrCooldownActive) {
			return "", fmt.Errorf("too many failed attempts, try again in %s",
				v.RemainingCooldown().Round(time.Second))
		}
		return "", fmt.Errorf("failed to verify PIN: %w", err)
	}
	if !ok {
		return "", errors.New("incorrect PIN")
	}
	return pin, nil
}

// initCmd performs first-time PIN setup
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Sets the PIN for a new vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v.PinExists() {
			return errors.New("a PIN is already set (use 'pinvault pin change')")
		}

		pin, err := prompter.ReadNewPIN(fmt.Sprintf("Choose a PIN (%d-%d digits): ", auth.MinPINLength, auth.MaxPINLength))
		if err != nil {
			return err
		}
		if err := v.SetPin(pin); err != nil {
			return fmt.Errorf("failed to set PIN: %w", err)
		}
		printPINStrength(cmd.OutOrStdout(), pin)
		if err := prefs.Save(); err != nil {
			logger.Warn().Err(err).Msg("failed to write settings")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "PIN set. Data directory: %s\n", v.Path())
		return nil
	},
}

var resetForce bool

// resetCmd deletes all data
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Deletes the vault, PIN, settings and audit log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetForce {
			ok, err := prompter.Confirm(fmt.Sprintf("Delete ALL data in %s? This cannot be undone", v.Path()))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
		}
		if err := v.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All data removed")
		return nil
	},
}

// checkCmd checks the data directory
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Checks PIN record, vault and file permissions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var pin string
		if v.PinExists() {
			var err error
			if pin, err = unlock(); err != nil {
				return err
			}
		}

		result, err := v.CheckIntegrity(pin)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if result.Valid {
			fmt.Fprintf(out, "✓ Vault OK: %d notes\n", result.Notes)
			return nil
		}
		fmt.Fprintln(out, "✗ Integrity check FAILED")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
		return errors.New("integrity check failed")
	},
}

// printPINStrength shows the advisory rating of a newly chosen PIN.
func printPINStrength(w io.Writer, pin string) {
	report := security.CheckPIN(pin)
	fmt.Fprintf(w, "PIN strength: %s\n", report.Strength)
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}

// parseDuration parses durations like 24h, 7d, 2w, 1m (30 days), 1y.
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return time.ParseDuration(s)
	}

	switch unit {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(value) * 30 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		return time.ParseDuration(s)
	}
}
