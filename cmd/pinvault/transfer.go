package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importForce bool

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(snapshotCmd)

	importCmd.Flags().BoolVarP(&importForce, "force", "f", false, "Skip confirmation prompt")
}

// exportCmd copies the encrypted vault file
var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Copies the encrypted vault file to path",
	Long: `Copies the encrypted vault file as is. The copy can only be read
with the PIN that was current when it was exported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := unlock(); err != nil {
			return err
		}
		if err := v.ExportVault(args[0]); err != nil {
			return fmt.Errorf("failed to export vault: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vault exported to %s\n", args[0])
		return nil
	},
}

// importCmd replaces the vault file with an exported copy
var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Replaces the vault file with an exported copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := unlock()
		if err != nil {
			return err
		}

		if !importForce {
			ok, err := prompter.Confirm(fmt.Sprintf("Replace the current vault with %s?", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
		}

		if err := v.ImportVault(args[0]); err != nil {
			return fmt.Errorf("failed to import vault: %w", err)
		}
		mutated = true

		notes, err := v.ReadNotes(pin)
		if err != nil {
			logger.Warn().Err(err).Msg("imported vault does not open with the current PIN")
			fmt.Fprintln(cmd.OutOrStdout(), "Vault imported, but it does not open with the current PIN")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vault imported: %d notes\n", len(notes))
		return nil
	},
}

// snapshotCmd writes a timestamped copy into the backups directory
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Writes a timestamped copy of the vault to the backups directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := v.Snapshot()
		if err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		if path == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No vault to snapshot")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", path)
		return nil
	},
}
