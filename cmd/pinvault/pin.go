package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/pinvault/pkg/auth"
	"github.com/forest6511/pinvault/pkg/vault"
)

func init() {
	rootCmd.AddCommand(pinCmd)
	pinCmd.AddCommand(pinChangeCmd)
}

// pinCmd is the parent command for PIN operations
var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "PIN operations",
}

// pinChangeCmd changes the PIN and re-encrypts the vault
var pinChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Changes the PIN and re-encrypts the vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !v.PinExists() {
			return errors.New("no PIN set, run 'pinvault init' first")
		}

		oldPin, err := prompter.ReadPIN("Current PIN: ")
		if err != nil {
			return err
		}
		newPin, err := prompter.ReadNewPIN(fmt.Sprintf("New PIN (%d-%d digits): ", auth.MinPINLength, auth.MaxPINLength))
		if err != nil {
			return err
		}

		err = v.ChangePin(oldPin, newPin)
		switch {
		case err == nil:
		case errors.Is(err, vault.ErrPinMismatch):
			return errors.New("incorrect PIN")
		case errors.Is(err, vault.ErrVaultUnusable):
			return fmt.Errorf("%w; export it or restore a snapshot before changing the PIN", err)
		default:
			return fmt.Errorf("failed to change PIN: %w", err)
		}

		mutated = true
		fmt.Fprintln(cmd.OutOrStdout(), "PIN changed")
		printPINStrength(cmd.OutOrStdout(), newPin)
		return nil
	},
}
