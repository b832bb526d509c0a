package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/pinvault/pkg/settings"
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsResetCmd)
}

// settingsCmd is the parent command for preferences
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Shows and changes preferences",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Prints one preference, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := prefs.Keys()
		if len(args) == 1 {
			if _, ok := prefs.Get(args[0]); !ok {
				return fmt.Errorf("unknown setting %q", args[0])
			}
			keys = args
		}

		out := cmd.OutOrStdout()
		for _, key := range keys {
			value, _ := prefs.Get(key)
			encoded, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", key, err)
			}
			if len(args) == 1 {
				fmt.Fprintln(out, string(encoded))
			} else {
				fmt.Fprintf(out, "%s = %s\n", key, encoded)
			}
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Changes a preference",
	Long: `Changes a preference. The value is parsed according to the type of the
key's default (true/false, integers, text); other values are read as JSON.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := settings.Parse(args[0], args[1])
		if err != nil {
			return err
		}
		prefs.Set(args[0], value)
		if err := prefs.Save(); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
		return nil
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restores the default preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs.Reset()
		if err := prefs.Save(); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Settings reset to defaults")
		return nil
	},
}
