package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/forest6511/pinvault/internal/cli"
	"github.com/forest6511/pinvault/pkg/settings"
	"github.com/forest6511/pinvault/pkg/store"
)

var (
	showCopy bool

	saveBody string

	deleteForce bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(deleteCmd)

	showCmd.Flags().BoolVarP(&showCopy, "copy", "c", false, "Copy the note body to the clipboard instead of printing it")
	saveCmd.Flags().StringVarP(&saveBody, "body", "b", "", "Note body (default: read from stdin)")
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

// listCmd lists note titles
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists note titles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := unlock()
		if err != nil {
			return err
		}

		titles, err := v.Titles(pin)
		if err != nil {
			return fmt.Errorf("failed to load notes: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, title := range titles {
			fmt.Fprintln(out, title)
		}
		if prefs.Bool(settings.KeyShowNoteCount) {
			fmt.Fprintf(out, "\nTotal: %d notes\n", len(titles))
		}
		return nil
	},
}

// showCmd prints one note
var showCmd = &cobra.Command{
	Use:   "show <title>",
	Short: "Shows a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := unlock()
		if err != nil {
			return err
		}

		notes, err := v.LoadNotes(pin)
		if err != nil {
			return fmt.Errorf("failed to load notes: %w", err)
		}
		body, ok := notes[cli.NormalizeTitle(args[0])]
		if !ok {
			body, ok = notes[args[0]]
		}
		if !ok {
			return fmt.Errorf("note %q not found", args[0])
		}

		if showCopy {
			if err := clipboard.WriteAll(body); err != nil {
				return fmt.Errorf("failed to copy to clipboard: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Copied to clipboard")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), body)
		return nil
	},
}

// saveCmd creates or replaces a note
var saveCmd = &cobra.Command{
	Use:   "save <title>",
	Short: "Saves a note from --body or standard input",
	Long: `Saves a note, replacing any note with the same title.

Examples:
  pinvault save todo --body "buy milk"
  cat notes.txt | pinvault save meeting`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := cli.NormalizeTitle(args[0])
		if title == "" {
			return errors.New("note title cannot be empty")
		}

		pin, err := unlock()
		if err != nil {
			return err
		}

		body := saveBody
		if !cmd.Flags().Changed("body") {
			if prompter.IsInteractive() {
				fmt.Fprintln(cmd.ErrOrStderr(), "Enter note body (Ctrl+D to finish):")
			}
			if body, err = prompter.ReadBody(); err != nil {
				return err
			}
		}

		if err := v.SaveNote(pin, title, body); err != nil {
			if errors.Is(err, store.ErrInvalidText) {
				return errors.New("note title and body must be UTF-8 text; binary input cannot be saved")
			}
			return fmt.Errorf("failed to save note: %w", err)
		}
		mutated = true
		fmt.Fprintf(cmd.OutOrStdout(), "Note '%s' saved\n", title)
		return nil
	},
}

// deleteCmd deletes notes by title or glob pattern
var deleteCmd = &cobra.Command{
	Use:   "delete <title|pattern>...",
	Short: "Deletes notes by title or glob pattern",
	Long: `Deletes notes. An argument that is an exact title deletes that note;
otherwise it is matched as a glob pattern (*, ?, [...]).

Examples:
  pinvault delete todo
  pinvault delete 'draft-*'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := unlock()
		if err != nil {
			return err
		}

		titles, err := v.Titles(pin)
		if err != nil {
			return fmt.Errorf("failed to load notes: %w", err)
		}
		targets, err := cli.ExpandPatterns(args, titles)
		if err != nil {
			return err
		}

		if prefs.Bool(settings.KeyConfirmDelete) && !deleteForce {
			ok, err := prompter.Confirm(fmt.Sprintf("Delete %d note(s): %s?", len(targets), strings.Join(targets, ", ")))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
		}

		for _, title := range targets {
			if err := v.DeleteNote(pin, title); err != nil {
				return fmt.Errorf("failed to delete note '%s': %w", title, err)
			}
			mutated = true
			fmt.Fprintf(cmd.OutOrStdout(), "Note '%s' deleted\n", title)
		}
		return nil
	},
}
