package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Audit flags
var (
	auditLimit int
	auditSince string

	auditExportFormat string
	auditExportSince  string
	auditExportUntil  string
	auditExportOutput string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h, 7d)")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "Output format: json, csv")
	auditExportCmd.Flags().StringVar(&auditExportSince, "since", "", "Export events since duration (e.g., 30d)")
	auditExportCmd.Flags().StringVar(&auditExportUntil, "until", "", "Export events until date (RFC 3339)")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Output file path (default: stdout)")
}

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := unlock(); err != nil {
			return err
		}

		var since time.Time
		if auditSince != "" {
			duration, err := parseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = time.Now().Add(-duration)
		}

		events, err := v.AuditLogger().ListEvents(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No audit events found")
			return nil
		}

		for _, event := range events {
			// Format: TIMESTAMP OPERATION RESULT [TITLE]
			line := fmt.Sprintf("%s %s %s", event.Timestamp, event.Operation, event.Result)
			if event.Title != "" {
				title := event.Title
				if len(title) > 16 {
					title = title[:16] + "..."
				}
				line += fmt.Sprintf(" title:%s", title)
			}
			if event.Error != "" {
				line += fmt.Sprintf(" error:%q", event.Error)
			}
			fmt.Fprintln(out, line)
		}

		fmt.Fprintf(out, "\nTotal: %d events\n", len(events))
		return nil
	},
}

// auditVerifyCmd verifies the HMAC chain
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := unlock(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Verifying audit log integrity...")

		result, err := v.AuditVerify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if !result.Valid {
			fmt.Fprintln(out, "✗ Audit log verification FAILED")
			fmt.Fprintf(out, "  Records total: %d\n", result.RecordsTotal)
			fmt.Fprintln(out, "  Errors:")
			for _, e := range result.Errors {
				fmt.Fprintf(out, "    - %s\n", e)
			}
			return fmt.Errorf("audit log integrity check failed")
		}
		fmt.Fprintf(out, "✓ Audit log verified: %d records, chain intact\n", result.RecordsTotal)

		// Also output as JSON for machine parsing
		jsonResult, _ := json.Marshal(result)
		fmt.Fprintf(out, "\nJSON: %s\n", string(jsonResult))
		return nil
	},
}

// auditExportCmd exports audit logs
var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit logs to JSON or CSV format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := unlock(); err != nil {
			return err
		}

		if auditExportFormat != "json" && auditExportFormat != "csv" {
			return fmt.Errorf("invalid format: %s (use 'json' or 'csv')", auditExportFormat)
		}

		var since, until time.Time
		if auditExportSince != "" {
			duration, err := parseDuration(auditExportSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = time.Now().Add(-duration)
		}
		if auditExportUntil != "" {
			var err error
			until, err = time.Parse(time.RFC3339, auditExportUntil)
			if err != nil {
				return fmt.Errorf("invalid until format (use RFC 3339): %w", err)
			}
		}

		data, err := v.AuditLogger().Export(auditExportFormat, since, until)
		if err != nil {
			return fmt.Errorf("failed to export audit logs: %w", err)
		}

		if auditExportOutput == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(auditExportOutput, data, 0600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Audit log exported to %s\n", auditExportOutput)
		return nil
	},
}
