package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tollgate-hq/tollgate/pkg/audit"
	"tollgate-hq/tollgate/pkg/cli"
	"tollgate-hq/tollgate/pkg/ratelimit"
)

var historyFlags struct {
	tool   string
	user   string
	denied bool
	since  string
	limit  int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the decision journal",
	Long: `Query recorded check decisions, newest first.

Requires auditing to be enabled in the configuration:

  audit:
    enabled: true

Examples:
  # Last 20 decisions
  tollgate history --limit 20

  # Denials for one tool
  tollgate history --tool search --denied

  # Everything since a point in time
  tollgate history --since 2026-08-01T00:00:00Z`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyFlags.tool, "tool", "", "filter by tool")
	historyCmd.Flags().StringVar(&historyFlags.user, "user", "", "filter by user")
	historyCmd.Flags().BoolVar(&historyFlags.denied, "denied", false, "only denied decisions")
	historyCmd.Flags().StringVar(&historyFlags.since, "since", "", "only decisions after this RFC 3339 timestamp")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 50, "maximum records to return (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := parseFormat()
	if err != nil {
		return err
	}

	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	if !cfg.Audit.Enabled {
		return ratelimit.NewConfigError("audit.enabled", "auditing is disabled")
	}

	filter := audit.Filter{
		Tool:       historyFlags.tool,
		User:       historyFlags.user,
		DeniedOnly: historyFlags.denied,
		Limit:      historyFlags.limit,
	}
	if historyFlags.since != "" {
		since, err := time.Parse(time.RFC3339, historyFlags.since)
		if err != nil {
			return ratelimit.NewConfigError("since",
				fmt.Sprintf("invalid timestamp %q: use RFC 3339", historyFlags.since))
		}
		filter.Since = since
	}

	auditor, err := newAuditStore(cfg)
	if err != nil {
		return err
	}
	defer auditor.Close()

	records, err := auditor.Query(cmd.Context(), filter)
	if err != nil {
		return ratelimit.NewStorageError("query audit store", err)
	}

	if format == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, records)
	}
	if len(records) == 0 {
		fmt.Println("No decisions recorded.")
		return nil
	}
	return writeRecords(os.Stdout, records)
}

func writeRecords(w io.Writer, records []audit.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKEY\tRESULT\tREMAINING")
	for _, record := range records {
		result := "allowed"
		if !record.Allowed {
			result = "denied"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n",
			record.CreatedAt.Format(time.RFC3339), record.Key, result, record.Remaining)
	}
	return tw.Flush()
}
