package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tollgate-hq/tollgate/pkg/audit"
	"tollgate-hq/tollgate/pkg/cli"
	"tollgate-hq/tollgate/pkg/ratelimit"
)

var checkCmd = &cobra.Command{
	Use:   "check <tool> [user]",
	Short: "Spend one token against a tool's rate limit",
	Long: `Check whether a call to the tool is allowed right now.

An allowed check consumes one token and persists the new bucket state.
A denied check consumes nothing and reports how long to wait for the
next token.

The optional user argument tracks a separate bucket per user under the
same limit.

Examples:
  # Shared bucket for the tool
  tollgate check search

  # Per-user bucket
  tollgate check search alice

  # Guard a script step
  tollgate check deploy "$USER" || exit 1`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	tool := args[0]
	user := ""
	if len(args) == 2 {
		user = args[1]
	}

	format, err := parseFormat()
	if err != nil {
		return err
	}

	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	registry, _, err := newRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	auditor, err := newAuditStore(cfg)
	if err != nil {
		return err
	}
	if auditor != nil {
		defer auditor.Close()
	}

	decision, err := registry.Check(ctx, tool, user)
	if err != nil {
		return err
	}

	if auditor != nil {
		record := &audit.Record{
			Tool:      tool,
			User:      user,
			Key:       decision.Key,
			Allowed:   decision.Allowed,
			Remaining: decision.Remaining,
		}
		if err := auditor.Append(ctx, record); err != nil {
			slog.Warn("failed to record decision", "error", err)
		}
	}

	if format == cli.FormatJSON {
		if err := cli.WriteJSON(os.Stdout, decision); err != nil {
			return err
		}
	} else {
		printDecision(decision)
	}

	if !decision.Allowed {
		return cli.ErrDenied
	}
	return nil
}

func printDecision(decision *ratelimit.Decision) {
	if decision.Allowed {
		fmt.Printf("ALLOWED: %s (%.2f tokens remaining)\n", decision.Key, decision.Remaining)
		return
	}
	fmt.Printf("DENIED: %s (retry in %s)\n", decision.Key, decision.RetryAfter.Round(time.Millisecond))
}
