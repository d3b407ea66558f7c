package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tollgate-hq/tollgate/pkg/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status [tool] [user]",
	Short: "Show current bucket state",
	Long: `Show token counts for tracked buckets without consuming anything.

With no arguments, all buckets are listed. With a tool, only that
tool's buckets are shown. Token counts include refill accrued since
the last check, so the output reflects what a check would see now.

Examples:
  # All buckets
  tollgate status

  # One tool, all users
  tollgate status search

  # One specific bucket
  tollgate status search alice

  # Machine-readable output
  tollgate status --format json`,
	Args: cobra.MaximumNArgs(2),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	tool, user := "", ""
	if len(args) > 0 {
		tool = args[0]
	}
	if len(args) > 1 {
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

	snapshots, err := registry.Status(ctx, tool, user)
	if err != nil {
		return err
	}

	if format == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, snapshots)
	}
	if len(snapshots) == 0 {
		fmt.Println("No buckets tracked.")
		return nil
	}
	return cli.WriteSnapshots(os.Stdout, snapshots)
}
