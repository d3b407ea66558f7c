package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset [tool] [user]",
	Short: "Refill buckets to capacity",
	Long: `Refill buckets to full capacity.

With no arguments, every tracked bucket is refilled. With a tool (and
optionally a user), only the matching bucket is refilled. Limits are
not changed.

Examples:
  # Refill everything
  tollgate reset

  # Refill one bucket
  tollgate reset search alice`,
	Args: cobra.MaximumNArgs(2),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	tool, user := "", ""
	if len(args) > 0 {
		tool = args[0]
	}
	if len(args) > 1 {
		user = args[1]
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

	if err := registry.Reset(ctx, tool, user); err != nil {
		return err
	}

	if tool == "" {
		fmt.Println("All buckets refilled.")
	} else {
		fmt.Printf("Bucket refilled: %s\n", describeTarget(tool, user))
	}
	return nil
}

func describeTarget(tool, user string) string {
	if user == "" {
		return tool
	}
	return fmt.Sprintf("%s (user %s)", tool, user)
}
