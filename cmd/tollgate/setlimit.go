package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tollgate-hq/tollgate/pkg/ratelimit"
)

var setLimitCmd = &cobra.Command{
	Use:   "set-limit <tool> <capacity> <refill-rate>",
	Short: "Configure the rate limit for a tool",
	Long: `Create or update the rate limit for a tool.

Capacity is the burst size: the maximum number of tokens the bucket
holds. Refill rate is tokens added per second. A rate of 0 makes the
budget non-renewing.

Updating a limit preserves the current spend: existing buckets keep
their token count, clamped to the new capacity.

Examples:
  # 10 call burst, refilling at 1 call/second
  tollgate set-limit search 10 1

  # 3 deploys per hour
  tollgate set-limit deploy 3 0.000833

  # Fixed budget of 100 calls, no refill
  tollgate set-limit migrate 100 0`,
	Args: cobra.ExactArgs(3),
	RunE: runSetLimit,
}

func init() {
	rootCmd.AddCommand(setLimitCmd)
}

func runSetLimit(cmd *cobra.Command, args []string) error {
	tool := args[0]

	capacity, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return ratelimit.NewConfigError("capacity",
			fmt.Sprintf("not a number: %q", args[1]))
	}
	refillRate, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return ratelimit.NewConfigError("refill_rate",
			fmt.Sprintf("not a number: %q", args[2]))
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

	if err := registry.SetLimit(ctx, tool, capacity, refillRate); err != nil {
		return err
	}

	fmt.Printf("Limit set: %s capacity=%.2f refill=%.4f/s\n", tool, capacity, refillRate)
	return nil
}
