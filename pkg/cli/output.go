package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"tollgate-hq/tollgate/pkg/ratelimit"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is human-readable output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
)

// WriteJSON writes data as indented JSON.
func WriteJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// WriteSnapshots writes bucket snapshots as an aligned table.
func WriteSnapshots(w io.Writer, snapshots []ratelimit.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTOKENS\tCAPACITY\tREFILL/S\tLAST REFILL")
	for _, snap := range snapshots {
		lastRefill := "-"
		if !snap.LastRefill.IsZero() {
			lastRefill = snap.LastRefill.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%s\n",
			snap.Key, snap.Tokens, snap.Capacity, snap.RefillRate, lastRefill)
	}
	return tw.Flush()
}
