package cli

import (
	"errors"
	"fmt"
	"testing"

	"tollgate-hq/tollgate/pkg/ratelimit"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"denied", ErrDenied, ExitDenied},
		{"wrapped denied", fmt.Errorf("check: %w", ErrDenied), ExitDenied},
		{"unknown tool", fmt.Errorf("%w: %q", ratelimit.ErrUnknownTool, "ghost"), ExitConfig},
		{"config error", ratelimit.NewConfigError("capacity", "must be positive"), ExitConfig},
		{"storage error", ratelimit.NewStorageError("save state", errors.New("disk full")), ExitStorage},
		{"wrapped storage error", fmt.Errorf("check: %w", ratelimit.NewStorageError("save state", errors.New("disk full"))), ExitStorage},
		{"anything else", errors.New("bad flag"), ExitConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
