package cli

import (
	"errors"

	"tollgate-hq/tollgate/pkg/ratelimit"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitDenied  = 1
	ExitConfig  = 2
	ExitStorage = 3
)

// ErrDenied marks a denied check so the command surface can exit 1
// without printing an error; a denied check is a normal outcome.
var ErrDenied = errors.New("rate limit exceeded")

// ExitCode maps an error from a command to its process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, ErrDenied) {
		return ExitDenied
	}

	var storageErr *ratelimit.StorageError
	if errors.As(err, &storageErr) {
		return ExitStorage
	}

	// Unknown tools, invalid limits, and malformed input are all
	// configuration errors, as is anything else a command rejects.
	return ExitConfig
}
