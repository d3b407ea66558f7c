package ratelimit

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned when a check is made against a tool that has
// no configured limit. Absence of configuration is never interpreted as
// unlimited access.
var ErrUnknownTool = errors.New("no rate limit configured for tool")

// ConfigError represents invalid limiter configuration, such as a
// non-positive capacity or a negative refill rate.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// StorageError represents a persistence failure. A check that hits a
// StorageError never reports ALLOWED, since unpersisted consumption would
// grant free tokens on the next restart.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}
