package ratelimit

import (
	"fmt"
	"strings"
)

// KeySeparator joins a tool name and a user identity into a limiter key.
// Tool and user names may not contain it, so "a::b" as a tool can never
// collide with tool "a" used by user "b".
const KeySeparator = "::"

// MakeKey derives the limiter key for a tool and an optional user.
// With a user each user gets an independent bucket against the same tool
// configuration; without one the tool has a single shared bucket.
func MakeKey(tool, user string) string {
	if user == "" {
		return tool
	}
	return tool + KeySeparator + user
}

// SplitKey is the inverse of MakeKey.
func SplitKey(key string) (tool, user string) {
	tool, user, _ = strings.Cut(key, KeySeparator)
	return tool, user
}

// ValidateName checks that a tool or user name is usable as a key
// component: non-empty and free of the key separator.
func ValidateName(field, name string) error {
	if name == "" {
		return NewConfigError(field, "cannot be empty")
	}
	if strings.Contains(name, KeySeparator) {
		return NewConfigError(field, fmt.Sprintf("cannot contain %q", KeySeparator))
	}
	return nil
}
