// Package ratelimit implements persistent token bucket rate limiting for
// discrete invocation events, keyed by tool or by tool and user.
//
// # Overview
//
// The package is built around two types:
//
//   - Bucket: per-key token bucket state with refill and consume arithmetic
//   - Registry: the mapping from limiter key to Bucket, backed by a
//     storage.Backend so limiter state survives process restarts
//
// # Token Bucket Algorithm
//
// A bucket holds up to capacity tokens and is credited refill rate tokens
// per second, computed lazily from elapsed wall-clock time. Each permitted
// invocation consumes one token:
//
//	reg, _ := ratelimit.NewRegistry(ctx, ratelimit.RegistryConfig{Storage: backend})
//	decision, err := reg.Check(ctx, "search", "alice")
//	if err != nil {
//	    // unknown tool or persistence failure
//	}
//	if !decision.Allowed {
//	    // rate limit exceeded
//	}
//
// # Keys
//
// When a user identity is present the limiter key is "tool::user", giving
// each user an independent bucket against the same tool configuration.
// Without a user the key is the tool name alone, a single bucket shared by
// all callers. Tool and user names may not contain the "::" separator, so
// the composition is collision-free.
//
// # Persistence
//
// Every check is refill, consume, persist under one registry lock. A check
// whose state cannot be persisted reports the storage error, never ALLOWED;
// the in-memory consumption is rolled back so restarts cannot mint tokens.
package ratelimit
