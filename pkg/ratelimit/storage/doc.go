// Package storage provides persistence backends for rate limiter state.
//
// # Overview
//
// The storage package defines the Backend interface that the rate limiter
// registry uses to persist tool limit configuration and per-key bucket state
// across process restarts. Three implementations are provided:
//
//   - FileBackend: JSON files on disk (default, human inspectable)
//   - SQLiteBackend: durable SQLite database with WAL mode
//   - MemoryBackend: in-memory maps, no persistence (tests, ephemeral runs)
//
// # Record Layout
//
// Limit configuration is one record per tool (capacity, refill rate).
// Bucket state is one record per limiter key (capacity, refill rate, current
// tokens, last refill timestamp). Both are validated at the load boundary so
// malformed records never reach bucket arithmetic.
//
// # Thread Safety
//
// All backends are safe for concurrent use. Callers that need the composed
// refill+consume+persist sequence to be atomic must serialize at a higher
// level; the registry does this with a single mutex.
package storage
