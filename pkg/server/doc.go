// Package server exposes a running tollgate registry over HTTP.
//
// Serve mode keeps one process as the authoritative owner of the limiter
// state store; concurrent HTTP callers are serialized by the registry so
// refill, consume, and persist form one critical section per key.
//
// Endpoints:
//
//	POST /v1/check   decide one invocation ({"tool": ..., "user": ...})
//	GET  /v1/status  bucket snapshots, optionally filtered by tool/user
//	GET  /metrics    Prometheus metrics
//	GET  /healthz    liveness probe
//
// When configured, the limits file is hot-reloaded on change and stale
// bucket state and old audit records are cleaned up on a cron schedule.
package server
