// Tollgate is a persistent per-tool rate limiter with an optional per-user
// dimension.
//
// Each tool carries a token bucket that refills continuously at a configured
// rate. Checks spend one token and persist the resulting state, so budgets
// survive across process invocations.
//
// Usage:
//
//	# Configure a limit: 10 calls burst, refilling at 1 call/second
//	tollgate set-limit search 10 1
//
//	# Spend a token (exit 0 when allowed, 1 when denied)
//	tollgate check search alice
//
//	# Inspect bucket state
//	tollgate status search
//
//	# Refill buckets to capacity
//	tollgate reset search alice
//
//	# Serve decisions over HTTP
//	tollgate serve
//
// For complete documentation, see: https://github.com/tollgate-hq/tollgate
package main

func main() {
	Execute()
}
