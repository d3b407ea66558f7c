// Package audit records rate limit check decisions in a SQLite journal.
//
// Each recorded decision carries a UUID, the tool and user it was made for,
// the outcome, and the remaining token count at decision time. The journal
// supports filtered queries (tool, user, denied-only, time range) and
// age-based pruning so it does not grow without bound.
//
// Recording is best-effort: a journal write failure never blocks or
// reverses a rate limit decision.
package audit
