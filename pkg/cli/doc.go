// Package cli provides shared helpers for tollgate commands: process exit
// code mapping, output formatting, and signal handling.
//
// Exit codes form the command contract consumed by scripts and hooks:
//
//	0  check allowed / command succeeded
//	1  check denied (a normal outcome, not an error)
//	2  configuration error (unknown tool, invalid limits, bad input)
//	3  persistence error (state store unreadable or unwritable)
package cli
