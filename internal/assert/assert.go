// Package assert holds the one invariant-panic helper used throughout
// this module in place of returning an error for conditions that, per
// spec.md §7, are never supposed to be reachable in a correctly driven
// builder (calling AddPath before CreatePath, a block used after
// Finish, and similarly "Internal bug" table rows).
//
// Grounded on blink's own unassert()/assert() macros: a cheap, always
// compiled-in check that panics with context rather than corrupting
// state silently. Go has no macro layer, so this is a small function
// instead, matching the style of a teacher helper rather than
// introducing a third-party assertion library for a single-line need.
package assert

import "fmt"

// Invariant panics with a formatted message if cond is false.
func Invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("invariant violated: "+format, args...))
	}
}
