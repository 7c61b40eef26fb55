// Package errs carries the error taxonomy surfaced by the concurrency
// core and the page cache. It follows mantisDB's own sentinel-error idiom
// (see transaction/lock_manager.go's fmt.Errorf("...: %w", ...) wrapping)
// rather than a bespoke error-code type.
package errs

import "errors"

var (
	// Conflict is returned when a version cell already carries a
	// time_point, or when a journal finds its own anchor already holding
	// the cell.
	Conflict = errors.New("storagecore: conflict")

	// Deadlock is returned when a journal would have to wait on a prior,
	// not-yet-submitted journal of the same transaction. The core never
	// blocks in this case; it fails fast so the caller can unwind.
	Deadlock = errors.New("storagecore: would deadlock")

	// OutOfMemory is returned verbatim from an allocator failure in
	// version-cell creation or cache insertion.
	OutOfMemory = errors.New("storagecore: out of memory")

	// Timeout is never generated by the core itself; higher layers that
	// add bounded waits surface it through this sentinel so callers can
	// use errors.Is uniformly.
	Timeout = errors.New("storagecore: timed out")

	// UnexpectedState marks an observed invariant violation: a corrupt
	// segment directory, a double-commit, a double-submit. It indicates a
	// bug or on-disk corruption, not a condition the caller can retry.
	UnexpectedState = errors.New("storagecore: unexpected state")
)
