// Package clock provides the abstract monotonic timestamp the concurrency
// core uses to order transactions. It does not implement a sequencer of
// its own choosing for production use; callers bring their own Sequencer
// (the object-ID assignment policy's sibling clock service) or use Atomic
// for tests and standalone use.
package clock

// Clock is a totally ordered logical timestamp issued by a Sequencer.
type Clock uint64

const (
	// Invalid marks a VersionCell's time_point before any transaction has
	// stamped it, and a released-without-commit locker.
	Invalid Clock = 0

	// Default is the pre-genesis value of a TransactionAnchor's
	// preliminary and final snapshots, before commit/abort publishes them.
	//
	// Invalid and Default share the zero value deliberately: neither a
	// Sequencer nor a journal submit ever produces clock 0, so both sentinels
	// collapse onto it without becoming ambiguous with a stamped or
	// published clock value.
	// They stay distinct names because they guard different invariants
	// (time_point write-once vs. snapshot-not-yet-published).
	Default Clock = 0

	// Max identifies an unsubmitted Journal's submit_clock.
	Max Clock = ^Clock(0)
)

// Less reports whether c predates other under the clock's total order.
func (c Clock) Less(other Clock) bool { return c < other }

// Sequencer is an abstract source of monotonically non-decreasing clock
// values. now() may repeat the previous value; it must never go backwards.
// The sequencer implementation and the object-ID assignment policy are
// external collaborators of this module.
type Sequencer interface {
	Now() Clock
}
