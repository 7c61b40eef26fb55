package clock

import "sync/atomic"

// Atomic is a Sequencer backed by an atomic counter. It stands in for the
// database's real sequencer in tests and standalone use, mirroring the
// original reference implementation's AtomicSequencer realization: every
// call to Now advances the clock by one, so it is both monotonic and
// free of external dependencies such as a wall clock.
type Atomic struct {
	counter atomic.Uint64
}

// NewAtomic returns a ready-to-use Atomic sequencer. The first call to Now
// returns 1, keeping 0 reserved for Invalid/Default.
func NewAtomic() *Atomic {
	return &Atomic{}
}

// Now returns the next clock value, strictly greater than every value it
// has returned before.
func (a *Atomic) Now() Clock {
	return Clock(a.counter.Add(1))
}
