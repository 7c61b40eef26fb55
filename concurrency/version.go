package concurrency

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/mantisdb/storagecore/clock"
	"github.com/mantisdb/storagecore/concurrency/errs"
	"go.uber.org/zap"
)

// VersionCell is the concurrency-control metadata embedded in (or kept
// adjacent to) every versioned record. It holds a single point-in-time
// stamp and at most one owning journal. VersionCell must never be moved
// once other goroutines may hold its address as the locking sentinel, so
// callers must always refer to it through a stable pointer.
type VersionCell struct {
	// owner is nil (unowned), the cell's own address reinterpreted as a
	// *journalAnchor (a transition is in progress), or a live
	// *journalAnchor that holds the cell.
	owner atomic.Pointer[journalAnchor]

	// timePoint is write-once: once moved off clock.Invalid it never
	// changes for the cell's lifetime.
	timePoint atomic.Uint64
}

// NewVersionCell returns a VersionCell that is globally invisible until a
// transaction locks and releases it with a valid clock.
func NewVersionCell() *VersionCell {
	return &VersionCell{}
}

// Version is anything a Journal can lock and stamp: a single versioned
// fact about an object (its creation, or its deletion). dbcore's
// RecordVersion is the concrete implementation; the interface lives here
// so Journal.Create can accept it without importing dbcore.
type Version interface {
	VersionCell() *VersionCell
}

// lockingSentinel reinterprets the cell's own address as a *journalAnchor.
// No valid journalAnchor ever lives at this address, so the sentinel is
// distinguishable from every real owner by pointer comparison alone; it is
// never dereferenced.
func (c *VersionCell) lockingSentinel() *journalAnchor {
	return (*journalAnchor)(unsafe.Pointer(c))
}

// TimePoint returns the cell's stamped clock, or clock.Invalid if no
// transaction has published one yet.
func (c *VersionCell) TimePoint() clock.Clock {
	return clock.Clock(c.timePoint.Load())
}

// Lock assigns anchor as the VersionCell's owner, following the two-phase
// locking protocol described in spec.md §4.1. It returns errs.Conflict if
// the cell is already stamped or already held by anchor, errs.Deadlock if
// anchor would have to wait on a not-yet-submitted journal of its own
// transaction, and blocks (without holding a mutex on the fast path) when
// it must wait on a cross-transaction owner.
func (c *VersionCell) Lock(anchor *journalAnchor, logger *zap.Logger) (*VersionLocker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.TimePoint() != clock.Invalid {
		return nil, errs.Conflict
	}

	sentinel := c.lockingSentinel()
	var prevOwner *journalAnchor

	for {
		if c.owner.CompareAndSwap(nil, sentinel) {
			prevOwner = nil
			break
		}

		current := c.owner.Load()
		if current == sentinel {
			// Another goroutine is mid-transition; spin.
			runtime.Gosched()
			continue
		}
		if current == anchor {
			return nil, errs.Conflict
		}

		sameTxn, transferable := current.lockable(anchor)
		if sameTxn {
			if !transferable {
				// Prevent self-deadlock: fail fast, never block.
				return nil, errs.Deadlock
			}
			if c.owner.CompareAndSwap(current, sentinel) {
				prevOwner = current
				break
			}
			continue
		}

		overtook := current.wait(func(finalSnapshot clock.Clock) bool {
			if finalSnapshot != clock.Invalid {
				// The transaction committed; nothing to overtake here.
				return false
			}
			// Rolled back: the CAS and the wakeup are serialized by the
			// same critical section, so there is no lost-overtake race
			// between concurrent waiters.
			return c.owner.CompareAndSwap(current, sentinel)
		})
		if overtook {
			prevOwner = nil
			break
		}

		if c.TimePoint() != clock.Invalid {
			return nil, errs.Conflict
		}
	}

	if c.TimePoint() != clock.Invalid {
		swapped := c.owner.Swap(nil)
		if swapped != sentinel {
			logger.Warn("version cell owner mismatch while reverting failed lock")
		}
		return nil, errs.Conflict
	}

	swapped := c.owner.Swap(anchor)
	if swapped != sentinel {
		logger.Warn("version cell owner mismatch while publishing lock")
	}

	return &VersionLocker{cell: c, prevOwner: prevOwner}, nil
}

// Predate reports whether the VersionCell's version is visible to the
// given snapshot. It never acquires a mutex on the fast path; it only
// blocks when it must consult an owner whose transaction has not yet
// published its final snapshot.
func (c *VersionCell) Predate(snapshot *Snapshot) bool {
	tp := c.TimePoint()
	if tp != clock.Invalid {
		return tp <= snapshot.Clock
	}

	owner := c.owner.Load()
	sentinel := c.lockingSentinel()
	if owner != nil && owner != sentinel {
		if snapshot.transaction != nil && owner.txAnchor == snapshot.transaction {
			// Same transaction: visibility follows submit order (or
			// read-your-own-writes for the snapshot's own journal), never
			// the cross-transaction commit/abort machinery below.
			return owner.predate(snapshot.transaction, snapshot.Clock, snapshot.journal)
		}

		visible, _ := owner.visible(snapshot.Clock)
		if c.owner.Load() == owner {
			// The owner hasn't raced ahead to post-process and possibly
			// hand the cell to someone else while we inspected it.
			return visible
		}
	}

	tp = c.TimePoint()
	return tp != clock.Invalid && tp <= snapshot.Clock
}

// VersionLocker proves exclusive ownership of a VersionCell. It is not
// released implicitly; the holder must call Release explicitly.
type VersionLocker struct {
	cell      *VersionCell
	prevOwner *journalAnchor
}

// Release publishes finalClock into the cell's time_point (unless it is
// clock.Invalid, which encodes a rollback) and restores the previous
// owner. The time_point store happens-before the owner CAS so that any
// reader observing the new owner also observes the new stamp.
func (l *VersionLocker) Release(anchor *journalAnchor, finalClock clock.Clock) {
	if finalClock != clock.Invalid {
		l.cell.timePoint.Store(uint64(finalClock))
	}
	l.cell.owner.CompareAndSwap(anchor, l.prevOwner)
}
