package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/mantisdb/storagecore/clock"
	"github.com/mantisdb/storagecore/concurrency/errs"
)

// journalAnchor is the stable, heap-resident record of a journal's
// lifecycle. It outlives the Journal itself: a VersionCell may still
// point to it long after the Journal that created it has been submitted
// or cancelled, so every field a VersionCell might read lives here rather
// than on Journal.
type journalAnchor struct {
	txAnchor *transactionAnchor

	// creationClock is the transaction-local clock observed when the
	// journal started.
	creationClock clock.Clock

	// submitClock is clock.Max until submit() stamps it.
	submitClock atomic.Uint64

	mu      sync.Mutex
	cond    *sync.Cond
	ended   bool
	waiters int
}

func newJournalAnchor(txAnchor *transactionAnchor, creationClock clock.Clock) *journalAnchor {
	a := &journalAnchor{
		txAnchor:      txAnchor,
		creationClock: creationClock,
	}
	a.submitClock.Store(uint64(clock.Max))
	a.cond = sync.NewCond(&a.mu)
	return a
}

// lockable reports whether the lock h currently holds can be transferred
// to requester. (false, false) means different transactions: the
// requester must wait. (true, false) means the same transaction but h has
// not submitted yet: the requester must not wait, to avoid self-deadlock.
// (true, true) means h has already published its changes to the
// transaction-local history and the requester may take over.
func (h *journalAnchor) lockable(requester *journalAnchor) (sameTransaction, transferable bool) {
	if h.txAnchor != requester.txAnchor {
		return false, false
	}
	return true, clock.Clock(h.submitClock.Load()) <= requester.creationClock
}

// predate answers whether this anchor's work is visible within the given
// transaction-local perspective: either it belongs to the same
// transaction and was submitted at or before txClock, or it is itself the
// passed journal's own anchor (read-your-own-writes).
func (h *journalAnchor) predate(txAnchor *transactionAnchor, txClock clock.Clock, journal *Journal) bool {
	if h.txAnchor != txAnchor {
		return false
	}
	submit := clock.Clock(h.submitClock.Load())
	if submit != clock.Max && submit <= txClock {
		return true
	}
	return journal != nil && journal.records.anchor == h
}

// visible reports whether the anchor's transaction is visible to a reader
// at the given snapshot clock, blocking until the transaction's
// commit/abort is decided if it is already past its preliminary snapshot.
// It also returns the resolved final snapshot so callers can log or
// propagate it without a second load.
func (h *journalAnchor) visible(snapshot clock.Clock) (bool, clock.Clock) {
	prelim := clock.Clock(h.txAnchor.preliminarySnapshot.Load())
	if prelim == clock.Default || prelim >= snapshot {
		return false, clock.Default
	}

	if clock.Clock(h.txAnchor.finalSnapshot.Load()) == clock.Default {
		h.wait(func(clock.Clock) bool { return false })
	}

	final := clock.Clock(h.txAnchor.finalSnapshot.Load())
	return final != clock.Default && final <= snapshot, final
}

// wait blocks until end() is called on this anchor, then runs f with the
// wait-queue mutex held before waking the next waiter. Serializing f
// inside the critical section is what lets a rollback-overtake CAS race
// safely against the next waiter's own attempt: only one waiter can ever
// observe and act on the "rolled back" state at a time.
func (h *journalAnchor) wait(f func(finalSnapshot clock.Clock) bool) bool {
	h.mu.Lock()
	for !h.ended {
		h.waiters++
		h.cond.Wait()
		h.waiters--
	}

	result := f(clock.Clock(h.txAnchor.finalSnapshot.Load()))

	if h.waiters > 0 {
		h.cond.Signal()
	}
	h.mu.Unlock()
	return result
}

// end marks the anchor terminal, wakes one waiter, and then blocks until
// every waiter has run its critical-section closure and moved on. This
// mirrors the upstream serialization precisely: waking happens before the
// locks are inspected again elsewhere, but end() itself does not return
// to its caller (Transaction.commit/abort) until the wait queue has fully
// drained, so a caller that observes commit() returning can assume every
// blocked lock() attempt has had its chance to overtake or give up.
func (h *journalAnchor) end() {
	h.mu.Lock()
	if !h.ended {
		h.ended = true
		h.cond.Signal()
	}
	h.mu.Unlock()

	for {
		h.mu.Lock()
		drained := h.waiters == 0
		h.mu.Unlock()
		if drained {
			return
		}
		runtime.Gosched()
	}
}

// record is one locked version and its pending payload within a Journal.
type record struct {
	cell    *VersionCell
	locker  *VersionLocker
	payload any
}

// recordData is the accumulator a Journal fills as it locks cells. It is
// handed to Transaction.record on submit, and released inline on cancel.
type recordData struct {
	anchor  *journalAnchor
	entries []record
}

// Journal is a single writer's unit of recorded changes within a
// Transaction. It accumulates locked VersionCells and their payloads
// until it is submitted (publishing them to the transaction's history) or
// cancelled (releasing every lock it holds as if rolled back).
type Journal struct {
	transaction *Transaction
	records     recordData
	done        atomic.Bool
	cancelled   atomic.Bool
}

func newJournal(tx *Transaction, anchor *journalAnchor) *Journal {
	return &Journal{
		transaction: tx,
		records:     recordData{anchor: anchor},
	}
}

// Create locks version's VersionCell for this journal and records payload
// alongside it. The lock is held until the journal is submitted and its
// owning transaction commits or aborts, or until the journal is
// cancelled.
func (j *Journal) Create(version Version, payload any) error {
	if j.done.Load() {
		return errs.UnexpectedState
	}
	cell := version.VersionCell()
	locker, err := cell.Lock(j.records.anchor, j.transaction.logger)
	if err != nil {
		return err
	}
	j.records.entries = append(j.records.entries, record{cell: cell, locker: locker, payload: payload})
	return nil
}

// Snapshot takes a Snapshot that includes this journal's own uncommitted
// changes, giving the writer read-your-own-writes visibility.
func (j *Journal) Snapshot() *Snapshot {
	return &Snapshot{
		Clock:       clock.Clock(j.transaction.clock.Load()),
		transaction: j.transaction.anchor,
		journal:     j,
	}
}

// Submit consumes the journal, advancing the transaction's local clock and
// publishing the journal's records into the transaction's history.
// Submitting twice, or submitting after Cancel, is a programming error.
func (j *Journal) Submit() (clock.Clock, error) {
	if !j.done.CompareAndSwap(false, true) {
		return clock.Default, errs.UnexpectedState
	}
	return j.transaction.record(j.records), nil
}

// Cancel releases every lock the journal holds, as if the transaction had
// rolled back just this journal's work, and marks the journal terminal.
// Go has no destructor to do this implicitly on drop, so callers that
// abandon a Journal without submitting it must call Cancel to make its
// locks eligible for overtake; an abandoned, un-cancelled Journal leaks
// its locks for the lifetime of the transaction.
//
// Cancel also ends the journal's own anchor, waking any cross-transaction
// contender already parked in journalAnchor.wait() on one of this
// journal's cells: per spec.md §4.3, a cancelled journal's locks are
// "effectively released by the rollback path" immediately, not only once
// the enclosing Transaction eventually commits or aborts. Transaction's
// own commit/abort still calls end() on every journal's anchor, including
// this one's; end() is idempotent, so that is harmless.
func (j *Journal) Cancel() {
	if !j.done.CompareAndSwap(false, true) {
		return
	}
	j.cancelled.Store(true)
	for _, e := range j.records.entries {
		e.locker.Release(j.records.anchor, clock.Invalid)
	}
	j.records.anchor.end()
}
