package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/mantisdb/storagecore/clock"
	"github.com/mantisdb/storagecore/concurrency/errs"
	"go.uber.org/zap"
)

// transactionAnchor is the stable, heap-resident record of a
// transaction's commit/abort decision. Every journalAnchor the
// transaction ever opens points back to the same transactionAnchor, so a
// concurrent reader blocked on one of them observes the decision the
// instant it is published, regardless of which journal it was inspecting.
type transactionAnchor struct {
	// preliminarySnapshot is set once commit/abort begins, before any lock
	// is released, so a reader arriving mid-commit can tell the decision
	// is underway and should wait rather than race the release.
	preliminarySnapshot atomic.Uint64

	// finalSnapshot is set last: clock.Invalid on abort (read as
	// "rolled back" by journalAnchor.wait), the commit clock on commit.
	finalSnapshot atomic.Uint64
}

func newTransactionAnchor() *transactionAnchor {
	return &transactionAnchor{}
}

// Transaction is the unit of atomicity above Journal: every Journal it
// opens either all become visible together at the transaction's commit
// clock, or all roll back together. A Transaction is single-writer: its
// local clock and record list are not safe for concurrent use from
// multiple goroutines without external synchronization, matching the
// upstream model where one task drives one transaction.
type Transaction struct {
	seq    clock.Sequencer
	anchor *transactionAnchor
	logger *zap.Logger

	// clock is the transaction-local counter. It starts at 0 internally;
	// Journal() reads the pre-increment value as its creationClock, and
	// record() reads the post-increment value as a journal's submitClock.
	// This reconciles spec's worked scenarios (creation_clock=0 for the
	// first journal, submit_clock=1 after its first submit) with the
	// "starts at 1" prose, which describes the first submit, not genesis.
	clock atomic.Uint64

	mu       sync.Mutex
	journals []*Journal
	done     bool
}

// NewTransaction opens a transaction against seq, the database's clock
// source. logger may be nil, in which case a no-op logger is used.
func NewTransaction(seq clock.Sequencer, logger *zap.Logger) *Transaction {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transaction{
		seq:    seq,
		anchor: newTransactionAnchor(),
		logger: logger,
	}
}

// Journal opens a new Journal under this transaction. Journals opened
// from the same Transaction may overtake one another's locks once a
// prior one submits; a journal from a different transaction can take over
// a lock only after its holder rolls back.
func (t *Transaction) Journal() (*Journal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, errs.UnexpectedState
	}

	creationClock := clock.Clock(t.clock.Load())
	anchor := newJournalAnchor(t.anchor, creationClock)
	j := newJournal(t, anchor)
	t.journals = append(t.journals, j)
	return j, nil
}

// record is called by Journal.Submit. It advances the transaction-local
// clock and stamps the journal's anchor with the resulting submitClock,
// publishing the journal's locked records into the transaction's history
// so a subsequent Journal of the same transaction may overtake them.
func (t *Transaction) record(records recordData) clock.Clock {
	submitClock := clock.Clock(t.clock.Add(1))
	records.anchor.submitClock.Store(uint64(submitClock))
	return submitClock
}

// Commit publishes every journal this transaction opened at a single
// commit clock drawn from seq, making their records visible together to
// any snapshot taken at or after that clock. Committing twice is a
// programming error and returns errs.UnexpectedState.
func (t *Transaction) Commit() error {
	return t.finish(func() clock.Clock { return t.seq.Now() })
}

// Abort rolls back every journal this transaction opened, as though none
// of their locked cells were ever stamped, freeing them for any waiter
// to overtake. Aborting twice is a programming error.
func (t *Transaction) Abort() error {
	return t.finish(func() clock.Clock { return clock.Invalid })
}

func (t *Transaction) finish(decide func() clock.Clock) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return errs.UnexpectedState
	}
	t.done = true
	journals := t.journals
	t.mu.Unlock()

	// Publish the preliminary snapshot before touching any lock, so a
	// concurrent reader inspecting a not-yet-ended anchor already knows a
	// decision is in flight and blocks on it rather than racing ahead with
	// a stale "uncommitted" read.
	prelim := clock.Clock(t.seq.Now())
	t.anchor.preliminarySnapshot.Store(uint64(prelim))

	final := decide()

	// Post-processing releases every locker with the decided final_clock
	// before final_snapshot is published, so no waiter can observe
	// final_snapshot set while a lock it cares about is still held.
	for _, j := range journals {
		if !j.cancelled.Load() {
			for _, e := range j.records.entries {
				e.locker.Release(j.records.anchor, final)
			}
		}
	}

	t.anchor.finalSnapshot.Store(uint64(final))

	for _, j := range journals {
		j.records.anchor.end()
	}

	t.logger.Debug("transaction finished",
		zap.Uint64("preliminary_snapshot", uint64(prelim)),
		zap.Uint64("final_snapshot", uint64(final)),
		zap.Int("journals", len(journals)),
	)
	return nil
}
