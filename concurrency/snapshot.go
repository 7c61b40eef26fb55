package concurrency

import "github.com/mantisdb/storagecore/clock"

// Snapshot is a point-in-time view used to decide version visibility. A
// plain reader's Snapshot carries only a Clock; a writer's Snapshot (see
// Journal.Snapshot) additionally binds to its own transaction and journal
// so VersionCell.Predate can grant read-your-own-writes visibility to
// records the writer has locked but not yet committed.
type Snapshot struct {
	Clock clock.Clock

	transaction *transactionAnchor
	journal     *Journal
}

// NewSnapshot takes a plain reader snapshot at seq's current clock. It
// has no writer affinity: it can never see an uncommitted write, even its
// own, because there is no journal to recognize as "mine".
func NewSnapshot(seq clock.Sequencer) *Snapshot {
	return &Snapshot{Clock: seq.Now()}
}
