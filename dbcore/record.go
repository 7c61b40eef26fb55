// Package dbcore presents the high-level create/read/update/delete
// surface above the concurrency core: the Access Controller from
// spec.md §4.5, plus the default versioned-record shape it allocates.
package dbcore

import (
	"sync"

	"github.com/mantisdb/storagecore/concurrency"
)

// RecordVersion is the default Version implementation: a single
// versioned fact about an object's creation. It is grounded on the
// original reference implementation's record_version realization —
// a bare VersionCell wrapper with no payload of its own, since the
// payload travels alongside the lock in the Journal's record data
// rather than inside the version itself.
//
// Deletion is modeled as a second RecordVersion allocated lazily the
// first time an object is deleted, rather than a tombstone flag on the
// creation cell, so a concurrent reader's predate() against the
// creation cell is unaffected by a delete that is still in flight.
type RecordVersion struct {
	cell *concurrency.VersionCell
}

// NewRecordVersion allocates a fresh, globally invisible RecordVersion.
func NewRecordVersion() *RecordVersion {
	return &RecordVersion{cell: concurrency.NewVersionCell()}
}

// VersionCell implements concurrency.Version.
func (r *RecordVersion) VersionCell() *concurrency.VersionCell {
	return r.cell
}

// Predate reports whether this version is visible to snapshot.
func (r *RecordVersion) Predate(snapshot *concurrency.Snapshot) bool {
	return r.cell.Predate(snapshot)
}

// Object is a stored record: the chain of versions ever locked for it
// (its genesis creation, plus one appended per successful Update) and,
// once a delete has been attempted against it, the version recording
// that deletion. A nil deletion means the object has never had a delete
// submitted.
//
// A chain, rather than a single creation cell, exists because a
// VersionCell's time_point is write-once (spec.md §3): once any
// transaction commits against a cell, that cell can never again accept a
// lock, so Update cannot keep reusing the genesis cell past its first
// commit. Each Update instead locks a fresh cell and appends it here;
// Visible treats the object as existing once any version in the chain
// predates a snapshot, which is sufficient because only a cell that has
// actually been locked and committed can ever predate anything.
type Object struct {
	mu       sync.Mutex
	versions []*RecordVersion
	deletion *RecordVersion
}

func newObject() *Object {
	return &Object{versions: []*RecordVersion{NewRecordVersion()}}
}

// genesis returns the object's original creation version, the one
// Create (and concurrent Create callers racing on the same id) contend
// on.
func (o *Object) genesis() *RecordVersion {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.versions[0]
}

// appendVersion publishes a new version into the chain, once its lock
// has already succeeded.
func (o *Object) appendVersion(v *RecordVersion) {
	o.mu.Lock()
	o.versions = append(o.versions, v)
	o.mu.Unlock()
}

// Visible reports whether the object, as of snapshot, exists (some
// version in its chain predates the snapshot) and has not been deleted
// (its deletion, if any, does not predate the snapshot).
func (o *Object) Visible(snapshot *concurrency.Snapshot) bool {
	o.mu.Lock()
	versions := append([]*RecordVersion(nil), o.versions...)
	o.mu.Unlock()

	exists := false
	for _, v := range versions {
		if v.Predate(snapshot) {
			exists = true
			break
		}
	}
	if !exists {
		return false
	}

	o.mu.Lock()
	deletion := o.deletion
	o.mu.Unlock()
	return deletion == nil || !deletion.Predate(snapshot)
}
