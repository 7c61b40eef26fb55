package dbcore

import (
	"sync"

	"github.com/mantisdb/storagecore/concurrency"
	"github.com/mantisdb/storagecore/concurrency/errs"
)

// ObjectID identifies a stored object. It is deliberately a plain string
// so callers can derive it however fits their schema (a primary key, a
// composite key, a path) without the controller caring about the
// identifier's internal shape.
type ObjectID string

// Identifiable is implemented by anything the controller can resolve to
// an ObjectID. It is the Go stand-in for spec.md's user-supplied
// ToObjectID mapping: rather than a free function, callers supply
// values that know their own id.
type Identifiable interface {
	ToObjectID() ObjectID
}

// Controller is the Access Controller of spec.md §4.5: the
// create/read/update/delete surface above journals and version cells.
// It owns unique-per-object version-cell allocation, guaranteeing that
// two concurrent Create calls for the same id observe the same Object
// and therefore contend on the same VersionCell rather than silently
// allocating two.
type Controller struct {
	mu      sync.Mutex
	objects map[ObjectID]*Object
}

// NewController returns an empty Controller.
func NewController() *Controller {
	return &Controller{objects: make(map[ObjectID]*Object)}
}

// Create allocates (or reuses) id's Object and locks its genesis version
// through journal, recording payload alongside the lock. If id's genesis
// version is already stamped, the lock attempt fails with errs.Conflict;
// if an unsubmitted journal of the same transaction holds it, with
// errs.Deadlock; if another transaction holds it, Create blocks until
// that transaction finishes. Create does not itself decide uniqueness
// beyond handing out a single shared Object per id.
func (c *Controller) Create(id Identifiable, journal *concurrency.Journal, payload any) error {
	obj := c.getOrCreate(id.ToObjectID())
	return journal.Create(obj.genesis(), payload)
}

// Read resolves id to its Object and reports whether it is visible
// under snapshot, alongside the Object itself for callers that need to
// read further (e.g. to issue a Delete against the same Object). A
// false ok with a nil object means the id has never been created.
func (c *Controller) Read(id Identifiable, snapshot *concurrency.Snapshot) (obj *Object, ok bool) {
	c.mu.Lock()
	obj, exists := c.objects[id.ToObjectID()]
	c.mu.Unlock()
	if !exists {
		return nil, false
	}
	return obj, obj.Visible(snapshot)
}

// Update locks a fresh version of id's record for journal, superseding
// every version already in its chain once this one commits. A
// VersionCell's time_point is write-once (spec.md §3 invariant): once a
// prior version's commit has stamped it, that cell can never accept
// another lock, so Update cannot simply keep relocking the genesis cell
// the way the first call can. Instead each call locks a brand new cell
// before publishing it into the object's chain, so Update keeps
// succeeding across any number of prior commits rather than returning
// errs.Conflict forever after the first one. Like Create, Update does
// not distinguish its payload's shape from a create's; that
// interpretation is the caller's (spec.md leaves payload interpretation
// to the caller).
func (c *Controller) Update(id Identifiable, journal *concurrency.Journal, payload any) error {
	c.mu.Lock()
	obj, exists := c.objects[id.ToObjectID()]
	c.mu.Unlock()
	if !exists {
		return errs.UnexpectedState
	}

	next := NewRecordVersion()
	if err := journal.Create(next, payload); err != nil {
		return err
	}
	obj.appendVersion(next)
	return nil
}

// Delete locks (allocating on first use) id's deletion version for
// journal. Because the deletion version is a separate VersionCell from
// any version in the creation chain, a delete in flight never blocks a
// concurrent reader's visibility check against the object's existence.
func (c *Controller) Delete(id Identifiable, journal *concurrency.Journal, payload any) error {
	c.mu.Lock()
	obj, exists := c.objects[id.ToObjectID()]
	c.mu.Unlock()
	if !exists {
		return errs.UnexpectedState
	}

	obj.mu.Lock()
	if obj.deletion == nil {
		obj.deletion = NewRecordVersion()
	}
	deletion := obj.deletion
	obj.mu.Unlock()

	return journal.Create(deletion, payload)
}

func (c *Controller) getOrCreate(id ObjectID) *Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, exists := c.objects[id]
	if !exists {
		obj = newObject()
		c.objects[id] = obj
	}
	return obj
}
