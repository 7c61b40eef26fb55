package dbcore

import (
	"sync"
	"testing"

	"github.com/mantisdb/storagecore/clock"
	"github.com/mantisdb/storagecore/concurrency"
)

type testID string

func (t testID) ToObjectID() ObjectID { return ObjectID(t) }

func TestConcurrentCreatesShareOneObject(t *testing.T) {
	seq := clock.NewAtomic()
	ctrl := NewController()

	const n = 8
	objs := make([]*Object, n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			tx := concurrency.NewTransaction(seq, nil)
			j, err := tx.Journal()
			if err != nil {
				t.Error(err)
				return
			}
			if err := ctrl.Create(testID("widget"), j, i); err != nil {
				// Expected for all but one goroutine: they all target the
				// same VersionCell.
				j.Cancel()
				tx.Abort()
				return
			}
			if _, err := j.Submit(); err != nil {
				t.Error(err)
				return
			}
			if err := tx.Commit(); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			obj, _ := ctrl.Read(testID("widget"), concurrency.NewSnapshot(seq))
			objs[i] = obj
			mu.Unlock()
		}()
	}
	wg.Wait()

	var first *Object
	count := 0
	for _, o := range objs {
		if o == nil {
			continue
		}
		count++
		if first == nil {
			first = o
		} else if first != o {
			t.Fatal("concurrent creates for the same id must resolve to the same Object")
		}
	}
	if count != 1 {
		t.Fatalf("exactly one create should have won the race, got %d successes", count)
	}
}

func TestCreateReadDelete(t *testing.T) {
	seq := clock.NewAtomic()
	ctrl := NewController()

	tx := concurrency.NewTransaction(seq, nil)
	j, err := tx.Journal()
	if err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Create(testID("row-1"), j, "payload"); err != nil {
		t.Fatal(err)
	}
	if _, err := j.Submit(); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	snap := concurrency.NewSnapshot(seq)
	obj, ok := ctrl.Read(testID("row-1"), snap)
	if !ok || obj == nil {
		t.Fatal("row-1 should be visible after commit")
	}

	tx2 := concurrency.NewTransaction(seq, nil)
	j2, _ := tx2.Journal()
	if err := ctrl.Delete(testID("row-1"), j2, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := j2.Submit(); err != nil {
		t.Fatal(err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatal(err)
	}

	afterDelete := concurrency.NewSnapshot(seq)
	_, visible := ctrl.Read(testID("row-1"), afterDelete)
	if visible {
		t.Fatal("row-1 should not be visible after its deletion commits")
	}

	if !obj.Visible(snap) {
		t.Fatal("the earlier snapshot, taken before the delete, must still see the object")
	}
}

// Update must keep succeeding across any number of prior commits, even
// though each commit stamps a write-once time_point that can never again
// accept a lock: every call after the first has to supersede the chain
// with a fresh version rather than relock the genesis cell.
func TestUpdateSucceedsAcrossMultipleCommits(t *testing.T) {
	seq := clock.NewAtomic()
	ctrl := NewController()

	tx := concurrency.NewTransaction(seq, nil)
	j, _ := tx.Journal()
	if err := ctrl.Create(testID("counter"), j, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := j.Submit(); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		tx := concurrency.NewTransaction(seq, nil)
		j, _ := tx.Journal()
		if err := ctrl.Update(testID("counter"), j, i); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if _, err := j.Submit(); err != nil {
			t.Fatalf("update %d submit: %v", i, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("update %d commit: %v", i, err)
		}
	}

	snap := concurrency.NewSnapshot(seq)
	obj, ok := ctrl.Read(testID("counter"), snap)
	if !ok || obj == nil {
		t.Fatal("counter should still be visible after repeated updates")
	}
}

// A genesis version that was never locked for this id (no Create has
// happened) means Update has nothing to supersede.
func TestUpdateWithoutCreateFails(t *testing.T) {
	seq := clock.NewAtomic()
	ctrl := NewController()

	tx := concurrency.NewTransaction(seq, nil)
	j, _ := tx.Journal()
	if err := ctrl.Update(testID("missing"), j, "payload"); err == nil {
		t.Fatal("update of a never-created id should fail")
	}
}
