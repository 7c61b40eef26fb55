package pagecache

import "testing"

func TestCreatePageClaimsFreeSlot(t *testing.T) {
	backend := NewMemBackend()
	mgr, err := New(backend, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	const segment Address = 0
	var claimedAt Address
	if err := mgr.CreatePage(segment, func(p *Page) {
		claimedAt = p.addr
		copy(p.Buffer(), []byte("payload"))
		p.SetDirty()
	}); err != nil {
		t.Fatal(err)
	}

	if claimedAt.SegmentAddress() != segment {
		t.Fatalf("claimed page %d is not in segment %d", claimedAt, segment)
	}
	if claimedAt.Offset() == 0 {
		t.Fatal("CreatePage must never hand out the directory page itself")
	}

	// The directory page's bitmap must now show the claimed slot busy.
	var dirBuf []byte
	if err := mgr.ReadPage(segment, func(p *Page) {
		dirBuf = append([]byte(nil), p.Buffer()...)
	}); err != nil {
		t.Fatal(err)
	}
	byteIdx := claimedAt.Offset() / 8
	bit := claimedAt.Offset() % 8
	if dirBuf[byteIdx]&(1<<bit) == 0 {
		t.Fatal("directory bitmap bit for the claimed slot was not set")
	}
}

func TestCreatePageDeletedSegmentRefused(t *testing.T) {
	backend := NewMemBackend()
	mgr, err := New(backend, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	const segment Address = 0
	if err := mgr.WritePage(segment, func(p *Page) {
		p.Buffer()[0] = 1 // first bit set: segment deleted
		p.SetDirty()
	}); err != nil {
		t.Fatal(err)
	}

	if err := mgr.CreatePage(segment, func(p *Page) {
		t.Fatal("writer must not run against a deleted segment")
	}); err == nil {
		t.Fatal("want an error allocating in a deleted segment")
	}
}
