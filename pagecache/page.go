package pagecache

import "sync"

// Page is an address-stable, in-memory buffer for one page's contents.
// Its RWMutex gives the cache reader/writer semantics per entry (spec.md
// §5 "page cache entries: reader-writer semantics per entry"): readers
// take RLock, writers take Lock, and the buffer's address never changes
// for the page's lifetime in the cache, so a callback may retain slices
// into it for as long as it holds the lock.
type Page struct {
	mu    sync.RWMutex
	addr  Address
	buf   []byte
	dirty bool
}

func newPage(addr Address, buf []byte) *Page {
	return &Page{addr: addr, buf: buf}
}

// Buffer returns the page's backing bytes. Callers must hold the page's
// lock (via Manager.ReadPage/WritePage) for as long as they retain it.
func (p *Page) Buffer() []byte { return p.buf }

// Dirty reports whether the page has unflushed writes.
func (p *Page) Dirty() bool { return p.dirty }

// SetDirty marks the page as having unflushed writes. Writer callbacks
// call this after mutating Buffer.
func (p *Page) SetDirty() { p.dirty = true }

// FirstBitSet reports whether the lowest bit of the page's first byte is
// set. For a directory page this marks the segment deleted, per
// spec.md §6's persisted-state layout note.
func (p *Page) FirstBitSet() bool {
	return len(p.buf) > 0 && p.buf[0]&1 != 0
}

// TrailingOnesFreeSlot scans the directory page's bitmap for the first
// zero bit and sets it, returning the slot index it claimed and whether
// one was found. It mirrors the upstream `trailing_ones` bit-scan: each
// byte's low-order run of set bits marks the busy prefix of that byte's
// eight slots.
func (p *Page) TrailingOnesFreeSlot() (slot uint32, ok bool) {
	for i, b := range p.buf {
		if i == 0 {
			// Bit 0 of byte 0 is the segment-deleted flag, not a normal
			// free-slot bit: offset 0 is the directory page itself, so it
			// is never a candidate for allocation.
			b |= 1
		}
		free := trailingOnes(b)
		if free < 8 {
			p.buf[i] |= 1 << free
			p.dirty = true
			return uint32(i)*8 + uint32(free), true
		}
	}
	return 0, false
}

func trailingOnes(b byte) uint {
	var n uint
	for n < 8 && b&(1<<n) != 0 {
		n++
	}
	return n
}
