package pagecache

import "github.com/mantisdb/storagecore/concurrency/errs"

// CreatePage allocates a new page in knownAddress's segment: it locates
// the segment's directory page, scans its bitmap for a free slot (a
// trailing-ones bit scan that never claims bit 0 of byte 0; see
// Page.TrailingOnesFreeSlot),
// claims it, and calls writer on the newly claimed page.
//
// Falling back to another segment's directory, or to extending the file
// when no segment has a free slot, is left unimplemented: the upstream
// reference implementation this is grounded on carries the identical
// gap (its create_page returns Error::UnexpectedState rather than
// performing the fallback walk), and spec.md's own open question notes
// this is deliberately out of scope for the core. Callers that need
// guaranteed allocation must extend the file out-of-band and retry with
// a knownAddress in the new segment.
func (m *Manager) CreatePage(knownAddress Address, writer func(*Page)) error {
	segmentAddr := knownAddress.SegmentAddress()

	var claimed uint32
	var found bool

	err := m.WritePage(segmentAddr, func(dir *Page) {
		if dir.FirstBitSet() {
			// The segment itself was deleted.
			return
		}
		claimed, found = dir.TrailingOnesFreeSlot()
	})
	if err != nil {
		return err
	}
	if !found {
		return errs.UnexpectedState
	}

	pageAddr := segmentAddr.WithOffset(claimed)
	return m.WritePage(pageAddr, writer)
}
