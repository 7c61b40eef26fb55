package pagecache

// PageSize is the fixed size, in bytes, of every page the cache manages,
// including directory pages. It is not configurable per spec.md §4.6;
// changing it changes the on-disk layout.
const PageSize = 4096

// pagesPerSegment is the number of page slots a single directory page's
// bitmap can describe: one bit per byte-offset-times-8 in its buffer.
const pagesPerSegment = PageSize * 8

// Address identifies a page in the database file as a flat page index.
// It decomposes into a segment address (the index of that segment's
// directory page) and an offset within the segment, matching spec.md
// §6's "(segment_address, offset_within_segment)" packing: the directory
// page of a segment is always the segment's first page, at offset 0.
type Address uint64

// SegmentAddress returns the address of the directory page governing a.
func (a Address) SegmentAddress() Address {
	return a - Address(a.Offset())
}

// Offset returns a's position within its segment; zero means a is itself
// a directory page.
func (a Address) Offset() uint32 {
	return uint32(uint64(a) % pagesPerSegment)
}

// IsDirectory reports whether a addresses a segment's directory page.
func (a Address) IsDirectory() bool {
	return a.Offset() == 0
}

// WithOffset returns the address offset slots into a's segment.
func (a Address) WithOffset(offset uint32) Address {
	return a.SegmentAddress() + Address(offset)
}

// ByteOffset returns a's byte offset within the backing file.
func (a Address) ByteOffset() int64 {
	return int64(a) * PageSize
}
