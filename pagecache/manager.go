package pagecache

import (
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Manager is the bounded concurrent Address -> Page map of spec.md §4.6,
// with built-in eviction. Its backing map is a hashicorp/golang-lru/v2
// Cache sized effectively unbounded; Manager enforces Options.MaxEntries
// itself so it can inspect and write back a would-be-evicted page
// *before* removing it, rather than relying on the library's automatic
// eviction callback, which would hand back an already-evicted entry with
// no way to put it back if the write-back failed.
type Manager struct {
	opts       Options
	backend    Backend
	logger     *zap.Logger
	compressor Compressor

	resident  *lru.Cache[Address, *Page]
	fillGroup singleflight.Group
	mu        sync.Mutex // guards resident against concurrent eviction decisions
}

// New constructs a Manager backed by backend, tuned by opts. If
// opts.Compressor names a codec, every page this Manager writes back to
// backend is compressed first, and every page it reads is decompressed
// before a caller ever sees it; the resident, in-memory Page always
// holds plaintext, so readers and writers never have to think about
// compression at all. FileBackend's fixed-offset slots cannot hold a
// variable-length compressed page (see its doc comment), so a
// compressor is only useful paired with a backend like MemBackend that
// tolerates a page's on-backend size changing.
func New(backend Backend, opts Options) (*Manager, error) {
	if opts.MaxEntries <= 0 {
		opts = DefaultOptions()
	}
	cache, err := lru.New[Address, *Page](math.MaxInt32)
	if err != nil {
		return nil, fmt.Errorf("pagecache: %w", err)
	}
	compressor, err := NewCompressor(opts.Compressor)
	if err != nil {
		return nil, fmt.Errorf("pagecache: %w", err)
	}
	return &Manager{
		opts:       opts,
		backend:    backend,
		logger:     opts.logger(),
		compressor: compressor,
		resident:   cache,
	}, nil
}

// ReadPage implements spec.md's read path: a lock-free shared lookup on
// the fast path, falling back to a singleflight-deduplicated fill (so
// at most one goroutine performs backing-file I/O for addr at a time)
// when the page is not resident.
func (m *Manager) ReadPage(addr Address, reader func(*Page)) error {
	if page, ok := m.resident.Get(addr); ok {
		page.mu.RLock()
		reader(page)
		page.mu.RUnlock()
		return nil
	}

	page, err := m.fill(addr)
	if err != nil {
		return err
	}

	page.mu.RLock()
	reader(page)
	page.mu.RUnlock()
	return nil
}

// WritePage implements spec.md's write path: an exclusive entry lookup,
// filling the page first if it is not yet resident.
func (m *Manager) WritePage(addr Address, writer func(*Page)) error {
	page, err := m.fill(addr)
	if err != nil {
		return err
	}

	page.mu.Lock()
	writer(page)
	page.mu.Unlock()
	return nil
}

// fill returns addr's resident Page, loading it from the backend and
// inserting it (possibly evicting another page) if necessary. Concurrent
// callers racing on the same address collapse onto a single load via
// fillGroup, satisfying the "at most one thread performs backing-file
// I/O for any given address" invariant.
func (m *Manager) fill(addr Address) (*Page, error) {
	if page, ok := m.resident.Get(addr); ok {
		return page, nil
	}

	v, err, _ := m.fillGroup.Do(fmt.Sprintf("%d", addr), func() (any, error) {
		if page, ok := m.resident.Get(addr); ok {
			return page, nil
		}

		raw, err := m.backend.ReadPage(addr)
		if err != nil {
			return nil, err
		}
		buf, err := m.decode(raw)
		if err != nil {
			return nil, fmt.Errorf("pagecache: decompress page %d: %w", addr, err)
		}
		page := newPage(addr, buf)

		if err := m.insert(addr, page); err != nil {
			return nil, err
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Page), nil
}

// insert adds page to the resident set, evicting the least recently
// used entry first if the cache is at capacity. If the victim is dirty
// and its write-back fails, the victim is left in place and the new
// page is not inserted: spec.md §4.6's "evicted page is reinstated and
// the original insertion is reverted" invariant, realized here by simply
// never removing the victim until its write-back has already succeeded.
func (m *Manager) insert(addr Address, page *Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resident.Len() >= m.opts.MaxEntries {
		victimAddr, victim, ok := m.resident.GetOldest()
		if ok {
			if victim.Dirty() {
				victim.mu.Lock()
				err := m.backend.WritePage(victimAddr, m.encode(victim.Buffer()))
				victim.mu.Unlock()
				if err != nil {
					m.logger.Warn("page write-back failed, eviction aborted",
						zap.Uint64("address", uint64(victimAddr)),
						zap.Error(err),
					)
					return fmt.Errorf("pagecache: evict %d: %w", victimAddr, err)
				}
				victim.dirty = false
			}
			m.resident.Remove(victimAddr)
			m.logger.Debug("evicted page", zap.Uint64("address", uint64(victimAddr)))
		}
	}

	m.resident.Add(addr, page)
	return nil
}

// encode compresses buf for the backend, or returns it unchanged if no
// compressor is configured.
func (m *Manager) encode(buf []byte) []byte {
	if m.compressor == nil {
		return buf
	}
	return m.compressor.Compress(buf)
}

// decode reverses encode. A page backend never written to reads back as
// an all-zero buffer (both FileBackend, via a short read past EOF, and
// MemBackend, for an absent address, use this convention); such a buffer
// was never compressed in the first place, so decode passes it through
// rather than feeding it to the compressor, which would otherwise reject
// it as corrupt.
func (m *Manager) decode(raw []byte) ([]byte, error) {
	if m.compressor == nil || isZero(raw) {
		return raw, nil
	}
	return m.compressor.Decompress(raw)
}

func isZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
