// Package buffer implements the BufferPool: a fixed-size cache of
// disk pages with pinning, dirty tracking and Clock (second-chance)
// replacement.
package buffer

import (
	"errors"
	"sync"

	"github.com/sausheong/qindb/internal/disk"
	"github.com/sausheong/qindb/internal/page"
)

// ErrBufferFull is returned when every frame is pinned and no victim
// can be found after scanning the clock twice around the pool.
var ErrBufferFull = errors.New("buffer: pool full, no unpinned frame to evict")

type frame struct {
	occupied bool
	pageID   page.ID
	pg       *page.Page
	pinCount int
	refBit   bool
}

// Stats mirrors the statistics required by §4.2: poolSize, occupied,
// dirty, pinned, hitCount, missCount.
type Stats struct {
	PoolSize int
	Occupied int
	Dirty    int
	Pinned   int
	Hits     uint64
	Misses   uint64
}

// Pool is a fixed-size array of frames backed by a disk.Manager. A
// single mutex serializes the page table and free list, per §4.2/§5;
// mutation of a page's own bytes is left to callers holding a pin.
type Pool struct {
	mu        sync.Mutex
	disk      *disk.Manager
	frames    []frame
	index     map[page.ID]int
	clockHand int
	hits      uint64
	misses    uint64
}

// New creates a pool of the given size (in pages) over disk manager d.
func New(d *disk.Manager, size int) *Pool {
	if size <= 0 {
		size = 128
	}
	return &Pool{
		disk:   d,
		frames: make([]frame, size),
		index:  make(map[page.ID]int, size),
	}
}

// FetchPage pins and returns the page with the given ID, loading it
// from disk on a cache miss.
func (p *Pool) FetchPage(id page.ID) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot, ok := p.index[id]; ok {
		f := &p.frames[slot]
		p.hits++
		f.pinCount++
		f.refBit = true
		return f.pg, nil
	}
	p.misses++

	slot, err := p.findVictimLocked()
	if err != nil {
		return nil, err
	}

	var buf [page.Size]byte
	if err := p.disk.ReadPage(id, buf[:]); err != nil {
		return nil, err
	}
	pg, err := page.FromBytes(buf[:])
	if err != nil {
		return nil, err
	}

	p.frames[slot] = frame{occupied: true, pageID: id, pg: pg, pinCount: 1, refBit: true}
	p.index[id] = slot
	return pg, nil
}

// NewPage allocates a fresh page ID from disk, pins a frame for it and
// returns both. The page content is zeroed; callers are responsible
// for formatting it (TablePage.Init or a B+ tree node initializer).
func (p *Pool) NewPage() (page.ID, *page.Page, error) {
	id, err := p.disk.Allocate()
	if err != nil {
		return page.Invalid, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	slot, err := p.findVictimLocked()
	if err != nil {
		return page.Invalid, nil, err
	}
	pg := page.New(id, page.TypeInvalid)
	p.frames[slot] = frame{occupied: true, pageID: id, pg: pg, pinCount: 1, refBit: true}
	p.index[id] = slot
	return id, pg, nil
}

// findVictimLocked runs the Clock algorithm to find a free or
// evictable frame slot. Callers must hold p.mu.
func (p *Pool) findVictimLocked() (int, error) {
	n := len(p.frames)
	for step := 0; step < 2*n; step++ {
		slot := p.clockHand
		p.clockHand = (p.clockHand + 1) % n
		f := &p.frames[slot]

		if !f.occupied {
			return slot, nil
		}
		if f.pinCount > 0 {
			continue
		}
		if f.refBit {
			f.refBit = false
			continue
		}
		if err := p.flushFrameLocked(f); err != nil {
			return 0, err
		}
		delete(p.index, f.pageID)
		*f = frame{}
		return slot, nil
	}
	return 0, ErrBufferFull
}

func (p *Pool) flushFrameLocked(f *frame) error {
	if !f.occupied || !f.pg.IsDirty() {
		return nil
	}
	f.pg.UpdateChecksum()
	if err := p.disk.WritePage(f.pageID, f.pg.Data[:]); err != nil {
		return err
	}
	f.pg.ClearDirty()
	return nil
}

// UnpinPage decrements the pin count. Per §4.2, dirty=true sets the
// dirty flag; dirty=false never clears a previously set flag.
func (p *Pool) UnpinPage(id page.ID, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, ok := p.index[id]
	if !ok {
		return errors.New("buffer: unpin of page not in pool")
	}
	f := &p.frames[slot]
	if f.pinCount > 0 {
		f.pinCount--
	}
	if dirty {
		f.pg.SetDirty()
	}
	return nil
}

// FlushPage writes the page if dirty, refreshing its checksum first.
func (p *Pool) FlushPage(id page.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, ok := p.index[id]
	if !ok {
		return errors.New("buffer: flush of page not in pool")
	}
	return p.flushFrameLocked(&p.frames[slot])
}

// FlushAll writes every dirty page. A no-op on an already-clean pool.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.frames {
		if err := p.flushFrameLocked(&p.frames[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage evicts id's frame (if present) and asks the disk manager
// to deallocate it.
func (p *Pool) DeletePage(id page.ID) error {
	p.mu.Lock()
	slot, ok := p.index[id]
	if ok {
		delete(p.index, id)
		p.frames[slot] = frame{}
	}
	p.mu.Unlock()
	return p.disk.Deallocate(id)
}

// Stats reports current pool occupancy and hit/miss counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{PoolSize: len(p.frames), Hits: p.hits, Misses: p.misses}
	for i := range p.frames {
		f := &p.frames[i]
		if !f.occupied {
			continue
		}
		s.Occupied++
		if f.pinCount > 0 {
			s.Pinned++
		}
		if f.pg.IsDirty() {
			s.Dirty++
		}
	}
	return s
}
