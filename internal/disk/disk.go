// Package disk implements the DiskManager: the single owner of the
// database file, responsible for the magic header and for reading and
// writing fixed-size pages by ID.
package disk

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/sausheong/qindb/internal/page"
)

// magicBase is the ASCII "QINDB" left-aligned in the low 5 bytes of
// the 8-byte magic (little-endian: 'Q','I','N','D','B',0,0,modeByte).
const magicBase uint64 = 0x00000042444E4951

// Mode bits packed into the high byte of the magic, per §6: bit 0 is
// WAL-in-DB, bit 1 is catalog-in-DB.
const (
	modeWALInDB     = 1 << 0
	modeCatalogInDB = 1 << 1
)

// The header occupies the first magicSize bytes of the file: the 8-byte
// magic+mode word, followed by a 4-byte little-endian WAL chain head
// page ID (0 meaning "none recorded yet") and 4 bytes of padding
// reserved for future header fields.
const magicSize = 16

const walHeadOffset = 8

// ErrBadMagic is returned by Open when the file's magic bytes do not
// match this format.
var ErrBadMagic = fmt.Errorf("disk: bad magic header")

// Manager owns the database file. All reads and writes are guarded by
// a single mutex, matching the "DB file owned by DiskManager behind a
// mutex" resource rule of §5.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	numPages uint32
}

// Open opens or creates the database file at path. If the file is new
// (zero length) it writes the magic header with the given backend
// modes; otherwise it validates the existing magic and returns the
// modes actually stored on disk.
func Open(path string, walInDB, catalogInDB bool) (m *Manager, gotWALInDB, gotCatalogInDB bool, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, false, fmt.Errorf("disk: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, false, fmt.Errorf("disk: stat %s: %w", path, err)
	}
	m = &Manager{file: f}
	if info.Size() == 0 {
		if err := m.writeMagicLocked(walInDB, catalogInDB); err != nil {
			f.Close()
			return nil, false, false, err
		}
		return m, walInDB, catalogInDB, nil
	}
	m.numPages = uint32((info.Size() - magicSize) / page.Size)
	gotWALInDB, gotCatalogInDB, err = m.readMagicLocked()
	if err != nil {
		f.Close()
		return nil, false, false, err
	}
	return m, gotWALInDB, gotCatalogInDB, nil
}

func (m *Manager) writeMagicLocked(walInDB, catalogInDB bool) error {
	var mode byte
	if walInDB {
		mode |= modeWALInDB
	}
	if catalogInDB {
		mode |= modeCatalogInDB
	}
	var buf [magicSize]byte
	binary.LittleEndian.PutUint64(buf[:8], magicBase)
	buf[7] = mode
	if _, err := m.file.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("disk: write magic: %w", err)
	}
	return nil
}

func (m *Manager) readMagicLocked() (walInDB, catalogInDB bool, err error) {
	var buf [magicSize]byte
	if _, err := m.file.ReadAt(buf[:], 0); err != nil {
		return false, false, fmt.Errorf("disk: read magic: %w", err)
	}
	base := binary.LittleEndian.Uint64(buf[:])
	mode := buf[7]
	if base&0x00FFFFFFFFFFFFFF != magicBase&0x00FFFFFFFFFFFFFF {
		return false, false, ErrBadMagic
	}
	return mode&modeWALInDB != 0, mode&modeCatalogInDB != 0, nil
}

// ReadMagic re-reads the current mode bits from the magic header.
func (m *Manager) ReadMagic() (walInDB, catalogInDB bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readMagicLocked()
}

// WALHeadPage returns the persisted head page of the DB-resident WAL
// chain, or page.Invalid if none has been recorded yet (a fresh
// database, or one whose WAL lives in a separate file).
func (m *Manager) WALHeadPage() (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf [4]byte
	if _, err := m.file.ReadAt(buf[:], walHeadOffset); err != nil {
		return page.Invalid, fmt.Errorf("disk: read wal head: %w", err)
	}
	return page.ID(binary.LittleEndian.Uint32(buf[:])), nil
}

// SetWALHeadPage persists id as the head of the DB-resident WAL chain,
// so the next Open can hand it to wal.OpenDBBackend instead of
// abandoning the existing chain and starting a fresh, empty one.
func (m *Manager) SetWALHeadPage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(id))
	if _, err := m.file.WriteAt(buf[:], walHeadOffset); err != nil {
		return fmt.Errorf("disk: write wal head: %w", err)
	}
	return nil
}

func offsetOf(id page.ID) int64 {
	return magicSize + int64(id-1)*page.Size
}

// ReadPage reads page id into buf, which must be exactly page.Size
// bytes. It fails on an out-of-range ID or a short read.
func (m *Manager) ReadPage(id page.ID, buf []byte) error {
	if len(buf) != page.Size {
		return fmt.Errorf("disk: buffer must be %d bytes", page.Size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == page.Invalid || uint32(id) > m.numPages {
		return fmt.Errorf("disk: page %d out of range", id)
	}
	n, err := m.file.ReadAt(buf, offsetOf(id))
	if err != nil {
		return fmt.Errorf("disk: read page %d: %w", id, err)
	}
	if n != page.Size {
		return fmt.Errorf("disk: short read on page %d", id)
	}
	return nil
}

// WritePage writes buf (exactly page.Size bytes) to page id, extending
// the file with zero-filled pages if id is beyond the current end.
func (m *Manager) WritePage(id page.ID, buf []byte) error {
	if len(buf) != page.Size {
		return fmt.Errorf("disk: buffer must be %d bytes", page.Size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.file.WriteAt(buf, offsetOf(id))
	if err != nil {
		return fmt.Errorf("disk: write page %d: %w", id, err)
	}
	if n != page.Size {
		return fmt.Errorf("disk: short write on page %d", id)
	}
	if uint32(id) > m.numPages {
		m.numPages = uint32(id)
	}
	return nil
}

// Allocate extends the file by one zero-filled page and returns its
// new ID. Allocation is monotonic; deallocated IDs are never reused
// (documented limitation, §3 and §9 open questions).
func (m *Manager) Allocate() (page.ID, error) {
	m.mu.Lock()
	m.numPages++
	id := page.ID(m.numPages)
	m.mu.Unlock()

	var zero [page.Size]byte
	if err := m.WritePage(id, zero[:]); err != nil {
		return page.Invalid, err
	}
	return id, nil
}

// Deallocate is a no-op: it does not record that id is free, and freed
// page IDs are never reused (the documented limitation in §9).
func (m *Manager) Deallocate(id page.ID) error {
	return nil
}

// Flush forces the OS-level write buffer to stable storage.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("disk: flush: %w", err)
	}
	return nil
}

// NumPages returns the number of pages currently allocated.
func (m *Manager) NumPages() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numPages
}

// Close flushes and closes the underlying file.
func (m *Manager) Close() error {
	if err := m.Flush(); err != nil {
		return err
	}
	return m.file.Close()
}
