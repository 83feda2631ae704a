// Package page implements the fixed-size paged buffer shared by every
// on-disk structure in the engine: table pages and B+ tree pages alike
// are [Page] values with a 32-byte header, a forward-growing slot
// array and a backward-growing record region.
package page

import (
	"encoding/binary"
	"errors"
	"sync"
)

// Size is the fixed byte size of every page in the database file.
const Size = 8192

// HeaderSize is the byte size of the fixed page header.
const HeaderSize = 32

// SlotSize is the byte size of one slot-array entry.
const SlotSize = 4

// MaxRecordSize is the largest record that can ever fit on a fresh
// page: page size minus the header and one slot entry.
const MaxRecordSize = Size - HeaderSize - SlotSize

// ID identifies a page within the database file. Zero is invalid;
// allocation is monotonic starting from 1.
type ID uint32

// Invalid is the sentinel page ID meaning "no page".
const Invalid ID = 0

// Type tags what a page's record region holds.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeTable
	TypeIndexLeaf
	TypeIndexInternal
)

// Header is the 32-byte on-disk page header, laid out exactly as
// declared here: type, reserved, slotCount, freeSpaceOffset,
// freeSpaceSize, pageId, nextPageId, prevPageId, lastModifiedTxn,
// checksum.
type Header struct {
	Type            Type
	SlotCount       uint16
	FreeSpaceOffset uint16
	FreeSpaceSize   uint16
	PageID          ID
	NextPageID      ID
	PrevPageID      ID
	LastModifiedTxn uint64
	Checksum        uint32
}

// Slot locates one record within the page's record region.
type Slot struct {
	Offset uint16
	Length uint16
}

// Page is one fixed-size frame of the database file, held in memory
// while pinned by the buffer pool. Callers mutate Page only while
// holding a pin; Mu additionally serializes concurrent mutators that
// hold the same pin across goroutines (see the concurrency note in
// the buffer package).
type Page struct {
	Mu   sync.Mutex
	Data [Size]byte

	pinCount int32
	dirty    bool
}

var (
	// ErrSlotOutOfRange is returned for a slot index beyond SlotCount.
	ErrSlotOutOfRange = errors.New("page: slot index out of range")
	// ErrSlotEmpty is returned when reading a tombstoned slot.
	ErrSlotEmpty = errors.New("page: slot is empty")
	// ErrOutOfSpace is returned when a record cannot fit.
	ErrOutOfSpace = errors.New("page: insufficient free space")
	// ErrCorruption is returned when a page's checksum does not verify.
	ErrCorruption = errors.New("page: checksum mismatch")
)

// New formats a fresh zeroed page of the given type and ID.
func New(id ID, typ Type) *Page {
	p := &Page{}
	h := Header{
		Type:            typ,
		SlotCount:       0,
		FreeSpaceOffset: Size,
		FreeSpaceSize:   Size - HeaderSize,
		PageID:          id,
		NextPageID:      Invalid,
		PrevPageID:      Invalid,
	}
	p.PutHeader(h)
	p.dirty = true
	return p
}

// FromBytes wraps a raw Size-byte buffer (as read from disk) into a
// Page and verifies its checksum.
func FromBytes(data []byte) (*Page, error) {
	if len(data) != Size {
		return nil, errors.New("page: buffer is not exactly one page")
	}
	p := &Page{}
	copy(p.Data[:], data)
	if !p.VerifyChecksum() {
		return nil, ErrCorruption
	}
	return p, nil
}

// Header decodes the page header from Data.
func (p *Page) Header() Header {
	var h Header
	h.Type = Type(p.Data[0])
	h.SlotCount = binary.LittleEndian.Uint16(p.Data[2:4])
	h.FreeSpaceOffset = binary.LittleEndian.Uint16(p.Data[4:6])
	h.FreeSpaceSize = binary.LittleEndian.Uint16(p.Data[6:8])
	h.PageID = ID(binary.LittleEndian.Uint32(p.Data[8:12]))
	h.NextPageID = ID(binary.LittleEndian.Uint32(p.Data[12:16]))
	h.PrevPageID = ID(binary.LittleEndian.Uint32(p.Data[16:20]))
	h.LastModifiedTxn = binary.LittleEndian.Uint64(p.Data[20:28])
	h.Checksum = binary.LittleEndian.Uint32(p.Data[28:32])
	return h
}

// PutHeader encodes h back into Data.
func (p *Page) PutHeader(h Header) {
	p.Data[0] = byte(h.Type)
	p.Data[1] = 0
	binary.LittleEndian.PutUint16(p.Data[2:4], h.SlotCount)
	binary.LittleEndian.PutUint16(p.Data[4:6], h.FreeSpaceOffset)
	binary.LittleEndian.PutUint16(p.Data[6:8], h.FreeSpaceSize)
	binary.LittleEndian.PutUint32(p.Data[8:12], uint32(h.PageID))
	binary.LittleEndian.PutUint32(p.Data[12:16], uint32(h.NextPageID))
	binary.LittleEndian.PutUint32(p.Data[16:20], uint32(h.PrevPageID))
	binary.LittleEndian.PutUint64(p.Data[20:28], h.LastModifiedTxn)
	binary.LittleEndian.PutUint32(p.Data[28:32], h.Checksum)
}

func slotOffset(i uint16) int { return HeaderSize + int(i)*SlotSize }

// Slot reads slot i from the slot array.
func (p *Page) Slot(i uint16) Slot {
	off := slotOffset(i)
	return Slot{
		Offset: binary.LittleEndian.Uint16(p.Data[off : off+2]),
		Length: binary.LittleEndian.Uint16(p.Data[off+2 : off+4]),
	}
}

// putSlot writes slot i into the slot array.
func (p *Page) putSlot(i uint16, s Slot) {
	off := slotOffset(i)
	binary.LittleEndian.PutUint16(p.Data[off:off+2], s.Offset)
	binary.LittleEndian.PutUint16(p.Data[off+2:off+4], s.Length)
}

// PinCount returns the current pin count (read under the buffer pool's
// mutex by convention; exported for BufferPool bookkeeping).
func (p *Page) PinCount() int32 { return p.pinCount }

// Pin increments the pin count.
func (p *Page) Pin() { p.pinCount++ }

// Unpin decrements the pin count; it is a no-op below zero.
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

// IsDirty reports whether the page has unflushed modifications.
func (p *Page) IsDirty() bool { return p.dirty }

// SetDirty sets the dirty flag. Per §4.2, unpinning with dirty=false
// never clears a previously set flag; callers only ever call this
// with true or rely on ClearDirty after a successful flush.
func (p *Page) SetDirty() { p.dirty = true }

// ClearDirty clears the dirty flag, called after a successful flush.
func (p *Page) ClearDirty() { p.dirty = false }

// ComputeChecksum sums every byte of the page except the checksum
// field itself, per §6 ("32-bit sum of all bytes ... excluding the
// checksum field").
func (p *Page) ComputeChecksum() uint32 {
	var sum uint32
	for i, b := range p.Data {
		if i >= 28 && i < 32 {
			continue
		}
		sum += uint32(b)
	}
	return sum
}

// UpdateChecksum recomputes and stores the checksum field.
func (p *Page) UpdateChecksum() {
	sum := p.ComputeChecksum()
	binary.LittleEndian.PutUint32(p.Data[28:32], sum)
}

// VerifyChecksum reports whether the stored checksum matches the
// page's current contents.
func (p *Page) VerifyChecksum() bool {
	stored := binary.LittleEndian.Uint32(p.Data[28:32])
	return stored == p.ComputeChecksum()
}

// FreeSpace returns the number of bytes available for a new record
// plus its slot entry.
func (p *Page) FreeSpace() int {
	h := p.Header()
	boundary := HeaderSize + int(h.SlotCount)*SlotSize
	if int(h.FreeSpaceOffset) <= boundary {
		return 0
	}
	return int(h.FreeSpaceOffset) - boundary
}

// Append writes a new record into the backward-growing region and
// appends a slot for it, returning the new slot's index. It fails
// with ErrOutOfSpace if the record plus its slot entry does not fit.
func (p *Page) Append(record []byte) (uint16, error) {
	size := len(record)
	if size+SlotSize > p.FreeSpace() {
		return 0, ErrOutOfSpace
	}
	h := p.Header()
	newOffset := int(h.FreeSpaceOffset) - size
	copy(p.Data[newOffset:newOffset+size], record)

	slotIdx := h.SlotCount
	h.SlotCount++
	h.FreeSpaceOffset = uint16(newOffset)
	h.FreeSpaceSize = h.FreeSpaceOffset - uint16(HeaderSize+int(h.SlotCount)*SlotSize)
	p.PutHeader(h)
	p.putSlot(slotIdx, Slot{Offset: uint16(newOffset), Length: uint16(size)})
	p.dirty = true
	return slotIdx, nil
}

// Get returns the raw bytes stored at slot i.
func (p *Page) Get(i uint16) ([]byte, error) {
	h := p.Header()
	if i >= h.SlotCount {
		return nil, ErrSlotOutOfRange
	}
	s := p.Slot(i)
	if s.Length == 0 {
		return nil, ErrSlotEmpty
	}
	out := make([]byte, s.Length)
	copy(out, p.Data[s.Offset:s.Offset+s.Length])
	return out, nil
}

// Tombstone zeroes a slot's length, logically removing its record
// without reclaiming space. VACUUM uses it to retire dead tuples (a
// table-page delete only sets xmax); the bytes stay until Compact.
func (p *Page) Tombstone(i uint16) error {
	h := p.Header()
	if i >= h.SlotCount {
		return ErrSlotOutOfRange
	}
	s := p.Slot(i)
	s.Length = 0
	p.putSlot(i, s)
	p.dirty = true
	return nil
}

// PutInPlace overwrites slot i's bytes without moving it, provided the
// new value is no larger than the slot's current length. The slot's
// length shrinks to len(record) if smaller; freed bytes are not
// reclaimed until Compact.
func (p *Page) PutInPlace(i uint16, record []byte) bool {
	h := p.Header()
	if i >= h.SlotCount {
		return false
	}
	s := p.Slot(i)
	if uint16(len(record)) > s.Length {
		return false
	}
	copy(p.Data[s.Offset:s.Offset+uint16(len(record))], record)
	s.Length = uint16(len(record))
	p.putSlot(i, s)
	p.dirty = true
	return true
}

// SlotCount returns the number of slot entries (including tombstoned
// ones) currently in the page.
func (p *Page) SlotCount() uint16 { return p.Header().SlotCount }

// Compact reclaims space left by tombstoned slots by rewriting every
// live record contiguously from the end of the page, preserving slot
// indices so external references (B+ tree entries, in-flight scans)
// by slot number remain valid.
func (p *Page) Compact() {
	h := p.Header()
	type live struct {
		idx  uint16
		data []byte
	}
	kept := make([]live, 0, h.SlotCount)
	for i := uint16(0); i < h.SlotCount; i++ {
		s := p.Slot(i)
		if s.Length == 0 {
			continue
		}
		buf := make([]byte, s.Length)
		copy(buf, p.Data[s.Offset:s.Offset+s.Length])
		kept = append(kept, live{idx: i, data: buf})
	}
	offset := uint16(Size)
	for _, k := range kept {
		offset -= uint16(len(k.data))
		copy(p.Data[offset:offset+uint16(len(k.data))], k.data)
		p.putSlot(k.idx, Slot{Offset: offset, Length: uint16(len(k.data))})
	}
	h.FreeSpaceOffset = offset
	h.FreeSpaceSize = offset - uint16(HeaderSize+int(h.SlotCount)*SlotSize)
	p.PutHeader(h)
	p.dirty = true
}

// SetPageID rewrites the header's pageId field in place.
func (p *Page) SetPageID(id ID) {
	h := p.Header()
	h.PageID = id
	p.PutHeader(h)
}

// SetLinks rewrites the header's nextPageId/prevPageId fields.
func (p *Page) SetLinks(next, prev ID) {
	h := p.Header()
	h.NextPageID = next
	h.PrevPageID = prev
	p.PutHeader(h)
	p.dirty = true
}

// SetLastModifiedTxn stamps the header with the txn that most recently
// mutated this page.
func (p *Page) SetLastModifiedTxn(txn uint64) {
	h := p.Header()
	h.LastModifiedTxn = txn
	p.PutHeader(h)
}
