// Package table implements the slotted table page: serialization of
// typed tuples with an MVCC record header, and the insert/update/
// delete/iterate operations of §4.3.
package table

import (
	"encoding/binary"
	"fmt"

	"github.com/sausheong/qindb/internal/catalog"
	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/types"
)

// RecordHeaderSize is the fixed 26-byte size of RecordHeader.
const RecordHeaderSize = 26

// RecordHeader is the MVCC header stored at the front of every
// record's bytes, laid out exactly as declared: rowId, xmin, xmax,
// columnCount.
type RecordHeader struct {
	RowID       uint64
	Xmin        uint64
	Xmax        uint64
	ColumnCount uint16
}

func (h RecordHeader) encode() []byte {
	b := make([]byte, RecordHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], h.RowID)
	binary.LittleEndian.PutUint64(b[8:16], h.Xmin)
	binary.LittleEndian.PutUint64(b[16:24], h.Xmax)
	binary.LittleEndian.PutUint16(b[24:26], h.ColumnCount)
	return b
}

func decodeHeader(b []byte) RecordHeader {
	return RecordHeader{
		RowID:       binary.LittleEndian.Uint64(b[0:8]),
		Xmin:        binary.LittleEndian.Uint64(b[8:16]),
		Xmax:        binary.LittleEndian.Uint64(b[16:24]),
		ColumnCount: binary.LittleEndian.Uint16(b[24:26]),
	}
}

// Record pairs a tuple's decoded column values with its MVCC header,
// matching the three-argument getAllRecords overload of the original
// that MVCC-aware callers need to apply a visibility filter.
type Record struct {
	Header RecordHeader
	Values []any
}

// Init formats a fresh page as a table page: zeroed header with
// type=TABLE, freeSpaceOffset=8192.
func Init(p *page.Page, id page.ID) {
	h := page.Header{
		Type:            page.TypeTable,
		SlotCount:       0,
		FreeSpaceOffset: page.Size,
		FreeSpaceSize:   page.Size - page.HeaderSize,
		PageID:          id,
		NextPageID:      page.Invalid,
		PrevPageID:      page.Invalid,
	}
	p.PutHeader(h)
	p.SetDirty()
}

func serializeRecord(cols []catalog.ColumnDef, rowID, xmin, xmax uint64, values []any) ([]byte, error) {
	hdr := RecordHeader{RowID: rowID, Xmin: xmin, Xmax: xmax, ColumnCount: uint16(len(cols))}
	buf := append([]byte(nil), hdr.encode()...)
	for i, col := range cols {
		v := values[i]
		if v == nil {
			if !col.Nullable {
				return nil, fmt.Errorf("table: column %q is not nullable", col.Name)
			}
			buf = append(buf, 1) // null flag
			continue
		}
		buf = append(buf, 0)
		enc, err := types.Serialize(v, col.Type)
		if err != nil {
			return nil, fmt.Errorf("table: column %q: %w", col.Name, err)
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

func deserializeRecord(cols []catalog.ColumnDef, raw []byte) (Record, error) {
	if len(raw) < RecordHeaderSize {
		return Record{}, fmt.Errorf("table: record shorter than header")
	}
	hdr := decodeHeader(raw[:RecordHeaderSize])
	rest := raw[RecordHeaderSize:]
	values := make([]any, len(cols))
	for i, col := range cols {
		if len(rest) < 1 {
			return Record{}, fmt.Errorf("table: truncated record at column %q", col.Name)
		}
		isNull := rest[0] == 1
		rest = rest[1:]
		if isNull {
			values[i] = nil
			continue
		}
		v, n, err := types.Deserialize(rest, col.Type)
		if err != nil {
			return Record{}, fmt.Errorf("table: column %q: %w", col.Name, err)
		}
		values[i] = v
		rest = rest[n:]
	}
	return Record{Header: hdr, Values: values}, nil
}

// RecordSize computes the serialized size of values without writing
// them, used to decide whether a record fits before attempting an
// insert (and to reject oversized inserts with OutOfSpace early).
func RecordSize(cols []catalog.ColumnDef, values []any) (int, error) {
	buf, err := serializeRecord(cols, 0, 0, 0, values)
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

// InsertRecord serializes values and appends them to p with xmin=txn,
// xmax=0. It returns the new slot index.
func InsertRecord(p *page.Page, cols []catalog.ColumnDef, rowID uint64, values []any, txn uint64) (uint16, error) {
	raw, err := serializeRecord(cols, rowID, txn, 0, values)
	if err != nil {
		return 0, err
	}
	if len(raw)+page.SlotSize > page.MaxRecordSize {
		return 0, page.ErrOutOfSpace
	}
	slot, err := p.Append(raw)
	if err != nil {
		return 0, err
	}
	p.SetLastModifiedTxn(txn)
	return slot, nil
}

// GetAllRecords iterates every non-tombstoned slot in page order and
// decodes it, returning each record with its full MVCC header so the
// caller can apply VisibilityChecker.
func GetAllRecords(p *page.Page, cols []catalog.ColumnDef) ([]Record, error) {
	n := p.SlotCount()
	out := make([]Record, 0, n)
	for i := uint16(0); i < n; i++ {
		raw, err := p.Get(i)
		if err == page.ErrSlotEmpty {
			continue
		}
		if err != nil {
			return nil, err
		}
		rec, err := deserializeRecord(cols, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// RecordWithSlot pairs a decoded record with the slot index it lives
// at, used by callers (the engine's rowId index rebuild) that need to
// address the record again later.
type RecordWithSlot struct {
	Slot uint16
	Record
}

// GetAllRecordsWithSlots is GetAllRecords plus each record's slot
// index, used to build an external rowId → (page, slot) index.
func GetAllRecordsWithSlots(p *page.Page, cols []catalog.ColumnDef) ([]RecordWithSlot, error) {
	n := p.SlotCount()
	out := make([]RecordWithSlot, 0, n)
	for i := uint16(0); i < n; i++ {
		raw, err := p.Get(i)
		if err == page.ErrSlotEmpty {
			continue
		}
		if err != nil {
			return nil, err
		}
		rec, err := deserializeRecord(cols, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, RecordWithSlot{Slot: i, Record: rec})
	}
	return out, nil
}

// GetRecordHeader decodes just the header of slot i, used by rollback
// to read/clear xmax without touching the column payload.
func GetRecordHeader(p *page.Page, slot uint16) (RecordHeader, error) {
	raw, err := p.Get(slot)
	if err != nil {
		return RecordHeader{}, err
	}
	if len(raw) < RecordHeaderSize {
		return RecordHeader{}, fmt.Errorf("table: record shorter than header")
	}
	return decodeHeader(raw[:RecordHeaderSize]), nil
}

// SetXmax overwrites slot i's xmax field in place, used both for
// logical delete and for clearing xmax on undo.
func SetXmax(p *page.Page, slot uint16, xmax uint64) error {
	raw, err := p.Get(slot)
	if err != nil {
		return err
	}
	if len(raw) < RecordHeaderSize {
		return fmt.Errorf("table: record shorter than header")
	}
	binary.LittleEndian.PutUint64(raw[16:24], xmax)
	if !p.PutInPlace(slot, raw) {
		return fmt.Errorf("table: in-place xmax rewrite failed")
	}
	return nil
}

// DeleteRecord logically deletes slot i by setting xmax=txn; it does
// not reclaim space (left to VACUUM).
func DeleteRecord(p *page.Page, slot uint16, txn uint64) error {
	if err := SetXmax(p, slot, txn); err != nil {
		return err
	}
	p.SetLastModifiedTxn(txn)
	return nil
}

// UpdateRecord attempts an in-place overwrite preserving the original
// xmin. It returns false when the new value is larger than the slot's
// current bytes, so the caller can fall back to delete+insert
// (possibly on another page).
func UpdateRecord(p *page.Page, cols []catalog.ColumnDef, slot uint16, newValues []any, txn uint64) (bool, error) {
	old, err := GetRecordHeader(p, slot)
	if err != nil {
		return false, err
	}
	raw, err := serializeRecord(cols, old.RowID, old.Xmin, old.Xmax, newValues)
	if err != nil {
		return false, err
	}
	if !p.PutInPlace(slot, raw) {
		return false, nil
	}
	p.SetLastModifiedTxn(txn)
	return true, nil
}
