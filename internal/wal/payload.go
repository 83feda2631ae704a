package wal

import "encoding/binary"

// MutationPayload carries enough information to locate the page and
// slot a data-mutation record affected, per §4.6: tableName, pageId,
// slotIndex, rowId for Insert (and old/new tuple bytes where the redo
// pass needs to re-apply a value rather than a delta).
type MutationPayload struct {
	Table   string
	PageID  uint32
	Slot    uint16
	RowID   uint64
	OldData []byte
	NewData []byte
}

// EncodeMutation serializes a MutationPayload for Insert/Update/Delete
// records. Redo is idempotent because it re-applies the stored bytes
// verbatim rather than a delta, per the idempotence property of §8.
func EncodeMutation(p MutationPayload) []byte {
	buf := make([]byte, 0, 32+len(p.Table)+len(p.OldData)+len(p.NewData))
	var tmp [8]byte

	binary.LittleEndian.PutUint16(tmp[:2], uint16(len(p.Table)))
	buf = append(buf, tmp[:2]...)
	buf = append(buf, p.Table...)

	binary.LittleEndian.PutUint32(tmp[:4], p.PageID)
	buf = append(buf, tmp[:4]...)

	binary.LittleEndian.PutUint16(tmp[:2], p.Slot)
	buf = append(buf, tmp[:2]...)

	binary.LittleEndian.PutUint64(tmp[:8], p.RowID)
	buf = append(buf, tmp[:8]...)

	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(p.OldData)))
	buf = append(buf, tmp[:4]...)
	buf = append(buf, p.OldData...)

	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(p.NewData)))
	buf = append(buf, tmp[:4]...)
	buf = append(buf, p.NewData...)

	return buf
}

// DecodeMutation is the inverse of EncodeMutation.
func DecodeMutation(b []byte) MutationPayload {
	var p MutationPayload
	tlen := binary.LittleEndian.Uint16(b[0:2])
	off := 2
	p.Table = string(b[off : off+int(tlen)])
	off += int(tlen)

	p.PageID = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	p.Slot = binary.LittleEndian.Uint16(b[off : off+2])
	off += 2
	p.RowID = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8

	oldLen := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	p.OldData = append([]byte(nil), b[off:off+int(oldLen)]...)
	off += int(oldLen)

	newLen := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	p.NewData = append([]byte(nil), b[off:off+int(newLen)]...)

	return p
}
