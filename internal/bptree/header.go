// Package bptree implements the generic persistent B+ tree index of
// §4.5: a paged ordered map from serialized key bytes to RowId, with
// doubly-linked leaves for range scans and split/merge/borrow
// rebalancing. Neither the teacher's in-memory btree.go nor
// original_source's int64-only bplus_tree.h rebalances on delete or
// persists a generic key type; this package generalizes both.
package bptree

import (
	"encoding/binary"

	"github.com/sausheong/qindb/internal/page"
)

// HeaderSize is the fixed 48-byte size of a BPlusTreeHeader, laid out
// exactly as declared in §3/§6.
const HeaderSize = 48

// NodeType distinguishes a leaf page from an internal page.
type NodeType uint8

const (
	LeafNode NodeType = iota
	InternalNode
)

// Header is the B+ tree page header. It deliberately does not reuse
// page.Header: the tree's header layout differs from the table page's
// (48 bytes, no checksum field of its own — the trailing reserved
// region happens to cover the same byte range the generic page
// checksum occupies, which is harmless since those bytes are unused
// padding here).
type Header struct {
	NodeType     NodeType
	NumKeys      uint16
	MaxKeys      uint16
	PageID       page.ID
	ParentPageID page.ID
	NextPageID   page.ID
	PrevPageID   page.ID
}

func encodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	b[0] = byte(h.NodeType)
	b[1] = 0
	binary.LittleEndian.PutUint16(b[2:4], h.NumKeys)
	binary.LittleEndian.PutUint16(b[4:6], h.MaxKeys)
	binary.LittleEndian.PutUint16(b[6:8], 0)
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.PageID))
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.ParentPageID))
	binary.LittleEndian.PutUint32(b[16:20], uint32(h.NextPageID))
	binary.LittleEndian.PutUint32(b[20:24], uint32(h.PrevPageID))
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		NodeType:     NodeType(b[0]),
		NumKeys:      binary.LittleEndian.Uint16(b[2:4]),
		MaxKeys:      binary.LittleEndian.Uint16(b[4:6]),
		PageID:       page.ID(binary.LittleEndian.Uint32(b[8:12])),
		ParentPageID: page.ID(binary.LittleEndian.Uint32(b[12:16])),
		NextPageID:   page.ID(binary.LittleEndian.Uint32(b[16:20])),
		PrevPageID:   page.ID(binary.LittleEndian.Uint32(b[20:24])),
	}
}

func encodeLeafEntries(keys [][]byte, rowIDs []uint64) []byte {
	var buf []byte
	var tmp [8]byte
	for i, k := range keys {
		binary.LittleEndian.PutUint16(tmp[:2], uint16(len(k)))
		buf = append(buf, tmp[:2]...)
		buf = append(buf, k...)
		binary.LittleEndian.PutUint64(tmp[:8], rowIDs[i])
		buf = append(buf, tmp[:8]...)
	}
	return buf
}

func decodeLeafEntries(b []byte, n uint16) (keys [][]byte, rowIDs []uint64) {
	keys = make([][]byte, 0, n)
	rowIDs = make([]uint64, 0, n)
	off := 0
	for i := uint16(0); i < n; i++ {
		klen := int(binary.LittleEndian.Uint16(b[off : off+2]))
		off += 2
		k := append([]byte(nil), b[off:off+klen]...)
		off += klen
		rid := binary.LittleEndian.Uint64(b[off : off+8])
		off += 8
		keys = append(keys, k)
		rowIDs = append(rowIDs, rid)
	}
	return keys, rowIDs
}

func encodeInternalEntries(keys [][]byte, children []page.ID) []byte {
	var buf []byte
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[:4], uint32(children[0]))
	buf = append(buf, tmp[:4]...)
	for i, k := range keys {
		binary.LittleEndian.PutUint16(tmp[:2], uint16(len(k)))
		buf = append(buf, tmp[:2]...)
		buf = append(buf, k...)
		binary.LittleEndian.PutUint32(tmp[:4], uint32(children[i+1]))
		buf = append(buf, tmp[:4]...)
	}
	return buf
}

func decodeInternalEntries(b []byte, n uint16) (keys [][]byte, children []page.ID) {
	keys = make([][]byte, 0, n)
	children = make([]page.ID, 0, n+1)
	off := 0
	first := page.ID(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	children = append(children, first)
	for i := uint16(0); i < n; i++ {
		klen := int(binary.LittleEndian.Uint16(b[off : off+2]))
		off += 2
		k := append([]byte(nil), b[off:off+klen]...)
		off += klen
		child := page.ID(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
		keys = append(keys, k)
		children = append(children, child)
	}
	return keys, children
}
