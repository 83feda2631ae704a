package bptree

import (
	"fmt"
	"sync"

	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/types"
)

// DefaultMaxKeys is the default configuration value for M (§4.5).
const DefaultMaxKeys = 200

// node is an in-memory, owned copy of one tree page's content. The
// buffer pool pin is released as soon as a node is decoded, per the
// design note in §9: deserialization severs the borrow.
type node struct {
	header   Header
	keys     [][]byte // sorted ascending, for both leaf and internal nodes
	rowIDs   []uint64 // leaf only, parallel to keys
	children []page.ID
}

func (n *node) isLeaf() bool { return n.header.NodeType == LeafNode }

// Tree is a persistent ordered map of serialized-key bytes to RowId,
// coarse-locked per §4.5's concurrency note.
type Tree struct {
	mu       sync.Mutex
	pool     *buffer.Pool
	root     page.ID
	keyType  types.DataType
	maxKeys  int
}

// Entry is one (key, rowId) pair returned by a range scan.
type Entry struct {
	Key   []byte
	RowID uint64
}

// Open attaches to an existing tree rooted at rootID, or creates a
// fresh empty leaf root if rootID is page.Invalid.
func Open(pool *buffer.Pool, rootID page.ID, keyType types.DataType, maxKeys int) (*Tree, error) {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	t := &Tree{pool: pool, root: rootID, keyType: keyType, maxKeys: maxKeys}
	if rootID == page.Invalid {
		id, err := t.newNode(LeafNode)
		if err != nil {
			return nil, err
		}
		t.root = id
	}
	return t, nil
}

// RootPageID returns the current root page, which callers persist
// into the owning IndexDef after any Insert/Delete that may have
// changed it.
func (t *Tree) RootPageID() page.ID { return t.root }

func (t *Tree) minKeys() int {
	// §4.5: non-root nodes hold at least ceil((M+1)/2) keys.
	return (t.maxKeys + 1 + 1) / 2
}

func (t *Tree) loadNode(id page.ID) (*node, error) {
	pg, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, err
	}
	defer t.pool.UnpinPage(id, false)
	h := decodeHeader(pg.Data[:HeaderSize])
	n := &node{header: h}
	body := pg.Data[HeaderSize:]
	if h.NodeType == LeafNode {
		n.keys, n.rowIDs = decodeLeafEntries(body, h.NumKeys)
	} else {
		n.keys, n.children = decodeInternalEntries(body, h.NumKeys)
	}
	return n, nil
}

func (t *Tree) saveNode(n *node) error {
	pg, err := t.pool.FetchPage(n.header.PageID)
	if err != nil {
		return err
	}
	n.header.NumKeys = uint16(len(n.keys))
	n.header.MaxKeys = uint16(t.maxKeys)
	copy(pg.Data[:HeaderSize], encodeHeader(n.header))
	var body []byte
	if n.isLeaf() {
		body = encodeLeafEntries(n.keys, n.rowIDs)
	} else {
		body = encodeInternalEntries(n.keys, n.children)
	}
	if HeaderSize+len(body) > page.Size {
		return fmt.Errorf("bptree: node page overflow (%d bytes)", HeaderSize+len(body))
	}
	copy(pg.Data[HeaderSize:], body)
	for i := HeaderSize + len(body); i < page.Size; i++ {
		pg.Data[i] = 0
	}
	return t.pool.UnpinPage(n.header.PageID, true)
}

func (t *Tree) newNode(typ NodeType) (page.ID, error) {
	id, pg, err := t.pool.NewPage()
	if err != nil {
		return page.Invalid, err
	}
	h := Header{NodeType: typ, PageID: id, MaxKeys: uint16(t.maxKeys),
		ParentPageID: page.Invalid, NextPageID: page.Invalid, PrevPageID: page.Invalid}
	copy(pg.Data[:HeaderSize], encodeHeader(h))
	for i := HeaderSize; i < page.Size; i++ {
		pg.Data[i] = 0
	}
	return id, t.pool.UnpinPage(id, true)
}

func (t *Tree) compare(a, b []byte) int {
	return types.CompareSerialized(a, b, t.keyType)
}

// findChildIndex returns the index of the child to descend into: the
// first i such that key < node.keys[i], or len(keys) if none.
func (t *Tree) findChildIndex(n *node, key []byte) int {
	i := 0
	for i < len(n.keys) && t.compare(key, n.keys[i]) >= 0 {
		i++
	}
	return i
}

// findKeyIndex returns the first index whose key is >= key (lower
// bound), used both for leaf search and for sorted insertion.
func (t *Tree) findKeyIndex(n *node, key []byte) int {
	i := 0
	for i < len(n.keys) && t.compare(n.keys[i], key) < 0 {
		i++
	}
	return i
}

// Search descends from the root and reports the RowId for key, if any.
func (t *Tree) Search(key any) (uint64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kb, err := types.Serialize(key, t.keyType)
	if err != nil {
		return 0, false, err
	}
	id := t.root
	for {
		n, err := t.loadNode(id)
		if err != nil {
			return 0, false, err
		}
		if n.isLeaf() {
			i := t.findKeyIndex(n, kb)
			if i < len(n.keys) && t.compare(n.keys[i], kb) == 0 {
				return n.rowIDs[i], true, nil
			}
			return 0, false, nil
		}
		id = n.children[t.findChildIndex(n, kb)]
	}
}

// RangeScan returns every (key, rowId) entry with lo <= key <= hi, in
// ascending key order, by locating the leaf containing lo and walking
// the leaf chain until a key exceeds hi. lo > hi yields no entries.
func (t *Tree) RangeScan(lo, hi any) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lob, err := types.Serialize(lo, t.keyType)
	if err != nil {
		return nil, err
	}
	hib, err := types.Serialize(hi, t.keyType)
	if err != nil {
		return nil, err
	}
	if t.compare(lob, hib) > 0 {
		return nil, nil
	}

	id := t.root
	var leaf *node
	for {
		n, err := t.loadNode(id)
		if err != nil {
			return nil, err
		}
		if n.isLeaf() {
			leaf = n
			break
		}
		id = n.children[t.findChildIndex(n, lob)]
	}

	var out []Entry
	for leaf != nil {
		start := t.findKeyIndex(leaf, lob)
		for i := start; i < len(leaf.keys); i++ {
			if t.compare(leaf.keys[i], hib) > 0 {
				return out, nil
			}
			out = append(out, Entry{Key: leaf.keys[i], RowID: leaf.rowIDs[i]})
		}
		if leaf.header.NextPageID == page.Invalid {
			break
		}
		leaf, err = t.loadNode(leaf.header.NextPageID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Insert upserts key → rowID, splitting nodes along the insertion
// path as needed and growing the root when the split propagates all
// the way up (§4.5 Insert steps 1-5).
func (t *Tree) Insert(key any, rowID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	kb, err := types.Serialize(key, t.keyType)
	if err != nil {
		return err
	}
	promoted, newChild, err := t.insertRecursive(t.root, kb, rowID)
	if err != nil {
		return err
	}
	if promoted == nil {
		return nil
	}
	oldRoot := t.root
	newRootID, err := t.newNode(InternalNode)
	if err != nil {
		return err
	}
	newRoot := &node{
		header:   Header{NodeType: InternalNode, PageID: newRootID, ParentPageID: page.Invalid},
		keys:     [][]byte{promoted},
		children: []page.ID{oldRoot, newChild},
	}
	if err := t.saveNode(newRoot); err != nil {
		return err
	}
	if err := t.setParent(oldRoot, newRootID); err != nil {
		return err
	}
	if err := t.setParent(newChild, newRootID); err != nil {
		return err
	}
	t.root = newRootID
	return nil
}

func (t *Tree) setParent(id, parent page.ID) error {
	n, err := t.loadNode(id)
	if err != nil {
		return err
	}
	n.header.ParentPageID = parent
	return t.saveNode(n)
}

// insertRecursive returns (promotedKey, newRightSiblingID, err); a
// nil promotedKey means no split propagated past this level.
func (t *Tree) insertRecursive(id page.ID, key []byte, rowID uint64) ([]byte, page.ID, error) {
	n, err := t.loadNode(id)
	if err != nil {
		return nil, page.Invalid, err
	}

	if n.isLeaf() {
		i := t.findKeyIndex(n, key)
		if i < len(n.keys) && t.compare(n.keys[i], key) == 0 {
			n.rowIDs[i] = rowID
			return nil, page.Invalid, t.saveNode(n)
		}
		n.keys = insertAt(n.keys, i, key)
		n.rowIDs = insertRowIDAt(n.rowIDs, i, rowID)
		if len(n.keys) <= t.maxKeys {
			return nil, page.Invalid, t.saveNode(n)
		}
		return t.splitLeaf(n)
	}

	childIdx := t.findChildIndex(n, key)
	promoted, newChild, err := t.insertRecursive(n.children[childIdx], key, rowID)
	if err != nil {
		return nil, page.Invalid, err
	}
	if promoted == nil {
		return nil, page.Invalid, nil
	}

	n.keys = insertAt(n.keys, childIdx, promoted)
	n.children = insertChildAt(n.children, childIdx+1, newChild)
	if len(n.keys) <= t.maxKeys {
		return nil, page.Invalid, t.saveNode(n)
	}
	return t.splitInternal(n)
}

func (t *Tree) splitLeaf(n *node) ([]byte, page.ID, error) {
	mid := len(n.keys) / 2
	rightID, err := t.newNode(LeafNode)
	if err != nil {
		return nil, page.Invalid, err
	}
	right := &node{
		header:   Header{NodeType: LeafNode, PageID: rightID, ParentPageID: n.header.ParentPageID, NextPageID: n.header.NextPageID, PrevPageID: n.header.PageID},
		keys:     append([][]byte(nil), n.keys[mid:]...),
		rowIDs:   append([]uint64(nil), n.rowIDs[mid:]...),
	}
	oldNext := n.header.NextPageID
	n.keys = n.keys[:mid]
	n.rowIDs = n.rowIDs[:mid]
	n.header.NextPageID = rightID

	if err := t.saveNode(n); err != nil {
		return nil, page.Invalid, err
	}
	if err := t.saveNode(right); err != nil {
		return nil, page.Invalid, err
	}
	if oldNext != page.Invalid {
		succ, err := t.loadNode(oldNext)
		if err != nil {
			return nil, page.Invalid, err
		}
		succ.header.PrevPageID = rightID
		if err := t.saveNode(succ); err != nil {
			return nil, page.Invalid, err
		}
	}
	return right.keys[0], rightID, nil
}

func (t *Tree) splitInternal(n *node) ([]byte, page.ID, error) {
	mid := len(n.keys) / 2
	promoted := n.keys[mid]
	rightID, err := t.newNode(InternalNode)
	if err != nil {
		return nil, page.Invalid, err
	}
	right := &node{
		header:   Header{NodeType: InternalNode, PageID: rightID, ParentPageID: n.header.ParentPageID},
		keys:     append([][]byte(nil), n.keys[mid+1:]...),
		children: append([]page.ID(nil), n.children[mid+1:]...),
	}
	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	if err := t.saveNode(n); err != nil {
		return nil, page.Invalid, err
	}
	if err := t.saveNode(right); err != nil {
		return nil, page.Invalid, err
	}
	for _, c := range right.children {
		if err := t.setParent(c, rightID); err != nil {
			return nil, page.Invalid, err
		}
	}
	return promoted, rightID, nil
}

func insertAt(s [][]byte, i int, v []byte) [][]byte {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertRowIDAt(s []uint64, i int, v uint64) []uint64 {
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertChildAt(s []page.ID, i int, v page.ID) []page.ID {
	s = append(s, page.Invalid)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt(s [][]byte, i int) [][]byte { return append(s[:i], s[i+1:]...) }
func removeRowIDAt(s []uint64, i int) []uint64 { return append(s[:i], s[i+1:]...) }
func removeChildAt(s []page.ID, i int) []page.ID { return append(s[:i], s[i+1:]...) }
