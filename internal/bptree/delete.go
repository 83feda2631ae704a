package bptree

import (
	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/types"
)

type pathEntry struct {
	nodeID     page.ID
	childIndex int
}

// Delete removes key, rebalancing against a sibling by borrow or
// merge when a node underflows below the minimum of §4.5 Delete
// steps 1-4.
func (t *Tree) Delete(key any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	kb, err := types.Serialize(key, t.keyType)
	if err != nil {
		return err
	}

	var path []pathEntry
	id := t.root
	var cur *node
	for {
		n, err := t.loadNode(id)
		if err != nil {
			return err
		}
		if n.isLeaf() {
			cur = n
			break
		}
		idx := t.findChildIndex(n, kb)
		path = append(path, pathEntry{nodeID: id, childIndex: idx})
		id = n.children[idx]
	}

	i := t.findKeyIndex(cur, kb)
	if i >= len(cur.keys) || t.compare(cur.keys[i], kb) != 0 {
		return nil // not found: a no-op, matching the upsert-oriented contract
	}
	cur.keys = removeAt(cur.keys, i)
	cur.rowIDs = removeRowIDAt(cur.rowIDs, i)

	return t.rebalanceUp(cur, path)
}

// rebalanceUp saves child (already mutated by the caller) and, while
// it underflows and is not the root, borrows from or merges with a
// sibling, walking up path. It promotes a new root when the root
// internal node is left with zero keys.
func (t *Tree) rebalanceUp(child *node, path []pathEntry) error {
	for level := len(path) - 1; ; level-- {
		if level < 0 {
			if err := t.saveNode(child); err != nil {
				return err
			}
			if child.header.NodeType == InternalNode && len(child.keys) == 0 {
				newRoot := child.children[0]
				nr, err := t.loadNode(newRoot)
				if err != nil {
					return err
				}
				nr.header.ParentPageID = page.Invalid
				if err := t.saveNode(nr); err != nil {
					return err
				}
				t.pool.DeletePage(child.header.PageID)
				t.root = newRoot
			}
			return nil
		}

		if len(child.keys) >= t.minKeys() {
			return t.saveNode(child)
		}

		parent, err := t.loadNode(path[level].nodeID)
		if err != nil {
			return err
		}
		idx := path[level].childIndex

		if idx > 0 {
			left, err := t.loadNode(parent.children[idx-1])
			if err != nil {
				return err
			}
			if len(left.keys) > t.minKeys() {
				if err := t.borrowFromLeft(child, left, parent, idx); err != nil {
					return err
				}
				return nil
			}
		}
		if idx < len(parent.children)-1 {
			right, err := t.loadNode(parent.children[idx+1])
			if err != nil {
				return err
			}
			if len(right.keys) > t.minKeys() {
				if err := t.borrowFromRight(child, right, parent, idx); err != nil {
					return err
				}
				return nil
			}
		}

		if idx > 0 {
			left, err := t.loadNode(parent.children[idx-1])
			if err != nil {
				return err
			}
			if err := t.mergeInto(left, child, parent, idx-1); err != nil {
				return err
			}
			child = parent
			continue
		}
		right, err := t.loadNode(parent.children[idx+1])
		if err != nil {
			return err
		}
		if err := t.mergeInto(child, right, parent, idx); err != nil {
			return err
		}
		child = parent
	}
}

func (t *Tree) borrowFromLeft(child, left *node, parent *node, idx int) error {
	if child.isLeaf() {
		n := len(left.keys)
		movedKey, movedRowID := left.keys[n-1], left.rowIDs[n-1]
		left.keys, left.rowIDs = left.keys[:n-1], left.rowIDs[:n-1]
		child.keys = insertAt(child.keys, 0, movedKey)
		child.rowIDs = insertRowIDAt(child.rowIDs, 0, movedRowID)
		parent.keys[idx-1] = child.keys[0]
	} else {
		n := len(left.keys)
		movedChild := left.children[n]
		newFirstKey := parent.keys[idx-1]
		parent.keys[idx-1] = left.keys[n-1]
		left.keys = left.keys[:n-1]
		left.children = left.children[:n]
		child.keys = insertAt(child.keys, 0, newFirstKey)
		child.children = insertChildAt(child.children, 0, movedChild)
		if err := t.setParent(movedChild, child.header.PageID); err != nil {
			return err
		}
	}
	if err := t.saveNode(left); err != nil {
		return err
	}
	if err := t.saveNode(child); err != nil {
		return err
	}
	return t.saveNode(parent)
}

func (t *Tree) borrowFromRight(child, right *node, parent *node, idx int) error {
	if child.isLeaf() {
		movedKey, movedRowID := right.keys[0], right.rowIDs[0]
		right.keys, right.rowIDs = removeAt(right.keys, 0), removeRowIDAt(right.rowIDs, 0)
		child.keys = append(child.keys, movedKey)
		child.rowIDs = append(child.rowIDs, movedRowID)
		parent.keys[idx] = right.keys[0]
	} else {
		movedChild := right.children[0]
		newLastKey := parent.keys[idx]
		parent.keys[idx] = right.keys[0]
		right.keys = removeAt(right.keys, 0)
		right.children = removeChildAt(right.children, 0)
		child.keys = append(child.keys, newLastKey)
		child.children = append(child.children, movedChild)
		if err := t.setParent(movedChild, child.header.PageID); err != nil {
			return err
		}
	}
	if err := t.saveNode(right); err != nil {
		return err
	}
	if err := t.saveNode(child); err != nil {
		return err
	}
	return t.saveNode(parent)
}

// mergeInto absorbs right into left (right's page is freed), removes
// the parent's separator at keyIdx together with its right child
// pointer, and updates leaf-list links when the nodes are leaves.
func (t *Tree) mergeInto(left, right *node, parent *node, keyIdx int) error {
	if left.isLeaf() {
		left.keys = append(left.keys, right.keys...)
		left.rowIDs = append(left.rowIDs, right.rowIDs...)
		left.header.NextPageID = right.header.NextPageID
		if right.header.NextPageID != page.Invalid {
			succ, err := t.loadNode(right.header.NextPageID)
			if err != nil {
				return err
			}
			succ.header.PrevPageID = left.header.PageID
			if err := t.saveNode(succ); err != nil {
				return err
			}
		}
	} else {
		left.keys = append(left.keys, parent.keys[keyIdx])
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
		for _, c := range right.children {
			if err := t.setParent(c, left.header.PageID); err != nil {
				return err
			}
		}
	}
	parent.keys = removeAt(parent.keys, keyIdx)
	parent.children = removeChildAt(parent.children, keyIdx+1)

	t.pool.DeletePage(right.header.PageID)
	return t.saveNode(left)
}
