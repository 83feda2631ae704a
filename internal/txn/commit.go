package txn

import (
	"fmt"

	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/catalog"
	"github.com/sausheong/qindb/internal/table"
)

// Commit transitions txn to Committed and releases its locks. The
// caller (the engine) is responsible for flushing the transaction's
// commit WAL record to stable storage before calling Commit, per the
// durability boundary in §4.6.
func (m *Manager) Commit(id ID) error {
	_, err := m.finish(id, Committed)
	return err
}

// Abort walks txn's undo log in reverse order, reversing each
// recorded mutation directly on the buffer pool, then transitions the
// transaction to Aborted and releases its locks. No WAL record is
// written for undo: the aborted transaction's WAL entries simply
// remain as no-ops because it never gets a commit record (§4.7).
func (m *Manager) Abort(id ID, pool *buffer.Pool, cat *catalog.Catalog) error {
	t, err := m.get(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	undo := append([]UndoRecord(nil), t.undo...)
	m.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		if err := applyUndo(id, undo[i], pool, cat); err != nil {
			return fmt.Errorf("txn: undo failed for txn %d: %w", id, err)
		}
	}

	_, err = m.finish(id, Aborted)
	return err
}

func applyUndo(id ID, rec UndoRecord, pool *buffer.Pool, cat *catalog.Catalog) error {
	pg, err := pool.FetchPage(rec.PageID)
	if err != nil {
		return err
	}
	defer pool.UnpinPage(rec.PageID, true)

	switch rec.Op {
	case OpInsert:
		// Undo an insert by tombstoning the tuple the aborting
		// transaction created.
		return table.SetXmax(pg, rec.Slot, id)
	case OpDelete:
		// Undo a delete by clearing the xmax this transaction set.
		return table.SetXmax(pg, rec.Slot, 0)
	case OpUpdate:
		def, err := cat.Table(rec.Table)
		if err != nil {
			return err
		}
		_, err = table.UpdateRecord(pg, def.Columns, rec.Slot, rec.OldValues, id)
		return err
	default:
		return fmt.Errorf("txn: unknown undo op %d", rec.Op)
	}
}
