// Package recovery implements the open-time redo pass of §4.6: scan
// the WAL, determine which transactions committed, and re-apply their
// mutation records. Grounded on
// original_source/include/qindb/database_manager.h's open-time
// recovery call and src/storage/wal.cpp's redo loop; the teacher's
// own recovery.go has stubbed no-op redo/undo handlers, so this is
// new engineering against the spec rather than a teacher adaptation.
package recovery

import (
	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/table"
	"github.com/sausheong/qindb/internal/txn"
	"github.com/sausheong/qindb/internal/wal"
)

// Backend abstracts over the WAL's two interchangeable backends
// (§4.6) for the one method recovery needs.
type Backend interface {
	ReadAll() ([]wal.Record, error)
}

// Run performs the three-phase recovery described by §4.6: classify
// every transaction seen in the log as committed or aborted, then
// redo every data-mutation record belonging to a committed
// transaction. It returns the highest TxnId observed so the caller
// can resync the transaction manager's counter.
func Run(pool *buffer.Pool, txns *txn.Manager, backend Backend) (maxTxnID uint64, err error) {
	records, err := backend.ReadAll()
	if err != nil {
		return 0, err
	}

	committed := make(map[uint64]bool)
	aborted := make(map[uint64]bool)
	for _, rec := range records {
		if rec.Header.TxnID > maxTxnID {
			maxTxnID = rec.Header.TxnID
		}
		switch rec.Header.Type {
		case wal.CommitTxn:
			committed[rec.Header.TxnID] = true
		case wal.AbortTxn:
			aborted[rec.Header.TxnID] = true
		}
	}

	for _, rec := range records {
		if !isMutation(rec.Header.Type) || !committed[rec.Header.TxnID] {
			continue
		}
		if err := redo(pool, rec); err != nil {
			return maxTxnID, err
		}
	}

	txns.RestoreNextID(maxTxnID + 1)
	return maxTxnID, nil
}

func isMutation(t wal.RecordType) bool {
	return t == wal.Insert || t == wal.Update || t == wal.Delete
}

// redo re-applies one committed mutation record. Per §4.6's
// simplified model, this verifies the target page is present and
// re-applies the record's stored bytes (not a delta), which is what
// makes replaying the log twice idempotent (§8).
//
// The record's WAL-time slot cannot be trusted literally: an earlier
// mutation on the same page that redo correctly skipped (uncommitted
// or aborted) never occupies a slot during this pass, so every later
// committed row on that page lands at a lower physical slot than its
// own WAL record says. Instead the row actually being mutated is
// re-resolved by RowID against the page's current contents.
func redo(pool *buffer.Pool, rec wal.Record) error {
	m := wal.DecodeMutation(rec.Data)
	pg, err := pool.FetchPage(page.ID(m.PageID))
	if err != nil {
		return err
	}
	defer pool.UnpinPage(page.ID(m.PageID), true)

	switch rec.Header.Type {
	case wal.Insert:
		if slot, ok := findSlotByRowID(pg, m.RowID); ok {
			pg.PutInPlace(slot, m.NewData)
			return nil
		}
		if pg.Header().Type == page.TypeInvalid {
			// Allocated but never written before the crash: still all zeros.
			table.Init(pg, page.ID(m.PageID))
		}
		_, err := pg.Append(m.NewData)
		return err
	case wal.Update:
		if slot, ok := findSlotByRowID(pg, m.RowID); ok {
			pg.PutInPlace(slot, m.NewData)
		}
		return nil
	case wal.Delete:
		if slot, ok := findSlotByRowID(pg, m.RowID); ok {
			return table.SetXmax(pg, slot, rec.Header.TxnID)
		}
		return nil
	}
	return nil
}

// findSlotByRowID scans pg's current slots for the one holding rowID,
// reading only the MVCC header (recovery has no catalog access, so it
// cannot decode full column values).
func findSlotByRowID(pg *page.Page, rowID uint64) (uint16, bool) {
	n := pg.SlotCount()
	for i := uint16(0); i < n; i++ {
		h, err := table.GetRecordHeader(pg, i)
		if err != nil {
			continue
		}
		if h.RowID == rowID {
			return i, true
		}
	}
	return 0, false
}
