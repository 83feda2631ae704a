package txn

import (
	"path/filepath"
	"testing"

	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/catalog"
	"github.com/sausheong/qindb/internal/disk"
	"github.com/sausheong/qindb/internal/table"
	"github.com/sausheong/qindb/internal/types"
)

func newTestPool(t *testing.T) *buffer.Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.qdb")
	d, _, _, err := disk.Open(path, false, false)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return buffer.New(d, 16)
}

func testCols() []catalog.ColumnDef {
	return []catalog.ColumnDef{
		{Name: "id", Type: types.Int64},
		{Name: "name", Type: types.VarChar, Nullable: true},
	}
}

func TestAbortUndoesInsert(t *testing.T) {
	pool := newTestPool(t)
	cat := catalog.New()
	cat.CreateTable("t", testCols())

	pid, pg, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	table.Init(pg, pid)

	m := New()
	id := m.Begin()
	slot, err := table.InsertRecord(pg, testCols(), 1, []any{int64(1), "a"}, id)
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	m.PushUndo(id, UndoRecord{Op: OpInsert, Table: "t", PageID: pid, Slot: slot})
	pool.UnpinPage(pid, true)

	if err := m.Abort(id, pool, cat); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	got, err := pool.FetchPage(pid)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	defer pool.UnpinPage(pid, false)
	hdr, err := table.GetRecordHeader(got, slot)
	if err != nil {
		t.Fatalf("GetRecordHeader: %v", err)
	}
	if hdr.Xmax != id {
		t.Fatalf("Xmax after undo-insert = %d, want %d (tombstoned by aborting txn)", hdr.Xmax, id)
	}
}

func TestAbortUndoesDelete(t *testing.T) {
	pool := newTestPool(t)
	cat := catalog.New()
	cat.CreateTable("t", testCols())

	pid, pg, _ := pool.NewPage()
	table.Init(pg, pid)
	slot, _ := table.InsertRecord(pg, testCols(), 1, []any{int64(1), "a"}, 0)
	pool.UnpinPage(pid, true)

	m := New()
	id := m.Begin()
	got, _ := pool.FetchPage(pid)
	table.DeleteRecord(got, slot, id)
	pool.UnpinPage(pid, true)
	m.PushUndo(id, UndoRecord{Op: OpDelete, Table: "t", PageID: pid, Slot: slot})

	if err := m.Abort(id, pool, cat); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	got2, _ := pool.FetchPage(pid)
	defer pool.UnpinPage(pid, false)
	hdr, err := table.GetRecordHeader(got2, slot)
	if err != nil {
		t.Fatalf("GetRecordHeader: %v", err)
	}
	if hdr.Xmax != 0 {
		t.Fatalf("Xmax after undo-delete = %d, want 0", hdr.Xmax)
	}
}

func TestAbortReleasesLocksAndSetsState(t *testing.T) {
	pool := newTestPool(t)
	cat := catalog.New()
	m := New()
	id := m.Begin()
	other := m.Begin()

	m.LockPage(id, 1, Exclusive, 0)
	if err := m.Abort(id, pool, cat); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if m.State(id) != Aborted {
		t.Fatalf("State after Abort = %v, want Aborted", m.State(id))
	}
	if err := m.LockPage(other, 1, Exclusive, 0); err != nil {
		t.Fatalf("LockPage after abort released lock should succeed: %v", err)
	}
}
