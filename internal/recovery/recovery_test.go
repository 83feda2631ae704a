package recovery

import (
	"path/filepath"
	"testing"

	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/catalog"
	"github.com/sausheong/qindb/internal/disk"
	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/table"
	"github.com/sausheong/qindb/internal/txn"
	"github.com/sausheong/qindb/internal/types"
	"github.com/sausheong/qindb/internal/wal"
)

type fakeBackend struct {
	records []wal.Record
}

func (f *fakeBackend) ReadAll() ([]wal.Record, error) { return f.records, nil }

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

func encodeInsertedRow(t *testing.T) []byte {
	t.Helper()
	return encodeRow(t, 1, 1, 42)
}

// encodeRow builds the raw serialized bytes of a single-column int64
// row via the real table.InsertRecord path, rather than hand-encoding
// the on-disk format, so WAL payloads in tests stay format-correct.
func encodeRow(t *testing.T, rowID, xmin uint64, val int64) []byte {
	t.Helper()
	scratch := page.New(99, page.TypeTable)
	table.Init(scratch, 99)
	cols := []catalog.ColumnDef{{Name: "id", Type: types.Int64}}
	if _, err := table.InsertRecord(scratch, cols, rowID, []any{val}, xmin); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	raw, err := scratch.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return append([]byte(nil), raw...)
}

func mkRecord(typ wal.RecordType, txnID uint64, data []byte) wal.Record {
	return wal.Record{Header: wal.Header{Type: typ, TxnID: txnID, DataSize: uint16(len(data))}, Data: data}
}

func TestRunRedoesCommittedInsert(t *testing.T) {
	pool := newTestPool(t)
	pid, pg, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	table.Init(pg, pid)
	pool.UnpinPage(pid, true)

	rowBytes := encodeInsertedRow(t)
	payload := wal.EncodeMutation(wal.MutationPayload{Table: "t", PageID: uint32(pid), Slot: 0, RowID: 1, NewData: rowBytes})

	backend := &fakeBackend{records: []wal.Record{
		mkRecord(wal.BeginTxn, 1, nil),
		mkRecord(wal.Insert, 1, payload),
		mkRecord(wal.CommitTxn, 1, nil),
	}}

	txns := txn.New()
	maxID, err := Run(pool, txns, backend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if maxID != 1 {
		t.Fatalf("maxID = %d, want 1", maxID)
	}

	got, err := pool.FetchPage(pid)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	defer pool.UnpinPage(pid, false)
	if got.SlotCount() != 1 {
		t.Fatalf("SlotCount = %d, want 1 after redo", got.SlotCount())
	}

	cols := []catalog.ColumnDef{{Name: "id", Type: types.Int64}}
	recs, err := table.GetAllRecords(got, cols)
	if err != nil {
		t.Fatalf("GetAllRecords: %v", err)
	}
	if len(recs) != 1 || recs[0].Values[0] != int64(42) {
		t.Fatalf("recs = %+v, want one row with id=42", recs)
	}

	next := txns.Begin()
	if next != maxID+1 {
		t.Fatalf("Begin after recovery = %d, want %d", next, maxID+1)
	}
}

func TestRunSkipsUncommittedInsert(t *testing.T) {
	pool := newTestPool(t)
	pid, pg, _ := pool.NewPage()
	table.Init(pg, pid)
	pool.UnpinPage(pid, true)

	rowBytes := encodeInsertedRow(t)
	payload := wal.EncodeMutation(wal.MutationPayload{Table: "t", PageID: uint32(pid), Slot: 0, RowID: 1, NewData: rowBytes})

	backend := &fakeBackend{records: []wal.Record{
		mkRecord(wal.BeginTxn, 1, nil),
		mkRecord(wal.Insert, 1, payload),
		// No CommitTxn: transaction never committed.
	}}

	txns := txn.New()
	if _, err := Run(pool, txns, backend); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := pool.FetchPage(pid)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	defer pool.UnpinPage(pid, false)
	if got.SlotCount() != 0 {
		t.Fatalf("SlotCount = %d, want 0 (uncommitted insert must not be redone)", got.SlotCount())
	}
}

func TestRunSkipsAbortedInsert(t *testing.T) {
	pool := newTestPool(t)
	pid, pg, _ := pool.NewPage()
	table.Init(pg, pid)
	pool.UnpinPage(pid, true)

	rowBytes := encodeInsertedRow(t)
	payload := wal.EncodeMutation(wal.MutationPayload{Table: "t", PageID: uint32(pid), Slot: 0, RowID: 1, NewData: rowBytes})

	backend := &fakeBackend{records: []wal.Record{
		mkRecord(wal.BeginTxn, 1, nil),
		mkRecord(wal.Insert, 1, payload),
		mkRecord(wal.AbortTxn, 1, nil),
	}}

	txns := txn.New()
	if _, err := Run(pool, txns, backend); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := pool.FetchPage(pid)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	defer pool.UnpinPage(pid, false)
	if got.SlotCount() != 0 {
		t.Fatalf("SlotCount = %d, want 0 (aborted insert must not be redone)", got.SlotCount())
	}
}

// TestRunReconstructsCommittedUpdateAfterSkippedAbortedInsert covers a
// page whose physical slot numbering at crash time diverges from the
// WAL-recorded slot numbering: T1 inserts at recorded slot 0 then
// aborts (redo skips it, so the slot is never occupied), and T2 then
// inserts at recorded slot 1 and updates that same row before
// committing. Because T1's insert is skipped, T2's insert actually
// lands on physical slot 0 — the update must still find and apply to
// that row rather than trusting the stale recorded slot 1.
func TestRunReconstructsCommittedUpdateAfterSkippedAbortedInsert(t *testing.T) {
	pool := newTestPool(t)
	pid, pg, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	table.Init(pg, pid)
	pool.UnpinPage(pid, true)

	t1Insert := wal.EncodeMutation(wal.MutationPayload{
		Table: "t", PageID: uint32(pid), Slot: 0, RowID: 100,
		NewData: encodeRow(t, 100, 1, 1),
	})
	t2Insert := wal.EncodeMutation(wal.MutationPayload{
		Table: "t", PageID: uint32(pid), Slot: 1, RowID: 200,
		NewData: encodeRow(t, 200, 2, 2),
	})
	t2Update := wal.EncodeMutation(wal.MutationPayload{
		Table: "t", PageID: uint32(pid), Slot: 1, RowID: 200,
		NewData: encodeRow(t, 200, 2, 99),
	})

	backend := &fakeBackend{records: []wal.Record{
		mkRecord(wal.BeginTxn, 1, nil),
		mkRecord(wal.Insert, 1, t1Insert),
		mkRecord(wal.AbortTxn, 1, nil),
		mkRecord(wal.BeginTxn, 2, nil),
		mkRecord(wal.Insert, 2, t2Insert),
		mkRecord(wal.Update, 2, t2Update),
		mkRecord(wal.CommitTxn, 2, nil),
	}}

	txns := txn.New()
	if _, err := Run(pool, txns, backend); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := pool.FetchPage(pid)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	defer pool.UnpinPage(pid, false)
	if got.SlotCount() != 1 {
		t.Fatalf("SlotCount = %d, want 1 (only T2's row was ever redone)", got.SlotCount())
	}

	cols := []catalog.ColumnDef{{Name: "id", Type: types.Int64}}
	recs, err := table.GetAllRecords(got, cols)
	if err != nil {
		t.Fatalf("GetAllRecords: %v", err)
	}
	if len(recs) != 1 || recs[0].Header.RowID != 200 || recs[0].Values[0] != int64(99) {
		t.Fatalf("recs = %+v, want rowId=200 carrying the committed update (99), not the stale insert value (2)", recs)
	}
}
