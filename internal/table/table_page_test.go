package table

import (
	"testing"

	"github.com/sausheong/qindb/internal/catalog"
	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/types"
)

func testColumns() []catalog.ColumnDef {
	return []catalog.ColumnDef{
		{Name: "id", Type: types.Int64},
		{Name: "name", Type: types.VarChar, Nullable: true},
	}
}

func TestInsertAndGetAllRecords(t *testing.T) {
	p := page.New(1, page.TypeTable)
	Init(p, 1)

	cols := testColumns()
	slot, err := InsertRecord(p, cols, 1, []any{int64(7), "alice"}, 100)
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	recs, err := GetAllRecords(p, cols)
	if err != nil {
		t.Fatalf("GetAllRecords: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Header.RowID != 1 || rec.Header.Xmin != 100 || rec.Header.Xmax != 0 {
		t.Fatalf("header = %+v", rec.Header)
	}
	if rec.Values[0] != int64(7) || rec.Values[1] != "alice" {
		t.Fatalf("values = %+v", rec.Values)
	}

	hdr, err := GetRecordHeader(p, slot)
	if err != nil || hdr.RowID != 1 {
		t.Fatalf("GetRecordHeader = %+v, %v", hdr, err)
	}
}

func TestInsertNullValue(t *testing.T) {
	p := page.New(1, page.TypeTable)
	Init(p, 1)
	cols := testColumns()
	if _, err := InsertRecord(p, cols, 1, []any{int64(1), nil}, 1); err != nil {
		t.Fatalf("InsertRecord with null: %v", err)
	}
	recs, _ := GetAllRecords(p, cols)
	if recs[0].Values[1] != nil {
		t.Fatalf("Values[1] = %v, want nil", recs[0].Values[1])
	}
}

func TestInsertNotNullableRejectsNull(t *testing.T) {
	p := page.New(1, page.TypeTable)
	Init(p, 1)
	cols := testColumns()
	if _, err := InsertRecord(p, cols, 1, []any{nil, "x"}, 1); err == nil {
		t.Fatal("InsertRecord with null id should fail")
	}
}

func TestDeleteRecordSetsXmax(t *testing.T) {
	p := page.New(1, page.TypeTable)
	Init(p, 1)
	cols := testColumns()
	slot, _ := InsertRecord(p, cols, 1, []any{int64(1), "a"}, 10)

	if err := DeleteRecord(p, slot, 20); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	hdr, err := GetRecordHeader(p, slot)
	if err != nil {
		t.Fatalf("GetRecordHeader: %v", err)
	}
	if hdr.Xmax != 20 {
		t.Fatalf("Xmax = %d, want 20", hdr.Xmax)
	}
}

func TestUpdateRecordInPlace(t *testing.T) {
	p := page.New(1, page.TypeTable)
	Init(p, 1)
	cols := testColumns()
	slot, _ := InsertRecord(p, cols, 1, []any{int64(1), "aaaaaaaaaa"}, 10)

	ok, err := UpdateRecord(p, cols, slot, []any{int64(1), "short"}, 11)
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if !ok {
		t.Fatal("UpdateRecord should succeed in place for a shorter value")
	}

	recs, _ := GetAllRecords(p, cols)
	if recs[0].Values[1] != "short" {
		t.Fatalf("Values[1] = %v, want short", recs[0].Values[1])
	}
	if recs[0].Header.Xmin != 10 {
		t.Fatalf("Xmin changed on update: %d, want 10 preserved", recs[0].Header.Xmin)
	}
}

func TestUpdateRecordTooLargeFallsBack(t *testing.T) {
	p := page.New(1, page.TypeTable)
	Init(p, 1)
	cols := testColumns()
	slot, _ := InsertRecord(p, cols, 1, []any{int64(1), "x"}, 10)

	ok, err := UpdateRecord(p, cols, slot, []any{int64(1), "this value is much longer than the original"}, 11)
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if ok {
		t.Fatal("UpdateRecord should report false when the new value does not fit in place")
	}
}

func TestGetAllRecordsSkipsTombstones(t *testing.T) {
	p := page.New(1, page.TypeTable)
	Init(p, 1)
	cols := testColumns()
	InsertRecord(p, cols, 1, []any{int64(1), "a"}, 1)
	slot2, _ := InsertRecord(p, cols, 2, []any{int64(2), "b"}, 1)
	p.Tombstone(slot2)

	recs, err := GetAllRecords(p, cols)
	if err != nil {
		t.Fatalf("GetAllRecords: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1 after tombstone", len(recs))
	}
}

func TestRecordSizeMatchesInsertedLength(t *testing.T) {
	cols := testColumns()
	size, err := RecordSize(cols, []any{int64(1), "abc"})
	if err != nil {
		t.Fatalf("RecordSize: %v", err)
	}
	want := RecordHeaderSize + 1 + 8 + 1 + 2 + 3 // header + nullflag+int64 + nullflag+len+payload
	if size != want {
		t.Fatalf("RecordSize = %d, want %d", size, want)
	}
}
