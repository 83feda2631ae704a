package bptree

import (
	"path/filepath"
	"testing"

	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/disk"
	"github.com/sausheong/qindb/internal/page"
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
	return buffer.New(d, 256)
}

func TestOpenEmptyTreeSearchMiss(t *testing.T) {
	pool := newTestPool(t)
	tree, err := Open(pool, page.Invalid, types.Int64, DefaultMaxKeys)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, found, err := tree.Search(int64(1))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if found {
		t.Fatal("Search on empty tree should not find anything")
	}
}

func TestInsertAndSearch(t *testing.T) {
	pool := newTestPool(t)
	tree, _ := Open(pool, page.Invalid, types.Int64, DefaultMaxKeys)

	if err := tree.Insert(int64(5), 500); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(int64(3), 300); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rid, found, err := tree.Search(int64(5))
	if err != nil || !found || rid != 500 {
		t.Fatalf("Search(5) = %d, %v, %v", rid, found, err)
	}
	_, found, _ = tree.Search(int64(99))
	if found {
		t.Fatal("Search(99) should not find a key that was never inserted")
	}
}

func TestInsertUpsertsExistingKey(t *testing.T) {
	pool := newTestPool(t)
	tree, _ := Open(pool, page.Invalid, types.Int64, DefaultMaxKeys)
	tree.Insert(int64(1), 100)
	tree.Insert(int64(1), 200)

	rid, found, err := tree.Search(int64(1))
	if err != nil || !found || rid != 200 {
		t.Fatalf("Search(1) after upsert = %d, %v, %v, want 200", rid, found, err)
	}
}

func TestInsertForcesSplitAndSearchStillWorks(t *testing.T) {
	pool := newTestPool(t)
	tree, err := Open(pool, page.Invalid, types.Int64, 4) // small fanout to force splits quickly
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const n = 200
	for i := 0; i < n; i++ {
		if err := tree.Insert(int64(i), uint64(i*10)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		rid, found, err := tree.Search(int64(i))
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		if !found || rid != uint64(i*10) {
			t.Fatalf("Search(%d) = %d, %v, want %d, true", i, rid, found, i*10)
		}
	}
}

func TestRangeScanOrderedAndBounded(t *testing.T) {
	pool := newTestPool(t)
	tree, _ := Open(pool, page.Invalid, types.Int64, 4)
	for i := 0; i < 50; i++ {
		tree.Insert(int64(i), uint64(i))
	}

	entries, err := tree.RangeScan(int64(10), int64(20))
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	if len(entries) != 11 {
		t.Fatalf("len(entries) = %d, want 11", len(entries))
	}
	for i, e := range entries {
		if e.RowID != uint64(10+i) {
			t.Fatalf("entries[%d].RowID = %d, want %d", i, e.RowID, 10+i)
		}
	}
}

func TestRangeScanLoGreaterThanHiIsEmpty(t *testing.T) {
	pool := newTestPool(t)
	tree, _ := Open(pool, page.Invalid, types.Int64, DefaultMaxKeys)
	tree.Insert(int64(1), 1)

	entries, err := tree.RangeScan(int64(10), int64(1))
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("len(entries) = %d, want 0", len(entries))
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	pool := newTestPool(t)
	tree, _ := Open(pool, page.Invalid, types.Int64, 4)
	for i := 0; i < 30; i++ {
		tree.Insert(int64(i), uint64(i))
	}

	if err := tree.Delete(int64(15)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := tree.Search(int64(15)); found {
		t.Fatal("Search(15) should fail after Delete")
	}
	// Surrounding keys should still be intact.
	if rid, found, _ := tree.Search(int64(14)); !found || rid != 14 {
		t.Fatalf("Search(14) after deleting 15 = %d, %v", rid, found)
	}
	if rid, found, _ := tree.Search(int64(16)); !found || rid != 16 {
		t.Fatalf("Search(16) after deleting 15 = %d, %v", rid, found)
	}
}

func TestReopenExistingTreeFromRoot(t *testing.T) {
	pool := newTestPool(t)
	tree, _ := Open(pool, page.Invalid, types.Int64, DefaultMaxKeys)
	tree.Insert(int64(1), 1)
	tree.Insert(int64(2), 2)
	root := tree.RootPageID()

	reopened, err := Open(pool, root, types.Int64, DefaultMaxKeys)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	rid, found, err := reopened.Search(int64(2))
	if err != nil || !found || rid != 2 {
		t.Fatalf("Search(2) on reopened tree = %d, %v, %v", rid, found, err)
	}
}
