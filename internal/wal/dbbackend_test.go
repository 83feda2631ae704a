package wal

import (
	"path/filepath"
	"testing"

	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/disk"
	"github.com/sausheong/qindb/internal/page"
)

func newTestPool(t *testing.T) *buffer.Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.qdb")
	d, _, _, err := disk.Open(path, false, false)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return buffer.New(d, 32)
}

func TestOpenDBBackendFreshChain(t *testing.T) {
	pool := newTestPool(t)
	b, err := OpenDBBackend(pool, page.Invalid)
	if err != nil {
		t.Fatalf("OpenDBBackend: %v", err)
	}
	if b.HeadPageID() == page.Invalid {
		t.Fatal("fresh chain should allocate a head page")
	}
}

func TestDBBackendAppendAndReadAll(t *testing.T) {
	pool := newTestPool(t)
	b, err := OpenDBBackend(pool, page.Invalid)
	if err != nil {
		t.Fatalf("OpenDBBackend: %v", err)
	}

	lsn1, err := b.Append(Insert, 1, []byte("first"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	lsn2, err := b.Append(Update, 1, []byte("second"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if lsn2 != lsn1+1 {
		t.Fatalf("lsn2 = %d, want %d", lsn2, lsn1+1)
	}

	records, err := b.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if string(records[0].Data) != "first" || string(records[1].Data) != "second" {
		t.Fatalf("records = %+v", records)
	}
}

func TestDBBackendReopenFromHeadPage(t *testing.T) {
	pool := newTestPool(t)
	b, _ := OpenDBBackend(pool, page.Invalid)
	b.Append(Insert, 1, []byte("persisted"))
	head := b.HeadPageID()

	b2, err := OpenDBBackend(pool, head)
	if err != nil {
		t.Fatalf("reopen OpenDBBackend: %v", err)
	}
	records, err := b2.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 1 || string(records[0].Data) != "persisted" {
		t.Fatalf("records after reopen = %+v", records)
	}
	if b2.CurrentLSN() != b.CurrentLSN() {
		t.Fatalf("CurrentLSN after reopen = %d, want %d", b2.CurrentLSN(), b.CurrentLSN())
	}
}

func TestDBBackendSpillsToNewPageWhenFull(t *testing.T) {
	pool := newTestPool(t)
	b, _ := OpenDBBackend(pool, page.Invalid)
	firstTail := b.tailPageID

	big := make([]byte, 4000)
	for i := 0; i < 5; i++ {
		if _, err := b.Append(Insert, 1, big); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if b.tailPageID == firstTail {
		t.Fatal("tail page should have rolled over after filling the first page")
	}

	records, err := b.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("len(records) = %d, want 5", len(records))
	}
}
