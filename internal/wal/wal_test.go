package wal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAssignsIncreasingLSNs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	lsn1, err := m.Append(Insert, 1, []byte("row one"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	lsn2, err := m.Append(Insert, 1, []byte("row two"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if lsn2 != lsn1+1 {
		t.Fatalf("lsn2 = %d, want %d", lsn2, lsn1+1)
	}
	if m.CurrentLSN() != lsn2 {
		t.Fatalf("CurrentLSN = %d, want %d", m.CurrentLSN(), lsn2)
	}
}

func TestReadAllReturnsRecordsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	m, _ := Open(path)
	defer m.Close()

	m.Append(Insert, 1, []byte("a"))
	m.Append(Update, 1, []byte("b"))
	m.Append(Delete, 1, []byte("c"))

	records, err := m.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	if records[0].Header.Type != Insert || records[1].Header.Type != Update || records[2].Header.Type != Delete {
		t.Fatalf("record types out of order: %+v", records)
	}
	if string(records[1].Data) != "b" {
		t.Fatalf("records[1].Data = %q, want %q", records[1].Data, "b")
	}
}

func TestCommitTransactionFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	m, _ := Open(path)
	defer m.Close()

	if _, err := m.CommitTransaction(1); err != nil {
		t.Fatalf("CommitTransaction: %v", err)
	}
	records, _ := m.ReadAll()
	if len(records) != 1 || records[0].Header.Type != CommitTxn {
		t.Fatalf("records = %+v, want a single CommitTxn", records)
	}
}

func TestReopenRestoresCurrentLSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	m, _ := Open(path)
	m.Append(Insert, 1, []byte("x"))
	lsn, _ := m.Append(Insert, 1, []byte("y"))
	m.Close()

	m2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m2.Close()
	if m2.CurrentLSN() != lsn {
		t.Fatalf("CurrentLSN after reopen = %d, want %d", m2.CurrentLSN(), lsn)
	}

	next, err := m2.Append(Insert, 1, []byte("z"))
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if next != lsn+1 {
		t.Fatalf("next lsn after reopen = %d, want %d", next, lsn+1)
	}
}

func TestScanStopsAtChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	m, _ := Open(path)
	m.Append(Insert, 1, []byte("good"))
	m.Close()

	raw, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	// Flip a byte inside the payload region to break the checksum.
	buf := make([]byte, 1)
	raw.ReadAt(buf, HeaderSize)
	buf[0] ^= 0xFF
	raw.WriteAt(buf, HeaderSize)
	raw.Close()

	m2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m2.Close()
	records, err := m2.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("len(records) = %d, want 0 after corrupting the only record", len(records))
	}
}
