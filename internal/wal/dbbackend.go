package wal

import (
	"fmt"
	"sync"

	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/table"
)

// DBBackend is the second of the two interchangeable WAL backends
// described in §4.6: instead of an append-only file, records are
// packed into a page chain living inside the database file itself
// (standing in for the `sys_wal_logs`/`sys_wal_meta` system tables).
// Selection between this and the file Manager is fixed at
// database-creation time by the magic mode bits and cannot differ
// across restarts.
type DBBackend struct {
	mu         sync.Mutex
	pool       *buffer.Pool
	headPageID page.ID
	tailPageID page.ID
	currentLSN uint64
}

// OpenDBBackend attaches to an existing chain (headPageID != Invalid)
// or starts a fresh one, allocating its first page through pool.
func OpenDBBackend(pool *buffer.Pool, headPageID page.ID) (*DBBackend, error) {
	b := &DBBackend{pool: pool, headPageID: headPageID, tailPageID: headPageID}
	if headPageID == page.Invalid {
		id, pg, err := pool.NewPage()
		if err != nil {
			return nil, err
		}
		table.Init(pg, id) // reuse the slotted layout; records are opaque blobs
		if err := pool.UnpinPage(id, true); err != nil {
			return nil, err
		}
		b.headPageID = id
		b.tailPageID = id
		return b, nil
	}

	records, err := b.readAllLocked()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Header.LSN > b.currentLSN {
			b.currentLSN = r.Header.LSN
		}
	}
	id := headPageID
	for {
		pg, err := pool.FetchPage(id)
		if err != nil {
			return nil, err
		}
		next := pg.Header().NextPageID
		pool.UnpinPage(id, false)
		if next == page.Invalid {
			break
		}
		id = next
	}
	b.tailPageID = id
	return b, nil
}

// HeadPageID returns the root page of the WAL chain, to be persisted
// by the engine in the data file's header (disk.Manager.SetWALHeadPage)
// so recovery can find it again.
func (b *DBBackend) HeadPageID() page.ID { return b.headPageID }

// Append writes a record to the tail page of the chain, allocating a
// new tail page if the current one is full.
func (b *DBBackend) Append(typ RecordType, txnID uint64, data []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentLSN++
	rec := Record{Header: Header{Type: typ, DataSize: uint16(len(data)), TxnID: txnID, LSN: b.currentLSN}, Data: data}
	rec.Header.Checksum = rec.computeChecksum()
	encoded := rec.encode()

	pg, err := b.pool.FetchPage(b.tailPageID)
	if err != nil {
		return 0, err
	}
	if _, err := pg.Append(encoded); err == nil {
		b.pool.UnpinPage(b.tailPageID, true)
		return rec.Header.LSN, nil
	}
	b.pool.UnpinPage(b.tailPageID, false)

	newID, newPg, err := b.pool.NewPage()
	if err != nil {
		return 0, err
	}
	table.Init(newPg, newID)
	if _, err := newPg.Append(encoded); err != nil {
		b.pool.UnpinPage(newID, false)
		return 0, fmt.Errorf("wal: record too large for a fresh page")
	}
	newPg.SetLinks(page.Invalid, b.tailPageID)
	b.pool.UnpinPage(newID, true)

	oldTail, err := b.pool.FetchPage(b.tailPageID)
	if err != nil {
		return 0, err
	}
	oldTail.SetLinks(newID, oldTail.Header().PrevPageID)
	b.pool.UnpinPage(b.tailPageID, true)

	b.tailPageID = newID
	return rec.Header.LSN, nil
}

func (b *DBBackend) readAllLocked() ([]Record, error) {
	var out []Record
	id := b.headPageID
	for id != page.Invalid {
		pg, err := b.pool.FetchPage(id)
		if err != nil {
			return nil, err
		}
		n := pg.SlotCount()
		for i := uint16(0); i < n; i++ {
			raw, err := pg.Get(i)
			if err == page.ErrSlotEmpty {
				continue
			}
			if err != nil {
				b.pool.UnpinPage(id, false)
				return nil, err
			}
			h := decodeHeader(raw[:HeaderSize])
			data := append([]byte(nil), raw[HeaderSize:]...)
			rec := Record{Header: h, Data: data}
			if rec.computeChecksum() != h.Checksum {
				b.pool.UnpinPage(id, false)
				return out, nil
			}
			out = append(out, rec)
		}
		next := pg.Header().NextPageID
		b.pool.UnpinPage(id, false)
		id = next
	}
	return out, nil
}

// ReadAll returns every record in the chain, in LSN order.
func (b *DBBackend) ReadAll() ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readAllLocked()
}

// CurrentLSN returns the highest LSN assigned so far.
func (b *DBBackend) CurrentLSN() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLSN
}
