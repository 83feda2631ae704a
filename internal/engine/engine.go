// Package engine assembles DiskManager, BufferPool, Catalog, TablePage,
// GenericBPlusTree, WAL and TransactionManager behind the single
// operations surface of §6. Grounded on the teacher's
// paged_storage.go PagedEngine: the same fetch → mutate → WAL-append
// → unpin discipline, generalized with MVCC visibility and locking
// paged_storage.go never had to implement.
package engine

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/bptree"
	"github.com/sausheong/qindb/internal/catalog"
	"github.com/sausheong/qindb/internal/config"
	"github.com/sausheong/qindb/internal/disk"
	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/recovery"
	"github.com/sausheong/qindb/internal/stats"
	"github.com/sausheong/qindb/internal/table"
	"github.com/sausheong/qindb/internal/txn"
	"github.com/sausheong/qindb/internal/types"
	"github.com/sausheong/qindb/internal/vacuum"
	"github.com/sausheong/qindb/internal/wal"
)

// Row is one visible tuple returned by ScanTable.
type Row struct {
	RowID  uint64
	Values []any
}

type location struct {
	PageID page.ID
	Slot   uint16
}

// Engine is the storage core's single entry point, implementing the
// operations surface of §6.
type Engine struct {
	mu sync.RWMutex

	disk  *disk.Manager
	pool  *buffer.Pool
	cat   *catalog.Catalog
	txns  *txn.Manager
	walFB *wal.Manager   // set when WAL mode is "file"
	walDB *wal.DBBackend // set when WAL mode is "db"
	vac   *vacuum.Worker
	stat  *stats.Collector
	log   zerolog.Logger

	rowIndex map[string]map[uint64]location // table -> rowId -> location
	indexes  map[string]*bptree.Tree        // "table.index" -> tree
}

func walAppender(f *wal.Manager, d *wal.DBBackend) func(typ wal.RecordType, txnID uint64, data []byte) (uint64, error) {
	if f != nil {
		return f.Append
	}
	return d.Append
}

// Open opens (or creates) the database at cfg.DataDir, runs crash
// recovery, and returns a ready Engine. A nil logger disables logging.
func Open(cfg *config.Config, log *zerolog.Logger) (*Engine, error) {
	dbPath := filepath.Join(cfg.DataDir, "qindb.db")
	walInDB := cfg.WALMode == config.ModeDB
	catInDB := cfg.CatalogMode == config.ModeDB

	dm, gotWAL, _, err := disk.Open(dbPath, walInDB, catInDB)
	if err != nil {
		return nil, fmt.Errorf("engine: open data file: %w", err)
	}

	pool := buffer.New(dm, cfg.BufferPoolPages)
	cat := catalog.New()
	txns := txn.New()

	e := &Engine{
		disk:     dm,
		pool:     pool,
		cat:      cat,
		txns:     txns,
		rowIndex: make(map[string]map[uint64]location),
		indexes:  make(map[string]*bptree.Tree),
	}
	if log != nil {
		e.log = *log
	} else {
		e.log = zerolog.Nop()
	}

	var backend recovery.Backend
	if gotWAL {
		root, err := dm.WALHeadPage()
		if err != nil {
			return nil, fmt.Errorf("engine: read wal head page: %w", err)
		}
		db, err := wal.OpenDBBackend(pool, root)
		if err != nil {
			return nil, fmt.Errorf("engine: open db wal backend: %w", err)
		}
		if root == page.Invalid {
			if err := dm.SetWALHeadPage(db.HeadPageID()); err != nil {
				return nil, fmt.Errorf("engine: persist wal head page: %w", err)
			}
		}
		e.walDB = db
		backend = db
	} else {
		walPath := filepath.Join(cfg.DataDir, "qindb.wal")
		fm, err := wal.Open(walPath)
		if err != nil {
			return nil, fmt.Errorf("engine: open wal: %w", err)
		}
		e.walFB = fm
		backend = fm
	}

	if _, err := recovery.Run(pool, txns, backend); err != nil {
		return nil, fmt.Errorf("engine: recovery: %w", err)
	}

	e.vac = vacuum.New(pool, cat, txns, log)
	e.stat = stats.New(pool, cat)
	return e, nil
}

func (e *Engine) appendWAL(typ wal.RecordType, txnID uint64, data []byte) (uint64, error) {
	return walAppender(e.walFB, e.walDB)(typ, txnID, data)
}

// Close flushes the buffer pool, the WAL and the data file.
func (e *Engine) Close() error {
	e.vac.Stop()
	if err := e.pool.FlushAll(); err != nil {
		return err
	}
	if e.walFB != nil {
		if err := e.walFB.Close(); err != nil {
			return err
		}
	}
	return e.disk.Close()
}

// CreateTable registers a new table definition with an empty page chain.
func (e *Engine) CreateTable(name string, columns []catalog.ColumnDef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.cat.CreateTable(name, columns); err != nil {
		return err
	}
	e.rowIndex[name] = make(map[uint64]location)
	return nil
}

// AttachTable registers a table definition recovered from the external
// catalog store, rebuilding the in-memory rowId index by scanning its
// page chain and reopening each of its B+ tree indexes at their stored
// root page. Grounded on original_source/include/qindb/row_id_index.h's
// startup rebuild-by-scan design, since this core does not persist the
// catalog or the rowId index itself (§6).
func (e *Engine) AttachTable(def catalog.TableDef) error {
	e.mu.Lock()
	if err := e.cat.RestoreTable(def); err != nil {
		e.mu.Unlock()
		return err
	}
	idx := make(map[uint64]location)
	e.rowIndex[def.Name] = idx
	e.mu.Unlock()

	id := def.FirstPage
	for id != page.Invalid {
		pg, err := e.pool.FetchPage(id)
		if err != nil {
			return err
		}
		recs, err := table.GetAllRecordsWithSlots(pg, def.Columns)
		if err != nil {
			e.pool.UnpinPage(id, false)
			return err
		}
		for _, r := range recs {
			idx[r.Header.RowID] = location{PageID: id, Slot: r.Slot}
		}
		next := pg.Header().NextPageID
		e.pool.UnpinPage(id, false)
		id = next
	}

	for _, ix := range def.Indexes {
		tree, err := bptree.Open(e.pool, ix.RootPageID, ix.KeyType, bptree.DefaultMaxKeys)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.indexes[def.Name+"."+ix.Name] = tree
		e.mu.Unlock()
	}
	return nil
}

// DropTable removes a table's catalog entry. Its pages are not
// reclaimed, matching DiskManager's documented no-reuse limitation.
func (e *Engine) DropTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cat.DropTable(name); err != nil {
		return err
	}
	delete(e.rowIndex, name)
	return nil
}

// TableDef returns name's catalog definition, for callers (such as the
// JSON API) that need to validate or coerce row values against a
// table's column types before calling InsertTuple/UpdateTuple.
func (e *Engine) TableDef(name string) (*catalog.TableDef, error) {
	return e.cat.Table(name)
}

// IndexKeyType returns the key type of indexName on tableName, for
// callers that need to coerce a raw lookup key before IndexSearch or
// IndexRange.
func (e *Engine) IndexKeyType(tableName, indexName string) (types.DataType, error) {
	idx, err := e.cat.Index(tableName, indexName)
	if err != nil {
		return types.Invalid, err
	}
	return idx.KeyType, nil
}

// Begin starts a new transaction.
func (e *Engine) Begin() txn.ID {
	id := e.txns.Begin()
	if _, err := e.appendWAL(wal.BeginTxn, id, nil); err != nil {
		e.log.Warn().Err(err).Uint64("txn", id).Msg("failed to log transaction start")
	}
	return id
}

// Commit flushes the transaction's commit record before acknowledging,
// the durability boundary of §4.6, then releases its locks.
func (e *Engine) Commit(id txn.ID) error {
	if _, err := e.appendWAL(wal.CommitTxn, id, nil); err != nil {
		return err
	}
	if e.walFB != nil {
		if err := e.walFB.Flush(); err != nil {
			return err
		}
	}
	if err := e.txns.Commit(id); err != nil {
		return err
	}
	e.txns.Purge(id)
	return nil
}

// Abort reverses id's undo log and releases its locks.
func (e *Engine) Abort(id txn.ID) error {
	if _, err := e.appendWAL(wal.AbortTxn, id, nil); err != nil {
		e.log.Warn().Err(err).Uint64("txn", id).Msg("failed to log transaction abort")
	}
	if err := e.txns.Abort(id, e.pool, e.cat); err != nil {
		return err
	}
	e.txns.Purge(id)
	return nil
}

// InsertTuple appends values to tableName's page chain (allocating a
// new page on OutOfSpace), logs the insert, and records an undo entry.
func (e *Engine) InsertTuple(tableName string, values []any, txnID txn.ID) (uint64, error) {
	def, err := e.cat.Table(tableName)
	if err != nil {
		return 0, err
	}
	rowID, err := e.cat.NextRowID(tableName)
	if err != nil {
		return 0, err
	}
	if err := e.placeRecord(tableName, def, rowID, values, txnID); err != nil {
		return 0, err
	}
	return rowID, nil
}

// placeRecord walks tableName's page chain starting from its head,
// allocating and linking a new tail page on OutOfSpace (§7's documented
// local recovery for insertRecord), writes the insert's WAL record and
// undo entry, and records rowID's new location in the row index.
func (e *Engine) placeRecord(tableName string, def *catalog.TableDef, rowID uint64, values []any, txnID txn.ID) error {
	pageID := def.FirstPage
	if pageID == page.Invalid {
		id, pg, err := e.pool.NewPage()
		if err != nil {
			return err
		}
		table.Init(pg, id)
		if err := e.pool.UnpinPage(id, true); err != nil {
			return err
		}
		if err := e.cat.SetFirstPage(tableName, id); err != nil {
			return err
		}
		pageID = id
	}

	var slot uint16
	for {
		if err := e.txns.LockPage(txnID, pageID, txn.Exclusive, 0); err != nil {
			return err
		}
		pg, err := e.pool.FetchPage(pageID)
		if err != nil {
			e.txns.UnlockPage(txnID, pageID)
			return err
		}
		s, err := table.InsertRecord(pg, def.Columns, rowID, values, uint64(txnID))
		if err == page.ErrOutOfSpace {
			next := pg.Header().NextPageID
			e.pool.UnpinPage(pageID, false)
			e.txns.UnlockPage(txnID, pageID)
			if next == page.Invalid {
				id, npg, err := e.pool.NewPage()
				if err != nil {
					return err
				}
				table.Init(npg, id)
				npg.SetLinks(page.Invalid, pageID)
				e.pool.UnpinPage(id, true)

				linkPg, err := e.pool.FetchPage(pageID)
				if err != nil {
					return err
				}
				linkPg.SetLinks(id, linkPg.Header().PrevPageID)
				e.pool.UnpinPage(pageID, true)
				next = id
			}
			pageID = next
			continue
		}
		if err != nil {
			e.pool.UnpinPage(pageID, false)
			e.txns.UnlockPage(txnID, pageID)
			return err
		}
		slot = s
		e.pool.UnpinPage(pageID, true)
		e.txns.UnlockPage(txnID, pageID)
		break
	}

	payload := wal.EncodeMutation(wal.MutationPayload{
		Table: tableName, PageID: uint32(pageID), Slot: slot, RowID: rowID,
		NewData: encodeRecordForWAL(def.Columns, rowID, uint64(txnID), 0, values),
	})
	if _, err := e.appendWAL(wal.Insert, uint64(txnID), payload); err != nil {
		return err
	}
	if err := e.txns.PushUndo(txnID, txn.UndoRecord{Op: txn.OpInsert, Table: tableName, PageID: pageID, Slot: slot}); err != nil {
		return err
	}

	e.mu.Lock()
	e.rowIndex[tableName][rowID] = location{PageID: pageID, Slot: slot}
	e.mu.Unlock()
	return nil
}

// ScanTable returns every tuple visible to txnID, per the
// VisibilityChecker rule of §4.8.
func (e *Engine) ScanTable(tableName string, txnID txn.ID) ([]Row, error) {
	def, err := e.cat.Table(tableName)
	if err != nil {
		return nil, err
	}
	var out []Row
	id := def.FirstPage
	for id != page.Invalid {
		pg, err := e.pool.FetchPage(id)
		if err != nil {
			return nil, err
		}
		recs, err := table.GetAllRecords(pg, def.Columns)
		if err != nil {
			e.pool.UnpinPage(id, false)
			return nil, err
		}
		for _, rec := range recs {
			h := txn.Header{Xmin: rec.Header.Xmin, Xmax: rec.Header.Xmax}
			if e.txns.IsVisible(h, txnID) {
				out = append(out, Row{RowID: rec.Header.RowID, Values: rec.Values})
			}
		}
		next := pg.Header().NextPageID
		e.pool.UnpinPage(id, false)
		id = next
	}
	return out, nil
}

func (e *Engine) locate(tableName string, rowID uint64) (location, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	loc, ok := e.rowIndex[tableName][rowID]
	return loc, ok
}

// DeleteTuple logically deletes rowID by setting its xmax, per §4.3.
func (e *Engine) DeleteTuple(tableName string, rowID uint64, txnID txn.ID) error {
	loc, ok := e.locate(tableName, rowID)
	if !ok {
		return fmt.Errorf("engine: row %d not found in %q", rowID, tableName)
	}
	if err := e.txns.LockPage(txnID, loc.PageID, txn.Exclusive, 0); err != nil {
		return err
	}
	defer e.txns.UnlockPage(txnID, loc.PageID)

	pg, err := e.pool.FetchPage(loc.PageID)
	if err != nil {
		return err
	}
	if err := table.DeleteRecord(pg, loc.Slot, uint64(txnID)); err != nil {
		e.pool.UnpinPage(loc.PageID, false)
		return err
	}
	e.pool.UnpinPage(loc.PageID, true)

	payload := wal.EncodeMutation(wal.MutationPayload{Table: tableName, PageID: uint32(loc.PageID), Slot: loc.Slot, RowID: rowID})
	if _, err := e.appendWAL(wal.Delete, uint64(txnID), payload); err != nil {
		return err
	}
	return e.txns.PushUndo(txnID, txn.UndoRecord{Op: txn.OpDelete, Table: tableName, PageID: loc.PageID, Slot: loc.Slot})
}

// UpdateTuple attempts an in-place overwrite of rowID's values; when the
// new value is larger than what the slot holds, it falls back to
// delete-then-insert (possibly onto another page), per §4.3.
func (e *Engine) UpdateTuple(tableName string, rowID uint64, newValues []any, txnID txn.ID) error {
	def, err := e.cat.Table(tableName)
	if err != nil {
		return err
	}
	loc, ok := e.locate(tableName, rowID)
	if !ok {
		return fmt.Errorf("engine: row %d not found in %q", rowID, tableName)
	}
	if err := e.txns.LockPage(txnID, loc.PageID, txn.Exclusive, 0); err != nil {
		return err
	}

	pg, err := e.pool.FetchPage(loc.PageID)
	if err != nil {
		e.txns.UnlockPage(txnID, loc.PageID)
		return err
	}
	old, err := table.GetRecordHeader(pg, loc.Slot)
	if err != nil {
		e.pool.UnpinPage(loc.PageID, false)
		e.txns.UnlockPage(txnID, loc.PageID)
		return err
	}
	oldRecs, err := table.GetAllRecords(pg, def.Columns)
	if err != nil {
		e.pool.UnpinPage(loc.PageID, false)
		e.txns.UnlockPage(txnID, loc.PageID)
		return err
	}
	var oldValues []any
	for _, r := range oldRecs {
		if r.Header.RowID == rowID {
			oldValues = r.Values
			break
		}
	}

	fits, err := table.UpdateRecord(pg, def.Columns, loc.Slot, newValues, uint64(txnID))
	if err != nil {
		e.pool.UnpinPage(loc.PageID, false)
		e.txns.UnlockPage(txnID, loc.PageID)
		return err
	}
	if fits {
		e.pool.UnpinPage(loc.PageID, true)
		e.txns.UnlockPage(txnID, loc.PageID)
		payload := wal.EncodeMutation(wal.MutationPayload{
			Table: tableName, PageID: uint32(loc.PageID), Slot: loc.Slot, RowID: rowID,
			NewData: encodeRecordForWAL(def.Columns, rowID, old.Xmin, old.Xmax, newValues),
		})
		if _, err := e.appendWAL(wal.Update, uint64(txnID), payload); err != nil {
			return err
		}
		return e.txns.PushUndo(txnID, txn.UndoRecord{Op: txn.OpUpdate, Table: tableName, PageID: loc.PageID, Slot: loc.Slot, OldValues: oldValues})
	}

	// newValues does not fit in place: tombstone the old slot and
	// insert a fresh record elsewhere, keeping the same RowId.
	if err := table.DeleteRecord(pg, loc.Slot, uint64(txnID)); err != nil {
		e.pool.UnpinPage(loc.PageID, false)
		e.txns.UnlockPage(txnID, loc.PageID)
		return err
	}
	e.pool.UnpinPage(loc.PageID, true)
	e.txns.UnlockPage(txnID, loc.PageID)

	payload := wal.EncodeMutation(wal.MutationPayload{Table: tableName, PageID: uint32(loc.PageID), Slot: loc.Slot, RowID: rowID})
	if _, err := e.appendWAL(wal.Delete, uint64(txnID), payload); err != nil {
		return err
	}
	if err := e.txns.PushUndo(txnID, txn.UndoRecord{Op: txn.OpDelete, Table: tableName, PageID: loc.PageID, Slot: loc.Slot}); err != nil {
		return err
	}
	return e.placeRecord(tableName, def, rowID, newValues, txnID)
}

// CreateIndex builds an empty B+ tree index over one column.
func (e *Engine) CreateIndex(tableName, indexName, column string, unique bool) error {
	def, err := e.cat.Table(tableName)
	if err != nil {
		return err
	}
	ci := def.ColumnIndex(column)
	if ci < 0 {
		return fmt.Errorf("engine: column %q not found in %q", column, tableName)
	}
	keyType := def.Columns[ci].Type

	tree, err := bptree.Open(e.pool, page.Invalid, keyType, bptree.DefaultMaxKeys)
	if err != nil {
		return err
	}
	if err := e.cat.CreateIndex(catalog.IndexDef{
		Name: indexName, TableName: tableName, Columns: []string{column},
		Kind: catalog.BTree, KeyType: keyType, Unique: unique, RootPageID: tree.RootPageID(),
	}); err != nil {
		return err
	}

	rows, err := e.ScanTable(tableName, 0)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := tree.Insert(row.Values[ci], row.RowID); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.indexes[tableName+"."+indexName] = tree
	e.mu.Unlock()
	return e.cat.SetIndexRoot(tableName, indexName, tree.RootPageID())
}

// DropIndex removes an index's catalog entry. Its pages are not
// reclaimed, matching the rest of this core's no-page-reuse policy.
func (e *Engine) DropIndex(tableName, indexName string) error {
	e.mu.Lock()
	delete(e.indexes, tableName+"."+indexName)
	e.mu.Unlock()
	return e.cat.DropIndex(tableName, indexName)
}

func (e *Engine) tree(tableName, indexName string) (*bptree.Tree, error) {
	e.mu.RLock()
	t, ok := e.indexes[tableName+"."+indexName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: index %q.%q is not open", tableName, indexName)
	}
	return t, nil
}

// IndexSearch looks up key in indexName, returning its RowId if present.
func (e *Engine) IndexSearch(tableName, indexName string, key any) (uint64, bool, error) {
	t, err := e.tree(tableName, indexName)
	if err != nil {
		return 0, false, err
	}
	return t.Search(key)
}

// IndexRange returns every (key, rowId) entry in [lo, hi].
func (e *Engine) IndexRange(tableName, indexName string, lo, hi any) ([]bptree.Entry, error) {
	t, err := e.tree(tableName, indexName)
	if err != nil {
		return nil, err
	}
	return t.RangeScan(lo, hi)
}

// Vacuum reclaims dead-tuple slot space for one table, or every table
// when tableName is empty.
func (e *Engine) Vacuum(tableName string) (map[string]vacuum.Stats, error) {
	if tableName == "" {
		return e.vac.VacuumAll()
	}
	s, err := e.vac.VacuumTable(tableName)
	if err != nil {
		return nil, err
	}
	return map[string]vacuum.Stats{tableName: s}, nil
}

// Analyze samples one table, or every table when tableName is empty,
// for the optimizer-facing statistics of §4.10.
func (e *Engine) Analyze(tableName string) (map[string]*stats.TableStats, error) {
	out := make(map[string]*stats.TableStats)
	names := []string{tableName}
	if tableName == "" {
		names = e.cat.ListTables()
	}
	for _, n := range names {
		s, err := e.stat.Analyze(n)
		if err != nil {
			return nil, err
		}
		out[n] = s
	}
	return out, nil
}

// encodeRecordForWAL re-serializes a tuple exactly as TablePage does,
// so the WAL payload's NewData can be written back verbatim at redo.
func encodeRecordForWAL(cols []catalog.ColumnDef, rowID, xmin, xmax uint64, values []any) []byte {
	scratch := &page.Page{}
	table.Init(scratch, 1)
	slot, err := table.InsertRecord(scratch, cols, rowID, values, xmin)
	if err != nil {
		return nil
	}
	if xmax != 0 {
		table.SetXmax(scratch, slot, xmax)
	}
	raw, _ := scratch.Get(slot)
	return raw
}
