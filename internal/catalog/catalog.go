// Package catalog implements the core's in-memory view of table and
// index definitions. Persistence of this data is explicitly external
// to the storage core (§1); this package only models the interface
// the engine consults on every operation.
package catalog

import (
	"fmt"
	"sync"

	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/types"
)

// ColumnDef describes one column of a table.
type ColumnDef struct {
	Name          string
	Type          types.DataType
	Length        int // for Char/VarChar/Binary; 0 otherwise
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
}

// IndexKind names the structure backing an IndexDef. Only btree is
// implemented by this core; hash and fulltext are recorded so the
// catalog shape matches §3 but are rejected by CreateIndex.
type IndexKind uint8

const (
	BTree IndexKind = iota
	Hash
	FullText
)

// IndexDef describes one index over a table.
type IndexDef struct {
	Name       string
	TableName  string
	Columns    []string
	Kind       IndexKind
	KeyType    types.DataType
	Unique     bool
	RootPageID page.ID
}

// TableDef is the catalog's record of one table: its columns, the
// head of its page chain, the next RowId to issue, and its indexes.
// It is mutated only through Catalog's methods, which hold the
// catalog lock for the duration of the mutation (§3, §5).
type TableDef struct {
	Name       string
	Columns    []ColumnDef
	FirstPage  page.ID
	NextRowID  uint64
	Indexes    []IndexDef
}

// ColumnIndex returns the position of a column by name, or -1.
func (t *TableDef) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

var (
	// ErrNotFound is returned for an unknown table or index.
	ErrNotFound = fmt.Errorf("catalog: not found")
	// ErrExists is returned when creating a table/index that already exists.
	ErrExists = fmt.Errorf("catalog: already exists")
)

// Catalog is a mutex-guarded map of table definitions. Catalog sits
// above every other subsystem mutex in the lock-ordering rule of §5:
// it must be released before BufferPool, Page, TransactionManager or
// WAL locks are acquired for a mutation.
type Catalog struct {
	mu     sync.Mutex
	tables map[string]*TableDef
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{tables: make(map[string]*TableDef)}
}

// CreateTable registers a new table definition with an empty page
// chain and RowId counter starting at 1.
func (c *Catalog) CreateTable(name string, columns []ColumnDef) (*TableDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; ok {
		return nil, fmt.Errorf("%w: table %q", ErrExists, name)
	}
	def := &TableDef{
		Name:      name,
		Columns:   append([]ColumnDef(nil), columns...),
		FirstPage: page.Invalid,
		NextRowID: 1,
	}
	c.tables[name] = def
	return def, nil
}

// RestoreTable registers a table definition recovered from the
// external catalog store (§6: "persistence format is external"),
// preserving its existing FirstPage, NextRowID and Indexes rather than
// starting a fresh empty chain.
func (c *Catalog) RestoreTable(def TableDef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[def.Name]; ok {
		return fmt.Errorf("%w: table %q", ErrExists, def.Name)
	}
	cp := def
	cp.Columns = append([]ColumnDef(nil), def.Columns...)
	cp.Indexes = append([]IndexDef(nil), def.Indexes...)
	c.tables[def.Name] = &cp
	return nil
}

// DropTable removes a table definition.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; !ok {
		return fmt.Errorf("%w: table %q", ErrNotFound, name)
	}
	delete(c.tables, name)
	return nil
}

// Table returns the definition for name.
func (c *Catalog) Table(name string) (*TableDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, name)
	}
	return def, nil
}

// ListTables returns every table name currently registered.
func (c *Catalog) ListTables() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.tables))
	for name := range c.tables {
		out = append(out, name)
	}
	return out
}

// SetFirstPage updates a table's head-of-chain page ID.
func (c *Catalog) SetFirstPage(table string, id page.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.tables[table]
	if !ok {
		return fmt.Errorf("%w: table %q", ErrNotFound, table)
	}
	def.FirstPage = id
	return nil
}

// NextRowID returns and increments the table's RowId counter.
func (c *Catalog) NextRowID(table string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.tables[table]
	if !ok {
		return 0, fmt.Errorf("%w: table %q", ErrNotFound, table)
	}
	id := def.NextRowID
	def.NextRowID++
	return id, nil
}

// CreateIndex appends an index definition to its table.
func (c *Catalog) CreateIndex(idx IndexDef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx.Kind != BTree {
		return fmt.Errorf("catalog: index %q: only btree indexes are supported", idx.Name)
	}
	def, ok := c.tables[idx.TableName]
	if !ok {
		return fmt.Errorf("%w: table %q", ErrNotFound, idx.TableName)
	}
	for _, existing := range def.Indexes {
		if existing.Name == idx.Name {
			return fmt.Errorf("%w: index %q", ErrExists, idx.Name)
		}
	}
	def.Indexes = append(def.Indexes, idx)
	return nil
}

// DropIndex removes an index by name from its table.
func (c *Catalog) DropIndex(table, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.tables[table]
	if !ok {
		return fmt.Errorf("%w: table %q", ErrNotFound, table)
	}
	for i, idx := range def.Indexes {
		if idx.Name == name {
			def.Indexes = append(def.Indexes[:i], def.Indexes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: index %q", ErrNotFound, name)
}

// Index returns an index definition by name.
func (c *Catalog) Index(table, name string) (*IndexDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, table)
	}
	for i := range def.Indexes {
		if def.Indexes[i].Name == name {
			return &def.Indexes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: index %q", ErrNotFound, name)
}

// SetIndexRoot updates an index's root page ID after the first
// insert creates it.
func (c *Catalog) SetIndexRoot(table, name string, root page.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.tables[table]
	if !ok {
		return fmt.Errorf("%w: table %q", ErrNotFound, table)
	}
	for i := range def.Indexes {
		if def.Indexes[i].Name == name {
			def.Indexes[i].RootPageID = root
			return nil
		}
	}
	return fmt.Errorf("%w: index %q", ErrNotFound, name)
}
