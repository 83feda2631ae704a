// Package stats implements the StatisticsCollector of §4.10: sampled
// per-table and per-column statistics consumed by the (out-of-scope)
// optimizer. Grounded on original_source/include/qindb/statistics.h's
// ValueFrequency{value,count} shape; the teacher has no equivalent
// component (sausheong-mindb has no cost-based optimizer to feed).
package stats

import (
	"sort"

	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/catalog"
	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/table"
	"github.com/sausheong/qindb/internal/types"
)

// sampleLimit caps how many rows ANALYZE reads per table, per §4.10's
// "sampling up to 1000 rows" contract.
const sampleLimit = 1000

// ValueFrequency pairs a most-common-value with its observed count.
type ValueFrequency struct {
	Value any
	Count int
}

// ColumnStats holds the per-column estimates of §4.10.
type ColumnStats struct {
	Name           string
	DistinctEst    int
	NullCount      int
	Min, Max       any
	TopK           []ValueFrequency
}

// TableStats holds the per-table and per-column statistics collected
// for one table.
type TableStats struct {
	Table        string
	RowCount     int
	PageCount    int
	AvgRowSize   float64
	Columns      []ColumnStats
}

// Collector samples tables through the buffer pool and catalog.
type Collector struct {
	pool *buffer.Pool
	cat  *catalog.Catalog
}

// New creates a Collector.
func New(pool *buffer.Pool, cat *catalog.Catalog) *Collector {
	return &Collector{pool: pool, cat: cat}
}

// Analyze samples up to sampleLimit rows of tableName and returns its
// statistics. Persistence of the result is external, per §4.10.
func (c *Collector) Analyze(tableName string) (*TableStats, error) {
	def, err := c.cat.Table(tableName)
	if err != nil {
		return nil, err
	}

	ts := &TableStats{Table: tableName}
	colAccum := make([]columnAccumulator, len(def.Columns))
	for i, col := range def.Columns {
		colAccum[i] = newColumnAccumulator(col)
	}

	totalSize := 0
	id := def.FirstPage
	for id != page.Invalid && ts.RowCount < sampleLimit {
		pg, err := c.pool.FetchPage(id)
		if err != nil {
			return nil, err
		}
		ts.PageCount++

		recs, err := table.GetAllRecords(pg, def.Columns)
		if err != nil {
			c.pool.UnpinPage(id, false)
			return nil, err
		}
		for _, rec := range recs {
			if rec.Header.Xmax != 0 {
				continue // tombstoned, not live
			}
			if ts.RowCount >= sampleLimit {
				break
			}
			ts.RowCount++
			size, _ := table.RecordSize(def.Columns, rec.Values)
			totalSize += size
			for i, v := range rec.Values {
				colAccum[i].observe(v)
			}
		}

		next := pg.Header().NextPageID
		c.pool.UnpinPage(id, false)
		id = next
	}

	if ts.RowCount > 0 {
		ts.AvgRowSize = float64(totalSize) / float64(ts.RowCount)
	}
	ts.Columns = make([]ColumnStats, len(def.Columns))
	for i, col := range def.Columns {
		ts.Columns[i] = colAccum[i].result(col.Name)
	}
	return ts, nil
}

type columnAccumulator struct {
	colType   types.DataType
	seen      map[string]int // serialized value -> count, for distinct estimate and MCVs
	values    map[string]any
	nullCount int
	min, max  any
}

func newColumnAccumulator(col catalog.ColumnDef) columnAccumulator {
	return columnAccumulator{
		colType: col.Type,
		seen:    make(map[string]int),
		values:  make(map[string]any),
	}
}

func (a *columnAccumulator) observe(v any) {
	if v == nil {
		a.nullCount++
		return
	}
	enc, err := types.Serialize(v, a.colType)
	if err != nil {
		return
	}
	key := string(enc)
	a.seen[key]++
	a.values[key] = v

	if a.min == nil || types.Compare(v, a.min, a.colType) < 0 {
		a.min = v
	}
	if a.max == nil || types.Compare(v, a.max, a.colType) > 0 {
		a.max = v
	}
}

func (a *columnAccumulator) result(name string) ColumnStats {
	cs := ColumnStats{Name: name, DistinctEst: len(a.seen), NullCount: a.nullCount, Min: a.min, Max: a.max}
	freqs := make([]ValueFrequency, 0, len(a.seen))
	for key, count := range a.seen {
		freqs = append(freqs, ValueFrequency{Value: a.values[key], Count: count})
	}
	sort.Slice(freqs, func(i, j int) bool { return freqs[i].Count > freqs[j].Count })
	if len(freqs) > 10 {
		freqs = freqs[:10]
	}
	cs.TopK = freqs
	return cs
}
