// Package vacuum implements the background sweep of §4.9: reclaiming
// slot space for tuples whose xmax is committed, walking each table's
// page chain through the buffer pool. Grounded on the teacher's
// src/core/vacuum.go VacuumManager (scan-pages-and-zero-dead-slots
// shape) and original_source/include/qindb/vacuum.h for the per-slot
// reclaim predicate.
package vacuum

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sausheong/qindb/internal/buffer"
	"github.com/sausheong/qindb/internal/catalog"
	"github.com/sausheong/qindb/internal/page"
	"github.com/sausheong/qindb/internal/table"
	"github.com/sausheong/qindb/internal/txn"
)

// Stats summarizes one vacuum pass over a table.
type Stats struct {
	PagesScanned  int
	SlotsScanned  int
	SlotsReclaimed int
}

// Worker runs VacuumTable on demand or on a fixed interval. It holds
// no state of its own beyond the collaborators it sweeps through,
// matching the teacher's stateless-manager-over-shared-services shape.
type Worker struct {
	pool *buffer.Pool
	cat  *catalog.Catalog
	txns *txn.Manager
	log  zerolog.Logger

	mu       sync.Mutex
	interval time.Duration
	stop     chan struct{}
}

// New creates a Worker. A nil logger disables logging.
func New(pool *buffer.Pool, cat *catalog.Catalog, txns *txn.Manager, log *zerolog.Logger) *Worker {
	w := &Worker{pool: pool, cat: cat, txns: txns, interval: 60 * time.Second}
	if log != nil {
		w.log = *log
	} else {
		w.log = zerolog.Nop()
	}
	return w
}

// VacuumTable walks tableName's page chain and, on every slot where
// xmax != 0 and xmax is committed, zeroes the slot length. The "no
// live transaction can still observe the tuple" condition of §4.9 is
// approximated as "xmax committed", per the documented limitation:
// this core tracks no oldest-snapshot horizon.
func (w *Worker) VacuumTable(tableName string) (Stats, error) {
	var s Stats
	def, err := w.cat.Table(tableName)
	if err != nil {
		return s, err
	}

	id := def.FirstPage
	for id != page.Invalid {
		pg, err := w.pool.FetchPage(id)
		if err != nil {
			return s, err
		}
		s.PagesScanned++

		n := pg.SlotCount()
		dirty := false
		for slot := uint16(0); slot < n; slot++ {
			hdr, err := table.GetRecordHeader(pg, slot)
			if err == page.ErrSlotEmpty {
				continue
			}
			if err != nil {
				w.pool.UnpinPage(id, dirty)
				return s, err
			}
			s.SlotsScanned++
			if hdr.Xmax != 0 && w.txns.State(txn.ID(hdr.Xmax)) == txn.Committed {
				if err := pg.Tombstone(slot); err != nil {
					w.pool.UnpinPage(id, dirty)
					return s, err
				}
				dirty = true
				s.SlotsReclaimed++
			}
		}

		next := pg.Header().NextPageID
		w.pool.UnpinPage(id, dirty)
		id = next
	}

	w.log.Info().Str("table", tableName).Int("scanned", s.SlotsScanned).
		Int("reclaimed", s.SlotsReclaimed).Msg("vacuum complete")
	return s, nil
}

// VacuumAll runs VacuumTable over every table in the catalog.
func (w *Worker) VacuumAll() (map[string]Stats, error) {
	out := make(map[string]Stats)
	for _, name := range w.cat.ListTables() {
		s, err := w.VacuumTable(name)
		if err != nil {
			return out, err
		}
		out[name] = s
	}
	return out, nil
}

// SetInterval changes the period used by Run's ticker.
func (w *Worker) SetInterval(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.interval = d
}

// Run starts a background ticker that calls VacuumAll until Stop is
// called, mirroring the teacher's ticker-driven background-worker
// pattern (cmd/mindb-server's semaphore/housekeeping goroutines).
func (w *Worker) Run() {
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		return
	}
	w.stop = make(chan struct{})
	interval := w.interval
	w.mu.Unlock()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := w.VacuumAll(); err != nil {
					w.log.Warn().Err(err).Msg("vacuum pass failed")
				}
			case <-w.stop:
				return
			}
		}
	}()
}

// Stop halts the background ticker started by Run.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
}
