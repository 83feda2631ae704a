// Package txn implements the TransactionManager: allocation of
// monotonically increasing TxnIds, transaction state tracking,
// page-level two-phase locking with timeout, and undo-based rollback.
package txn

import (
	"fmt"
	"sync"
	"time"

	"github.com/sausheong/qindb/internal/page"
)

// State is a transaction's position in its lifecycle.
type State uint8

const (
	Invalid State = iota
	Active
	Committed
	Aborted
)

// ID is a TxnId: 64-bit, monotonic from 1; 0 means invalid/visible-to-all.
type ID = uint64

// InvalidID is the sentinel meaning "no transaction" / visible-to-all.
const InvalidID ID = 0

// Op names the kind of mutation an UndoRecord reverses.
type Op uint8

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

// UndoRecord is created at the moment a WAL record is written and
// consumed in reverse order on rollback, per §3.
type UndoRecord struct {
	Op        Op
	Table     string
	PageID    page.ID
	Slot      uint16
	OldValues []any
	WALLsn    uint64
}

// Transaction is the in-memory record of one transaction's lifecycle,
// held locks and pending undo log.
type Transaction struct {
	ID        ID
	State     State
	StartTime int64
	lockedPages map[page.ID]struct{}
	undo      []UndoRecord
}

// Manager owns the transaction table and the page lock table behind a
// single mutex (§5).
type Manager struct {
	mu          sync.Mutex
	nextTxnID   ID
	transactions map[ID]*Transaction
	locks       map[page.ID]*pageLock
}

// New creates a TransactionManager with no active transactions.
func New() *Manager {
	return &Manager{
		nextTxnID:    1,
		transactions: make(map[ID]*Transaction),
		locks:        make(map[page.ID]*pageLock),
	}
}

// Begin starts a new transaction and returns its ID.
func (m *Manager) Begin() ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextTxnID
	m.nextTxnID++
	m.transactions[id] = &Transaction{
		ID:          id,
		State:       Active,
		StartTime:   time.Now().UnixMicro(),
		lockedPages: make(map[page.ID]struct{}),
	}
	return id
}

// RestoreNextID resyncs the ID counter after WAL-based recovery
// observes a higher TxnId than this manager has ever issued.
func (m *Manager) RestoreNextID(next ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if next > m.nextTxnID {
		m.nextTxnID = next
	}
}

// State reports a transaction's state. Per §4.7, an unknown TxnId is
// treated as committed: it existed, finished, and was purged.
func (m *Manager) State(id ID) State {
	if id == InvalidID {
		return Committed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return Committed
	}
	return t.State
}

func (m *Manager) get(id ID) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, fmt.Errorf("txn: unknown transaction %d", id)
	}
	return t, nil
}

// PushUndo appends an undo record to txn's log, consumed in reverse
// order if the transaction aborts.
func (m *Manager) PushUndo(id ID, rec UndoRecord) error {
	t, err := m.get(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	t.undo = append(t.undo, rec)
	m.mu.Unlock()
	return nil
}

// finish transitions a transaction to Committed or Aborted and releases
// every lock it held; its undo log stays until Purge drops the
// transaction. Callers must not reuse
// the same commit target twice; per §8, a second commit is an error.
func (m *Manager) finish(id ID, final State) (*Transaction, error) {
	m.mu.Lock()
	t, ok := m.transactions[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("txn: unknown transaction %d", id)
	}
	if t.State != Active {
		m.mu.Unlock()
		return nil, fmt.Errorf("txn: transaction %d is not active", id)
	}
	t.State = final
	for pid := range t.lockedPages {
		m.releaseLocked(id, pid)
	}
	t.lockedPages = nil
	m.mu.Unlock()
	return t, nil
}

// ActiveCount returns the number of currently active transactions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.transactions {
		if t.State == Active {
			n++
		}
	}
	return n
}

// Purge drops finished transactions from the table once their undo
// log is no longer needed, keeping the map bounded in a long-running
// process. Unknown IDs are already treated as committed by State, so
// purging is safe at any point after Finish returns.
func (m *Manager) Purge(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transactions, id)
}
