package txn

import (
	"errors"
	"time"

	"github.com/sausheong/qindb/internal/page"
)

// LockKind is a page-level lock's mode.
type LockKind uint8

const (
	Shared LockKind = iota
	Exclusive
)

// ErrLockTimeout is returned by LockPage when the lock could not be
// acquired within its timeout.
var ErrLockTimeout = errors.New("txn: lock timeout")

type pageLock struct {
	kind    LockKind
	holders map[ID]struct{}
}

func compatible(existing *pageLock, want LockKind) bool {
	if existing == nil || len(existing.holders) == 0 {
		return true
	}
	if existing.kind == Shared && want == Shared {
		return true
	}
	return false
}

// LockPage requests a page-level lock for txn. It blocks, retrying
// under the manager's mutex with a short sleep between attempts, up
// to timeoutMs (0 means wait forever), per §4.7. An upgrade from
// Shared to Exclusive is permitted iff the requester is the sole
// holder.
func (m *Manager) LockPage(id ID, pid page.ID, kind LockKind, timeoutMs int) error {
	deadline := time.Time{}
	if timeoutMs > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}

	for {
		m.mu.Lock()
		lk, ok := m.locks[pid]
		if !ok {
			m.locks[pid] = &pageLock{kind: kind, holders: map[ID]struct{}{id: {}}}
			m.grantLocked(id, pid)
			m.mu.Unlock()
			return nil
		}
		if _, already := lk.holders[id]; already {
			if lk.kind == Exclusive || kind == Shared {
				m.mu.Unlock()
				return nil
			}
			// Upgrade S -> X permitted iff sole holder.
			if len(lk.holders) == 1 {
				lk.kind = Exclusive
				m.mu.Unlock()
				return nil
			}
			m.mu.Unlock()
		} else if compatible(lk, kind) {
			lk.holders[id] = struct{}{}
			m.grantLocked(id, pid)
			m.mu.Unlock()
			return nil
		} else {
			m.mu.Unlock()
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// grantLocked records that txn now holds a lock on pid. Callers must
// hold m.mu.
func (m *Manager) grantLocked(id ID, pid page.ID) {
	t, ok := m.transactions[id]
	if !ok {
		return
	}
	if t.lockedPages == nil {
		t.lockedPages = make(map[page.ID]struct{})
	}
	t.lockedPages[pid] = struct{}{}
}

// releaseLocked drops txn's hold on pid. Callers must hold m.mu.
func (m *Manager) releaseLocked(id ID, pid page.ID) {
	lk, ok := m.locks[pid]
	if !ok {
		return
	}
	delete(lk.holders, id)
	if len(lk.holders) == 0 {
		delete(m.locks, pid)
	}
}

// UnlockPage releases txn's lock on pid outside of commit/abort (used
// when a reader is done with a page mid-transaction).
func (m *Manager) UnlockPage(id ID, pid page.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(id, pid)
	if t, ok := m.transactions[id]; ok {
		delete(t.lockedPages, pid)
	}
}
