package txn

import (
	"testing"

	"github.com/sausheong/qindb/internal/page"
)

func TestLockPageExclusiveExcludesOthers(t *testing.T) {
	m := New()
	t1 := m.Begin()
	t2 := m.Begin()

	if err := m.LockPage(t1, 5, Exclusive, 0); err != nil {
		t.Fatalf("LockPage t1: %v", err)
	}
	if err := m.LockPage(t2, 5, Exclusive, 50); err != ErrLockTimeout {
		t.Fatalf("LockPage t2 while t1 holds exclusive = %v, want ErrLockTimeout", err)
	}
}

func TestLockPageSharedSharedCompatible(t *testing.T) {
	m := New()
	t1 := m.Begin()
	t2 := m.Begin()

	if err := m.LockPage(t1, 5, Shared, 0); err != nil {
		t.Fatalf("LockPage t1 shared: %v", err)
	}
	if err := m.LockPage(t2, 5, Shared, 0); err != nil {
		t.Fatalf("LockPage t2 shared should succeed concurrently: %v", err)
	}
}

func TestLockUpgradeSoleHolder(t *testing.T) {
	m := New()
	t1 := m.Begin()
	if err := m.LockPage(t1, 5, Shared, 0); err != nil {
		t.Fatalf("LockPage shared: %v", err)
	}
	if err := m.LockPage(t1, 5, Exclusive, 0); err != nil {
		t.Fatalf("upgrade to exclusive as sole holder should succeed: %v", err)
	}
}

func TestLockUpgradeBlockedByOtherHolder(t *testing.T) {
	m := New()
	t1 := m.Begin()
	t2 := m.Begin()
	m.LockPage(t1, 5, Shared, 0)
	m.LockPage(t2, 5, Shared, 0)

	if err := m.LockPage(t1, 5, Exclusive, 50); err != ErrLockTimeout {
		t.Fatalf("upgrade with another shared holder present = %v, want ErrLockTimeout", err)
	}
}

func TestUnlockPageReleasesForOthers(t *testing.T) {
	m := New()
	t1 := m.Begin()
	t2 := m.Begin()
	m.LockPage(t1, 5, Exclusive, 0)
	m.UnlockPage(t1, 5)

	if err := m.LockPage(t2, 5, Exclusive, 0); err != nil {
		t.Fatalf("LockPage after UnlockPage should succeed: %v", err)
	}
}

func TestFinishReleasesAllLocks(t *testing.T) {
	m := New()
	t1 := m.Begin()
	t2 := m.Begin()
	m.LockPage(t1, page.ID(1), Exclusive, 0)
	m.LockPage(t1, page.ID(2), Exclusive, 0)

	if err := m.Commit(t1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := m.LockPage(t2, page.ID(1), Exclusive, 0); err != nil {
		t.Fatalf("LockPage after owner committed should succeed: %v", err)
	}
	if err := m.LockPage(t2, page.ID(2), Exclusive, 0); err != nil {
		t.Fatalf("LockPage after owner committed should succeed: %v", err)
	}
}
