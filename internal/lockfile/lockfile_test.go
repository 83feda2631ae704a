package lockfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquire(t *testing.T) {
	tmpDir := t.TempDir()

	lock, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(tmpDir, lockFileName)
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		t.Error("Lock file does not exist")
	}

	content, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	if len(content) == 0 {
		t.Error("Lock file is empty")
	}
}

func TestAcquire_AlreadyLocked(t *testing.T) {
	tmpDir := t.TempDir()

	lock1, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := Acquire(tmpDir)
	if err == nil {
		lock2.Release()
		t.Error("Expected error when acquiring already-locked directory")
	}
}

func TestRelease(t *testing.T) {
	tmpDir := t.TempDir()

	lock, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}

	lockPath := filepath.Join(tmpDir, lockFileName)
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Lock file still exists after release")
	}

	lock2, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock after release: %v", err)
	}
	defer lock2.Release()
}

func TestParseLockFile(t *testing.T) {
	tmpDir := t.TempDir()

	lock, err := Acquire(tmpDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(tmpDir, lockFileName)
	pid, hostname, startTime, err := ParseLockFile(lockPath)
	if err != nil {
		t.Fatalf("Failed to parse lock file: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), pid)
	}
	if hostname == "" {
		t.Error("Hostname is empty")
	}
	if startTime == "" {
		t.Error("Start time is empty")
	}
}

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Error("Current process should be alive")
	}
	if IsProcessAlive(99999) {
		t.Error("PID 99999 should not exist")
	}
}
