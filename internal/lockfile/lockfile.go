// Package lockfile guards a data directory against being opened by more
// than one server process at once, using an flock-based exclusive lock
// plus a human-readable PID/hostname/start-time record for diagnosing a
// stale lock left behind by a crashed process.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const lockFileName = ".lock"

// Lock represents an exclusive lock on a directory.
type Lock struct {
	path string
	file *os.File
}

// Acquire creates an exclusive lock on dataDir. It returns an error if
// another process already holds the lock.
func Acquire(dataDir string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lockPath := filepath.Join(dataDir, lockFileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()

		content, _ := os.ReadFile(lockPath)
		return nil, fmt.Errorf("data directory is locked by another process: %s\nLock info: %s",
			dataDir, string(content))
	}

	pid := os.Getpid()
	startTime := time.Now().Format(time.RFC3339)
	hostname, _ := os.Hostname()

	lockInfo := fmt.Sprintf("PID: %d\nHostname: %s\nStarted: %s\n", pid, hostname, startTime)

	if err := file.Truncate(0); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock info: %w", err)
	}
	if _, err := file.WriteAt([]byte(lockInfo), 0); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock info: %w", err)
	}
	if err := file.Sync(); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to sync lock file: %w", err)
	}

	return &Lock{path: lockPath, file: file}, nil
}

// Release removes the lock.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	l.file = nil
	return nil
}

// IsProcessAlive reports whether a process with the given PID is running.
func IsProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// ParseLockFile reads and parses an existing lock file, used to report
// which process holds a lock that Acquire failed to obtain.
func ParseLockFile(lockPath string) (pid int, hostname, startTime string, err error) {
	content, err := os.ReadFile(lockPath)
	if err != nil {
		return 0, "", "", err
	}

	for _, line := range strings.Split(string(content), "\n") {
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "PID":
			pid, _ = strconv.Atoi(parts[1])
		case "Hostname":
			hostname = parts[1]
		case "Started":
			startTime = parts[1]
		}
	}
	return pid, hostname, startTime, nil
}
