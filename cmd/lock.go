package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("another upload is already running for this table")

// TaskInfo describes the process holding a lock
type TaskInfo struct {
	PID        int       `json:"pid"`
	StartTime  time.Time `json:"start_time"`
	Command    string    `json:"command"`
	Table      string    `json:"table"`
	File       string    `json:"file,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// Lock is an exclusive per-table lock file.
type Lock struct {
	path string
}

// GetLockDir returns the directory holding lock files
func GetLockDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".oracle-etl", "locks")
}

// GetLockFilePath returns the lock file for a table
func GetLockFilePath(table string) string {
	name := strings.ToLower(strings.NewReplacer(".", "_", "/", "_").Replace(table))
	return filepath.Join(GetLockDir(), name+".lock")
}

// AcquireLock creates the lock file for table. A lock left behind by a
// process that no longer runs is taken over.
func AcquireLock(info TaskInfo) (*Lock, error) {
	path := GetLockFilePath(info.Table)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	info.PID = os.Getpid()
	info.StartTime = time.Now()
	info.LastUpdate = info.StartTime

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task info: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := f.Write(data)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		holder, rerr := ReadTaskInfo(path)
		if rerr == nil && IsProcessRunning(holder.PID) {
			return nil, fmt.Errorf("%w: pid %d since %s", ErrLocked, holder.PID, holder.StartTime.Format(time.RFC3339))
		}
		// Stale or unreadable lock
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}
	return nil, ErrLocked
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsProcessRunning checks if a process with given PID is running
// Works on both Unix and Windows systems
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix systems, we can send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// ReadTaskInfo reads the task information stored in a lock file
func ReadTaskInfo(path string) (*TaskInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var info TaskInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task info: %w", err)
	}

	return &info, nil
}
