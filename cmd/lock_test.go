package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return dir
}

func TestAcquireLock(t *testing.T) {
	home := withTempHome(t)

	t.Run("WritesTaskInfo", func(t *testing.T) {
		lock, err := AcquireLock(TaskInfo{Command: "upload-data", Table: "network_rw.t_ibp_cons_rdc", File: "forecast.tsv"})
		if err != nil {
			t.Fatal(err)
		}
		defer lock.Release()

		path := GetLockFilePath("network_rw.t_ibp_cons_rdc")
		if filepath.Dir(path) != filepath.Join(home, ".oracle-etl", "locks") {
			t.Fatalf("unexpected lock location %s", path)
		}

		info, err := ReadTaskInfo(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.PID != os.Getpid() {
			t.Fatalf("expected PID %d, got %d", os.Getpid(), info.PID)
		}
		if info.File != "forecast.tsv" || info.Command != "upload-data" {
			t.Fatalf("unexpected task info %+v", info)
		}
	})

	t.Run("ReleaseRemovesFile", func(t *testing.T) {
		lock, err := AcquireLock(TaskInfo{Table: "t_release"})
		if err != nil {
			t.Fatal(err)
		}
		if err := lock.Release(); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(GetLockFilePath("t_release")); !os.IsNotExist(err) {
			t.Fatal("lock file should be removed")
		}
		if err := lock.Release(); err != nil {
			t.Fatalf("second release should be a no-op: %v", err)
		}
	})

	t.Run("RejectsLiveHolder", func(t *testing.T) {
		writeLockFile(t, "t_busy", TaskInfo{PID: os.Getppid(), StartTime: time.Now()})

		_, err := AcquireLock(TaskInfo{Table: "t_busy"})
		if !errors.Is(err, ErrLocked) {
			t.Fatalf("expected ErrLocked, got %v", err)
		}
	})

	t.Run("TakesOverStaleLock", func(t *testing.T) {
		writeLockFile(t, "t_stale", TaskInfo{PID: 999999999, StartTime: time.Now().Add(-time.Hour)})

		lock, err := AcquireLock(TaskInfo{Table: "t_stale"})
		if err != nil {
			t.Fatalf("stale lock should be taken over: %v", err)
		}
		defer lock.Release()

		info, err := ReadTaskInfo(GetLockFilePath("t_stale"))
		if err != nil {
			t.Fatal(err)
		}
		if info.PID != os.Getpid() {
			t.Fatalf("lock should now belong to this process, got %d", info.PID)
		}
	})

	t.Run("TakesOverCorruptLock", func(t *testing.T) {
		path := GetLockFilePath("t_corrupt")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
			t.Fatal(err)
		}

		lock, err := AcquireLock(TaskInfo{Table: "t_corrupt"})
		if err != nil {
			t.Fatalf("corrupt lock should be replaced: %v", err)
		}
		lock.Release()
	})
}

func writeLockFile(t *testing.T, table string, info TaskInfo) {
	t.Helper()
	info.Table = table
	path := GetLockFilePath(table)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !IsProcessRunning(os.Getpid()) {
		t.Fatal("current process should be running")
	}
	if IsProcessRunning(0) {
		t.Fatal("pid 0 should not be reported as running")
	}
	if IsProcessRunning(999999999) {
		t.Fatal("non-existent pid should not be running")
	}
}
