package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

func TestTextOnlyHandler(t *testing.T) {
	var buf bytes.Buffer
	h := newTextOnlyHandler(&buf, nil)

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled by default")
	}

	rec := slog.NewRecord(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), slog.LevelInfo, "📤 Uploaded 3 rows", 0)
	rec.AddAttrs(slog.String("table", "t_ibp_cons_rdc"))
	if err := h.WithAttrs([]slog.Attr{slog.String("run_id", "x")}).Handle(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "2024-03-01 08:00:00 INFO 📤 Uploaded 3 rows\n" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	quietLogger(t)
	path := filepath.Join(t.TempDir(), "logs", "oracle_etl.log")

	closeLog := initLogger(false, "json", path)
	logger.Info("hello")
	logger.Debug("hidden")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one info line, got %q", data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["msg"] != "hello" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if id, _ := entry["run_id"].(string); len(id) != 36 {
		t.Fatalf("expected a uuid run_id, got %v", entry["run_id"])
	}
}

func runWrapped(t *testing.T, run func(context.Context, *Config) error) error {
	t.Helper()
	quietLogger(t)
	viper.Set("no_log_file", true)
	t.Cleanup(func() { viper.Set("no_log_file", false) })

	c := &cobra.Command{}
	c.SetContext(context.Background())
	return runCommand("Test", func(*Config) error { return nil }, run)(c, nil)
}

func TestRunCommand(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		called := false
		err := runWrapped(t, func(context.Context, *Config) error {
			called = true
			return nil
		})
		if err != nil || !called {
			t.Fatalf("expected the pipeline to run, err=%v", err)
		}
	})

	t.Run("ReturnsKindedError", func(t *testing.T) {
		err := runWrapped(t, func(context.Context, *Config) error {
			return etlerr.ErrTableNotFound
		})
		if etlerr.ExitCode(err) != etlerr.ExitTableNotFound {
			t.Fatalf("error kind should survive the wrapper, got %v", err)
		}
	})

	t.Run("RecoversPanic", func(t *testing.T) {
		err := runWrapped(t, func(context.Context, *Config) error {
			panic("boom")
		})
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Fatalf("expected the panic as an error, got %v", err)
		}
	})

	t.Run("ValidationFailure", func(t *testing.T) {
		quietLogger(t)
		viper.Set("no_log_file", true)
		t.Cleanup(func() { viper.Set("no_log_file", false) })

		c := &cobra.Command{}
		c.SetContext(context.Background())
		called := false
		err := runCommand("Test", func(*Config) error { return ErrTableNameRequired }, func(context.Context, *Config) error {
			called = true
			return nil
		})(c, nil)
		if !errors.Is(err, ErrTableNameRequired) || called {
			t.Fatalf("invalid config must stop the pipeline, err=%v called=%v", err, called)
		}
	})
}

func TestResetStoredCredentials(t *testing.T) {
	quietLogger(t)
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"username":"etl","password":"pw"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := resetStoredCredentials(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("credentials file should be deleted")
	}
	if err := resetStoredCredentials(path); err != nil {
		t.Fatalf("resetting twice should not fail: %v", err)
	}
}

func TestConfigCommandRedacts(t *testing.T) {
	viper.Set("db.password", "hunter2")
	t.Cleanup(func() { viper.Set("db.password", "") })

	var buf bytes.Buffer
	configCmd.SetOut(&buf)
	t.Cleanup(func() { configCmd.SetOut(nil) })

	if err := configCmd.RunE(configCmd, nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("password leaked:\n%s", out)
	}
	if !strings.Contains(out, "table: t_ibp_cons_rdc") {
		t.Fatalf("expected the default upload table in:\n%s", out)
	}
}
