package credentials

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// newTestLogger creates a logger for testing
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type scriptedPrompter struct {
	user, password string
	err            error
	calls          int
}

func (p *scriptedPrompter) PromptCredentials(context.Context) (string, string, error) {
	p.calls++
	return p.user, p.password, p.err
}

func TestFileStorePromptsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "credentials.json")
	prompter := &scriptedPrompter{user: "  JDoe ", password: " s3cret\n"}
	store := NewFileStore(path, prompter, newTestLogger())

	for i := 0; i < 2; i++ {
		user, password, err := store.Credentials(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if user != "jdoe" || password != "s3cret" {
			t.Fatalf("unexpected login %q / %q", user, password)
		}
	}
	if prompter.calls != 1 {
		t.Fatalf("expected one prompt, got %d", prompter.calls)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
}

func TestFileStoreErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("no prompter", func(t *testing.T) {
		store := NewFileStore(filepath.Join(dir, "missing.json"), nil, newTestLogger())
		if _, _, err := store.Credentials(context.Background()); !errors.Is(err, ErrNoPrompter) {
			t.Fatalf("expected ErrNoPrompter, got %v", err)
		}
	})

	t.Run("prompt cancelled", func(t *testing.T) {
		path := filepath.Join(dir, "cancelled.json")
		store := NewFileStore(path, &scriptedPrompter{err: context.Canceled}, newTestLogger())
		if _, _, err := store.Credentials(context.Background()); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatal("nothing should be saved")
		}
	})

	t.Run("blank answer", func(t *testing.T) {
		store := NewFileStore(filepath.Join(dir, "blank.json"), &scriptedPrompter{user: "  ", password: "x"}, newTestLogger())
		if _, _, err := store.Credentials(context.Background()); !errors.Is(err, ErrEmptyLogin) {
			t.Fatalf("expected ErrEmptyLogin, got %v", err)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(path, []byte("{username:"), 0o600); err != nil {
			t.Fatal(err)
		}
		store := NewFileStore(path, nil, newTestLogger())
		if _, _, err := store.Credentials(context.Background()); !errors.Is(err, ErrMalformedFile) {
			t.Fatalf("expected ErrMalformedFile, got %v", err)
		}
	})
}

func TestFileStoreReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path, nil, newTestLogger())

	removed, err := store.Reset()
	if err != nil || removed {
		t.Fatalf("reset of missing file: removed=%v err=%v", removed, err)
	}

	if err := store.Save(Credentials{Username: "ETL", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	c, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load after save: ok=%v err=%v", ok, err)
	}
	if c.Username != "etl" {
		t.Fatalf("expected normalized username, got %q", c.Username)
	}

	removed, err = store.Reset()
	if err != nil || !removed {
		t.Fatalf("reset: removed=%v err=%v", removed, err)
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatal("credentials should be gone")
	}
}

func TestStatic(t *testing.T) {
	tests := []struct {
		name    string
		static  Static
		wantErr bool
	}{
		{"complete", Static{Username: "etl", Password: "pw"}, false},
		{"no password", Static{Username: "etl"}, true},
		{"empty", Static{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, _, err := tt.static.Credentials(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Credentials() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && user != "etl" {
				t.Fatalf("unexpected user %q", user)
			}
		})
	}
}
