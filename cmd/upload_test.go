package cmd

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

const uploadHeader = "Validity_Date\tTimezone\tPart_ID\tProduct_ID\tProduct_Description\tLast_Submitted_Date\tLocation_ID\tKey_Figure\tPlanned_Month\tFINAL_CON_DEM\n"

func writeUploadFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(uploadHeader+strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadUploadFile(t *testing.T) {
	quietLogger(t)

	t.Run("MapsAndOrdersColumns", func(t *testing.T) {
		// Extra column first and a reordered header
		body := "Extra\tFINAL_CON_DEM\tValidity_Date\tTimezone\tPart_ID\tProduct_ID\tProduct_Description\tLast_Submitted_Date\tLocation_ID\tKey_Figure\tPlanned_Month\n" +
			"x\t12.5\t2024.03.01 00:00:00\tUTC\t0042\tPRD1\tWidget\t2024.02.28 10:00:00\tRDC1\tConsensus\t2024-04\n"
		path := filepath.Join(t.TempDir(), "forecast.tsv")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}

		ds, err := loadUploadFile(path, '\t')
		if err != nil {
			t.Fatal(err)
		}

		want := "validity_date,timezone,part_id,product_id,product_description,last_submitted_date,location_id,key_figure,planned_month,qty"
		if got := strings.Join(ds.Columns(), ","); got != want {
			t.Fatalf("unexpected columns %s", got)
		}
		if v, _ := ds.Value(0, "part_id"); v != "0042" {
			t.Fatalf("part id should keep leading zeros, got %#v", v)
		}
		if v, _ := ds.Value(0, "qty"); v != "12.5" {
			t.Fatalf("qty should stay text until the table types it, got %#v", v)
		}
		if v, _ := ds.Value(0, "validity_date"); v != "2024.03.01 00:00:00" {
			t.Fatalf("validity date should stay text until upload, got %#v", v)
		}
	})

	t.Run("MissingColumn", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "short.tsv")
		if err := os.WriteFile(path, []byte("Validity_Date\tPart_ID\n2024.03.01 00:00:00\tP1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := loadUploadFile(path, '\t'); !errors.Is(err, etlerr.ErrColumnNotFound) {
			t.Fatalf("expected ErrColumnNotFound, got %v", err)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := loadUploadFile(filepath.Join(t.TempDir(), "nope.tsv"), '\t'); err == nil {
			t.Fatal("expected error for a missing file")
		}
	})
}

type fakeSelector struct {
	path string
	err  error
}

func (f fakeSelector) SelectFile(context.Context) (string, error) {
	return f.path, f.err
}

func TestUploadPath(t *testing.T) {
	ctx := context.Background()

	if got, err := uploadPath(ctx, "given.tsv", fakeSelector{path: "picked.tsv"}); err != nil || got != "given.tsv" {
		t.Fatalf("configured file should win, got %q, %v", got, err)
	}
	if got, err := uploadPath(ctx, "", fakeSelector{path: "picked.tsv"}); err != nil || got != "picked.tsv" {
		t.Fatalf("expected the picked file, got %q, %v", got, err)
	}
	if _, err := uploadPath(ctx, "", nil); !errors.Is(err, ErrFileRequired) {
		t.Fatalf("expected ErrFileRequired, got %v", err)
	}
	cancelled := errors.New("selection cancelled")
	if _, err := uploadPath(ctx, "", fakeSelector{err: cancelled}); !errors.Is(err, cancelled) {
		t.Fatalf("expected selector error, got %v", err)
	}
}

func uploadSQLite(t *testing.T) (*Config, *sql.DB) {
	t.Helper()
	withTempHome(t)

	dbPath := filepath.Join(t.TempDir(), "planning.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE t_ibp_cons_rdc (
		validity_date TIMESTAMP, timezone TEXT, part_id TEXT, product_id TEXT,
		product_description TEXT, last_submitted_date TEXT, location_id TEXT,
		key_figure TEXT, planned_month TEXT, qty REAL)`)
	if err != nil {
		t.Fatal(err)
	}

	config := validConfig()
	config.Database = DatabaseConfig{Driver: "sqlite", Name: dbPath, User: "etl", Password: "etl"}
	config.Upload.Schema = ""
	return config, db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t_ibp_cons_rdc`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRunUploadSQLite(t *testing.T) {
	quietLogger(t)
	config, db := uploadSQLite(t)
	dir := t.TempDir()
	ctx := context.Background()

	march := writeUploadFile(t, dir, "march.tsv",
		"2024.03.01 00:00:00\tUTC\t0042\tPRD1\tWidget\t2024.02.28 10:00:00\tRDC1\tConsensus\t2024-04\t12.5",
		"2024.03.01 00:00:00\tUTC\t0043\tPRD2\tGadget\t2024.02.28 10:00:00\tRDC1\tConsensus\t2024-04\t3",
	)
	config.Upload.File = march

	if err := runUpload(ctx, config); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, db); n != 2 {
		t.Fatalf("expected 2 rows after the first upload, got %d", n)
	}

	// Same snapshot again is skipped
	if err := runUpload(ctx, config); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, db); n != 2 {
		t.Fatalf("re-upload should be skipped, got %d rows", n)
	}

	// Older snapshot is skipped too
	config.Upload.File = writeUploadFile(t, dir, "feb.tsv",
		"2024.02.01 00:00:00\tUTC\t0042\tPRD1\tWidget\t2024.01.28 10:00:00\tRDC1\tConsensus\t2024-03\t9")
	if err := runUpload(ctx, config); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, db); n != 2 {
		t.Fatalf("older snapshot should be skipped, got %d rows", n)
	}

	// Newer snapshot is appended
	config.Upload.File = writeUploadFile(t, dir, "april.tsv",
		"2024.04.01 00:00:00\tUTC\t0042\tPRD1\tWidget\t2024.03.28 10:00:00\tRDC1\tConsensus\t2024-05\t7")
	if err := runUpload(ctx, config); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, db); n != 3 {
		t.Fatalf("newer snapshot should be appended, got %d rows", n)
	}

	if _, err := os.Stat(GetLockFilePath("t_ibp_cons_rdc")); !os.IsNotExist(err) {
		t.Fatal("lock should be released after the upload")
	}
}

func TestRunUploadKeepsText(t *testing.T) {
	quietLogger(t)
	config, db := uploadSQLite(t)
	config.Upload.File = writeUploadFile(t, t.TempDir(), "march.tsv",
		"2024.03.01 00:00:00\tUTC\t12345678901234567890123\tPRD1\tWidget\t2024.02.28 10:00:00\tRDC1\tConsensus\t2024-04-01\t12.5")

	if err := runUpload(context.Background(), config); err != nil {
		t.Fatal(err)
	}

	var partID, plannedMonth string
	var qty float64
	err := db.QueryRow(`SELECT part_id, planned_month, qty FROM t_ibp_cons_rdc`).Scan(&partID, &plannedMonth, &qty)
	if err != nil {
		t.Fatal(err)
	}
	if partID != "12345678901234567890123" {
		t.Fatalf("part_id must keep every digit, got %q", partID)
	}
	if plannedMonth != "2024-04-01" {
		t.Fatalf("planned_month must stay text, got %q", plannedMonth)
	}
	if qty != 12.5 {
		t.Fatalf("expected qty 12.5, got %v", qty)
	}
}

func TestRunUploadErrors(t *testing.T) {
	quietLogger(t)
	ctx := context.Background()

	t.Run("MalformedDate", func(t *testing.T) {
		config, db := uploadSQLite(t)
		config.Upload.File = writeUploadFile(t, t.TempDir(), "bad.tsv",
			"01/03/2024\tUTC\t0042\tPRD1\tWidget\t2024.02.28 10:00:00\tRDC1\tConsensus\t2024-04\t1")

		err := runUpload(ctx, config)
		if etlerr.ExitCode(err) != etlerr.ExitMalformedDate {
			t.Fatalf("expected a malformed date error, got %v", err)
		}
		if n := countRows(t, db); n != 0 {
			t.Fatalf("nothing should be inserted, got %d rows", n)
		}
	})

	t.Run("TableNotFound", func(t *testing.T) {
		config, _ := uploadSQLite(t)
		config.Upload.Table = "t_missing"
		config.Upload.File = writeUploadFile(t, t.TempDir(), "ok.tsv",
			"2024.03.01 00:00:00\tUTC\t0042\tPRD1\tWidget\t2024.02.28 10:00:00\tRDC1\tConsensus\t2024-04\t1")

		err := runUpload(ctx, config)
		if etlerr.ExitCode(err) != etlerr.ExitTableNotFound {
			t.Fatalf("expected a table-not-found error, got %v", err)
		}
	})

	t.Run("Locked", func(t *testing.T) {
		config, _ := uploadSQLite(t)
		config.Upload.File = writeUploadFile(t, t.TempDir(), "ok.tsv",
			"2024.03.01 00:00:00\tUTC\t0042\tPRD1\tWidget\t2024.02.28 10:00:00\tRDC1\tConsensus\t2024-04\t1")

		writeLockFile(t, "t_ibp_cons_rdc", TaskInfo{PID: os.Getppid()})
		if err := runUpload(ctx, config); !errors.Is(err, ErrLocked) {
			t.Fatalf("expected ErrLocked, got %v", err)
		}
	})
}
