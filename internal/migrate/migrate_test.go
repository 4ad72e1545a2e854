package migrate

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
)

func openMem(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_embeddedCreatesCollections(t *testing.T) {
	ctx := context.Background()
	db := openMem(t)

	n, err := Run(ctx, db, quietLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n == 0 {
		t.Fatal("no migrations applied on an empty database")
	}

	for _, table := range []string{"stations", "calibrations", "api_keys"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	again, err := Run(ctx, db, quietLogger())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again != 0 {
		t.Errorf("second Run applied %d; want 0", again)
	}

	status, err := Status(ctx, db)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	for _, m := range status {
		if !m.Applied {
			t.Errorf("migration %s_%s not applied", m.Version, m.Name)
		}
	}
}

func TestRun_ordersAndSkipsForeignFiles(t *testing.T) {
	ctx := context.Background()
	db := openMem(t)
	fsys := fstest.MapFS{
		"sql/0002_second.sql": {Data: []byte(`INSERT INTO seq (name) VALUES ('second');`)},
		"sql/0001_first.sql":  {Data: []byte(`CREATE TABLE seq (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT);`)},
		"sql/README.md":       {Data: []byte(`not a migration`)},
	}

	n, err := run(ctx, db, fsys, quietLogger())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 2 {
		t.Fatalf("applied %d; want 2", n)
	}
	var name string
	if err := db.QueryRow(`SELECT name FROM seq WHERE id = 1`).Scan(&name); err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "second" {
		t.Errorf("name = %q; want second", name)
	}
}

func TestRun_failedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openMem(t)
	fsys := fstest.MapFS{
		"sql/0001_broken.sql": {Data: []byte(`CREATE TABLE ok (id INTEGER); THIS IS NOT SQL;`)},
	}

	if _, err := run(ctx, db, fsys, quietLogger()); err == nil {
		t.Fatal("run succeeded on invalid SQL")
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + tableName).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("recorded %d migrations after failure; want 0", count)
	}
}
