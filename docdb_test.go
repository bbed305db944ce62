package docdb

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// openTestDB creates a fresh database in the test's temp directory.
func openTestDB(t *testing.T, opts ...Option) *Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.json")
	opts = append([]Option{WithPath(path), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	db, err := Open("test", opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates missing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fresh.json")
		db, err := Open("fresh", WithPath(path))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("snapshot file was not created: %v", err)
		}
		if len(db.Tables()) != 0 {
			t.Errorf("fresh database has tables: %v", db.Tables())
		}
		if db.CreatedOn().IsZero() || db.LastUpdated().IsZero() {
			t.Error("fresh database has zero timestamps")
		}
	})
	t.Run("loads existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "db.json")
		db, err := Open("db", WithPath(path))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if err := db.CreateTable("users", []Column{{Name: "name", Type: Text}}); err != nil {
			t.Fatalf("CreateTable failed: %v", err)
		}
		if err := db.Insert("users", "1", Row{"name": "Alice"}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := db.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}

		reopened, err := Open("db", WithPath(path))
		if err != nil {
			t.Fatalf("reopen failed: %v", err)
		}
		if got := reopened.Tables(); len(got) != 1 || got[0] != "users" {
			t.Errorf("Tables() = %v, want [users]", got)
		}
		rows, err := reopened.Select("users", nil, nil)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if len(rows) != 1 || rows[0]["name"] != "Alice" {
			t.Errorf("rows = %v", rows)
		}
	})
	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Open("bad", WithPath(path)); err == nil {
			t.Error("Open on malformed snapshot succeeded, want error")
		}
	})
}

func TestCreateTable(t *testing.T) {
	t.Run("duplicate name", func(t *testing.T) {
		db := openTestDB(t)
		cols := []Column{{Name: "name", Type: Text}}
		if err := db.CreateTable("users", cols); err != nil {
			t.Fatalf("CreateTable failed: %v", err)
		}
		err := db.CreateTable("users", cols)
		var existsErr *TableExistsError
		if !errors.As(err, &existsErr) {
			t.Fatalf("duplicate CreateTable = %v, want TableExistsError", err)
		}
		if existsErr.Table != "users" {
			t.Errorf("Table = %q", existsErr.Table)
		}
	})
	t.Run("invalid datatype", func(t *testing.T) {
		db := openTestDB(t)
		err := db.CreateTable("users", []Column{{Name: "name", Type: "VARCHAR"}})
		var unknownErr *UnknownDatatypeError
		if !errors.As(err, &unknownErr) {
			t.Fatalf("CreateTable = %v, want UnknownDatatypeError", err)
		}
		// Validation failed before registration.
		if len(db.Tables()) != 0 {
			t.Errorf("table registered despite invalid datatype: %v", db.Tables())
		}
	})
	t.Run("self commits", func(t *testing.T) {
		db := openTestDB(t)
		if err := db.CreateTable("users", []Column{{Name: "name", Type: Text}}); err != nil {
			t.Fatalf("CreateTable failed: %v", err)
		}
		// A second handle sees the table without an explicit Commit.
		other, err := Open("test", WithPath(db.Path()))
		if err != nil {
			t.Fatalf("reopen failed: %v", err)
		}
		if got := other.Tables(); len(got) != 1 || got[0] != "users" {
			t.Errorf("Tables() = %v, want [users]", got)
		}
	})
	t.Run("columns ordered", func(t *testing.T) {
		db := openTestDB(t)
		want := []Column{
			{Name: "zulu", Type: Text},
			{Name: "alpha", Type: Numeric},
			{Name: "mike", Type: ListOf(Decimal)},
		}
		if err := db.CreateTable("t", want); err != nil {
			t.Fatalf("CreateTable failed: %v", err)
		}
		got, err := db.Columns("t")
		if err != nil {
			t.Fatalf("Columns failed: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("got %v", got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("column %d = %+v, want %+v", i, got[i], want[i])
			}
		}
	})
	t.Run("unknown table columns", func(t *testing.T) {
		db := openTestDB(t)
		_, err := db.Columns("nope")
		var tableErr *NoSuchTableError
		if !errors.As(err, &tableErr) {
			t.Errorf("Columns = %v, want NoSuchTableError", err)
		}
	})
}

func TestCommitRollbackSync(t *testing.T) {
	setup := func(t *testing.T) *Database {
		db := openTestDB(t)
		if err := db.CreateTable("users", []Column{{Name: "name", Type: Text}, {Name: "age", Type: Numeric}}); err != nil {
			t.Fatalf("CreateTable failed: %v", err)
		}
		return db
	}

	t.Run("rollback discards uncommitted rows", func(t *testing.T) {
		db := setup(t)
		if err := db.Insert("users", "1", Row{"name": "Alice", "age": 30}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := db.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		if err := db.Insert("users", "2", Row{"name": "Bob"}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := db.Rollback(); err != nil {
			t.Fatalf("Rollback failed: %v", err)
		}
		rows, err := db.Select("users", nil, nil)
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if len(rows) != 1 || rows[0]["name"] != "Alice" {
			t.Errorf("rows after rollback = %v, want the committed row only", rows)
		}
	})
	t.Run("commit then rollback keeps committed mutation", func(t *testing.T) {
		db := setup(t)
		if err := db.Insert("users", "1", Row{"name": "Alice", "age": 30}); err != nil {
			t.Fatal(err)
		}
		if err := db.Update("users", "1", nil, Row{"age": 31}); err != nil {
			t.Fatal(err)
		}
		if err := db.Commit(); err != nil {
			t.Fatal(err)
		}
		if err := db.Update("users", "1", nil, Row{"age": 99}); err != nil {
			t.Fatal(err)
		}
		if err := db.Rollback(); err != nil {
			t.Fatal(err)
		}
		rows, err := db.Select("users", nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		// Committed value 31 survives; values reload as float64 from JSON.
		if len(rows) != 1 || rows[0]["age"] != float64(31) {
			t.Errorf("rows = %v, want age 31", rows)
		}
	})
	t.Run("sync is idempotent", func(t *testing.T) {
		db := setup(t)
		if err := db.Insert("users", "1", Row{"name": "Alice", "age": 30}); err != nil {
			t.Fatal(err)
		}
		if err := db.Commit(); err != nil {
			t.Fatal(err)
		}
		if err := db.Sync(); err != nil {
			t.Fatalf("first Sync failed: %v", err)
		}
		first, err := db.Select("users", nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		firstTables := db.Tables()
		if err := db.Sync(); err != nil {
			t.Fatalf("second Sync failed: %v", err)
		}
		second, err := db.Select("users", nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(first) != len(second) {
			t.Fatalf("row counts differ: %d vs %d", len(first), len(second))
		}
		for i := range first {
			for k, v := range first[i] {
				if second[i][k] != v {
					t.Errorf("row %d key %q: %v vs %v", i, k, v, second[i][k])
				}
			}
		}
		if len(firstTables) != len(db.Tables()) {
			t.Errorf("table sets differ: %v vs %v", firstTables, db.Tables())
		}
	})
	t.Run("sync discards uncommitted rows", func(t *testing.T) {
		db := setup(t)
		if err := db.Insert("users", "1", Row{"name": "Alice"}); err != nil {
			t.Fatal(err)
		}
		if err := db.Sync(); err != nil {
			t.Fatal(err)
		}
		rows, err := db.Select("users", nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 0 {
			t.Errorf("uncommitted row survived Sync: %v", rows)
		}
	})
	t.Run("commit bumps last updated", func(t *testing.T) {
		db := setup(t)
		before := db.LastUpdated()
		if err := db.Insert("users", "1", Row{"name": "Alice"}); err != nil {
			t.Fatal(err)
		}
		if err := db.Commit(); err != nil {
			t.Fatal(err)
		}
		if db.LastUpdated().Before(before) {
			t.Errorf("LastUpdated went backwards: %v -> %v", before, db.LastUpdated())
		}
		if db.CreatedOn().After(db.LastUpdated()) {
			t.Errorf("CreatedOn %v after LastUpdated %v", db.CreatedOn(), db.LastUpdated())
		}
	})
}

// TestConcurrentCommitSync hammers the persistence cycle from multiple
// goroutines. Commit, Sync, and Rollback all read or write the snapshot
// under the database lock, so no reader can observe a half-written file and
// committed state survives any interleaving.
func TestConcurrentCommitSync(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateTable("users", []Column{{Name: "name", Type: Text}}); err != nil {
		t.Fatal(err)
	}
	if err := db.Insert("users", "1", Row{"name": "Alice"}); err != nil {
		t.Fatal(err)
	}
	if err := db.Commit(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if err := db.Commit(); err != nil {
					t.Errorf("Commit failed: %v", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if err := db.Sync(); err != nil {
					t.Errorf("Sync failed: %v", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if err := db.Rollback(); err != nil {
					t.Errorf("Rollback failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	rows, err := db.Select("users", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Alice" {
		t.Errorf("committed state lost under concurrency: %v", rows)
	}
}

func TestDatabaseInfo(t *testing.T) {
	db := openTestDB(t)
	if db.Name() != "test" {
		t.Errorf("Name() = %q", db.Name())
	}
	if got := db.String(); !strings.Contains(got, "none") {
		t.Errorf("String() = %q, want tables: none", got)
	}
	if err := db.CreateTable("users", []Column{{Name: "name", Type: Text}}); err != nil {
		t.Fatal(err)
	}
	if got := db.String(); !strings.Contains(got, "users") {
		t.Errorf("String() = %q, want users listed", got)
	}
	size, err := db.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size == 0 {
		t.Error("Size() = 0 for a persisted database")
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	// Two databases must not share table registries.
	a := openTestDB(t)
	b := openTestDB(t)
	if err := a.CreateTable("only_in_a", []Column{{Name: "x", Type: Text}}); err != nil {
		t.Fatal(err)
	}
	if len(b.Tables()) != 0 {
		t.Errorf("table leaked across instances: %v", b.Tables())
	}
}
