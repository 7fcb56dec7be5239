package alter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"sqlpilot/internal/types"
)

// recordingRefresher records index writes and can fail on demand.
type recordingRefresher struct {
	deleted   []string
	upserted  map[string]string
	deleteErr error
	upsertErr error
}

func newRecordingRefresher() *recordingRefresher {
	return &recordingRefresher{upserted: make(map[string]string)}
}

func (r *recordingRefresher) Delete(_ context.Context, table string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.deleted = append(r.deleted, table)
	return nil
}

func (r *recordingRefresher) Upsert(_ context.Context, table, content string) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserted[table] = content
	return nil
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	return db
}

func TestApplyCommitsAndRefreshes(t *testing.T) {
	db := testDB(t)
	idx := newRecordingRefresher()
	e := New(db, idx, nil)

	err := e.Apply(context.Background(), "employees", "ALTER TABLE employees ADD COLUMN bonus DECIMAL")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// The mutation must be visible in the live schema.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('employees') WHERE name = 'bonus'").Scan(&count); err != nil {
		t.Fatalf("Failed to inspect schema: %v", err)
	}
	if count != 1 {
		t.Error("bonus column missing after Apply")
	}

	// The refreshed document must describe the new column.
	if len(idx.deleted) != 1 || idx.deleted[0] != "employees" {
		t.Errorf("deleted = %v, want stale documents cleared", idx.deleted)
	}
	doc, ok := idx.upserted["employees"]
	if !ok {
		t.Fatal("no document upserted after Apply")
	}
	if !strings.Contains(doc, "bonus") {
		t.Errorf("refreshed document missing new column: %q", doc)
	}
	if !strings.HasPrefix(doc, "Table: employees\nColumns:\n") {
		t.Errorf("document format = %q", doc)
	}
}

func TestApplyBadStatementLeavesIndexUntouched(t *testing.T) {
	db := testDB(t)
	idx := newRecordingRefresher()
	e := New(db, idx, nil)

	err := e.Apply(context.Background(), "employees", "ALTER TABLE employees ADD")
	if err == nil {
		t.Fatal("expected error for a malformed statement")
	}
	var refreshErr *types.IndexRefreshError
	if errors.As(err, &refreshErr) {
		t.Error("a failed statement is not an index refresh failure")
	}
	if len(idx.deleted) != 0 || len(idx.upserted) != 0 {
		t.Error("index must not change when the mutation does not commit")
	}
}

func TestApplyRefreshFailureReturnsIndexRefreshError(t *testing.T) {
	db := testDB(t)
	idx := newRecordingRefresher()
	idx.upsertErr = fmt.Errorf("embedding service offline")
	e := New(db, idx, nil)

	err := e.Apply(context.Background(), "employees", "ALTER TABLE employees ADD COLUMN bonus DECIMAL")

	var refreshErr *types.IndexRefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("Apply = %v, want IndexRefreshError", err)
	}
	if refreshErr.Table != "employees" {
		t.Errorf("Table = %q, want employees", refreshErr.Table)
	}

	// The mutation itself must stand.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('employees') WHERE name = 'bonus'").Scan(&count); err != nil {
		t.Fatalf("Failed to inspect schema: %v", err)
	}
	if count != 1 {
		t.Error("committed mutation must not be rolled back on refresh failure")
	}
}

func TestApplyUnknownTableRefreshFails(t *testing.T) {
	db := testDB(t)
	e := New(db, newRecordingRefresher(), nil)

	// Dropping the table makes the post-commit describe fail.
	err := e.Apply(context.Background(), "employees", "DROP TABLE employees")

	var refreshErr *types.IndexRefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("Apply = %v, want IndexRefreshError when the table is gone", err)
	}
}
