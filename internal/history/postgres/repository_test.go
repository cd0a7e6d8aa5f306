package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/sqlchat/sqlchat/internal/history"
)

var historyColumns = []string{"history_id", "trace_id", "tenant_id", "mode", "input_text", "sql_text", "success", "row_count", "duration_ms", "error_detail", "created_at"}

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sqlchat.query_history`)).
		WithArgs(sqlmock.AnyArg(), "trace-1", nil, "direct_sql", "sql: SELECT 1", "SELECT 1", true, 1, int64(12), nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry, err := repo.Record(context.Background(), history.Entry{
		TraceID:  "trace-1",
		Mode:     history.ModeDirectSQL,
		Input:    "sql: SELECT 1",
		SQL:      "SELECT 1",
		Success:  true,
		RowCount: 1,
		Duration: 12 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
	if !entry.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v", entry.CreatedAt)
	}
	assertSQLMock(t, mock)
}

func TestListFiltersByTenant(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE tenant_id = $1
ORDER BY created_at DESC, history_id DESC
LIMIT $2`)).
		WithArgs("t1", history.DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(id.String(), "trace-9", "t1", "natural_language", "¿cuántos clientes?", nil, true, 0, int64(250), nil, now))

	entries, err := repo.List(context.Background(), history.ListOptions{TenantID: "t1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	got := entries[0]
	if got.ID != id || got.Mode != history.ModeNaturalLanguage || got.SQL != "" || got.Duration != 250*time.Millisecond {
		t.Fatalf("entry = %#v", got)
	}
	assertSQLMock(t, mock)
}

func TestListClampsLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, history_id DESC
LIMIT $1`)).
		WithArgs(history.MaxListLimit).
		WillReturnRows(sqlmock.NewRows(historyColumns))

	entries, err := repo.List(context.Background(), history.ListOptions{Limit: 10_000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %d", len(entries))
	}
	assertSQLMock(t, mock)
}

func TestListBeforeAndDeleteThrough(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := uuid.New()
	last := uuid.New()
	firstAt := cutoff.Add(-48 * time.Hour)
	lastAt := cutoff.Add(-24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE created_at < $1
ORDER BY created_at ASC, history_id ASC
LIMIT $2`)).
		WithArgs(cutoff, 2).
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(first.String(), "a", nil, "direct_sql", "sql: x", "x", false, 0, int64(3), "syntax error", firstAt).
			AddRow(last.String(), "b", nil, "direct_sql", "sql: y", "y", true, 2, int64(4), nil, lastAt))
	mock.ExpectExec(regexp.QuoteMeta(`WHERE (created_at, history_id) <= ($1, $2)`)).
		WithArgs(lastAt, last.String()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	entries, err := repo.ListBefore(context.Background(), cutoff, 2)
	if err != nil {
		t.Fatalf("ListBefore() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ErrorDetail != "syntax error" {
		t.Fatalf("entries = %#v", entries)
	}
	deleted, err := repo.DeleteThrough(context.Background(), entries[len(entries)-1])
	if err != nil {
		t.Fatalf("DeleteThrough() error = %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d", deleted)
	}
	assertSQLMock(t, mock)
}

func TestListBeforeRequiresLimit(t *testing.T) {
	db, _ := newSQLMock(t)
	if _, err := NewRepository(db).ListBefore(context.Background(), time.Now(), 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
