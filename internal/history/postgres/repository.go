package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sqlchat/sqlchat/internal/history"
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

// Record inserts entry, assigning an id and timestamp when they are unset.
func (r *Repository) Record(ctx context.Context, entry history.Entry) (history.Entry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}

	query := `
INSERT INTO sqlchat.query_history (history_id, trace_id, tenant_id, mode, input_text, sql_text, success, row_count, duration_ms, error_detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID.String(),
		entry.TraceID,
		nullableString(entry.TenantID),
		string(entry.Mode),
		entry.Input,
		nullableString(entry.SQL),
		entry.Success,
		entry.RowCount,
		entry.Duration.Milliseconds(),
		nullableString(entry.ErrorDetail),
		entry.CreatedAt,
	); err != nil {
		return history.Entry{}, fmt.Errorf("insert query history: %w", err)
	}
	return entry, nil
}

func (r *Repository) List(ctx context.Context, opts history.ListOptions) ([]history.Entry, error) {
	limit := history.NormalizeLimit(opts.Limit)
	var (
		rows *sql.Rows
		err  error
	)
	if opts.TenantID == "" {
		rows, err = r.db.QueryContext(ctx, selectEntries+`
ORDER BY created_at DESC, history_id DESC
LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, selectEntries+`
WHERE tenant_id = $1
ORDER BY created_at DESC, history_id DESC
LIMIT $2`, opts.TenantID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}
	return scanEntries(rows)
}

// ListBefore returns the oldest entries created before cutoff, oldest first.
func (r *Repository) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	rows, err := r.db.QueryContext(ctx, selectEntries+`
WHERE created_at < $1
ORDER BY created_at ASC, history_id ASC
LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list query history before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return scanEntries(rows)
}

// DeleteThrough removes every entry ordered at or before last in the
// ListBefore order.
func (r *Repository) DeleteThrough(ctx context.Context, last history.Entry) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM sqlchat.query_history
WHERE (created_at, history_id) <= ($1, $2)`, last.CreatedAt, last.ID.String())
	if err != nil {
		return 0, fmt.Errorf("delete archived query history: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete archived query history rows affected: %w", err)
	}
	return affected, nil
}

const selectEntries = `
SELECT history_id, trace_id, tenant_id, mode, input_text, sql_text, success, row_count, duration_ms, error_detail, created_at
FROM sqlchat.query_history`

func scanEntries(rows *sql.Rows) ([]history.Entry, error) {
	defer func() { _ = rows.Close() }()

	entries := make([]history.Entry, 0)
	for rows.Next() {
		var (
			entry                        history.Entry
			mode                         string
			tenantID, sqlText, errorText sql.NullString
			durationMs                   int64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.TraceID,
			&tenantID,
			&mode,
			&entry.Input,
			&sqlText,
			&entry.Success,
			&entry.RowCount,
			&durationMs,
			&errorText,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query history: %w", err)
		}
		entry.Mode = history.Mode(mode)
		entry.TenantID = tenantID.String
		entry.SQL = sqlText.String
		entry.ErrorDetail = errorText.String
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query history: %w", err)
	}
	return entries, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
