package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/observability"
)

type Kind string

const (
	// KindRows is a statement that produced a result set, possibly empty.
	KindRows Kind = "rows"
	// KindNoRows is a committed statement without a result set (DDL or DML).
	KindNoRows Kind = "no_rows"
)

type Statement struct {
	SQL  string
	Args []any
}

type Result struct {
	Kind         Kind             `json:"kind"`
	Columns      []string         `json:"columns"`
	Rows         []map[string]any `json:"rows"`
	RowsAffected int64            `json:"rows_affected"`
	Truncated    bool             `json:"truncated"`
	Duration     time.Duration    `json:"duration"`
}

type Config struct {
	// Timeout bounds one statement including commit. Zero disables it.
	Timeout time.Duration
	// ReadOnly opens every transaction with sql.TxOptions.ReadOnly.
	ReadOnly bool
	// MaxRows caps materialized rows. Zero means unlimited.
	MaxRows int
}

// Executor runs one statement per transaction against a shared pool.
type Executor struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{db: db, cfg: cfg, logger: logger}
}

func (e *Executor) Execute(ctx context.Context, stmt Statement) (result Result, err error) {
	sqlText := stripTrailingSemicolons(stmt.SQL)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if e.db == nil {
		return Result{}, fmt.Errorf("database is required")
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		kind := string(result.Kind)
		if err != nil {
			kind = "error"
		}
		observability.ObserveStatement(kind, time.Since(start))
	}()

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: e.cfg.ReadOnly})
	if err != nil {
		return Result{}, fmt.Errorf("begin transaction: %w", err)
	}

	if returnsRows(sqlText) {
		result, err = e.query(ctx, tx, sqlText, stmt.Args)
	} else {
		result, err = e.exec(ctx, tx, sqlText, stmt.Args)
	}
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
		}
		e.logFailure(ctx, sqlText, err)
		return Result{}, err
	}
	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("commit: %w", err)
		e.logFailure(ctx, sqlText, err)
		return Result{}, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (e *Executor) logFailure(ctx context.Context, sqlText string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.WarnContext(ctx, "statement failed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("sql", sqlText),
		slog.Any("error", err),
	)
}

func (e *Executor) query(ctx context.Context, tx *sql.Tx, sqlText string, args []any) (Result, error) {
	rows, err := tx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}
	if len(columns) == 0 {
		return Result{Kind: KindNoRows}, rows.Err()
	}

	result := Result{Kind: KindRows, Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		if e.cfg.MaxRows > 0 && len(result.Rows) >= e.cfg.MaxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func (e *Executor) exec(ctx context.Context, tx *sql.Tx, sqlText string, args []any) (Result, error) {
	res, err := tx.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return Result{}, fmt.Errorf("execute statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// DDL on some drivers has no affected-row count.
		affected = 0
	}
	return Result{Kind: KindNoRows, RowsAffected: affected}, nil
}

var rowKeywords = map[string]bool{
	"select":    true,
	"with":      true,
	"values":    true,
	"show":      true,
	"explain":   true,
	"table":     true,
	"pragma":    true,
	"describe":  true,
	"summarize": true,
}

// returnsRows reports whether the statement should be run as a query.
func returnsRows(sqlText string) bool {
	keyword := leadingKeyword(sqlText)
	if rowKeywords[keyword] {
		return true
	}
	switch keyword {
	case "insert", "update", "delete", "merge":
		return containsWord(strings.ToLower(sqlText), "returning")
	}
	return false
}

func leadingKeyword(sqlText string) string {
	trimmed := skipLeadingNoise(sqlText)
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(trimmed)
	}
	return strings.ToLower(trimmed[:end])
}

// skipLeadingNoise drops whitespace, opening parentheses and comments that
// precede the first keyword. An unterminated block comment consumes the rest.
func skipLeadingNoise(sqlText string) string {
	rest := sqlText
	for {
		rest = strings.TrimLeft(rest, " \t\r\n(")
		switch {
		case strings.HasPrefix(rest, "--"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				return ""
			}
			rest = rest[end+1:]
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				return ""
			}
			rest = rest[2+end+2:]
		default:
			return rest
		}
	}
}

func containsWord(text, word string) bool {
	for offset := 0; ; {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(word)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		offset = end
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
