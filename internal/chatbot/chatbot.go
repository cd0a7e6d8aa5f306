package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/agent"
	"github.com/sqlchat/sqlchat/internal/executor"
	"github.com/sqlchat/sqlchat/internal/format"
	"github.com/sqlchat/sqlchat/internal/history"
	"github.com/sqlchat/sqlchat/internal/observability"
)

// ErrEmptyQuery is returned for blank input. Callers redisplay the form.
var ErrEmptyQuery = errors.New("query is empty")

var (
	// ErrDirectSQLDenied marks a direct SQL request from a caller without the
	// operator grant. It is logged and recorded but never executed.
	ErrDirectSQLDenied = errors.New("direct sql is not authorized for this caller")
	// ErrNoResults marks a read that completed with an empty result set.
	ErrNoResults = errors.New("query returned no rows")
)

const directSQLPrefix = "sql:"

const (
	FormatHTML = "html"
	FormatText = "text"
)

const (
	MessageProcessingFailed = "Lo siento, ocurrió un error al procesar tu consulta."
	MessageNoAnswer         = "No pude generar una respuesta."
	MessageDirectSQLDenied  = "Lo siento, las consultas SQL directas requieren autorización de operador."
)

type Executor interface {
	Execute(ctx context.Context, stmt executor.Statement) (executor.Result, error)
}

type Recorder interface {
	Record(ctx context.Context, entry history.Entry) (history.Entry, error)
}

type Request struct {
	Text           string
	AllowDirectSQL bool
	TenantID       string
}

type Response struct {
	Success      bool             `json:"success"`
	Response     string           `json:"response"`
	Format       string           `json:"format"`
	Mode         history.Mode     `json:"mode"`
	Query        string           `json:"query,omitempty"`
	Columns      []string         `json:"columns,omitempty"`
	Results      []map[string]any `json:"results,omitempty"`
	RowsAffected *int64           `json:"rows_affected,omitempty"`
	Truncated    bool             `json:"truncated,omitempty"`
	TraceID      string           `json:"trace_id,omitempty"`
}

// Bot routes chat input to the executor or the model.
type Bot struct {
	Executor Executor
	Agent    agent.Invoker
	Recorder Recorder
	Logger   *slog.Logger
	Clock    func() time.Time

	// RecordTimeout bounds history writes, which run detached from request
	// cancellation.
	RecordTimeout time.Duration
}

// Process answers one chat input. The returned error is non-nil only for
// blank input; every other failure is reported through Response.
func (b *Bot) Process(ctx context.Context, req Request) (Response, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Response{}, ErrEmptyQuery
	}
	start := b.now()
	traceID := observability.TraceIDFromContext(ctx)

	var (
		resp     Response
		rowCount int
		failure  error
	)
	if stmt, ok := parseDirectSQL(text); ok {
		resp, rowCount, failure = b.processDirectSQL(ctx, stmt, req.AllowDirectSQL)
	} else {
		resp, failure = b.processNaturalLanguage(ctx, text)
	}
	resp.TraceID = traceID

	if failure != nil && b.Logger != nil {
		level := slog.LevelError
		if isRejection(failure) {
			level = slog.LevelWarn
		}
		b.Logger.Log(ctx, level, "chat query failed",
			slog.String("trace_id", traceID),
			slog.String("mode", string(resp.Mode)),
			slog.String("input", text),
			slog.Any("error", failure),
		)
	}

	elapsed := b.now().Sub(start)
	result := outcome(resp, failure)
	observability.ObserveChatQuery(string(resp.Mode), result, elapsed)
	observability.AnnotateChat(ctx, string(resp.Mode), result)
	b.record(ctx, history.Entry{
		TraceID:     traceID,
		TenantID:    req.TenantID,
		Mode:        resp.Mode,
		Input:       text,
		SQL:         resp.Query,
		Success:     resp.Success,
		RowCount:    rowCount,
		Duration:    elapsed,
		ErrorDetail: errorDetail(failure),
	})
	return resp, nil
}

func (b *Bot) processDirectSQL(ctx context.Context, statement string, allowed bool) (Response, int, error) {
	resp := Response{Mode: history.ModeDirectSQL, Format: FormatText, Query: statement}
	if !allowed {
		resp.Response = MessageDirectSQLDenied
		return resp, 0, ErrDirectSQLDenied
	}
	if statement == "" {
		return b.failure(ctx, resp), 0, fmt.Errorf("direct sql statement is empty")
	}
	if b.Executor == nil {
		return b.failure(ctx, resp), 0, fmt.Errorf("executor is not configured")
	}

	result, err := b.Executor.Execute(ctx, executor.Statement{SQL: statement})
	if err != nil {
		return b.failure(ctx, resp), 0, err
	}

	switch result.Kind {
	case executor.KindNoRows:
		affected := result.RowsAffected
		resp.Success = true
		resp.RowsAffected = &affected
		resp.Response = fmt.Sprintf("Consulta ejecutada correctamente. Filas afectadas: %d.", affected)
		return resp, int(affected), nil
	default:
		if len(result.Columns) == 0 || len(result.Rows) == 0 {
			resp.Response = MessageProcessingFailed
			return resp, 0, ErrNoResults
		}
		resp.Success = true
		resp.Format = FormatHTML
		resp.Response = format.HTML(result.Columns, result.Rows)
		resp.Columns = result.Columns
		resp.Results = result.Rows
		resp.Truncated = result.Truncated
		return resp, len(result.Rows), nil
	}
}

func (b *Bot) processNaturalLanguage(ctx context.Context, text string) (Response, error) {
	resp := Response{Mode: history.ModeNaturalLanguage, Format: FormatText}
	if b.Agent == nil {
		return b.failure(ctx, resp), fmt.Errorf("agent is not configured")
	}

	answer, err := b.Agent.Ask(ctx, text)
	if err != nil {
		return b.failure(ctx, resp), err
	}

	resp.Success = true
	resp.Response = strings.TrimSpace(answer.Text)
	if resp.Response == "" {
		resp.Response = MessageNoAnswer
	}
	if statement, ok := agent.ExtractSQL(answer.Text); ok {
		resp.Query = statement
	}
	return resp, nil
}

func (b *Bot) failure(ctx context.Context, resp Response) Response {
	resp.Success = false
	resp.Format = FormatText
	resp.Columns = nil
	resp.Results = nil
	resp.Response = MessageProcessingFailed
	if traceID := observability.TraceIDFromContext(ctx); traceID != "" {
		resp.Response += " (ref: " + traceID + ")"
	}
	return resp
}

func (b *Bot) record(ctx context.Context, entry history.Entry) {
	if b.Recorder == nil {
		return
	}
	timeout := b.RecordTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if _, err := b.Recorder.Record(recordCtx, entry); err != nil && b.Logger != nil {
		b.Logger.WarnContext(ctx, "record query history failed",
			slog.String("trace_id", entry.TraceID),
			slog.Any("error", err),
		)
	}
}

func (b *Bot) now() time.Time {
	if b.Clock != nil {
		return b.Clock()
	}
	return time.Now()
}

// parseDirectSQL detects the case-insensitive "sql:" prefix and returns the
// trimmed remainder.
func parseDirectSQL(text string) (string, bool) {
	if len(text) < len(directSQLPrefix) || !strings.EqualFold(text[:len(directSQLPrefix)], directSQLPrefix) {
		return "", false
	}
	return strings.TrimSpace(text[len(directSQLPrefix):]), true
}

func outcome(resp Response, failure error) string {
	switch {
	case isRejection(failure):
		return "rejected"
	case failure != nil:
		return "error"
	case resp.Success:
		return "success"
	default:
		return "rejected"
	}
}

// isRejection reports failures caused by the request rather than by a
// collaborator.
func isRejection(err error) bool {
	return errors.Is(err, ErrDirectSQLDenied) || errors.Is(err, ErrNoResults)
}

func errorDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
