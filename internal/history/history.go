package history

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned by callers that run without a history store.
var ErrNotConfigured = errors.New("query history is not configured")

type Mode string

const (
	ModeNaturalLanguage Mode = "natural_language"
	ModeDirectSQL       Mode = "direct_sql"
)

// Entry records one processed chat request. ErrorDetail holds the internal
// failure text and is never shown to end users.
type Entry struct {
	ID          uuid.UUID     `json:"id"`
	TraceID     string        `json:"trace_id"`
	TenantID    string        `json:"tenant_id,omitempty"`
	Mode        Mode          `json:"mode"`
	Input       string        `json:"input"`
	SQL         string        `json:"sql,omitempty"`
	Success     bool          `json:"success"`
	RowCount    int           `json:"row_count"`
	Duration    time.Duration `json:"duration"`
	ErrorDetail string        `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
}

type ListOptions struct {
	TenantID string
	Limit    int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// NormalizeLimit clamps a requested page size into [1, MaxListLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
