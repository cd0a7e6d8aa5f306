package observability

import (
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sqlchat/sqlchat/internal/config"
)

// maxLoggedText caps free text attributes. Chat input and generated SQL are
// user controlled and can be arbitrarily long.
const maxLoggedText = 2048

var (
	truncatedKeys = map[string]bool{"input": true, "sql": true, "answer": true}
	redactedKeys  = map[string]bool{"api_key": true, "authorization": true, "password": true}
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel, ReplaceAttr: sanitizeAttr}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func sanitizeAttr(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	switch {
	case redactedKeys[key]:
		return slog.String(attr.Key, "[redacted]")
	case truncatedKeys[key] && attr.Value.Kind() == slog.KindString:
		return slog.String(attr.Key, truncateText(attr.Value.String(), maxLoggedText))
	}
	return attr
}

func truncateText(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + "…[truncated]"
}
