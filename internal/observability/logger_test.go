package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sqlchat/sqlchat/internal/config"
)

func TestNewLoggerAddsServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "sqlchat-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	NewLogger(cfg, &buf).Info("hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if record["service"] != "sqlchat-api" {
		t.Fatalf("service = %v", record["service"])
	}
	if record["profile"] != "test" {
		t.Fatalf("profile = %v", record["profile"])
	}
}

func TestNewLoggerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Service:       config.ServiceConfig{Name: "sqlchat-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelWarn, LogJSON: false},
	}
	logger := NewLogger(cfg, &buf)
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") {
		t.Fatalf("info line should be filtered: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn line missing: %s", buf.String())
	}
}

func TestNewLoggerRedactsAndTruncates(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Service:       config.ServiceConfig{Name: "sqlchat-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	long := strings.Repeat("ñ", maxLoggedText)
	NewLogger(cfg, &buf).Info("chat query failed",
		slog.String("input", long),
		slog.String("api_key", "secret-key"),
		slog.String("mode", "direct_sql"),
	)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if record["api_key"] != "[redacted]" {
		t.Fatalf("api_key = %v", record["api_key"])
	}
	input, _ := record["input"].(string)
	if !strings.HasSuffix(input, "…[truncated]") || len(input) > maxLoggedText+len("…[truncated]") {
		t.Fatalf("input was not truncated: %d bytes", len(input))
	}
	if !utf8.ValidString(input) {
		t.Fatal("truncation split a rune")
	}
	if record["mode"] != "direct_sql" {
		t.Fatalf("mode = %v", record["mode"])
	}
}
