package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

type ctxKey string

const (
	traceIDKey     ctxKey = "trace_id"
	requestInfoKey ctxKey = "request_info"
)

// maxTraceIDLen bounds client supplied ids; longer ones are replaced.
const maxTraceIDLen = 64

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// RequestInfo gathers what the handlers learn about a chat request (who
// asked, which mode ran, how it ended) for the access log.
type RequestInfo struct {
	mu       sync.Mutex
	tenantID string
	keyID    string
	mode     string
	outcome  string
}

func contextWithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey, info), info
}

func requestInfoFromContext(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoKey).(*RequestInfo)
	return info
}

// AnnotateIdentity records the authenticated caller. It is a no-op outside
// TraceMiddleware.
func AnnotateIdentity(ctx context.Context, tenantID, keyID string) {
	info := requestInfoFromContext(ctx)
	if info == nil {
		return
	}
	info.mu.Lock()
	info.tenantID, info.keyID = tenantID, keyID
	info.mu.Unlock()
}

// AnnotateChat records the routing mode and outcome of a processed chat query.
func AnnotateChat(ctx context.Context, mode, outcome string) {
	info := requestInfoFromContext(ctx)
	if info == nil {
		return
	}
	info.mu.Lock()
	info.mode, info.outcome = mode, outcome
	info.mu.Unlock()
}

func (i *RequestInfo) attrs() []slog.Attr {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	var attrs []slog.Attr
	if i.tenantID != "" {
		attrs = append(attrs, slog.String("tenant_id", i.tenantID))
	}
	if i.keyID != "" {
		attrs = append(attrs, slog.String("key_id", i.keyID))
	}
	if i.mode != "" {
		attrs = append(attrs, slog.String("chat_mode", i.mode), slog.String("chat_outcome", i.outcome))
	}
	return attrs
}

// validTraceID accepts ids that can be echoed into logs, pages and the
// failure text shown to users.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

func newTraceID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
