package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/history"
)

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleHistoryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	entries, err := listHistory(r, deps.History, history.ListOptions{
		TenantID: tenantFromRequest(r),
		Limit:    history.NormalizeLimit(limit),
	})
	if err != nil {
		if errors.Is(err, history.ErrNotConfigured) {
			writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_FAILED", "failed to load query history", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func listHistory(r *http.Request, lister HistoryLister, opts history.ListOptions) ([]history.Entry, error) {
	if lister == nil {
		return nil, history.ErrNotConfigured
	}
	return lister.List(r.Context(), opts)
}
