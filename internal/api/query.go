package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/chatbot"
	"github.com/sqlchat/sqlchat/internal/config"
)

type queryRequest struct {
	Input string `json:"input"`
}

func handleQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Input) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INPUT_REQUIRED", "input is required", false, nil)
		return
	}

	response, err := deps.Chat.Process(r.Context(), chatbot.Request{
		Text:           request.Input,
		AllowDirectSQL: allowDirectSQL(cfg, r),
		TenantID:       tenantFromRequest(r),
	})
	if err != nil {
		if errors.Is(err, chatbot.ErrEmptyQuery) {
			writeError(r.Context(), w, http.StatusBadRequest, "INPUT_REQUIRED", "input is required", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_FAILED", "chat query failed", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, response)
}
