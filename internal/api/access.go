package api

import (
	"fmt"
	"net/http"

	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/config"
)

// requireRole passes anonymous requests; those only reach handlers when
// auth is disabled.
func requireRole(r *http.Request, role auth.Role) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func tenantFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.TenantID
	}
	return ""
}

// allowDirectSQL decides whether "sql:" input may reach the database.
// With auth on only sql_operator identities qualify.
func allowDirectSQL(cfg config.Config, r *http.Request) bool {
	if !cfg.Chat.DirectSQLEnabled {
		return false
	}
	if !cfg.Auth.Required {
		return true
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	return ok && identity.CanRunDirectSQL()
}
