package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Role grants one SQLChat capability to an API key.
type Role string

const (
	// RoleQueryReader may ask questions and read the schema description.
	RoleQueryReader Role = "query_reader"
	// RoleSQLOperator may also run "sql:" statements against the database.
	RoleSQLOperator Role = "sql_operator"
	// RoleHistoryReader may list the recorded chat queries of its tenant.
	RoleHistoryReader Role = "history_reader"
)

// impliedRoles lists what each role grants besides itself.
var impliedRoles = map[Role][]Role{
	RoleQueryReader:   nil,
	RoleSQLOperator:   {RoleQueryReader},
	RoleHistoryReader: nil,
}

func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := impliedRoles[role]; !ok {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

type Identity struct {
	// KeyID is a short fingerprint of the presented key, safe to log.
	KeyID    string
	TenantID string
	Roles    []Role
}

func (i Identity) HasRole(role Role) bool {
	for _, granted := range i.Roles {
		if granted == role {
			return true
		}
		for _, implied := range impliedRoles[granted] {
			if implied == role {
				return true
			}
		}
	}
	return false
}

// CanRunDirectSQL reports whether the identity may bypass the model with
// "sql:" input.
func (i Identity) CanRunDirectSQL() bool {
	return i.HasRole(RoleSQLOperator)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses SQLCHAT_AUTH_STATIC_KEYS, a comma separated
// list of key:tenant:role|role entries. Unknown roles and repeated keys are
// rejected; errors name keys by Fingerprint only.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:tenant:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		tenant := strings.TrimSpace(parts[1])
		if key == "" || tenant == "" {
			return nil, fmt.Errorf("invalid static key entry for tenant %q: empty key/tenant", tenant)
		}
		keyID := Fingerprint(key)
		if _, exists := validator.keys[key]; exists {
			return nil, fmt.Errorf("duplicate static key %s", keyID)
		}
		roles, err := parseRoles(parts[2])
		if err != nil {
			return nil, fmt.Errorf("static key %s: %w", keyID, err)
		}
		validator.keys[key] = Identity{KeyID: keyID, TenantID: tenant, Roles: roles}
	}

	return validator, nil
}

func parseRoles(raw string) ([]Role, error) {
	seen := map[Role]bool{}
	roles := make([]Role, 0, 3)
	for _, part := range strings.Split(raw, "|") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		role, err := ParseRole(part)
		if err != nil {
			return nil, err
		}
		if seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	sort.Slice(roles, func(a, b int) bool { return roles[a] < roles[b] })
	return roles, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

// Fingerprint identifies a key in logs and errors without revealing it.
func Fingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:4])
}
