package query

import "strings"

const (
	TypeCurrentSession = "clientcore.query.auth.session"
	TypeHasPermission  = "clientcore.query.auth.has_permission"
	TypeHasRole        = "clientcore.query.auth.has_role"
)

type CurrentSessionMessage struct{}

func (CurrentSessionMessage) Type() string { return TypeCurrentSession }

func (CurrentSessionMessage) Validate() error { return nil }

type HasPermissionMessage struct {
	Resource string
	Action   string
}

func (HasPermissionMessage) Type() string { return TypeHasPermission }

func (m HasPermissionMessage) Validate() error {
	if strings.TrimSpace(m.Resource) == "" {
		return queryValidationError("resource", "resource is required")
	}
	if strings.TrimSpace(m.Action) == "" {
		return queryValidationError("action", "action is required")
	}
	return nil
}

// HasRoleMessage matches when the user holds any of Roles.
type HasRoleMessage struct {
	Roles []string
}

func (HasRoleMessage) Type() string { return TypeHasRole }

func (m HasRoleMessage) Validate() error {
	for _, role := range m.Roles {
		if strings.TrimSpace(role) != "" {
			return nil
		}
	}
	return queryValidationError("roles", "at least one role is required")
}
