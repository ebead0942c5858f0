package query

import (
	"github.com/goliatone/go-clientcore/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ SessionReader = (*core.AuthManager)(nil)

	_ gocmd.Querier[CurrentSessionMessage, SessionView] = (*CurrentSessionQuery)(nil)
	_ gocmd.Querier[HasPermissionMessage, bool]         = (*HasPermissionQuery)(nil)
	_ gocmd.Querier[HasRoleMessage, bool]               = (*HasRoleQuery)(nil)
)
