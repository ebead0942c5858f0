package command

import (
	"github.com/goliatone/go-clientcore/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ AuthService = (*core.AuthManager)(nil)

	_ gocmd.Commander[LoginMessage]    = (*LoginCommand)(nil)
	_ gocmd.Commander[RegisterMessage] = (*RegisterCommand)(nil)
	_ gocmd.Commander[RefreshMessage]  = (*RefreshCommand)(nil)
	_ gocmd.Commander[LogoutMessage]   = (*LogoutCommand)(nil)
	_ gocmd.Commander[RestoreMessage]  = (*RestoreCommand)(nil)
)
