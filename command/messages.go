package command

import (
	"strings"

	"github.com/goliatone/go-clientcore/core"
)

const (
	TypeLogin    = "clientcore.command.auth.login"
	TypeRegister = "clientcore.command.auth.register"
	TypeRefresh  = "clientcore.command.auth.refresh"
	TypeLogout   = "clientcore.command.auth.logout"
	TypeRestore  = "clientcore.command.auth.restore"
)

type LoginMessage struct {
	Credentials core.Credentials
}

func (LoginMessage) Type() string { return TypeLogin }

func (m LoginMessage) Validate() error {
	if strings.TrimSpace(m.Credentials.Username) == "" {
		return commandValidationError("username", "username is required")
	}
	if m.Credentials.Password == "" {
		return commandValidationError("password", "password is required")
	}
	return nil
}

type RegisterMessage struct {
	Request core.RegisterRequest
}

func (RegisterMessage) Type() string { return TypeRegister }

func (m RegisterMessage) Validate() error {
	if strings.TrimSpace(m.Request.Username) == "" {
		return commandValidationError("username", "username is required")
	}
	if m.Request.Password == "" {
		return commandValidationError("password", "password is required")
	}
	if email := strings.TrimSpace(m.Request.Email); email != "" && !strings.Contains(email, "@") {
		return commandValidationError("email", "email is invalid")
	}
	return nil
}

type RefreshMessage struct{}

func (RefreshMessage) Type() string { return TypeRefresh }

func (RefreshMessage) Validate() error { return nil }

type LogoutMessage struct{}

func (LogoutMessage) Type() string { return TypeLogout }

func (LogoutMessage) Validate() error { return nil }

type RestoreMessage struct{}

func (RestoreMessage) Type() string { return TypeRestore }

func (RestoreMessage) Validate() error { return nil }
