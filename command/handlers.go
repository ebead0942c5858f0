package command

import (
	"context"

	"github.com/goliatone/go-clientcore/core"
	gocmd "github.com/goliatone/go-command"
)

// AuthService is the mutating surface of the token lifecycle manager.
type AuthService interface {
	Login(ctx context.Context, credentials core.Credentials) (core.Session, error)
	Register(ctx context.Context, req core.RegisterRequest) (core.Session, error)
	Refresh(ctx context.Context) (core.Session, error)
	Logout(ctx context.Context)
	Restore(ctx context.Context) core.AuthState
}

type LoginCommand struct {
	service AuthService
}

func NewLoginCommand(service AuthService) *LoginCommand {
	return &LoginCommand{service: service}
}

func (c *LoginCommand) Execute(ctx context.Context, msg LoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Login(ctx, msg.Credentials)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterCommand struct {
	service AuthService
}

func NewRegisterCommand(service AuthService) *RegisterCommand {
	return &RegisterCommand{service: service}
}

func (c *RegisterCommand) Execute(ctx context.Context, msg RegisterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Register(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCommand struct {
	service AuthService
}

func NewRefreshCommand(service AuthService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, _ RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	out, err := c.service.Refresh(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LogoutCommand struct {
	service AuthService
}

func NewLogoutCommand(service AuthService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, _ LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	c.service.Logout(ctx)
	return nil
}

type RestoreCommand struct {
	service AuthService
}

func NewRestoreCommand(service AuthService) *RestoreCommand {
	return &RestoreCommand{service: service}
}

func (c *RestoreCommand) Execute(ctx context.Context, _ RestoreMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	storeResult(ctx, c.service.Restore(ctx))
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
