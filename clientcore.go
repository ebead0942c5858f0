// Package clientcore assembles the client core for the current host: the
// platform descriptor selects storage, logging and device capabilities, and
// the authenticated API client and session manager run on top of them.
package clientcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-clientcore/capability"
	clientcommand "github.com/goliatone/go-clientcore/command"
	"github.com/goliatone/go-clientcore/core"
	"github.com/goliatone/go-clientcore/logging"
	"github.com/goliatone/go-clientcore/platform"
	clientquery "github.com/goliatone/go-clientcore/query"
	"github.com/goliatone/go-clientcore/security"
	"github.com/goliatone/go-clientcore/transport"
)

type Options struct {
	// Descriptor skips detection when set.
	Descriptor *platform.Descriptor
	Detector   *platform.Detector
	Capability capability.Options
	Transport  core.TransportAdapter

	// SessionSecret encrypts the persisted session when set.
	SessionSecret string
	CipherOptions []security.Option

	LogLevel  logging.Level
	LogWriter io.Writer
	// LogSink overrides the HTTP sink built from logging.remote_url.
	LogSink logging.BatchSink

	ServiceOptions []core.Option
}

type Commands struct {
	Login    *clientcommand.LoginCommand
	Register *clientcommand.RegisterCommand
	Refresh  *clientcommand.RefreshCommand
	Logout   *clientcommand.LogoutCommand
	Restore  *clientcommand.RestoreCommand
}

type Queries struct {
	CurrentSession *clientquery.CurrentSessionQuery
	HasPermission  *clientquery.HasPermissionQuery
	HasRole        *clientquery.HasRoleQuery
}

type Client struct {
	service      *core.Service
	capabilities capability.Capabilities
	factory      *capability.Factory
	commands     Commands
	queries      Queries
}

// New detects the platform, resolves its capabilities and restores any
// persisted session.
func New(ctx context.Context, cfg core.Config, opts Options) (*Client, error) {
	descriptor := resolveDescriptor(opts)

	adapter := opts.Transport
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}

	capOpts := opts.Capability
	if capOpts.Namespace == "" {
		capOpts.Namespace = cfg.Storage.Namespace
	}
	factory := capability.NewFactory(capOpts)

	logOpts := logging.Options{
		Level:      opts.LogLevel,
		Writer:     opts.LogWriter,
		Sink:       opts.LogSink,
		BufferSize: cfg.Logging.BufferSize,
		Fields:     map[string]any{"service": serviceName(cfg)},
	}
	if logOpts.Sink == nil && strings.TrimSpace(cfg.Logging.RemoteURL) != "" {
		sink, err := logging.NewHTTPSink(adapter, cfg.Logging.RemoteURL, nil)
		if err != nil {
			return nil, err
		}
		logOpts.Sink = sink
	}

	caps := factory.Resolve(ctx, descriptor, logOpts)

	serviceOpts := []core.Option{
		core.WithTransport(adapter),
		core.WithStorage(caps.Storage()),
		core.WithLogger(caps.Logger()),
	}
	if secret := strings.TrimSpace(opts.SessionSecret); secret != "" {
		cipher, err := security.NewSessionCipherFromString(secret, opts.CipherOptions...)
		if err != nil {
			_ = factory.Close()
			return nil, fmt.Errorf("clientcore: session cipher: %w", err)
		}
		serviceOpts = append(serviceOpts, core.WithSecretProvider(cipher))
	}
	serviceOpts = append(serviceOpts, opts.ServiceOptions...)

	service, err := core.Setup(ctx, cfg, serviceOpts...)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}

	auth := service.Auth()
	return &Client{
		service:      service,
		capabilities: caps,
		factory:      factory,
		commands: Commands{
			Login:    clientcommand.NewLoginCommand(auth),
			Register: clientcommand.NewRegisterCommand(auth),
			Refresh:  clientcommand.NewRefreshCommand(auth),
			Logout:   clientcommand.NewLogoutCommand(auth),
			Restore:  clientcommand.NewRestoreCommand(auth),
		},
		queries: Queries{
			CurrentSession: clientquery.NewCurrentSessionQuery(auth),
			HasPermission:  clientquery.NewHasPermissionQuery(auth),
			HasRole:        clientquery.NewHasRoleQuery(auth),
		},
	}, nil
}

func (c *Client) Service() *core.Service {
	if c == nil {
		return nil
	}
	return c.service
}

func (c *Client) API() *core.Client {
	if c == nil || c.service == nil {
		return nil
	}
	return c.service.Client()
}

func (c *Client) Auth() *core.AuthManager {
	if c == nil || c.service == nil {
		return nil
	}
	return c.service.Auth()
}

// UserMessage renders err for display in the configured locale.
func (c *Client) UserMessage(err error) string {
	if c == nil {
		return core.UserMessage(err, core.DefaultLocale)
	}
	return c.service.UserMessage(err)
}

func (c *Client) Capabilities() capability.Capabilities {
	if c == nil {
		return nil
	}
	return c.capabilities
}

func (c *Client) Commands() Commands {
	if c == nil {
		return Commands{}
	}
	return c.commands
}

func (c *Client) Queries() Queries {
	if c == nil {
		return Queries{}
	}
	return c.queries
}

// Close flushes buffered remote logs and releases storage clients.
func (c *Client) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.capabilities != nil {
		if remote, ok := c.capabilities.Logger().(*logging.Remote); ok {
			errs = append(errs, remote.Close(ctx))
		}
	}
	if c.factory != nil {
		errs = append(errs, c.factory.Close())
	}
	return errors.Join(errs...)
}

func resolveDescriptor(opts Options) platform.Descriptor {
	if opts.Descriptor != nil {
		return *opts.Descriptor
	}
	if opts.Detector != nil {
		return opts.Detector.Detect()
	}
	return platform.Detect()
}

func serviceName(cfg core.Config) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return core.DefaultConfig().ServiceName
}
