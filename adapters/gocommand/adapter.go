package gocommand

import (
	"context"
	"fmt"
	"strings"

	clientcommand "github.com/goliatone/go-clientcore/command"
	clientquery "github.com/goliatone/go-clientcore/query"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) Register(handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(handler)
}

// AddQueueResolver mirrors registered handlers into a go-job queue registry
// so auth commands can also run from a worker.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// AuthManager is satisfied by *core.AuthManager.
type AuthManager interface {
	clientcommand.AuthService
	clientquery.SessionReader
}

// Subscriptions groups dispatcher subscriptions so they can be dropped together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterAuth subscribes the auth commands and session queries on the
// global dispatcher and records them in the registry.
func RegisterAuth(adapter *RegistryAdapter, manager AuthManager, runnerOpts ...runner.Option) (Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if manager == nil {
		return nil, fmt.Errorf("gocommand: auth manager is required")
	}

	var subs Subscriptions
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return registerCommand(adapter, clientcommand.NewLoginCommand(manager), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand(adapter, clientcommand.NewRegisterCommand(manager), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand(adapter, clientcommand.NewRefreshCommand(manager), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand(adapter, clientcommand.NewLogoutCommand(manager), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand(adapter, clientcommand.NewRestoreCommand(manager), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery(adapter, clientquery.NewCurrentSessionQuery(manager), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery(adapter, clientquery.NewHasPermissionQuery(manager), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery(adapter, clientquery.NewHasRoleQuery(manager), runnerOpts...)
		},
	}
	for _, step := range steps {
		sub, err := step()
		if err != nil {
			subs.Unsubscribe()
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func registerCommand[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.Register(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func registerQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.Register(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}
