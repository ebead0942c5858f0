package vendorservices

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/goliatone/go-clientcore/core"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/errgroup"
)

type Kind string

const (
	KindPush      Kind = "push"
	KindAnalytics Kind = "analytics"
	KindAccount   Kind = "account"
	KindMap       Kind = "map"
)

type PushService interface {
	RegisterDevice(ctx context.Context) (string, error)
}

type AnalyticsService interface {
	Track(ctx context.Context, event string, properties map[string]any) error
}

type AccountProfile struct {
	AccountID   string
	DisplayName string
}

type AccountService interface {
	SignIn(ctx context.Context) (AccountProfile, error)
}

type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Provider  string
}

type MapService interface {
	CurrentLocation(ctx context.Context) (Location, error)
}

// Initializers build each vendor sub-service. A nil initializer leaves that
// capability unavailable.
type Initializers struct {
	Push      func(ctx context.Context) (PushService, error)
	Analytics func(ctx context.Context) (AnalyticsService, error)
	Account   func(ctx context.Context) (AccountService, error)
	Map       func(ctx context.Context) (MapService, error)
}

// Bundle holds whichever sub-services initialized. A failed sub-service is
// nil and its error is kept in Failures.
type Bundle struct {
	Push      PushService
	Analytics AnalyticsService
	Account   AccountService
	Map       MapService

	failures map[Kind]error
}

func (b *Bundle) Available(kind Kind) bool {
	if b == nil {
		return false
	}
	switch kind {
	case KindPush:
		return b.Push != nil
	case KindAnalytics:
		return b.Analytics != nil
	case KindAccount:
		return b.Account != nil
	case KindMap:
		return b.Map != nil
	default:
		return false
	}
}

func (b *Bundle) Failures() map[Kind]error {
	if b == nil {
		return nil
	}
	return maps.Clone(b.failures)
}

type Options struct {
	Logger      core.Logger
	InitTimeout time.Duration
}

// Build runs every initializer concurrently and waits for all of them. A
// failing or panicking initializer only marks its own capability unavailable.
func Build(ctx context.Context, init Initializers, opts Options) *Bundle {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.InitTimeout)
		defer cancel()
	}
	logger := glog.Ensure(opts.Logger)
	bundle := &Bundle{failures: map[Kind]error{}}
	var mu sync.Mutex
	var group errgroup.Group

	settle := func(kind Kind, run func() error) {
		group.Go(func() (err error) {
			defer func() {
				if recovered := recover(); recovered != nil {
					err = fmt.Errorf("vendorservices: %s initializer panicked: %v", kind, recovered)
				}
				if err != nil {
					mu.Lock()
					bundle.failures[kind] = err
					mu.Unlock()
					logger.Warn("vendor service unavailable", "service", string(kind), "error", err)
				}
				err = nil
			}()
			return run()
		})
	}

	if init.Push != nil {
		settle(KindPush, func() error {
			service, err := init.Push(ctx)
			return assign(&mu, &bundle.Push, service, err)
		})
	}
	if init.Analytics != nil {
		settle(KindAnalytics, func() error {
			service, err := init.Analytics(ctx)
			return assign(&mu, &bundle.Analytics, service, err)
		})
	}
	if init.Account != nil {
		settle(KindAccount, func() error {
			service, err := init.Account(ctx)
			return assign(&mu, &bundle.Account, service, err)
		})
	}
	if init.Map != nil {
		settle(KindMap, func() error {
			service, err := init.Map(ctx)
			return assign(&mu, &bundle.Map, service, err)
		})
	}

	_ = group.Wait()
	return bundle
}

func assign[T comparable](mu *sync.Mutex, slot *T, service T, err error) error {
	if err != nil {
		return err
	}
	var zero T
	if service == zero {
		return fmt.Errorf("vendorservices: initializer returned no service")
	}
	mu.Lock()
	*slot = service
	mu.Unlock()
	return nil
}

// Lazy builds the bundle on first use and returns the same bundle afterwards.
type Lazy struct {
	once   sync.Once
	init   Initializers
	opts   Options
	bundle *Bundle
}

func NewLazy(init Initializers, opts Options) *Lazy {
	return &Lazy{init: init, opts: opts}
}

// Get builds the bundle once. The build is detached from the caller's
// cancellation so an abandoned first call cannot poison the bundle.
func (l *Lazy) Get(ctx context.Context) *Bundle {
	if l == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	l.once.Do(func() {
		l.bundle = Build(context.WithoutCancel(ctx), l.init, l.opts)
	})
	return l.bundle
}
