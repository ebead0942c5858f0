package capability

import (
	"context"
	"errors"
	"maps"
	"net"
	"sync"

	"github.com/goliatone/go-clientcore/core"
	"github.com/goliatone/go-clientcore/logging"
	"github.com/goliatone/go-clientcore/platform"
	"github.com/goliatone/go-clientcore/storage"
	"github.com/goliatone/go-clientcore/storage/redisstore"
	"github.com/goliatone/go-clientcore/storage/sqlstore"
	"github.com/goliatone/go-clientcore/vendorservices"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/redis/go-redis/v9"
)

var ErrCapabilityUnavailable = errors.New("capability: unavailable on this device")

type NetworkStatus struct {
	Online bool
	Type   string
}

type DeviceInfo struct {
	Surface     platform.Surface
	VendorClass platform.VendorClass
	OS          string
	OSVersion   string
	Brand       string
}

// DeviceQueries answers device, network and location questions for the
// selected surface.
type DeviceQueries interface {
	Info(ctx context.Context) DeviceInfo
	Network(ctx context.Context) (NetworkStatus, error)
	Location(ctx context.Context) (vendorservices.Location, error)
}

type Options struct {
	Namespace string
	Logger    core.Logger

	// Redis backs web storage when set.
	Redis redis.UniversalClient
	// SQL backs mobile storage when its DSN is set.
	SQL sqlstore.Config
	// Cache fronts the chosen backend with a read-through cache when set.
	Cache repositorycache.CacheService

	Vendor      vendorservices.Initializers
	VendorInit  vendorservices.Options
	Network     func(ctx context.Context) (NetworkStatus, error)
	Location    func(ctx context.Context) (vendorservices.Location, error)
	StorageOpen func(ctx context.Context, cfg sqlstore.Config) (*sqlstore.Store, *persistence.Client, error)
}

// Factory builds capability adapters for a platform descriptor.
type Factory struct {
	opts   Options
	logger core.Logger

	mu      sync.Mutex
	closers []func() error
}

func NewFactory(opts Options) *Factory {
	if opts.Namespace == "" {
		opts.Namespace = core.DefaultStorageNamespace
	}
	if opts.StorageOpen == nil {
		opts.StorageOpen = sqlstore.Open
	}
	return &Factory{opts: opts, logger: glog.Ensure(opts.Logger)}
}

// CreateStorage picks the backend for the surface and wraps it so that
// storage failures never reach the caller.
func (f *Factory) CreateStorage(ctx context.Context, surface platform.Surface) core.StorageAdapter {
	backend := f.storageBackend(ctx, surface)
	if f.opts.Cache != nil {
		cached, err := storage.NewCached(backend, f.opts.Cache)
		if err != nil {
			f.logger.Warn("storage cache disabled", "error", err)
		} else {
			backend = cached
		}
	}
	return storage.NewTolerant(backend, storage.Options{Namespace: f.opts.Namespace, Logger: f.logger})
}

func (f *Factory) storageBackend(ctx context.Context, surface platform.Surface) core.StorageBackend {
	switch surface {
	case platform.SurfaceMobile:
		if f.opts.SQL.DSN == "" {
			return storage.NewMemory()
		}
		store, client, err := f.opts.StorageOpen(ctx, f.opts.SQL)
		if err != nil {
			f.logger.Warn("sql storage unavailable, using memory", "driver", f.opts.SQL.Driver, "error", err)
			return storage.NewMemory()
		}
		if client != nil {
			f.addCloser(client.Close)
		}
		return store
	default:
		if f.opts.Redis == nil {
			return storage.NewMemory()
		}
		store, err := redisstore.New(f.opts.Redis, redisstore.WithPrefix(f.opts.Namespace+":"))
		if err != nil {
			f.logger.Warn("redis storage unavailable, using memory", "error", err)
			return storage.NewMemory()
		}
		return store
	}
}

// CreateLogger tags every entry with the surface.
func (f *Factory) CreateLogger(surface platform.Surface, opts logging.Options) core.Logger {
	fields := maps.Clone(opts.Fields)
	if fields == nil {
		fields = map[string]any{}
	}
	fields["surface"] = string(surface)
	opts.Fields = fields
	return logging.New(opts)
}

// CreateVendorServices returns nil unless the device needs the vendor stack.
func (f *Factory) CreateVendorServices(descriptor platform.Descriptor) *vendorservices.Lazy {
	if !descriptor.RequiresVendorServices() {
		return nil
	}
	initOpts := f.opts.VendorInit
	if initOpts.Logger == nil {
		initOpts.Logger = f.logger
	}
	return vendorservices.NewLazy(f.opts.Vendor, initOpts)
}

func (f *Factory) CreateDeviceQueries(descriptor platform.Descriptor, vendor *vendorservices.Lazy) DeviceQueries {
	queries := &deviceQueries{descriptor: descriptor, network: f.opts.Network}
	switch {
	case vendor != nil:
		queries.location = func(ctx context.Context) (vendorservices.Location, error) {
			bundle := vendor.Get(ctx)
			if !bundle.Available(vendorservices.KindMap) {
				return vendorservices.Location{}, ErrCapabilityUnavailable
			}
			return bundle.Map.CurrentLocation(ctx)
		}
	case descriptor.IsMobile():
		queries.location = f.opts.Location
	}
	return queries
}

// Close releases database clients opened for storage.
func (f *Factory) Close() error {
	f.mu.Lock()
	closers := f.closers
	f.closers = nil
	f.mu.Unlock()
	var errs []error
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Factory) addCloser(closeFn func() error) {
	f.mu.Lock()
	f.closers = append(f.closers, closeFn)
	f.mu.Unlock()
}

type deviceQueries struct {
	descriptor platform.Descriptor
	network    func(ctx context.Context) (NetworkStatus, error)
	location   func(ctx context.Context) (vendorservices.Location, error)
}

func (q *deviceQueries) Info(context.Context) DeviceInfo {
	return DeviceInfo{
		Surface:     q.descriptor.Surface,
		VendorClass: q.descriptor.VendorClass,
		OS:          q.descriptor.OS,
		OSVersion:   q.descriptor.OSVersion,
		Brand:       q.descriptor.Brand,
	}
}

func (q *deviceQueries) Network(ctx context.Context) (NetworkStatus, error) {
	if q.network != nil {
		return q.network(ctx)
	}
	return interfaceNetworkStatus()
}

func (q *deviceQueries) Location(ctx context.Context) (vendorservices.Location, error) {
	if q.location == nil {
		return vendorservices.Location{}, ErrCapabilityUnavailable
	}
	return q.location(ctx)
}

// interfaceNetworkStatus reports online when any non-loopback interface is up.
func interfaceNetworkStatus() (NetworkStatus, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return NetworkStatus{}, err
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return NetworkStatus{Online: true, Type: "unknown"}, nil
		}
	}
	return NetworkStatus{Online: false, Type: "none"}, nil
}
