package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	transport       TransportAdapter
	storage         StorageAdapter
	secretProvider  SecretProvider
	authGateway     AuthGateway
	downloadSink    DownloadSink
	clock           func() time.Time
	requestIDs      func() string
	sleep           SleepFunc
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithTransport(transport TransportAdapter) Option {
	return func(b *serviceBuilder) {
		b.transport = transport
	}
}

func WithStorage(storage StorageAdapter) Option {
	return func(b *serviceBuilder) {
		b.storage = storage
	}
}

// WithSecretProvider encrypts the persisted session projection at rest.
func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

// WithAuthGateway replaces the HTTP auth endpoints client.
func WithAuthGateway(gateway AuthGateway) Option {
	return func(b *serviceBuilder) {
		b.authGateway = gateway
	}
}

func WithDownloadSink(sink DownloadSink) Option {
	return func(b *serviceBuilder) {
		b.downloadSink = sink
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithRequestIDGenerator(generator func() string) Option {
	return func(b *serviceBuilder) {
		b.requestIDs = generator
	}
}

func WithSleeper(sleep SleepFunc) Option {
	return func(b *serviceBuilder) {
		b.sleep = sleep
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("clientcore", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		storage:         NopStorage{},
		clock:           utcNow,
		requestIDs:      newRequestID,
		sleep:           waitWithContext,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return clientErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader serves a fixed raw configuration map.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes the raw layer over defaults. Validation is deferred to the
// resolver since the base URL usually arrives with the runtime layer.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = value
		}
	}
	setDuration := func(target map[string]any, key string, value time.Duration) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}
	setInt := func(target map[string]any, key string, value int) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}

	setString(layer, "service_name", cfg.ServiceName)
	setString(layer, "base_url", cfg.BaseURL)
	setDuration(layer, "timeout", cfg.Timeout)
	setString(layer, "locale", cfg.Locale)

	retry := map[string]any{}
	setInt(retry, "max_attempts", cfg.Retry.MaxAttempts)
	setDuration(retry, "base_delay", cfg.Retry.BaseDelay)
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	auth := map[string]any{}
	setString(auth, "login_path", cfg.Auth.LoginPath)
	setString(auth, "register_path", cfg.Auth.RegisterPath)
	setString(auth, "refresh_path", cfg.Auth.RefreshPath)
	setString(auth, "session_key", cfg.Auth.SessionKey)
	setString(auth, "admin_role", cfg.Auth.AdminRole)
	setDuration(auth, "default_token_ttl", cfg.Auth.DefaultTokenTTL)
	setDuration(auth, "refresh_timeout", cfg.Auth.RefreshTimeout)
	setDuration(auth, "expiry_leeway", cfg.Auth.ExpiryLeeway)
	if len(auth) > 0 {
		layer["auth"] = auth
	}

	logging := map[string]any{}
	if includeZero || cfg.Logging.VerbosePayloads {
		logging["verbose_payloads"] = cfg.Logging.VerbosePayloads
	}
	setString(logging, "remote_url", cfg.Logging.RemoteURL)
	setInt(logging, "buffer_size", cfg.Logging.BufferSize)
	if len(logging) > 0 {
		layer["logging"] = logging
	}

	if includeZero || strings.TrimSpace(cfg.Storage.Namespace) != "" {
		layer["storage"] = map[string]any{
			"namespace": cfg.Storage.Namespace,
		}
	}
	return layer
}

func utcNow() time.Time {
	return time.Now().UTC()
}
