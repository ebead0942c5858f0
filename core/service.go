package core

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"
)

// Service wires the authenticated client and the session manager over one
// transport and storage.
type Service struct {
	config          Config
	logger          Logger
	metricsRecorder MetricsRecorder
	client          *Client
	auth            *AuthManager
	storage         StorageAdapter
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("clientcore", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("clientcore"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.storage == nil {
		builder.storage = NopStorage{}
	}
	if builder.transport == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: transport adapter is required"))
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	clientDeps := ClientDependencies{
		Logger:          logger,
		MetricsRecorder: builder.metricsRecorder,
		DownloadSink:    builder.downloadSink,
		RequestIDs:      builder.requestIDs,
		Clock:           builder.clock,
		Sleep:           builder.sleep,
	}
	gateway := builder.authGateway
	if gateway == nil {
		anonymous, err := NewClient(finalConfig, builder.transport, nil, clientDeps)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		httpGateway, err := NewHTTPAuthGateway(anonymous, finalConfig.Auth)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		gateway = httpGateway
	}

	auth, err := NewAuthManager(finalConfig.Auth, gateway, AuthManagerDependencies{
		Storage:         builder.storage,
		SecretProvider:  builder.secretProvider,
		Logger:          logger,
		MetricsRecorder: builder.metricsRecorder,
		Clock:           builder.clock,
	})
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	client, err := NewClient(finalConfig, builder.transport, auth, clientDeps)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		metricsRecorder: builder.metricsRecorder,
		client:          client,
		auth:            auth,
		storage:         builder.storage,
	}, nil
}

// Setup builds the service and restores any persisted session.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	svc, err := NewService(cfg, opts...)
	if err != nil {
		return nil, err
	}
	svc.auth.Restore(ctx)
	return svc, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil || s.logger == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) Client() *Client {
	if s == nil {
		return nil
	}
	return s.client
}

func (s *Service) Auth() *AuthManager {
	if s == nil {
		return nil
	}
	return s.auth
}

// UserMessage renders err in the configured locale.
func (s *Service) UserMessage(err error) string {
	if s == nil {
		return UserMessage(err, DefaultLocale)
	}
	return UserMessage(err, s.config.Locale)
}

func (s *Service) Storage() StorageAdapter {
	if s == nil || s.storage == nil {
		return NopStorage{}
	}
	return s.storage
}
