package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// StorageAdapter is the fault-tolerant key/value surface used by the session
// manager. Implementations never fail: reads degrade to absent and writes are
// dropped after logging.
type StorageAdapter interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string)
	Remove(ctx context.Context, key string)
	Clear(ctx context.Context)
	Keys(ctx context.Context) []string
}

// StorageBackend is a concrete store that reports its failures. Backends are
// wrapped into a StorageAdapter before reaching the session manager.
type StorageBackend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	// OnUploadProgress receives cumulative bytes written of the request body.
	OnUploadProgress func(sent int64, total int64)
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// AuthGateway talks to the auth endpoints without attaching a bearer token.
type AuthGateway interface {
	Login(ctx context.Context, credentials Credentials) (AuthPayload, error)
	Register(ctx context.Context, req RegisterRequest) (AuthPayload, error)
	Refresh(ctx context.Context, refreshToken string) (AuthPayload, error)
}

// TokenSource supplies bearer tokens to the request pipeline.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshAfterUnauthorized(ctx context.Context, staleToken string) (string, error)
}

type DownloadSink interface {
	Save(ctx context.Context, file DownloadedFile) (string, error)
}

type NopStorage struct{}

func (NopStorage) Get(context.Context, string) (string, bool) { return "", false }

func (NopStorage) Set(context.Context, string, string) {}

func (NopStorage) Remove(context.Context, string) {}

func (NopStorage) Clear(context.Context) {}

func (NopStorage) Keys(context.Context) []string { return nil }
