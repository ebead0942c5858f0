package core

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestNewService_ResolvesLayeredConfig(t *testing.T) {
	transport := newRecordingTransport(func(TransportRequest) (TransportResponse, error) {
		return okEnvelope(nil), nil
	})
	svc, err := NewService(
		Config{BaseURL: "https://runtime.example.com", Retry: RetryConfig{MaxAttempts: 5}},
		WithTransport(transport),
		WithConfigProvider(NewCfgxConfigProvider(NewStaticConfigLoader(map[string]any{
			"base_url": "https://loaded.example.com",
			"locale":   "zh-CN",
		}))),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.BaseURL != "https://runtime.example.com" {
		t.Fatalf("expected runtime layer to win, got %q", cfg.BaseURL)
	}
	if cfg.Locale != "zh-CN" {
		t.Fatalf("expected loaded layer locale, got %q", cfg.Locale)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelay != time.Second {
		t.Fatalf("expected merged retry config, got %+v", cfg.Retry)
	}
	if cfg.Auth.SessionKey != DefaultSessionKey {
		t.Fatalf("expected default session key, got %q", cfg.Auth.SessionKey)
	}
}

func TestNewService_RejectsMissingBaseURL(t *testing.T) {
	transport := newRecordingTransport(func(TransportRequest) (TransportResponse, error) {
		return okEnvelope(nil), nil
	})
	_, err := NewService(Config{}, WithTransport(transport))
	if err == nil {
		t.Fatalf("expected base url validation error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Code == 0 || richErr.TextCode == "" {
		t.Fatalf("expected mapped service error, got %v", err)
	}
}

func TestNewService_RequiresTransport(t *testing.T) {
	if _, err := NewService(Config{BaseURL: testBaseURL}); err == nil {
		t.Fatalf("expected missing transport error")
	}
}

func TestSetup_RestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	storage := newMemoryStorage()
	server := &authServer{role: "admin"}
	transport := newRecordingTransport(server.handle)

	first := newTestService(t, transport, WithStorage(storage))
	if _, err := first.Auth().Login(ctx, Credentials{Username: "admin", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := Setup(ctx, Config{BaseURL: testBaseURL}, WithTransport(transport), WithStorage(storage))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !second.Auth().IsAuthenticated() || !second.Auth().HasRole("admin") {
		t.Fatalf("expected restored admin session")
	}
}

func TestService_ObservesRequestsThroughMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	transport := newRecordingTransport(func(TransportRequest) (TransportResponse, error) {
		return okEnvelope(map[string]any{"id": 1}), nil
	})
	svc := newTestService(t, transport, WithMetricsRecorder(metrics))
	if _, err := Get[itemResult](context.Background(), svc.Client(), "/api/items/1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if metrics.counter("clientcore.http.request.total") != 1 {
		t.Fatalf("expected request counter, got %d", metrics.counter("clientcore.http.request.total"))
	}
}
