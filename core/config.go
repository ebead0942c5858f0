package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultRequestTimeout   = 30 * time.Second
	DefaultRefreshTimeout   = 15 * time.Second
	DefaultTokenTTL         = time.Hour
	DefaultExpiryLeeway     = 10 * time.Second
	DefaultSessionKey       = "auth.session"
	DefaultAdminRole        = "admin"
	DefaultStorageNamespace = "clientcore"
	DefaultLogBufferSize    = 100
)

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
}

type AuthConfig struct {
	LoginPath       string        `koanf:"login_path" mapstructure:"login_path"`
	RegisterPath    string        `koanf:"register_path" mapstructure:"register_path"`
	RefreshPath     string        `koanf:"refresh_path" mapstructure:"refresh_path"`
	SessionKey      string        `koanf:"session_key" mapstructure:"session_key"`
	AdminRole       string        `koanf:"admin_role" mapstructure:"admin_role"`
	DefaultTokenTTL time.Duration `koanf:"default_token_ttl" mapstructure:"default_token_ttl"`
	RefreshTimeout  time.Duration `koanf:"refresh_timeout" mapstructure:"refresh_timeout"`
	ExpiryLeeway    time.Duration `koanf:"expiry_leeway" mapstructure:"expiry_leeway"`
}

type LoggingConfig struct {
	// VerbosePayloads opts into request/response body logging. Bodies are
	// still passed through redaction.
	VerbosePayloads bool   `koanf:"verbose_payloads" mapstructure:"verbose_payloads"`
	RemoteURL       string `koanf:"remote_url" mapstructure:"remote_url"`
	BufferSize      int    `koanf:"buffer_size" mapstructure:"buffer_size"`
}

type StorageConfig struct {
	Namespace string `koanf:"namespace" mapstructure:"namespace"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	BaseURL     string        `koanf:"base_url" mapstructure:"base_url"`
	Timeout     time.Duration `koanf:"timeout" mapstructure:"timeout"`
	Locale      string        `koanf:"locale" mapstructure:"locale"`
	Retry       RetryConfig   `koanf:"retry" mapstructure:"retry"`
	Auth        AuthConfig    `koanf:"auth" mapstructure:"auth"`
	Logging     LoggingConfig `koanf:"logging" mapstructure:"logging"`
	Storage     StorageConfig `koanf:"storage" mapstructure:"storage"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "clientcore",
		Timeout:     DefaultRequestTimeout,
		Locale:      DefaultLocale,
		Retry: RetryConfig{
			MaxAttempts: DefaultRetryMaxAttempts,
			BaseDelay:   DefaultRetryBaseDelay,
		},
		Auth: AuthConfig{
			LoginPath:       "/api/auth/login",
			RegisterPath:    "/api/auth/register",
			RefreshPath:     "/api/auth/refresh",
			SessionKey:      DefaultSessionKey,
			AdminRole:       DefaultAdminRole,
			DefaultTokenTTL: DefaultTokenTTL,
			RefreshTimeout:  DefaultRefreshTimeout,
			ExpiryLeeway:    DefaultExpiryLeeway,
		},
		Logging: LoggingConfig{
			BufferSize: DefaultLogBufferSize,
		},
		Storage: StorageConfig{
			Namespace: DefaultStorageNamespace,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("core: base_url is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: base_url %q is invalid", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("core: timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("core: retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("core: retry.base_delay must not be negative")
	}
	for name, path := range map[string]string{
		"auth.login_path":    c.Auth.LoginPath,
		"auth.register_path": c.Auth.RegisterPath,
		"auth.refresh_path":  c.Auth.RefreshPath,
		"auth.session_key":   c.Auth.SessionKey,
	} {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("core: %s is required", name)
		}
	}
	if c.Auth.DefaultTokenTTL <= 0 {
		return fmt.Errorf("core: auth.default_token_ttl must be positive")
	}
	if c.Auth.ExpiryLeeway < 0 {
		return fmt.Errorf("core: auth.expiry_leeway must not be negative")
	}
	if c.Logging.BufferSize < 1 {
		return fmt.Errorf("core: logging.buffer_size must be at least 1")
	}
	return nil
}
