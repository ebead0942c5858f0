package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPAuthGateway calls the auth endpoints through an unauthenticated client.
type HTTPAuthGateway struct {
	client *Client
	cfg    AuthConfig
}

func NewHTTPAuthGateway(client *Client, cfg AuthConfig) (*HTTPAuthGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("core: auth gateway client is required")
	}
	return &HTTPAuthGateway{client: client, cfg: cfg}, nil
}

func (g *HTTPAuthGateway) Login(ctx context.Context, credentials Credentials) (AuthPayload, error) {
	return g.call(ctx, "auth.login", g.cfg.LoginPath, credentials)
}

func (g *HTTPAuthGateway) Register(ctx context.Context, req RegisterRequest) (AuthPayload, error) {
	return g.call(ctx, "auth.register", g.cfg.RegisterPath, req)
}

func (g *HTTPAuthGateway) Refresh(ctx context.Context, refreshToken string) (AuthPayload, error) {
	return g.call(ctx, "auth.refresh", g.cfg.RefreshPath, map[string]string{"refreshToken": refreshToken})
}

func (g *HTTPAuthGateway) call(ctx context.Context, operation, path string, body any) (AuthPayload, error) {
	if g == nil || g.client == nil {
		return AuthPayload{}, fmt.Errorf("core: auth gateway is not configured")
	}
	resp, err := g.client.Do(ctx, Request{
		Method:    http.MethodPost,
		Path:      path,
		Body:      body,
		SkipAuth:  true,
		Operation: operation,
	})
	if err != nil {
		return AuthPayload{}, err
	}
	if len(resp.Data) == 0 {
		return AuthPayload{}, nil
	}
	var payload AuthPayload
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return AuthPayload{}, Classify(Failure{
			Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, err),
			Responded:  true,
			StatusCode: resp.StatusCode,
			Body:       resp.Data,
		})
	}
	return payload, nil
}
