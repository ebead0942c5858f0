package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-clientcore/core"
)

const defaultSinkTimeout = 10 * time.Second

// HTTPSink posts batches as {"entries": [...]} to a collector endpoint.
type HTTPSink struct {
	transport core.TransportAdapter
	url       string
	headers   map[string]string
	timeout   time.Duration
}

func NewHTTPSink(transport core.TransportAdapter, url string, headers map[string]string) (*HTTPSink, error) {
	if transport == nil {
		return nil, fmt.Errorf("logging: transport adapter is required")
	}
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("logging: remote url is required")
	}
	copied := make(map[string]string, len(headers)+1)
	for key, value := range headers {
		copied[key] = value
	}
	copied[core.HeaderContentType] = "application/json"
	return &HTTPSink{
		transport: transport,
		url:       strings.TrimSpace(url),
		headers:   copied,
		timeout:   defaultSinkTimeout,
	}, nil
}

func (s *HTTPSink) Send(ctx context.Context, entries []Entry) error {
	if s == nil || s.transport == nil {
		return fmt.Errorf("logging: http sink is not configured")
	}
	if len(entries) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string]any{"entries": entries})
	if err != nil {
		return fmt.Errorf("logging: encode batch: %w", err)
	}
	res, err := s.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     s.url,
		Headers: s.headers,
		Body:    body,
		Timeout: s.timeout,
	})
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("logging: collector returned status %d", res.StatusCode)
	}
	return nil
}

var _ BatchSink = (*HTTPSink)(nil)
