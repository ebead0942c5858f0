package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

const testBaseURL = "https://api.example.com"

type recordingTransport struct {
	mu       sync.Mutex
	handler  func(req TransportRequest) (TransportResponse, error)
	requests []TransportRequest
}

func newRecordingTransport(handler func(req TransportRequest) (TransportResponse, error)) *recordingTransport {
	return &recordingTransport{handler: handler}
}

func (t *recordingTransport) Do(_ context.Context, req TransportRequest) (TransportResponse, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	handler := t.handler
	t.mu.Unlock()
	return handler(req)
}

func (t *recordingTransport) count(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, req := range t.requests {
		if requestPath(req) == path {
			total++
		}
	}
	return total
}

func (t *recordingTransport) last(path string) (TransportRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.requests) - 1; i >= 0; i-- {
		if requestPath(t.requests[i]) == path {
			return t.requests[i], true
		}
	}
	return TransportRequest{}, false
}

func requestPath(req TransportRequest) string {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return req.URL
	}
	return parsed.Path
}

func bearer(req TransportRequest) string {
	return strings.TrimPrefix(req.Headers[HeaderAuthorization], "Bearer ")
}

func okEnvelope(data any) TransportResponse {
	body, _ := json.Marshal(map[string]any{"success": true, "data": data})
	return TransportResponse{StatusCode: 200, Body: body}
}

func failEnvelope(status int, message string) TransportResponse {
	body, _ := json.Marshal(map[string]any{"success": false, "message": message})
	return TransportResponse{StatusCode: status, Body: body}
}

func authData(access, refresh string, expiresAt time.Time, role string, permissions ...Permission) map[string]any {
	return map[string]any{
		"user": map[string]any{"id": "1", "username": "admin", "role": role},
		"token": map[string]any{
			"accessToken":  access,
			"refreshToken": refresh,
			"expiresAt":    expiresAt.UTC().Format(time.RFC3339),
		},
		"permissions": permissions,
	}
}

type memoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{values: map[string]string{}}
}

func (s *memoryStorage) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *memoryStorage) Set(_ context.Context, key string, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *memoryStorage) Remove(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *memoryStorage) Clear(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]string{}
}

func (s *memoryStorage) Keys(context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	return []byte("enc:" + base64.StdEncoding.EncodeToString(plaintext)), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := string(ciphertext)
	if !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (r *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = map[string]int64{}
	}
	r.counters[name] += value
}

func (r *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (r *recordingMetrics) counter(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestService(t *testing.T, transport TransportAdapter, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithTransport(transport),
		WithStorage(newMemoryStorage()),
		WithSleeper(noSleep),
	}
	svc, err := NewService(Config{BaseURL: testBaseURL}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// authServer serves login and refresh and accepts only the current token on
// every other path.
type authServer struct {
	mu            sync.Mutex
	current       string
	refreshCount  int
	refreshDelay  time.Duration
	refreshStatus int
	rejectAlways  bool
	role          string
	permissions   []Permission
}

func (s *authServer) handle(req TransportRequest) (TransportResponse, error) {
	switch requestPath(req) {
	case "/api/auth/login":
		s.mu.Lock()
		s.current = "token-1"
		role := s.role
		permissions := s.permissions
		s.mu.Unlock()
		if role == "" {
			role = "user"
		}
		return okEnvelope(authData("token-1", "refresh-1", time.Now().Add(time.Hour), role, permissions...)), nil
	case "/api/auth/refresh":
		s.mu.Lock()
		s.refreshCount++
		count := s.refreshCount
		delay := s.refreshDelay
		status := s.refreshStatus
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		if status != 0 {
			return failEnvelope(status, "refresh rejected"), nil
		}
		next := fmt.Sprintf("token-%d", count+1)
		s.mu.Lock()
		s.current = next
		s.mu.Unlock()
		return okEnvelope(map[string]any{"token": map[string]any{
			"accessToken":  next,
			"refreshToken": fmt.Sprintf("refresh-%d", count+1),
			"expiresAt":    time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		}}), nil
	default:
		s.mu.Lock()
		current := s.current
		reject := s.rejectAlways
		s.mu.Unlock()
		if reject || current == "" || bearer(req) != current {
			return failEnvelope(401, "token expired"), nil
		}
		return okEnvelope(map[string]any{"id": 7, "path": requestPath(req)}), nil
	}
}

// expire makes the server reject the token the client currently holds.
func (s *authServer) expire() {
	s.mu.Lock()
	s.current = "server-rotated"
	s.mu.Unlock()
}

func (s *authServer) refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCount
}
