package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-clientcore/core"
)

type capturingSink struct {
	mu      sync.Mutex
	batches [][]Entry
	err     error
	sent    chan struct{}
}

func newCapturingSink() *capturingSink {
	return &capturingSink{sent: make(chan struct{}, 16)}
}

func (s *capturingSink) Send(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	s.batches = append(s.batches, append([]Entry(nil), entries...))
	err := s.err
	s.mu.Unlock()
	s.sent <- struct{}{}
	return err
}

func (s *capturingSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, 0, len(s.batches))
	for _, batch := range s.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func (s *capturingSink) waitForBatch(t *testing.T) {
	t.Helper()
	select {
	case <-s.sent:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for batch")
	}
}

func TestRemote_ShipsFullBufferInBackground(t *testing.T) {
	sink := newCapturingSink()
	logger := NewRemote(RemoteOptions{Sink: sink, BufferSize: 3})

	logger.Info("one")
	logger.Warn("two")
	if logger.Pending() != 2 {
		t.Fatalf("expected 2 pending entries, got %d", logger.Pending())
	}
	logger.Error("three")
	sink.waitForBatch(t)

	if sizes := sink.batchSizes(); len(sizes) != 1 || sizes[0] != 3 {
		t.Fatalf("expected one batch of 3, got %v", sizes)
	}
	if logger.Pending() != 0 {
		t.Fatalf("expected drained buffer")
	}
}

func TestRemote_DefaultBufferHoldsHundredEntries(t *testing.T) {
	sink := newCapturingSink()
	logger := NewRemote(RemoteOptions{Sink: sink})
	for range DefaultBufferSize - 1 {
		logger.Debug("entry")
	}
	if logger.Pending() != DefaultBufferSize-1 {
		t.Fatalf("expected %d pending entries, got %d", DefaultBufferSize-1, logger.Pending())
	}
	logger.Debug("entry")
	sink.waitForBatch(t)
	if sizes := sink.batchSizes(); sizes[0] != 100 {
		t.Fatalf("expected batch of 100, got %v", sizes)
	}
}

func TestRemote_FlushAndCloseDrain(t *testing.T) {
	sink := newCapturingSink()
	logger := NewRemote(RemoteOptions{Sink: sink, BufferSize: 10})
	logger.Info("a")
	logger.Trace("b")
	if err := logger.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sizes := sink.batchSizes(); len(sizes) != 1 || sizes[0] != 2 {
		t.Fatalf("expected flushed batch of 2, got %v", sizes)
	}

	logger.Fatal("c")
	if err := logger.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	logger.Info("after close")
	if logger.Pending() != 0 {
		t.Fatalf("expected no buffering after close")
	}
	sink.mu.Lock()
	last := sink.batches[len(sink.batches)-1][0]
	sink.mu.Unlock()
	if last.Level != "error" || last.Message != "c" {
		t.Fatalf("expected fatal recorded at error level, got %+v", last)
	}
}

func TestRemote_SinkFailureIsSwallowed(t *testing.T) {
	sink := newCapturingSink()
	sink.err = errors.New("collector down")
	logger := NewRemote(RemoteOptions{Sink: sink, BufferSize: 1})
	logger.Info("lost")
	sink.waitForBatch(t)
	if err := logger.Flush(context.Background()); err != nil {
		t.Fatalf("expected flush to succeed after failed ship, got %v", err)
	}
}

func TestRemote_LevelFilterAndFields(t *testing.T) {
	sink := newCapturingSink()
	logger := NewRemote(RemoteOptions{
		Sink:       sink,
		BufferSize: 10,
		Level:      LevelWarn,
		Fields:     map[string]any{"surface": "web"},
	})
	logger.Debug("dropped")
	scoped := logger.WithFields(map[string]any{"request_id": "r1"})
	scoped.Warn("kept", "password", "secret", "status", 503, "error", errors.New("boom"))
	if err := logger.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.batches) != 1 || len(sink.batches[0]) != 1 {
		t.Fatalf("expected single warn entry, got %v", sink.batches)
	}
	fields := sink.batches[0][0].Fields
	if fields["surface"] != "web" || fields["request_id"] != "r1" {
		t.Fatalf("expected inherited fields, got %v", fields)
	}
	if fields["password"] != core.RedactedValue {
		t.Fatalf("expected password redaction, got %v", fields["password"])
	}
	if fields["error"] != "boom" || fields["status"] != 503 {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestConsole_WritesAboveLevel(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out, LevelInfo)
	console.Debug("hidden")
	console.WithFields(map[string]any{"component": "auth"}).Info("visible", "k", "v")
	text := out.String()
	if strings.Contains(text, "hidden") {
		t.Fatalf("expected debug entry to be filtered: %s", text)
	}
	if !strings.Contains(text, "visible") || !strings.Contains(text, "component=auth") || !strings.Contains(text, "k=v") {
		t.Fatalf("unexpected console output: %s", text)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"trace": LevelDebug, "FATAL": LevelError, "warning": LevelWarn, "": LevelInfo}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

type recordingTransport struct {
	last   core.TransportRequest
	status int
}

func (r *recordingTransport) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	r.last = req
	return core.TransportResponse{StatusCode: r.status}, nil
}

func TestHTTPSink_PostsEntries(t *testing.T) {
	transport := &recordingTransport{status: 202}
	sink, err := NewHTTPSink(transport, "https://logs.example.com/ingest", map[string]string{"X-Api-Key": "k"})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Send(context.Background(), []Entry{{Level: "info", Message: "m"}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if transport.last.Method != "POST" || transport.last.Headers["X-Api-Key"] != "k" {
		t.Fatalf("unexpected request %+v", transport.last)
	}
	var payload struct {
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(transport.last.Body, &payload); err != nil || len(payload.Entries) != 1 {
		t.Fatalf("unexpected body %s", transport.last.Body)
	}

	transport.status = 500
	if err := sink.Send(context.Background(), []Entry{{Message: "m"}}); err == nil {
		t.Fatalf("expected status error")
	}
	if _, err := NewHTTPSink(nil, "x", nil); err == nil {
		t.Fatalf("expected missing transport error")
	}
}

func TestNew_SelectsConsoleOrRemote(t *testing.T) {
	var out bytes.Buffer
	if _, ok := New(Options{Writer: &out}).(*Console); !ok {
		t.Fatalf("expected console logger without a sink")
	}
	remote, ok := New(Options{Writer: &out, Sink: newCapturingSink(), Fields: map[string]any{"surface": "mobile"}}).(*Remote)
	if !ok {
		t.Fatalf("expected remote logger with a sink")
	}
	remote.Info("hello")
	if remote.Pending() != 1 || !strings.Contains(out.String(), "surface=mobile") {
		t.Fatalf("expected buffered entry mirrored to console, got %q", out.String())
	}
}
