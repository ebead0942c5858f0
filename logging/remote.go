package logging

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/goliatone/go-clientcore/core"
	glog "github.com/goliatone/go-logger/glog"
)

// DefaultBufferSize is the number of entries held before a batch is shipped.
const DefaultBufferSize = core.DefaultLogBufferSize

type Entry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// BatchSink ships a batch of entries to a remote collector.
type BatchSink interface {
	Send(ctx context.Context, entries []Entry) error
}

type RemoteOptions struct {
	Local      core.Logger
	Sink       BatchSink
	BufferSize int
	Level      Level
	Fields     map[string]any
	Clock      func() time.Time
}

// Remote mirrors every entry to a local logger and buffers it for a remote
// sink. A full buffer is shipped on a background goroutine, so callers never
// wait on the network. Ship failures are reported to the local logger and the
// batch is dropped.
type Remote struct {
	shared *remoteBuffer
	local  core.Logger
	fields map[string]any
}

type remoteBuffer struct {
	mu       sync.Mutex
	entries  []Entry
	size     int
	level    Level
	sink     BatchSink
	local    core.Logger
	clock    func() time.Time
	closed   bool
	inflight sync.WaitGroup
}

func NewRemote(opts RemoteOptions) *Remote {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	local := glog.Ensure(opts.Local)
	return &Remote{
		shared: &remoteBuffer{
			entries: make([]Entry, 0, size),
			size:    size,
			level:   opts.Level,
			sink:    opts.Sink,
			local:   local,
			clock:   clock,
		},
		local:  local,
		fields: maps.Clone(opts.Fields),
	}
}

func (r *Remote) Trace(msg string, args ...any) {
	r.local.Trace(msg, args...)
	r.enqueue(LevelDebug, msg, args)
}

func (r *Remote) Debug(msg string, args ...any) {
	r.local.Debug(msg, args...)
	r.enqueue(LevelDebug, msg, args)
}

func (r *Remote) Info(msg string, args ...any) {
	r.local.Info(msg, args...)
	r.enqueue(LevelInfo, msg, args)
}

func (r *Remote) Warn(msg string, args ...any) {
	r.local.Warn(msg, args...)
	r.enqueue(LevelWarn, msg, args)
}

func (r *Remote) Error(msg string, args ...any) {
	r.local.Error(msg, args...)
	r.enqueue(LevelError, msg, args)
}

// Fatal records at error level. It never exits the process.
func (r *Remote) Fatal(msg string, args ...any) {
	r.local.Error(msg, args...)
	r.enqueue(LevelError, msg, args)
}

func (r *Remote) WithContext(ctx context.Context) glog.Logger {
	if r == nil {
		return glog.Nop()
	}
	return &Remote{shared: r.shared, local: r.local.WithContext(ctx), fields: r.fields}
}

func (r *Remote) WithFields(fields map[string]any) glog.Logger {
	if r == nil {
		return glog.Nop()
	}
	merged := maps.Clone(r.fields)
	if merged == nil {
		merged = map[string]any{}
	}
	maps.Copy(merged, fields)
	local := r.local
	if fieldsLogger, ok := local.(core.FieldsLogger); ok {
		local = fieldsLogger.WithFields(fields)
	}
	return &Remote{shared: r.shared, local: local, fields: merged}
}

// Pending reports how many entries wait in the buffer.
func (r *Remote) Pending() int {
	if r == nil {
		return 0
	}
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	return len(r.shared.entries)
}

// Flush ships the buffered entries synchronously and waits for background
// batches already in flight.
func (r *Remote) Flush(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if batch := r.shared.drain(); len(batch) > 0 {
		r.shared.ship(ctx, batch)
	}
	return r.shared.wait(ctx)
}

// Close flushes and stops buffering. Later entries only reach the local logger.
func (r *Remote) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.shared.mu.Lock()
	r.shared.closed = true
	r.shared.mu.Unlock()
	return r.Flush(ctx)
}

func (r *Remote) enqueue(level Level, msg string, args []any) {
	if r == nil || r.shared.sink == nil || level < r.shared.level {
		return
	}
	entry := Entry{
		Level:     level.String(),
		Message:   msg,
		Fields:    entryFields(r.fields, args),
		Timestamp: r.shared.clock(),
	}

	b := r.shared
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.entries = append(b.entries, entry)
	if len(b.entries) < b.size {
		b.mu.Unlock()
		return
	}
	batch := b.entries
	b.entries = make([]Entry, 0, b.size)
	b.inflight.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.inflight.Done()
		b.ship(context.Background(), batch)
	}()
}

func (b *remoteBuffer) drain() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	batch := b.entries
	b.entries = make([]Entry, 0, b.size)
	return batch
}

func (b *remoteBuffer) ship(ctx context.Context, batch []Entry) {
	if b.sink == nil {
		return
	}
	if err := b.sink.Send(ctx, batch); err != nil {
		b.local.Debug("remote log flush failed", "entries", len(batch), "error", err)
	}
}

func (b *remoteBuffer) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func entryFields(base map[string]any, args []any) map[string]any {
	if len(base) == 0 && len(args) == 0 {
		return nil
	}
	fields := maps.Clone(base)
	if fields == nil {
		fields = map[string]any{}
	}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		value := args[i+1]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		fields[key] = value
	}
	return core.RedactSensitiveMap(fields)
}

var (
	_ core.Logger       = (*Remote)(nil)
	_ core.FieldsLogger = (*Remote)(nil)
)
