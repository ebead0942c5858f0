package storage

import (
	"context"
	"slices"
	"strings"

	"github.com/goliatone/go-clientcore/core"
	glog "github.com/goliatone/go-logger/glog"
)

const namespaceSeparator = ":"

type Options struct {
	Namespace string
	Logger    core.Logger
}

// Tolerant adapts a backend into the never-failing storage surface used by
// the session manager. Keys are prefixed with the namespace, and Keys/Clear
// only see entries inside it.
type Tolerant struct {
	backend core.StorageBackend
	prefix  string
	logger  core.Logger
}

func NewTolerant(backend core.StorageBackend, opts Options) *Tolerant {
	if backend == nil {
		backend = NewMemory()
	}
	prefix := ""
	if namespace := strings.TrimSpace(opts.Namespace); namespace != "" {
		prefix = namespace + namespaceSeparator
	}
	return &Tolerant{
		backend: backend,
		prefix:  prefix,
		logger:  glog.Ensure(opts.Logger),
	}
}

func (t *Tolerant) Backend() core.StorageBackend {
	if t == nil {
		return nil
	}
	return t.backend
}

func (t *Tolerant) Get(ctx context.Context, key string) (string, bool) {
	if t == nil {
		return "", false
	}
	value, ok, err := t.backend.Get(ctx, t.prefix+key)
	if err != nil {
		t.logFailure(ctx, "get", key, err)
		return "", false
	}
	return value, ok
}

func (t *Tolerant) Set(ctx context.Context, key string, value string) {
	if t == nil {
		return
	}
	if err := t.backend.Set(ctx, t.prefix+key, value); err != nil {
		t.logFailure(ctx, "set", key, err)
	}
}

func (t *Tolerant) Remove(ctx context.Context, key string) {
	if t == nil {
		return
	}
	if err := t.backend.Remove(ctx, t.prefix+key); err != nil {
		t.logFailure(ctx, "remove", key, err)
	}
}

// Clear removes every key in the namespace. Without a namespace the whole
// backend is cleared.
func (t *Tolerant) Clear(ctx context.Context) {
	if t == nil {
		return
	}
	if t.prefix == "" {
		if err := t.backend.Clear(ctx); err != nil {
			t.logFailure(ctx, "clear", "", err)
		}
		return
	}
	for _, key := range t.Keys(ctx) {
		t.Remove(ctx, key)
	}
}

func (t *Tolerant) Keys(ctx context.Context) []string {
	if t == nil {
		return nil
	}
	keys, err := t.backend.Keys(ctx)
	if err != nil {
		t.logFailure(ctx, "keys", "", err)
		return nil
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if trimmed, ok := strings.CutPrefix(key, t.prefix); ok {
			out = append(out, trimmed)
		}
	}
	slices.Sort(out)
	return out
}

func (t *Tolerant) logFailure(ctx context.Context, operation string, key string, err error) {
	logger := t.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Warn("storage operation failed",
		"operation", operation,
		"key", key,
		"namespace", strings.TrimSuffix(t.prefix, namespaceSeparator),
		"error", err,
	)
}

var _ core.StorageAdapter = (*Tolerant)(nil)
