package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goliatone/go-clientcore/core"
	glog "github.com/goliatone/go-logger/glog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel maps a level name to a Level. trace folds into debug and
// fatal folds into error. Unknown names resolve to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error", "fatal":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Console writes through a slog text handler. Fatal never exits the process.
type Console struct {
	logger *slog.Logger
	ctx    context.Context
}

func NewConsole(w io.Writer, level Level) *Console {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Console{logger: slog.New(handler)}
}

func (c *Console) Trace(msg string, args ...any) { c.log(slog.LevelDebug, msg, args) }
func (c *Console) Debug(msg string, args ...any) { c.log(slog.LevelDebug, msg, args) }
func (c *Console) Info(msg string, args ...any)  { c.log(slog.LevelInfo, msg, args) }
func (c *Console) Warn(msg string, args ...any)  { c.log(slog.LevelWarn, msg, args) }
func (c *Console) Error(msg string, args ...any) { c.log(slog.LevelError, msg, args) }
func (c *Console) Fatal(msg string, args ...any) { c.log(slog.LevelError, msg, args) }

func (c *Console) WithContext(ctx context.Context) glog.Logger {
	if c == nil {
		return glog.Nop()
	}
	return &Console{logger: c.logger, ctx: ctx}
}

func (c *Console) WithFields(fields map[string]any) glog.Logger {
	if c == nil {
		return glog.Nop()
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	return &Console{logger: c.logger.With(args...), ctx: c.ctx}
}

func (c *Console) log(level slog.Level, msg string, args []any) {
	if c == nil || c.logger == nil {
		return
	}
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	c.logger.Log(ctx, level, msg, args...)
}

var (
	_ core.Logger       = (*Console)(nil)
	_ core.FieldsLogger = (*Console)(nil)
)
