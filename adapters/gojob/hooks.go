package gojob

import (
	"context"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// LoggingHook reports worker lifecycle events through a glog logger.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.WithContext(ctx).Debug("log shipment started", eventArgs(event)...)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.WithContext(ctx).Debug("log shipment delivered", eventArgs(event)...)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.WithContext(ctx).Error("log shipment dropped", eventArgs(event)...)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.WithContext(ctx).Warn("log shipment requeued", eventArgs(event)...)
}

func eventArgs(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	args := []any{"attempt", event.Attempt}
	if message != nil {
		args = append(args, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
	}
	if event.Delay > 0 {
		args = append(args, "delay", event.Delay.String())
	}
	if event.Duration > 0 {
		args = append(args, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err)
	}
	return args
}

// JobLogger bridges a glog logger into go-job for hosts running their own workers.
func JobLogger(logger glog.Logger) job.Logger {
	return job.GoLogger(glog.Ensure(logger))
}

var _ worker.Hook = (*LoggingHook)(nil)
