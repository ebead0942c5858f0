package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-clientcore/logging"
	"github.com/google/uuid"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDLogShip      = "clientcore.logs.ship"
	ScriptPathLogShip = "clientcore/logs/ship"

	paramEntries = "entries"
	paramCount   = "count"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage packs a log batch into a go-job message.
func ToExecutionMessage(entries []logging.Entry) *job.ExecutionMessage {
	batch := make([]logging.Entry, len(entries))
	copy(batch, entries)
	return &job.ExecutionMessage{
		JobID:      JobIDLogShip,
		ScriptPath: ScriptPathLogShip,
		Parameters: map[string]any{
			paramEntries: batch,
			paramCount:   len(batch),
		},
		IdempotencyKey: uuid.NewString(),
	}
}

// EntriesFromMessage unpacks a log batch. Queue backends that serialise
// parameters hand back generic maps, so the payload is re-decoded as JSON.
func EntriesFromMessage(msg *job.ExecutionMessage) ([]logging.Entry, error) {
	if msg == nil {
		return nil, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDLogShip {
		return nil, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	raw, ok := msg.Parameters[paramEntries]
	if !ok {
		return nil, fmt.Errorf("gojob: log batch has no entries")
	}
	if entries, ok := raw.([]logging.Entry); ok {
		return entries, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("gojob: encode entries: %w", err)
	}
	var entries []logging.Entry
	if err := json.Unmarshal(encoded, &entries); err != nil {
		return nil, fmt.Errorf("gojob: decode entries: %w", err)
	}
	return entries, nil
}

// QueueSink is a logging.BatchSink that defers shipping to a go-job queue.
type QueueSink struct {
	enqueuer queue.Enqueuer
}

func NewQueueSink(enqueuer queue.Enqueuer) *QueueSink {
	return &QueueSink{enqueuer: enqueuer}
}

func (s *QueueSink) Send(ctx context.Context, entries []logging.Entry) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if len(entries) == 0 {
		return nil
	}
	return s.enqueuer.Enqueue(ctx, ToExecutionMessage(entries))
}

var _ logging.BatchSink = (*QueueSink)(nil)
