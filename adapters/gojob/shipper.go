package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-clientcore/logging"
	glog "github.com/goliatone/go-logger/glog"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	defaultPollInterval = time.Second
	defaultRetryDelay   = 5 * time.Second
)

var ErrNoDelivery = errors.New("gojob: no delivery available")

type ShipperOptions struct {
	Policy       RetryPolicy
	RetryDelay   time.Duration
	PollInterval time.Duration
	Hook         worker.Hook
	Logger       glog.Logger
}

// Shipper drains queued log batches into a remote sink. Attempts are counted
// per idempotency key for the lifetime of the shipper.
type Shipper struct {
	dequeuer queue.Dequeuer
	sink     logging.BatchSink
	opts     ShipperOptions
	logger   glog.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func NewShipper(dequeuer queue.Dequeuer, sink logging.BatchSink, opts ShipperOptions) (*Shipper, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("gojob: batch sink is required")
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Shipper{
		dequeuer: dequeuer,
		sink:     sink,
		opts:     opts,
		logger:   glog.Ensure(opts.Logger),
		attempts: map[string]int{},
	}, nil
}

// ShipNext processes one delivery. Send failures are nacked under the retry
// policy and reported back to the caller.
func (s *Shipper) ShipNext(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gojob: shipper is not configured")
	}
	delivery, err := s.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return ErrNoDelivery
	}

	msg := delivery.Message()
	event := worker.Event{Message: msg, Delivery: delivery, StartedAt: time.Now()}

	entries, err := EntriesFromMessage(msg)
	if err != nil {
		event.Err = err
		s.onFailure(ctx, event)
		nackErr := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
		return errors.Join(err, nackErr)
	}

	key := attemptKey(msg)
	event.Attempt = s.nextAttempt(key)
	s.onStart(ctx, event)

	if err := s.sink.Send(ctx, entries); err != nil {
		event.Err = err
		event.Duration = time.Since(event.StartedAt)
		opts := s.opts.Policy.NormalizeAttempt(queue.NackOptions{
			Requeue: true,
			Delay:   s.opts.RetryDelay * time.Duration(event.Attempt),
			Reason:  err.Error(),
		}, event.Attempt)
		event.Delay = opts.Delay
		if opts.Requeue {
			s.onRetry(ctx, event)
		} else {
			s.forget(key)
			s.onFailure(ctx, event)
		}
		if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
			return errors.Join(err, nackErr)
		}
		return err
	}

	s.forget(key)
	if err := delivery.Ack(ctx); err != nil {
		return err
	}
	event.Duration = time.Since(event.StartedAt)
	s.onSuccess(ctx, event)
	return nil
}

// Run ships until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gojob: shipper is not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.ShipNext(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, ErrNoDelivery) {
			s.logger.Warn("log shipment failed", "error", err)
		}
		timer := time.NewTimer(s.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Shipper) nextAttempt(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[key]++
	return s.attempts[key]
}

func (s *Shipper) forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, key)
}

func (s *Shipper) onStart(ctx context.Context, event worker.Event) {
	if s.opts.Hook != nil {
		s.opts.Hook.OnStart(ctx, event)
	}
}

func (s *Shipper) onSuccess(ctx context.Context, event worker.Event) {
	if s.opts.Hook != nil {
		s.opts.Hook.OnSuccess(ctx, event)
	}
}

func (s *Shipper) onRetry(ctx context.Context, event worker.Event) {
	if s.opts.Hook != nil {
		s.opts.Hook.OnRetry(ctx, event)
	}
}

func (s *Shipper) onFailure(ctx context.Context, event worker.Event) {
	if s.opts.Hook != nil {
		s.opts.Hook.OnFailure(ctx, event)
	}
}

func attemptKey(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return msg.JobID
}
