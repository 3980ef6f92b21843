// Package dispatcher fans output events out to the registered event sinks.
// Every (event, sink) pair is delivered by its own goroutine with
// exponential backoff on transient failures; terminal failures become
// DeliveryFailed notices and are never reported back to the engine.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/internal/metrics"
	"github.com/fastdata/cepbridge/internal/models"
	"github.com/fastdata/cepbridge/internal/notice"
	"github.com/fastdata/cepbridge/internal/registry"
)

var (
	// ErrDispatcherStopped is returned by Submit once Shutdown has begun.
	ErrDispatcherStopped = errors.New("dispatcher stopped")
	// ErrShutdownTimeout is returned by Shutdown when in-flight deliveries
	// had to be cancelled after the grace period.
	ErrShutdownTimeout = errors.New("shutdown grace period expired")

	errShuttingDown = errors.New("dispatcher shutting down")
)

// Config controls queueing, retries and shutdown.
type Config struct {
	QueueSize       int
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	Jitter          float64
	RequestTimeout  time.Duration
	ShutdownGrace   time.Duration
	SinkRateLimit   float64
	SinkRateBurst   int
}

// DefaultConfig returns the default delivery policy: five attempts with
// backoff starting at 1s, doubling, capped at 30s, no jitter.
func DefaultConfig() Config {
	return Config{
		QueueSize:       256,
		MaxAttempts:     5,
		InitialInterval: time.Second,
		Multiplier:      2,
		MaxInterval:     30 * time.Second,
		RequestTimeout:  10 * time.Second,
		ShutdownGrace:   10 * time.Second,
		SinkRateBurst:   1,
	}
}

// SinkSource is the view of the sink registry the dispatcher needs.
type SinkSource interface {
	Enabled() []models.EventSink
	Lookup(url string) (models.EventSink, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the outbound HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// Dispatcher delivers output events to event sinks.
type Dispatcher struct {
	cfg      Config
	sinks    SinkSource
	reporter notice.Reporter
	client   *http.Client
	logger   *slog.Logger
	limiters *sinkLimiters

	queue    chan models.OutputEvent
	stopping chan struct{}
	stopOnce sync.Once

	// mu orders Submit and dispatch against Shutdown so no delivery
	// starts after shutdown began.
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	// softCtx ends backoff and rate-limit waits when shutdown begins;
	// hardCtx aborts in-flight requests once the grace period is over.
	softCtx    context.Context
	softCancel context.CancelFunc
	hardCtx    context.Context
	hardCancel context.CancelFunc
}

// New creates a Dispatcher reading sinks from sinks and reporting terminal
// failures to reporter.
func New(cfg Config, sinks SinkSource, reporter notice.Reporter, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	d := &Dispatcher{
		cfg:      cfg,
		sinks:    sinks,
		reporter: reporter,
		client:   &http.Client{},
		logger:   slog.Default(),
		limiters: newSinkLimiters(cfg.SinkRateLimit, cfg.SinkRateBurst),
		queue:    make(chan models.OutputEvent, cfg.QueueSize),
		stopping: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.reporter == nil {
		d.reporter = notice.NewLogReporter(d.logger)
	}
	d.logger = d.logger.With(logging.Component("dispatcher"))
	d.softCtx, d.softCancel = context.WithCancel(context.Background())
	d.hardCtx, d.hardCancel = context.WithCancel(context.Background())

	metrics.QueueCapacity.Set(float64(cfg.QueueSize))
	return d
}

// Submit enqueues ev for delivery. It blocks while the queue is full until
// ctx is done or shutdown begins.
func (d *Dispatcher) Submit(ctx context.Context, ev models.OutputEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- ev:
		metrics.QueueDepth.Set(float64(len(d.queue)))
		return nil
	case <-d.stopping:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume submits every event received on events until the channel is
// closed, ctx is done or the dispatcher stops.
func (d *Dispatcher) Consume(ctx context.Context, events <-chan models.OutputEvent) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := d.Submit(ctx, ev); err != nil {
				metrics.OutputEventsDropped.WithLabelValues("dispatcher_stopped").Inc()
				d.logger.Warn("dropping output event",
					logging.StatementID(ev.StatementID),
					logging.Sequence(ev.Sequence),
					logging.Error(err))
				if errors.Is(err, ErrDispatcherStopped) {
					return nil
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Run dispatches queued events until ctx is done or Shutdown is called.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started",
		slog.Int("queue_size", d.cfg.QueueSize),
		slog.Int("max_attempts", d.cfg.MaxAttempts))

	for {
		select {
		case ev := <-d.queue:
			metrics.QueueDepth.Set(float64(len(d.queue)))
			d.Dispatch(ev)
		case <-d.stopping:
			d.dropQueued()
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Dispatch starts one delivery per sink enabled at this moment and returns
// the number started. Sinks added or enabled later never receive ev.
func (d *Dispatcher) Dispatch(ev models.OutputEvent) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		metrics.OutputEventsDropped.WithLabelValues("dispatcher_stopped").Inc()
		return 0
	}

	sinks := d.sinks.Enabled()
	if len(sinks) == 0 {
		d.logger.Debug("no enabled sinks for event",
			logging.StatementID(ev.StatementID),
			logging.Sequence(ev.Sequence))
		return 0
	}

	for _, sink := range sinks {
		d.wg.Add(1)
		go d.deliver(ev, sink)
	}
	return len(sinks)
}

func (d *Dispatcher) deliver(ev models.OutputEvent, sink models.EventSink) {
	defer d.wg.Done()
	metrics.InFlightDeliveries.Inc()
	defer metrics.InFlightDeliveries.Dec()

	log := d.logger.With(
		logging.SinkURL(sink.URL),
		logging.StatementID(ev.StatementID),
		logging.Sequence(ev.Sequence))

	attempt := models.DeliveryAttempt{SinkURL: sink.URL}
	permanent := false

	op := func() error {
		if d.softCtx.Err() != nil {
			return backoff.Permanent(errShuttingDown)
		}
		// The sink may have been deleted, or deleted and created again,
		// since the snapshot; a disabled sink keeps its in-flight deliveries.
		current, err := d.sinks.Lookup(sink.URL)
		if err == nil && current.ID != sink.ID {
			err = fmt.Errorf("sink %q replaced: %w", sink.URL, registry.ErrNotFound)
		}
		if err != nil {
			attempt.LastError = err
			return backoff.Permanent(err)
		}
		if err := d.limiters.wait(d.softCtx, current.URL); err != nil {
			return backoff.Permanent(errShuttingDown)
		}

		attempt.Attempts++
		start := time.Now()
		reqCtx, cancel := context.WithTimeout(d.hardCtx, d.cfg.RequestTimeout)
		err = send(reqCtx, d.client, current.URL, ev)
		cancel()
		metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.DeliveryAttempts.WithLabelValues("success").Inc()
			return nil
		}
		attempt.LastError = err
		if IsTransient(err) {
			metrics.DeliveryAttempts.WithLabelValues("transient").Inc()
			return err
		}
		metrics.DeliveryAttempts.WithLabelValues("permanent").Inc()
		permanent = true
		return backoff.Permanent(err)
	}

	notify := func(err error, next time.Duration) {
		attempt.NextRetryAt = time.Now().Add(next)
		log.Debug("delivery attempt failed, retrying",
			logging.Attempt(attempt.Attempts),
			logging.Error(err),
			slog.Duration("retry_in", next))
	}

	err := backoff.RetryNotify(op, d.newBackOff(), notify)
	if err == nil {
		metrics.DeliveriesSucceeded.Inc()
		log.Debug("event delivered", logging.Attempt(attempt.Attempts))
		return
	}

	var reason string
	switch {
	case errors.Is(err, errShuttingDown):
		reason = models.ReasonShutdown
	case errors.Is(err, registry.ErrNotFound):
		reason = models.ReasonSinkRemoved
		d.limiters.forget(sink.URL)
	case permanent:
		reason = models.ReasonPermanent
	case d.softCtx.Err() != nil:
		reason = models.ReasonShutdown
	default:
		reason = models.ReasonRetriesExhausted
	}
	d.fail(ev, attempt, reason)
}

func (d *Dispatcher) newBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.cfg.InitialInterval
	exp.Multiplier = d.cfg.Multiplier
	exp.MaxInterval = d.cfg.MaxInterval
	exp.RandomizationFactor = d.cfg.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := uint64(d.cfg.MaxAttempts - 1)
	return backoff.WithContext(backoff.WithMaxRetries(exp, retries), d.softCtx)
}

func (d *Dispatcher) fail(ev models.OutputEvent, attempt models.DeliveryAttempt, reason string) {
	f := models.DeliveryFailure{
		StatementID: ev.StatementID,
		Sequence:    ev.Sequence,
		SinkURL:     attempt.SinkURL,
		Attempts:    attempt.Attempts,
		Reason:      reason,
		FailedAt:    time.Now().UTC(),
	}
	if attempt.LastError != nil {
		f.Error = attempt.LastError.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.reporter.Report(ctx, f); err != nil {
		d.logger.Error("failed to report delivery failure",
			logging.SinkURL(f.SinkURL),
			logging.Reason(reason),
			logging.Error(err))
	}
}

func (d *Dispatcher) dropQueued() {
	for {
		select {
		case ev := <-d.queue:
			metrics.OutputEventsDropped.WithLabelValues("shutdown").Inc()
			d.logger.Warn("dropping queued event on shutdown",
				logging.StatementID(ev.StatementID),
				logging.Sequence(ev.Sequence))
		default:
			metrics.QueueDepth.Set(0)
			return
		}
	}
}

// Shutdown stops accepting events, cancels pending retries and waits for
// in-flight attempts up to the grace period before aborting them.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stopping) })

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.softCancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var grace <-chan time.Time
	if d.cfg.ShutdownGrace > 0 {
		timer := time.NewTimer(d.cfg.ShutdownGrace)
		defer timer.Stop()
		grace = timer.C
	}

	select {
	case <-done:
		d.hardCancel()
		d.logger.Info("dispatcher stopped")
		return nil
	case <-grace:
		d.hardCancel()
		<-done
		return fmt.Errorf("dispatcher: %w", ErrShutdownTimeout)
	case <-ctx.Done():
		d.hardCancel()
		<-done
		return ctx.Err()
	}
}
