// Package feed receives context attribute changes from NATS and hands them
// to the rule engine adapter.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/common/messaging"
	"github.com/fastdata/cepbridge/internal/metrics"
	"github.com/fastdata/cepbridge/internal/models"
)

// ChangeHandler consumes attribute changes.
type ChangeHandler interface {
	OnAttributeChanged(ctx context.Context, change models.AttributeChange) error
}

// Handler subscribes to the context feed subject.
type Handler struct {
	subscriber messaging.Subscriber
	changes    ChangeHandler
	subject    string
	queue      string
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	subs   []messaging.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHandler creates a feed handler. Empty subject and queue fall back to
// the default feed subject and queue group.
func NewHandler(subscriber messaging.Subscriber, changes ChangeHandler, subject, queue string, logger *slog.Logger) *Handler {
	if subject == "" {
		subject = messaging.SubjectAttributeChanged
	}
	if queue == "" {
		queue = messaging.QueueFeedWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		subscriber: subscriber,
		changes:    changes,
		subject:    subject,
		queue:      queue,
		logger:     logger.With(logging.Component("feed")),
		now:        time.Now,
	}
}

// Start begins listening for attribute changes. ctx bounds the processing
// of every received change; cancelling it aborts pending hand-offs.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ctx, h.cancel = context.WithCancel(ctx)

	sub, err := h.subscriber.QueueSubscribe(h.subject, h.queue, h.handleChange)
	if err != nil {
		h.cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", h.subject, err)
	}
	h.subs = append(h.subs, sub)

	h.logger.Info("feed handler started",
		slog.String("subject", h.subject),
		slog.String("queue", h.queue))
	return nil
}

// Stop unsubscribes and cancels in-progress hand-offs.
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe", slog.String("subject", sub.Subject()), logging.Error(err))
		}
	}
	h.subs = nil
	if h.cancel != nil {
		h.cancel()
	}
	h.logger.Info("feed handler stopped")
	return nil
}

func (h *Handler) handleChange(_ context.Context, msg *messaging.Message) error {
	var change models.AttributeChange
	if err := json.Unmarshal(msg.Data, &change); err != nil {
		metrics.ChangesTotal.WithLabelValues("nats", "invalid").Inc()
		return fmt.Errorf("failed to unmarshal attribute change: %w", err)
	}
	if err := change.Validate(); err != nil {
		metrics.ChangesTotal.WithLabelValues("nats", "invalid").Inc()
		return err
	}
	if change.ObservedAt.IsZero() {
		change.ObservedAt = h.now().UTC()
	}

	h.mu.Lock()
	ctx := h.ctx
	h.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := h.changes.OnAttributeChanged(ctx, change); err != nil {
		metrics.ChangesTotal.WithLabelValues("nats", "error").Inc()
		return err
	}
	metrics.ChangesTotal.WithLabelValues("nats", "accepted").Inc()
	return nil
}
