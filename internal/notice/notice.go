// Package notice reports DeliveryFailed notices to observers.
package notice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/common/messaging"
	"github.com/fastdata/cepbridge/internal/metrics"
	"github.com/fastdata/cepbridge/internal/models"
)

// Reporter receives delivery failure notices.
type Reporter interface {
	Report(ctx context.Context, failure models.DeliveryFailure) error
	Type() string
}

// LogReporter writes failures to a structured logger.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a log-based reporter.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

func (l *LogReporter) Type() string {
	return "log"
}

func (l *LogReporter) Report(ctx context.Context, f models.DeliveryFailure) error {
	l.logger.WarnContext(ctx, "delivery failed",
		logging.SinkURL(f.SinkURL),
		logging.StatementID(f.StatementID),
		logging.Sequence(f.Sequence),
		logging.Attempt(f.Attempts),
		logging.Reason(f.Reason),
		slog.String(logging.FieldError, f.Error))
	return nil
}

// MetricsReporter counts failures by reason.
type MetricsReporter struct{}

func (MetricsReporter) Type() string {
	return "metrics"
}

func (MetricsReporter) Report(_ context.Context, f models.DeliveryFailure) error {
	metrics.DeliveriesFailed.WithLabelValues(f.Reason).Inc()
	return nil
}

// PublishReporter publishes failures as JSON on a messaging subject.
type PublishReporter struct {
	publisher messaging.Publisher
	subject   string
}

// NewPublishReporter creates a reporter publishing on subject.
func NewPublishReporter(publisher messaging.Publisher, subject string) *PublishReporter {
	if subject == "" {
		subject = messaging.SubjectDeliveryFailed
	}
	return &PublishReporter{publisher: publisher, subject: subject}
}

func (p *PublishReporter) Type() string {
	return "publish"
}

func (p *PublishReporter) Report(ctx context.Context, f models.DeliveryFailure) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal delivery failure: %w", err)
	}
	return p.publisher.PublishMsg(ctx, &messaging.Message{
		Subject: p.subject,
		Data:    data,
		Metadata: map[string]string{
			"X-CEP-Statement": f.StatementID,
			"X-CEP-Reason":    f.Reason,
		},
	})
}

// MultiReporter fans a notice out to several reporters.
type MultiReporter struct {
	reporters []Reporter
}

// NewMultiReporter creates a reporter that fans out to reporters.
func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) Type() string {
	return "multi"
}

// Report delivers to every reporter and fails only if all of them failed.
func (m *MultiReporter) Report(ctx context.Context, f models.DeliveryFailure) error {
	var lastErr error
	successCount := 0

	for _, r := range m.reporters {
		if err := r.Report(ctx, f); err != nil {
			lastErr = fmt.Errorf("%s reporter failed: %w", r.Type(), err)
		} else {
			successCount++
		}
	}

	if successCount == 0 && len(m.reporters) > 0 {
		return fmt.Errorf("all reporters failed: %w", lastErr)
	}
	return nil
}

// Recorder keeps failures in memory.
type Recorder struct {
	mu       sync.Mutex
	failures []models.DeliveryFailure
}

func (r *Recorder) Type() string {
	return "recorder"
}

func (r *Recorder) Report(_ context.Context, f models.DeliveryFailure) error {
	r.mu.Lock()
	r.failures = append(r.failures, f)
	r.mu.Unlock()
	return nil
}

// Failures returns a copy of the recorded failures.
func (r *Recorder) Failures() []models.DeliveryFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.DeliveryFailure(nil), r.failures...)
}
