// Package registry holds the in-memory registries of event sinks and
// monitored context attributes. Both enforce identity uniqueness under a
// single RWMutex and hand out copies, never internal pointers.
package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/fastdata/cepbridge/internal/models"
)

// SinkPersister mirrors sink mutations to durable storage.
type SinkPersister interface {
	SaveSink(ctx context.Context, sink models.EventSink) error
	DeleteSink(ctx context.Context, url string) error
}

// AttributePersister mirrors attribute mutations to durable storage.
type AttributePersister interface {
	SaveAttribute(ctx context.Context, attr models.MonitoredAttribute) error
	DeleteAttribute(ctx context.Context, id models.AttributeIdentity) error
}

type options struct {
	logger *slog.Logger
	now    func() time.Time
	sinks  SinkPersister
	attrs  AttributePersister
}

// Option configures a registry.
type Option func(*options)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSinkPersister mirrors every sink mutation through p.
func WithSinkPersister(p SinkPersister) Option {
	return func(o *options) { o.sinks = p }
}

// WithAttributePersister mirrors every attribute mutation through p.
func WithAttributePersister(p AttributePersister) Option {
	return func(o *options) { o.attrs = p }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// persistTimeout bounds a single mirror write.
const persistTimeout = 2 * time.Second

func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
