package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/internal/metrics"
	"github.com/fastdata/cepbridge/internal/models"
)

// ErrAdapterClosed is returned for changes received after Close.
var ErrAdapterClosed = errors.New("adapter closed")

// AttributeSource is the view of the attribute registry the adapter needs.
type AttributeSource interface {
	Match(entityType, entityID, attribute string) []models.MonitoredAttribute
	OnUnregister(fn func(attr models.MonitoredAttribute))
}

// Adapter routes attribute changes to the engine and publishes one
// OutputEvent per firing on its Events channel.
type Adapter struct {
	attrs  AttributeSource
	engine Engine
	logger *slog.Logger
	now    func() time.Time

	// feedMu serializes Detach against in-progress feeds so no change for an
	// unregistered identity reaches the engine once Unregister has returned.
	feedMu sync.RWMutex

	seqMu sync.Mutex
	seqs  map[string]uint64

	outMu  sync.RWMutex
	out    chan models.OutputEvent
	closed bool
}

// NewAdapter wires the adapter between attrs and eng. bufferSize sets the
// capacity of the Events channel.
func NewAdapter(attrs AttributeSource, eng Engine, bufferSize int, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize < 0 {
		bufferSize = 0
	}

	a := &Adapter{
		attrs:  attrs,
		engine: eng,
		logger: logger.With(logging.Component("engine_adapter")),
		now:    time.Now,
		seqs:   make(map[string]uint64),
		out:    make(chan models.OutputEvent, bufferSize),
	}
	eng.OnMatch(a.Emit)
	attrs.OnUnregister(a.detach)
	return a
}

// Events returns the channel consumed by the dispatcher. It is closed by Close.
func (a *Adapter) Events() <-chan models.OutputEvent {
	return a.out
}

// OnAttributeChanged forwards change to the engine once per live attribute
// entry that covers it. Changes no entry covers are dropped.
func (a *Adapter) OnAttributeChanged(ctx context.Context, change models.AttributeChange) error {
	if err := change.Validate(); err != nil {
		return err
	}

	a.outMu.RLock()
	closed := a.closed
	a.outMu.RUnlock()
	if closed {
		return ErrAdapterClosed
	}

	a.feedMu.RLock()
	defer a.feedMu.RUnlock()

	matches := a.attrs.Match(change.EntityType, change.EntityID, change.AttributeName)
	if len(matches) == 0 {
		metrics.ChangesUnmatched.Inc()
		a.logger.Debug("dropping change for unmonitored attribute",
			logging.Entity(change.EntityType, change.EntityID),
			logging.Attribute(change.AttributeName))
		return nil
	}

	var errs []error
	for _, attr := range matches {
		if err := a.engine.Feed(ctx, attr, change); err != nil {
			a.logger.Warn("engine rejected change",
				logging.StatementID(attr.StatementID),
				logging.Entity(change.EntityType, change.EntityID),
				logging.Attribute(change.AttributeName),
				logging.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit builds the next OutputEvent for statementID and hands it to the
// dispatcher. It blocks while the Events buffer is full, until ctx is done.
func (a *Adapter) Emit(ctx context.Context, statementID string, payload json.RawMessage) {
	a.outMu.RLock()
	defer a.outMu.RUnlock()

	if a.closed {
		metrics.OutputEventsDropped.WithLabelValues("closed").Inc()
		a.logger.Warn("dropping output event after close", logging.StatementID(statementID))
		return
	}

	ev := models.OutputEvent{
		StatementID: statementID,
		Sequence:    a.nextSequence(statementID),
		Payload:     append(json.RawMessage(nil), payload...),
		ProducedAt:  a.now().UTC(),
	}

	select {
	case a.out <- ev:
		metrics.StatementFirings.WithLabelValues(statementID).Inc()
	case <-ctx.Done():
		metrics.OutputEventsDropped.WithLabelValues("cancelled").Inc()
		a.logger.Warn("dropping output event",
			logging.StatementID(statementID),
			logging.Sequence(ev.Sequence),
			logging.Error(ctx.Err()))
	}
}

func (a *Adapter) nextSequence(statementID string) uint64 {
	a.seqMu.Lock()
	defer a.seqMu.Unlock()
	a.seqs[statementID]++
	return a.seqs[statementID]
}

func (a *Adapter) detach(attr models.MonitoredAttribute) {
	a.feedMu.Lock()
	defer a.feedMu.Unlock()

	a.engine.Detach(attr.StatementID, attr.AttributeIdentity)
	a.logger.Info("detached attribute from statement",
		logging.StatementID(attr.StatementID),
		logging.Attribute(attr.String()))
}

// Close stops accepting changes and closes the Events channel. Pending
// Emit calls must have returned, so callers cancel feed contexts first.
func (a *Adapter) Close() {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	close(a.out)
}
