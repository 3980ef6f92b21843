package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/internal/models"
)

// EventSinkRegistry holds registered event sinks keyed by SinkKey.
type EventSinkRegistry struct {
	mu    sync.RWMutex
	sinks map[string]*models.EventSink
	order []string

	// persistMu serializes mutations with their mirror writes so the store
	// sees them in registry order while mu is held only for the in-memory
	// change.
	persistMu sync.Mutex

	opts options
}

// NewEventSinkRegistry creates an empty sink registry.
func NewEventSinkRegistry(opts ...Option) *EventSinkRegistry {
	return &EventSinkRegistry{
		sinks: make(map[string]*models.EventSink),
		opts:  buildOptions(opts),
	}
}

// Create registers a sink. The check and the insert happen under one lock,
// so of several concurrent creates for the same URL exactly one succeeds.
func (r *EventSinkRegistry) Create(ctx context.Context, name, rawURL string) (models.EventSink, error) {
	canonical, err := NormalizeURL(rawURL)
	if err != nil {
		return models.EventSink{}, err
	}
	key, _ := SinkKey(canonical)

	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	if existing, exists := r.sinks[key]; exists {
		r.mu.Unlock()
		return models.EventSink{}, fmt.Errorf("create sink %q: %w", existing.URL, ErrSinkExists)
	}
	sink := &models.EventSink{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		URL:       canonical,
		CreatedAt: r.opts.now().UTC(),
		Enabled:   true,
	}
	r.sinks[key] = sink
	r.order = append(r.order, key)
	created := *sink
	r.mu.Unlock()

	r.persistSave(ctx, created)
	return created, nil
}

// Delete removes the sink registered under url.
func (r *EventSinkRegistry) Delete(ctx context.Context, rawURL string) error {
	key, err := SinkKey(rawURL)
	if err != nil {
		return err
	}

	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	sink, exists := r.sinks[key]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("delete sink %q: %w", key, ErrNotFound)
	}
	delete(r.sinks, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if r.opts.sinks != nil {
		pctx, cancel := persistContext(ctx)
		defer cancel()
		if err := r.opts.sinks.DeleteSink(pctx, sink.URL); err != nil {
			r.opts.logger.Warn("failed to persist sink deletion", logging.SinkURL(sink.URL), logging.Error(err))
		}
	}
	return nil
}

// Enable marks the sink as receiving events dispatched from now on.
func (r *EventSinkRegistry) Enable(ctx context.Context, rawURL string) error {
	return r.setEnabled(ctx, rawURL, true)
}

// Disable stops the sink from receiving events dispatched from now on.
// Deliveries already in flight are not affected.
func (r *EventSinkRegistry) Disable(ctx context.Context, rawURL string) error {
	return r.setEnabled(ctx, rawURL, false)
}

func (r *EventSinkRegistry) setEnabled(ctx context.Context, rawURL string, enabled bool) error {
	key, err := SinkKey(rawURL)
	if err != nil {
		return err
	}

	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	sink, exists := r.sinks[key]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("update sink %q: %w", key, ErrNotFound)
	}
	if sink.Enabled == enabled {
		r.mu.Unlock()
		return nil
	}
	sink.Enabled = enabled
	updated := *sink
	r.mu.Unlock()

	r.persistSave(ctx, updated)
	return nil
}

// Lookup returns the sink currently registered under url.
func (r *EventSinkRegistry) Lookup(rawURL string) (models.EventSink, error) {
	key, err := SinkKey(rawURL)
	if err != nil {
		return models.EventSink{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, exists := r.sinks[key]
	if !exists {
		return models.EventSink{}, fmt.Errorf("lookup sink %q: %w", key, ErrNotFound)
	}
	return *sink, nil
}

// List returns a snapshot of all sinks in registration order.
func (r *EventSinkRegistry) List() []models.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.EventSink, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.sinks[key])
	}
	return out
}

// Enabled returns a snapshot of the enabled sinks in registration order.
func (r *EventSinkRegistry) Enabled() []models.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.EventSink, 0, len(r.order))
	for _, key := range r.order {
		if s := r.sinks[key]; s.Enabled {
			out = append(out, *s)
		}
	}
	return out
}

// Len returns the number of registered sinks.
func (r *EventSinkRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Restore loads previously persisted sinks into an empty registry without
// writing them back. Entries are ordered by CreatedAt; invalid or duplicate
// URLs are skipped. It returns the number of sinks restored.
func (r *EventSinkRegistry) Restore(sinks []models.EventSink) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sinks) != 0 {
		return 0, fmt.Errorf("restore sinks: registry is not empty")
	}

	sorted := append([]models.EventSink(nil), sinks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	for _, s := range sorted {
		canonical, err := NormalizeURL(s.URL)
		if err != nil {
			r.opts.logger.Warn("skipping persisted sink with invalid url", logging.SinkURL(s.URL), logging.Error(err))
			continue
		}
		key, _ := SinkKey(canonical)
		if _, exists := r.sinks[key]; exists {
			continue
		}
		s.URL = canonical
		sink := s
		r.sinks[key] = &sink
		r.order = append(r.order, key)
	}
	return len(r.sinks), nil
}

func (r *EventSinkRegistry) persistSave(ctx context.Context, sink models.EventSink) {
	if r.opts.sinks == nil {
		return
	}
	pctx, cancel := persistContext(ctx)
	defer cancel()
	if err := r.opts.sinks.SaveSink(pctx, sink); err != nil {
		r.opts.logger.Warn("failed to persist sink", logging.SinkURL(sink.URL), slog.Bool("enabled", sink.Enabled), logging.Error(err))
	}
}
