package registry

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/internal/models"
)

type attributeEntry struct {
	attr    models.MonitoredAttribute
	matcher entityMatcher
}

// AttributeRegistry holds the monitored attributes, one per identity.
type AttributeRegistry struct {
	mu      sync.RWMutex
	entries map[string]*attributeEntry
	order   []string

	listenersMu sync.RWMutex
	listeners   []func(attr models.MonitoredAttribute)

	// persistMu serializes mutations with their mirror writes; see
	// EventSinkRegistry.
	persistMu sync.Mutex

	opts options
}

// NewAttributeRegistry creates an empty attribute registry.
func NewAttributeRegistry(opts ...Option) *AttributeRegistry {
	return &AttributeRegistry{
		entries: make(map[string]*attributeEntry),
		opts:    buildOptions(opts),
	}
}

// OnUnregister adds a listener called whenever an attribute is removed.
// Listeners run synchronously before Unregister returns and must not call
// back into mutating registry methods.
func (r *AttributeRegistry) OnUnregister(l func(attr models.MonitoredAttribute)) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMu.Unlock()
}

// Register inserts a pending attribute bound to statementID.
func (r *AttributeRegistry) Register(ctx context.Context, id models.AttributeIdentity, statementID string) (models.MonitoredAttribute, error) {
	if err := validateIdentity(id); err != nil {
		return models.MonitoredAttribute{}, err
	}
	if strings.TrimSpace(statementID) == "" {
		return models.MonitoredAttribute{}, fmt.Errorf("statement_id is required: %w", ErrInvalidIdentity)
	}
	matcher, err := compileEntityPattern(id.EntityIDPattern)
	if err != nil {
		return models.MonitoredAttribute{}, err
	}

	key := id.Key()

	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	if _, exists := r.entries[key]; exists {
		r.mu.Unlock()
		return models.MonitoredAttribute{}, fmt.Errorf("register %s: %w", id, ErrAttributeExists)
	}

	entry := &attributeEntry{
		attr: models.MonitoredAttribute{
			AttributeIdentity: id,
			StatementID:       statementID,
			State:             models.StatePending,
			CreatedAt:         r.opts.now().UTC(),
		},
		matcher: matcher,
	}
	r.entries[key] = entry
	r.order = append(r.order, key)
	r.mu.Unlock()

	r.persistSave(ctx, entry.attr)
	return entry.attr, nil
}

// Activate moves a pending attribute to active. Activating an active
// attribute is a no-op.
func (r *AttributeRegistry) Activate(ctx context.Context, id models.AttributeIdentity) (models.MonitoredAttribute, error) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	entry, exists := r.entries[id.Key()]
	if !exists {
		r.mu.Unlock()
		return models.MonitoredAttribute{}, fmt.Errorf("activate %s: %w", id, ErrNotFound)
	}
	if entry.attr.State == models.StateActive {
		attr := entry.attr
		r.mu.Unlock()
		return attr, nil
	}

	now := r.opts.now().UTC()
	entry.attr.State = models.StateActive
	entry.attr.ActivatedAt = &now
	attr := entry.attr
	r.mu.Unlock()

	r.persistSave(ctx, attr)
	return attr, nil
}

// Unregister removes the attribute regardless of state and notifies the
// listeners before returning.
func (r *AttributeRegistry) Unregister(ctx context.Context, id models.AttributeIdentity) error {
	key := id.Key()

	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	entry, exists := r.entries[key]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("unregister %s: %w", id, ErrNotFound)
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if r.opts.attrs != nil {
		pctx, cancel := persistContext(ctx)
		if err := r.opts.attrs.DeleteAttribute(pctx, id); err != nil {
			r.opts.logger.Warn("failed to persist attribute removal", logging.Attribute(id.String()), logging.Error(err))
		}
		cancel()
	}

	r.listenersMu.RLock()
	listeners := slices.Clone(r.listeners)
	r.listenersMu.RUnlock()
	for _, l := range listeners {
		l(entry.attr)
	}
	return nil
}

// Lookup returns the attribute registered under id.
func (r *AttributeRegistry) Lookup(id models.AttributeIdentity) (models.MonitoredAttribute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id.Key()]
	if !exists {
		return models.MonitoredAttribute{}, fmt.Errorf("lookup %s: %w", id, ErrNotFound)
	}
	return entry.attr, nil
}

// List returns a snapshot of all attributes in registration order.
func (r *AttributeRegistry) List() []models.MonitoredAttribute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.MonitoredAttribute, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.entries[key].attr)
	}
	return out
}

// Match returns every live attribute whose identity covers the concrete
// entity and attribute, in registration order.
func (r *AttributeRegistry) Match(entityType, entityID, attribute string) []models.MonitoredAttribute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.MonitoredAttribute
	for _, key := range r.order {
		e := r.entries[key]
		if e.attr.EntityType != entityType || e.attr.AttributeName != attribute {
			continue
		}
		if e.matcher.match(entityID) {
			out = append(out, e.attr)
		}
	}
	return out
}

// Len returns the number of live attributes.
func (r *AttributeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Restore loads previously persisted attributes into an empty registry
// without writing them back. Entries with invalid identities or duplicate
// keys are skipped.
func (r *AttributeRegistry) Restore(attrs []models.MonitoredAttribute) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) != 0 {
		return 0, fmt.Errorf("restore attributes: registry is not empty")
	}

	sorted := append([]models.MonitoredAttribute(nil), attrs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	for _, a := range sorted {
		if err := validateIdentity(a.AttributeIdentity); err != nil {
			r.opts.logger.Warn("skipping persisted attribute", logging.Attribute(a.String()), logging.Error(err))
			continue
		}
		matcher, err := compileEntityPattern(a.EntityIDPattern)
		if err != nil {
			r.opts.logger.Warn("skipping persisted attribute", logging.Attribute(a.String()), logging.Error(err))
			continue
		}
		key := a.Key()
		if _, exists := r.entries[key]; exists {
			continue
		}
		if a.State != models.StateActive {
			a.State = models.StatePending
		}
		r.entries[key] = &attributeEntry{attr: a, matcher: matcher}
		r.order = append(r.order, key)
	}
	return len(r.entries), nil
}

func (r *AttributeRegistry) persistSave(ctx context.Context, attr models.MonitoredAttribute) {
	if r.opts.attrs == nil {
		return
	}
	pctx, cancel := persistContext(ctx)
	defer cancel()
	if err := r.opts.attrs.SaveAttribute(pctx, attr); err != nil {
		r.opts.logger.Warn("failed to persist attribute", logging.Attribute(attr.String()), logging.Error(err))
	}
}
