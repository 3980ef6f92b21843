package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fastdata/cepbridge/internal/models"
)

// Statement is a sliding-window count statement: it fires when Threshold
// changes have been observed within the trailing Window.
type Statement struct {
	ID        string
	Window    time.Duration
	Threshold int
}

type observation struct {
	at       time.Time
	identity string
	change   models.AttributeChange
}

type windowState struct {
	stmt   Statement
	events []observation
}

// WindowEngine is an in-process Engine evaluating window count statements.
// After a firing the statement's window starts empty again.
type WindowEngine struct {
	mu         sync.Mutex
	statements map[string]*windowState
	onMatch    MatchFunc
	now        func() time.Time
}

// WindowPayload is the output event payload produced by a firing.
type WindowPayload struct {
	StatementID string                 `json:"statement_id"`
	Count       int                    `json:"count"`
	Threshold   int                    `json:"threshold"`
	Window      string                 `json:"window"`
	FiredAt     time.Time              `json:"fired_at"`
	LastChange  models.AttributeChange `json:"last_change"`
}

// NewWindowEngine creates an engine evaluating statements.
func NewWindowEngine(statements []Statement) (*WindowEngine, error) {
	e := &WindowEngine{
		statements: make(map[string]*windowState, len(statements)),
		now:        time.Now,
	}
	for _, st := range statements {
		if err := e.AddStatement(st); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// AddStatement registers a statement. IDs must be unique.
func (e *WindowEngine) AddStatement(st Statement) error {
	if st.ID == "" {
		return fmt.Errorf("statement id is required")
	}
	if st.Window <= 0 || st.Threshold < 1 {
		return fmt.Errorf("statement %q: window must be positive and threshold at least 1", st.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.statements[st.ID]; exists {
		return fmt.Errorf("statement %q already defined", st.ID)
	}
	e.statements[st.ID] = &windowState{stmt: st}
	return nil
}

// Statements returns the configured statement IDs.
func (e *WindowEngine) Statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.statements))
	for id := range e.statements {
		ids = append(ids, id)
	}
	return ids
}

// OnMatch implements Engine.
func (e *WindowEngine) OnMatch(fn MatchFunc) {
	e.mu.Lock()
	e.onMatch = fn
	e.mu.Unlock()
}

// Feed implements Engine.
func (e *WindowEngine) Feed(ctx context.Context, attr models.MonitoredAttribute, change models.AttributeChange) error {
	now := e.now()

	e.mu.Lock()
	state, ok := e.statements[attr.StatementID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("feed %q: %w", attr.StatementID, ErrUnknownStatement)
	}

	state.evict(now)
	state.events = append(state.events, observation{at: now, identity: attr.Key(), change: change})

	var payload *WindowPayload
	if len(state.events) >= state.stmt.Threshold {
		payload = &WindowPayload{
			StatementID: state.stmt.ID,
			Count:       len(state.events),
			Threshold:   state.stmt.Threshold,
			Window:      state.stmt.Window.String(),
			FiredAt:     now.UTC(),
			LastChange:  change,
		}
		state.events = nil
	}
	onMatch := e.onMatch
	e.mu.Unlock()

	if payload == nil || onMatch == nil {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %q: %w", attr.StatementID, err)
	}
	onMatch(ctx, attr.StatementID, data)
	return nil
}

// Detach implements Engine.
func (e *WindowEngine) Detach(statementID string, id models.AttributeIdentity) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.statements[statementID]
	if !ok {
		return
	}
	key := id.Key()
	kept := state.events[:0]
	for _, ev := range state.events {
		if ev.identity != key {
			kept = append(kept, ev)
		}
	}
	state.events = kept
}

func (s *windowState) evict(now time.Time) {
	cutoff := now.Add(-s.stmt.Window)
	i := 0
	for i < len(s.events) && !s.events[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		s.events = append(s.events[:0], s.events[i:]...)
	}
}
