// Package engine connects the context feed to a CEP statement engine and
// turns statement firings into output events for the dispatcher.
package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fastdata/cepbridge/internal/models"
)

// ErrUnknownStatement is returned by Feed for a statement the engine does not know.
var ErrUnknownStatement = errors.New("unknown statement")

// MatchFunc is invoked by an Engine once per statement firing.
type MatchFunc func(ctx context.Context, statementID string, payload json.RawMessage)

// Engine is the boundary to a CEP statement engine.
type Engine interface {
	// OnMatch installs the firing callback. It is called once, before any Feed.
	OnMatch(fn MatchFunc)
	// Feed evaluates one change against the statement bound to attr.
	Feed(ctx context.Context, attr models.MonitoredAttribute, change models.AttributeChange) error
	// Detach drops any state the statement holds for the identity.
	Detach(statementID string, id models.AttributeIdentity)
}
