package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventSink is an HTTP endpoint that receives output events.
// URL is the normalized form and identifies the sink.
type EventSink struct {
	ID        string    `json:"id"` // UUID v7, informational only
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	Enabled   bool      `json:"enabled"`
}

// AttributeIdentity identifies a monitored context attribute.
type AttributeIdentity struct {
	EntityType      string `json:"entity_type"`
	EntityIDPattern string `json:"entity_id_pattern"`
	AttributeName   string `json:"attribute"`
}

// Key returns a stable string form of the identity, usable as a map key.
func (a AttributeIdentity) Key() string {
	return a.EntityType + "\x1f" + a.EntityIDPattern + "\x1f" + a.AttributeName
}

func (a AttributeIdentity) String() string {
	return fmt.Sprintf("%s/%s#%s", a.EntityType, a.EntityIDPattern, a.AttributeName)
}

// SubscriptionState is the lifecycle state of a monitored attribute.
// Removal is represented by absence from the registry.
type SubscriptionState string

const (
	StatePending SubscriptionState = "pending"
	StateActive  SubscriptionState = "active"
)

// MonitoredAttribute binds an attribute identity to a CEP statement.
type MonitoredAttribute struct {
	AttributeIdentity
	StatementID string            `json:"statement_id"`
	State       SubscriptionState `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	ActivatedAt *time.Time        `json:"activated_at,omitempty"`
}

// AttributeChange is one inbound context update.
type AttributeChange struct {
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	AttributeName string          `json:"attribute"`
	Value         json.RawMessage `json:"value,omitempty"`
	ObservedAt    time.Time       `json:"observed_at"`
}

// Validate checks the identity fields of a change.
func (c *AttributeChange) Validate() error {
	if c.EntityType == "" || c.EntityID == "" || c.AttributeName == "" {
		return fmt.Errorf("entity_type, entity_id and attribute are required")
	}
	return nil
}

// OutputEvent is a result produced by a statement firing. It is immutable
// once built and never persisted.
type OutputEvent struct {
	StatementID string          `json:"statement_id"`
	Sequence    uint64          `json:"sequence"`
	Payload     json.RawMessage `json:"payload"`
	ProducedAt  time.Time       `json:"produced_at"`
}

// DeliveryAttempt tracks delivery of one output event to one sink.
type DeliveryAttempt struct {
	SinkURL     string
	Attempts    int
	LastError   error
	NextRetryAt time.Time
}

// Failure reasons reported in DeliveryFailure.
const (
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonPermanent        = "permanent"
	ReasonSinkRemoved      = "sink_removed"
	ReasonShutdown         = "shutdown"
)

// DeliveryFailure is the notice emitted when an event could not be
// delivered to a sink.
type DeliveryFailure struct {
	StatementID string    `json:"statement_id"`
	Sequence    uint64    `json:"sequence"`
	SinkURL     string    `json:"sink_url"`
	Attempts    int       `json:"attempts"`
	Reason      string    `json:"reason"`
	Error       string    `json:"error,omitempty"`
	FailedAt    time.Time `json:"failed_at"`
}

// CreateSinkRequest is the API request for registering an event sink
type CreateSinkRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RegisterAttributeRequest is the API request for monitoring an attribute
type RegisterAttributeRequest struct {
	AttributeIdentity
	StatementID string `json:"statement_id"`
}

// AttributeIdentityRequest carries an identity for activate and unregister
type AttributeIdentityRequest struct {
	Identity AttributeIdentity `json:"identity"`
}

// SinkListResponse wraps the sink list
type SinkListResponse struct {
	Sinks []EventSink `json:"sinks"`
}

// AttributeListResponse wraps the monitored attribute list
type AttributeListResponse struct {
	Attributes []MonitoredAttribute `json:"attributes"`
}
