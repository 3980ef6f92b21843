package logging

import (
	"log/slog"
	"time"
)

// Field names shared by every cepbridge component.
const (
	FieldService     = "service"
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldSinkURL     = "sink_url"
	FieldStatementID = "statement_id"
	FieldSequence    = "sequence"
	FieldAttempt     = "attempt"
	FieldEntity      = "entity"
	FieldAttribute   = "attribute"
	FieldReason      = "reason"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Component returns a slog attribute for the emitting component.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// SinkURL returns a slog attribute for an event sink URL.
func SinkURL(url string) slog.Attr {
	return slog.String(FieldSinkURL, url)
}

// StatementID returns a slog attribute for a CEP statement id.
func StatementID(id string) slog.Attr {
	return slog.String(FieldStatementID, id)
}

// Sequence returns a slog attribute for an output event sequence number.
func Sequence(seq uint64) slog.Attr {
	return slog.Uint64(FieldSequence, seq)
}

// Attempt returns a slog attribute for a delivery attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Entity returns a slog attribute for a context entity "type/id".
func Entity(entityType, entityID string) slog.Attr {
	return slog.String(FieldEntity, entityType+"/"+entityID)
}

// Attribute returns a slog attribute for a context attribute name.
func Attribute(name string) slog.Attr {
	return slog.String(FieldAttribute, name)
}

// Reason returns a slog attribute for a failure reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error. A nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
