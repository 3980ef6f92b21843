package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestStringFields(t *testing.T) {
	tests := []struct {
		name     string
		attr     slog.Attr
		key      string
		expected string
	}{
		{"service", Service("cepbridge"), FieldService, "cepbridge"},
		{"component", Component("dispatcher"), FieldComponent, "dispatcher"},
		{"sink url", SinkURL("http://a/notify"), FieldSinkURL, "http://a/notify"},
		{"statement", StatementID("high-temp"), FieldStatementID, "high-temp"},
		{"entity", Entity("Room", "Room1"), FieldEntity, "Room/Room1"},
		{"attribute", Attribute("temperature"), FieldAttribute, "temperature"},
		{"reason", Reason("permanent"), FieldReason, "permanent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("expected key %q, got %q", tt.key, tt.attr.Key)
			}
			if tt.attr.Value.String() != tt.expected {
				t.Errorf("expected value %q, got %q", tt.expected, tt.attr.Value.String())
			}
		})
	}
}

func TestSequence(t *testing.T) {
	attr := Sequence(42)
	if attr.Key != FieldSequence {
		t.Errorf("expected key %q, got %q", FieldSequence, attr.Key)
	}
	if attr.Value.Uint64() != 42 {
		t.Errorf("expected 42, got %d", attr.Value.Uint64())
	}
}

func TestAttempt(t *testing.T) {
	attr := Attempt(3)
	if attr.Key != FieldAttempt {
		t.Errorf("expected key %q, got %q", FieldAttempt, attr.Key)
	}
	if attr.Value.Int64() != 3 {
		t.Errorf("expected 3, got %d", attr.Value.Int64())
	}
}

func TestDuration(t *testing.T) {
	attr := Duration(1500 * time.Millisecond)
	if attr.Key != FieldDuration {
		t.Errorf("expected key %q, got %q", FieldDuration, attr.Key)
	}
	if attr.Value.Int64() != 1500 {
		t.Errorf("expected 1500, got %d", attr.Value.Int64())
	}
}

func TestError(t *testing.T) {
	attr := Error(errors.New("connection refused"))
	if attr.Key != FieldError {
		t.Errorf("expected key %q, got %q", FieldError, attr.Key)
	}
	if attr.Value.String() != "connection refused" {
		t.Errorf("expected error text, got %q", attr.Value.String())
	}

	if Error(nil).Value.String() != "" {
		t.Error("expected empty value for nil error")
	}
}
