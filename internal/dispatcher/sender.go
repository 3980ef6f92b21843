package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fastdata/cepbridge/internal/models"
)

// Outbound notification headers.
const (
	HeaderStatement = "X-CEP-Statement"
	HeaderSequence  = "X-CEP-Sequence"
	userAgent       = "cepbridge/1.0"
)

// TransientError marks a failed attempt that is worth retrying: connection
// errors, timeouts, 5xx and 429 responses. It never leaves the dispatcher.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sink returned status %d", e.StatusCode)
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// StatusError is a permanent rejection by the sink.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sink rejected event with status %d", e.StatusCode)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// send performs one POST of ev to url.
func send(ctx context.Context, client *http.Client, url string, ev models.OutputEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(ev.Payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderStatement, ev.StatementID)
	req.Header.Set(HeaderSequence, strconv.FormatUint(ev.Sequence, 10))

	resp, err := client.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("send to sink: %w", err)}
	}
	defer resp.Body.Close()

	// Drain the body so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return &StatusError{StatusCode: resp.StatusCode}
	}
}
