// Package client is an HTTP client for the cepbridge admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fastdata/cepbridge/common/httputil"
	"github.com/fastdata/cepbridge/internal/models"
)

// APIError is a non-2xx admin API response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("admin api returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 from the admin API.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsNotFound reports whether err is a 404 from the admin API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type AdminClient struct {
	baseURL string
	client  *http.Client
}

func NewAdminClient(baseURL string) *AdminClient {
	return &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *AdminClient) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxBodyBytes))
	var errResp httputil.ErrorBody
	if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Error.Code != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: errResp.Error.Code, Message: errResp.Error.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
}

func (c *AdminClient) ListSinks(ctx context.Context) ([]models.EventSink, error) {
	var resp models.SinkListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/sinks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sinks, nil
}

func (c *AdminClient) CreateSink(ctx context.Context, name, sinkURL string) (*models.EventSink, error) {
	var sink models.EventSink
	req := models.CreateSinkRequest{Name: name, URL: sinkURL}
	if err := c.doRequest(ctx, http.MethodPost, "/sinks", req, &sink); err != nil {
		return nil, err
	}
	return &sink, nil
}

func (c *AdminClient) DeleteSink(ctx context.Context, sinkURL string) error {
	return c.doRequest(ctx, http.MethodDelete, "/sinks?url="+url.QueryEscape(sinkURL), nil, nil)
}

func (c *AdminClient) EnableSink(ctx context.Context, sinkURL string) (*models.EventSink, error) {
	var sink models.EventSink
	if err := c.doRequest(ctx, http.MethodPut, "/sinks/enable?url="+url.QueryEscape(sinkURL), nil, &sink); err != nil {
		return nil, err
	}
	return &sink, nil
}

func (c *AdminClient) DisableSink(ctx context.Context, sinkURL string) (*models.EventSink, error) {
	var sink models.EventSink
	if err := c.doRequest(ctx, http.MethodPut, "/sinks/disable?url="+url.QueryEscape(sinkURL), nil, &sink); err != nil {
		return nil, err
	}
	return &sink, nil
}

func (c *AdminClient) ListAttributes(ctx context.Context) ([]models.MonitoredAttribute, error) {
	var resp models.AttributeListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/attributes", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Attributes, nil
}

func (c *AdminClient) RegisterAttribute(ctx context.Context, id models.AttributeIdentity, statementID string) (*models.MonitoredAttribute, error) {
	var attr models.MonitoredAttribute
	req := models.RegisterAttributeRequest{AttributeIdentity: id, StatementID: statementID}
	if err := c.doRequest(ctx, http.MethodPost, "/attributes", req, &attr); err != nil {
		return nil, err
	}
	return &attr, nil
}

func (c *AdminClient) UnregisterAttribute(ctx context.Context, id models.AttributeIdentity) error {
	return c.doRequest(ctx, http.MethodDelete, "/attributes", models.AttributeIdentityRequest{Identity: id}, nil)
}

func (c *AdminClient) ActivateAttribute(ctx context.Context, id models.AttributeIdentity) (*models.MonitoredAttribute, error) {
	var attr models.MonitoredAttribute
	if err := c.doRequest(ctx, http.MethodPut, "/attributes/activate", models.AttributeIdentityRequest{Identity: id}, &attr); err != nil {
		return nil, err
	}
	return &attr, nil
}

func (c *AdminClient) LookupAttribute(ctx context.Context, id models.AttributeIdentity) (*models.MonitoredAttribute, error) {
	q := url.Values{}
	q.Set("entity_type", id.EntityType)
	q.Set("entity_id_pattern", id.EntityIDPattern)
	q.Set("attribute", id.AttributeName)

	var attr models.MonitoredAttribute
	if err := c.doRequest(ctx, http.MethodGet, "/attributes/lookup?"+q.Encode(), nil, &attr); err != nil {
		return nil, err
	}
	return &attr, nil
}

// Health returns the decoded /healthz body.
func (c *AdminClient) Health(ctx context.Context) (map[string]interface{}, error) {
	var resp map[string]interface{}
	if err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
