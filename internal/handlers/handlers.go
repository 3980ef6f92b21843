// Package handlers implements the cepbridge admin API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fastdata/cepbridge/common/httputil"
	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/common/messaging"
	"github.com/fastdata/cepbridge/internal/feed"
	"github.com/fastdata/cepbridge/internal/metrics"
	"github.com/fastdata/cepbridge/internal/registry"
)

// Error codes returned in the error envelope.
const (
	CodeAlreadyExists    = "already_exists"
	CodeNotFound         = "not_found"
	CodeInvalidRequest   = "invalid_request"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInternal         = "internal_error"
	CodeUnavailable      = "unavailable"
)

type Handler struct {
	sinks   *registry.EventSinkRegistry
	attrs   *registry.AttributeRegistry
	changes feed.ChangeHandler
	broker  messaging.Client
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates the admin API handler. changes receives NGSI
// notifications and may be nil, in which case /ngsi/notify answers 503.
// broker is only used for health reporting and may be nil.
func NewHandler(sinks *registry.EventSinkRegistry, attrs *registry.AttributeRegistry, changes feed.ChangeHandler, broker messaging.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		sinks:   sinks,
		attrs:   attrs,
		changes: changes,
		broker:  broker,
		logger:  logger.With(logging.Component("admin")),
		now:     time.Now,
	}
	h.updateGauges()
	return h
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string                  `json:"status"`
	Sinks      int                     `json:"sinks"`
	Attributes int                     `json:"attributes"`
	NATS       *messaging.HealthStatus `json:"nats,omitempty"`
}

// HealthCheck handles GET /healthz. The service is degraded, not down,
// when the broker is configured but unreachable.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	resp := HealthResponse{
		Status:     "healthy",
		Sinks:      h.sinks.Len(),
		Attributes: h.attrs.Len(),
	}
	if h.broker != nil {
		status := messaging.CheckClientHealth(h.broker)
		resp.NATS = &status
		if !status.Connected || status.Error != "" {
			resp.Status = "degraded"
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// writeRegistryError maps registry sentinels to HTTP status codes.
func (h *Handler) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrAlreadyExists):
		httputil.WriteError(w, http.StatusConflict, CodeAlreadyExists, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, registry.ErrInvalidURL), errors.Is(err, registry.ErrInvalidIdentity):
		httputil.WriteError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "admin request failed",
			slog.String("path", r.URL.Path), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func (h *Handler) updateGauges() {
	metrics.RegisteredSinks.Set(float64(h.sinks.Len()))
	metrics.MonitoredAttributes.Set(float64(h.attrs.Len()))
}

func badRequest(w http.ResponseWriter, message string) {
	httputil.WriteError(w, http.StatusBadRequest, CodeInvalidRequest, message)
}

func methodNotAllowed(w http.ResponseWriter) {
	httputil.WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}
