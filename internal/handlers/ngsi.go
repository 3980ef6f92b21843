package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fastdata/cepbridge/common/httputil"
	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/internal/feed"
	"github.com/fastdata/cepbridge/internal/metrics"
)

// NotifyResponse is the body returned to the context broker.
type NotifyResponse struct {
	Accepted int `json:"accepted"`
	Failed   int `json:"failed"`
}

// NotifyContext handles POST /ngsi/notify
func (h *Handler) NotifyContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if h.changes == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "context feed is not available")
		return
	}

	// NGSI payloads carry fields the bridge ignores, so unknown fields
	// are tolerated here unlike the admin endpoints.
	var req feed.NotifyContextRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, httputil.MaxBodyBytes)).Decode(&req); err != nil {
		metrics.ChangesTotal.WithLabelValues("ngsi", "invalid").Inc()
		badRequest(w, "invalid notifyContextRequest: "+err.Error())
		return
	}
	changes, err := req.Changes(h.now().UTC())
	if err != nil {
		metrics.ChangesTotal.WithLabelValues("ngsi", "invalid").Inc()
		badRequest(w, err.Error())
		return
	}

	var resp NotifyResponse
	for _, change := range changes {
		if err := h.changes.OnAttributeChanged(r.Context(), change); err != nil {
			resp.Failed++
			metrics.ChangesTotal.WithLabelValues("ngsi", "error").Inc()
			h.logger.WarnContext(r.Context(), "failed to hand off context change",
				logging.Entity(change.EntityType, change.EntityID),
				logging.Attribute(change.AttributeName),
				logging.Error(err))
			continue
		}
		resp.Accepted++
		metrics.ChangesTotal.WithLabelValues("ngsi", "accepted").Inc()
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}
