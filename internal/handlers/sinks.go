package handlers

import (
	"net/http"
	"strings"

	"github.com/fastdata/cepbridge/common/httputil"
	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/internal/models"
)

// ListSinks handles GET /sinks
func (h *Handler) ListSinks(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, models.SinkListResponse{Sinks: h.sinks.List()})
}

// CreateSink handles POST /sinks
func (h *Handler) CreateSink(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSinkRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		badRequest(w, "url is required")
		return
	}

	sink, err := h.sinks.Create(r.Context(), req.Name, req.URL)
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}
	h.updateGauges()

	h.logger.InfoContext(r.Context(), "event sink created",
		logging.SinkURL(sink.URL), "name", sink.Name, "id", sink.ID)
	httputil.WriteJSON(w, http.StatusCreated, sink)
}

// DeleteSink handles DELETE /sinks?url=
func (h *Handler) DeleteSink(w http.ResponseWriter, r *http.Request) {
	url, ok := sinkURLParam(w, r)
	if !ok {
		return
	}
	if err := h.sinks.Delete(r.Context(), url); err != nil {
		h.writeRegistryError(w, r, err)
		return
	}
	h.updateGauges()

	h.logger.InfoContext(r.Context(), "event sink deleted", logging.SinkURL(url))
	w.WriteHeader(http.StatusNoContent)
}

// EnableSink handles PUT /sinks/enable?url=
func (h *Handler) EnableSink(w http.ResponseWriter, r *http.Request) {
	h.setSinkEnabled(w, r, true)
}

// DisableSink handles PUT /sinks/disable?url=
func (h *Handler) DisableSink(w http.ResponseWriter, r *http.Request) {
	h.setSinkEnabled(w, r, false)
}

func (h *Handler) setSinkEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	url, ok := sinkURLParam(w, r)
	if !ok {
		return
	}

	var err error
	if enabled {
		err = h.sinks.Enable(r.Context(), url)
	} else {
		err = h.sinks.Disable(r.Context(), url)
	}
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}

	sink, err := h.sinks.Lookup(url)
	if err != nil {
		// Deleted between the update and the read.
		h.writeRegistryError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "event sink updated",
		logging.SinkURL(sink.URL), "enabled", sink.Enabled)
	httputil.WriteJSON(w, http.StatusOK, sink)
}

func sinkURLParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	url := r.URL.Query().Get("url")
	if strings.TrimSpace(url) == "" {
		badRequest(w, "url query parameter is required")
		return "", false
	}
	return url, true
}
