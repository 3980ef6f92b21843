package handlers

import (
	"net/http"

	"github.com/fastdata/cepbridge/common/httputil"
	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/internal/models"
)

// ListAttributes handles GET /attributes
func (h *Handler) ListAttributes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, models.AttributeListResponse{Attributes: h.attrs.List()})
}

// RegisterAttribute handles POST /attributes
func (h *Handler) RegisterAttribute(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterAttributeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	attr, err := h.attrs.Register(r.Context(), req.AttributeIdentity, req.StatementID)
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}
	h.updateGauges()

	h.logger.InfoContext(r.Context(), "attribute registered",
		logging.Attribute(attr.String()), logging.StatementID(attr.StatementID))
	httputil.WriteJSON(w, http.StatusCreated, attr)
}

// UnregisterAttribute handles DELETE /attributes
func (h *Handler) UnregisterAttribute(w http.ResponseWriter, r *http.Request) {
	var req models.AttributeIdentityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.attrs.Unregister(r.Context(), req.Identity); err != nil {
		h.writeRegistryError(w, r, err)
		return
	}
	h.updateGauges()

	h.logger.InfoContext(r.Context(), "attribute unregistered", logging.Attribute(req.Identity.String()))
	w.WriteHeader(http.StatusNoContent)
}

// ActivateAttribute handles PUT /attributes/activate
func (h *Handler) ActivateAttribute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req models.AttributeIdentityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	attr, err := h.attrs.Activate(r.Context(), req.Identity)
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "attribute activated", logging.Attribute(attr.String()))
	httputil.WriteJSON(w, http.StatusOK, attr)
}

// LookupAttribute handles GET /attributes/lookup
func (h *Handler) LookupAttribute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	id := models.AttributeIdentity{
		EntityType:      q.Get("entity_type"),
		EntityIDPattern: q.Get("entity_id_pattern"),
		AttributeName:   q.Get("attribute"),
	}
	if id.EntityType == "" || id.EntityIDPattern == "" || id.AttributeName == "" {
		badRequest(w, "entity_type, entity_id_pattern and attribute query parameters are required")
		return
	}

	attr, err := h.attrs.Lookup(id)
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, attr)
}
