package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fastdata/cepbridge/internal/models"
)

// NotifyContextRequest is an NGSI-10 notifyContextRequest body.
type NotifyContextRequest struct {
	SubscriptionID   string            `json:"subscriptionId"`
	Originator       string            `json:"originator"`
	ContextResponses []ContextResponse `json:"contextResponses"`
}

// ContextResponse wraps one context element and its status.
type ContextResponse struct {
	ContextElement ContextElement `json:"contextElement"`
	StatusCode     *StatusCode    `json:"statusCode,omitempty"`
}

// ContextElement is one entity with its changed attributes.
type ContextElement struct {
	Type       string             `json:"type"`
	IsPattern  string             `json:"isPattern,omitempty"`
	ID         string             `json:"id"`
	Attributes []ContextAttribute `json:"attributes"`
}

// ContextAttribute is a named attribute value.
type ContextAttribute struct {
	Name  string          `json:"name"`
	Type  string          `json:"type,omitempty"`
	Value json.RawMessage `json:"value"`
}

// StatusCode is the NGSI status of a context response.
type StatusCode struct {
	Code         string `json:"code"`
	ReasonPhrase string `json:"reasonPhrase,omitempty"`
}

// Changes flattens the request into one AttributeChange per attribute.
// Responses carrying a non-200 status code are skipped.
func (r *NotifyContextRequest) Changes(observedAt time.Time) ([]models.AttributeChange, error) {
	if len(r.ContextResponses) == 0 {
		return nil, fmt.Errorf("contextResponses is empty")
	}

	var changes []models.AttributeChange
	for i, resp := range r.ContextResponses {
		if resp.StatusCode != nil && resp.StatusCode.Code != "" && resp.StatusCode.Code != "200" {
			continue
		}
		el := resp.ContextElement
		if el.Type == "" || el.ID == "" {
			return nil, fmt.Errorf("contextResponses[%d]: contextElement type and id are required", i)
		}
		for j, attr := range el.Attributes {
			if attr.Name == "" {
				return nil, fmt.Errorf("contextResponses[%d].attributes[%d]: name is required", i, j)
			}
			changes = append(changes, models.AttributeChange{
				EntityType:    el.Type,
				EntityID:      el.ID,
				AttributeName: attr.Name,
				Value:         attr.Value,
				ObservedAt:    observedAt,
			})
		}
	}
	return changes, nil
}
