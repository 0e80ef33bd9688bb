package relations

import (
	"time"
)

const (
	RelationTypeAdd      string = "ADD"
	RelationTypeEdit     string = "EDIT"
	RelationTypeSuppress string = "SUPPRESS"
)

type EPrint struct {
	ArxivID string `json:"arxivId"`
	Version int    `json:"version"`
}

type Resource struct {
	ResourceType string `json:"resourceType"`
	Identifier   string `json:"identifier"`
}

type Relation struct {
	Identifier   string    `json:"identifier"`
	RelationType string    `json:"relationType"`
	EPrint       EPrint    `json:"ePrint"`
	Resource     Resource  `json:"resource"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"createdAt"`
	Creator      *string   `json:"creator,omitempty"`
	Predecessor  *string   `json:"predecessor,omitempty"`
}

// LineageEntry is a relation annotated with its derived state
// (ACTIVE, SUPERSEDED or SUPPRESSED).
type LineageEntry struct {
	Relation
	State string `json:"state"`
}

// RelationInput is the body of the write routes, sent as JSON or as an HTML
// form. Both the snake_case keys of the legacy form and camelCase keys are
// accepted.
type RelationInput struct {
	ResourceType      string  `json:"resource_type,omitempty" form:"resource_type"`
	ResourceTypeCamel string  `json:"resourceType,omitempty" form:"resourceType"`
	ResourceID        string  `json:"resource_id,omitempty" form:"resource_id"`
	ResourceIDCamel   string  `json:"resourceId,omitempty" form:"resourceId"`
	Description       string  `json:"description,omitempty" form:"description"`
	Creator           *string `json:"creator,omitempty" form:"creator"`
}

type Activity struct {
	Identifier string `json:"identifier"`
	Active     bool   `json:"active"`
}

type Event struct {
	Kind     string   `json:"kind"`
	Relation Relation `json:"relation"`
	Retired  *string  `json:"retired,omitempty"`
}

// Subscription is sent by realtime clients. Type is "listen" or "h"
// (heartbeat).
type Subscription struct {
	Type    string   `json:"type"`
	EPrints []string `json:"eprints"`
}

type Status struct {
	IAm string `json:"iam"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
