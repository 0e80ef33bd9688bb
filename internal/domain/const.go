package domain

type ctxKey string

const (
	RequesterIdCtxKey ctxKey = "relations-requesterId"
)

const (
	RequesterIdHeader = "X-Requester"
	APIKeyHeader      = "X-API-KEY"
)

// EventKind names what happened to a lineage.
type EventKind string

const (
	EventCreated    EventKind = "created"
	EventSuperseded EventKind = "superseded"
	EventSuppressed EventKind = "suppressed"
)

// RelationEvent is emitted after a lineage mutation commits. Retired is the
// predecessor that was deactivated, if any.
type RelationEvent struct {
	Kind     EventKind
	Relation Relation
	Retired  *string
}
