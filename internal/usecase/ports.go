package usecase

import (
	"context"

	"github.com/arxiv/relations/internal/domain"
)

// RelationStore is the append-only log of relations.
type RelationStore interface {
	Insert(ctx context.Context, relation domain.Relation) (domain.Relation, error)
	Get(ctx context.Context, id string) (domain.Relation, error)
	ListByEPrint(ctx context.Context, ePrint domain.EPrint) ([]domain.Relation, error)
	FindSuccessor(ctx context.Context, predecessorID string) (*domain.Relation, error)
}

// ActivationIndex keeps the active flag of every relation.
type ActivationIndex interface {
	Create(ctx context.Context, relationID string) error
	// Deactivate flips the flag to false iff it is currently true.
	Deactivate(ctx context.Context, relationID string) error
	// LockActive reads the flag and holds a row lock on it until the
	// surrounding transaction ends.
	LockActive(ctx context.Context, relationID string) (bool, error)
	IsActive(ctx context.Context, relationID string) (bool, error)
	ActiveSet(ctx context.Context, relationIDs []string) (map[string]bool, error)
}

// TxFunc is the body of a transaction. The store and index passed to it are
// bound to that transaction.
type TxFunc func(ctx context.Context, store RelationStore, index ActivationIndex) error

// UnitOfWork runs transactions against the relation store and activation index.
type UnitOfWork interface {
	Atomic(ctx context.Context, fn TxFunc) error
	Read(ctx context.Context, fn TxFunc) error
}

// RelationCache holds relations by id. Relations never change once written,
// so entries are never invalidated.
type RelationCache interface {
	Get(ctx context.Context, id string) (domain.Relation, bool)
	Set(ctx context.Context, relation domain.Relation)
}

// EventPublisher broadcasts committed lineage mutations.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.RelationEvent) error
}

// Metrics receives counters from the lineage engine.
type Metrics interface {
	RelationCommitted(relationType domain.RelationType)
	LineageRejected(op string, err error)
}
