package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arxiv/relations/internal/domain"
)

var tracer = otel.Tracer("lineage")

// CreateInput is the validated input for a new ADD relation.
type CreateInput struct {
	EPrint      domain.EPrint
	Resource    domain.Resource
	Description string
	Creator     *string
}

// SupersedeInput replaces PredecessorID with a corrected relation.
type SupersedeInput struct {
	EPrint        domain.EPrint
	Resource      domain.Resource
	Description   string
	Creator       *string
	PredecessorID string
}

// SuppressInput retracts PredecessorID. The resource is taken from the
// predecessor.
type SuppressInput struct {
	EPrint        domain.EPrint
	Description   string
	Creator       *string
	PredecessorID string
}

type LineageUsecase struct {
	uow     UnitOfWork
	events  EventPublisher
	metrics Metrics
	logger  *zap.Logger
}

type LineageOption func(*LineageUsecase)

func WithEventPublisher(p EventPublisher) LineageOption {
	return func(uc *LineageUsecase) { uc.events = p }
}

func WithMetrics(m Metrics) LineageOption {
	return func(uc *LineageUsecase) { uc.metrics = m }
}

func WithLogger(l *zap.Logger) LineageOption {
	return func(uc *LineageUsecase) { uc.logger = l }
}

func NewLineageUsecase(uow UnitOfWork, opts ...LineageOption) *LineageUsecase {
	uc := &LineageUsecase{uow: uow, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Create records a new ADD relation and marks it active.
func (uc *LineageUsecase) Create(ctx context.Context, in CreateInput) (domain.Relation, error) {
	ctx, span := tracer.Start(ctx, "Lineage.Usecase.Create")
	defer span.End()

	if err := validate(in.EPrint, &in.Resource); err != nil {
		span.RecordError(err)
		uc.rejected("create", err)
		return domain.Relation{}, err
	}

	var created domain.Relation
	err := uc.uow.Atomic(ctx, func(ctx context.Context, store RelationStore, index ActivationIndex) error {
		rel, err := store.Insert(ctx, domain.Relation{
			Type:        domain.RelationTypeAdd,
			EPrint:      in.EPrint,
			Resource:    in.Resource,
			Description: in.Description,
			Creator:     in.Creator,
		})
		if err != nil {
			return err
		}
		if err := index.Create(ctx, rel.ID); err != nil {
			return err
		}
		created = rel
		return nil
	})
	if err != nil {
		err = classifyWrite("create", err)
		span.RecordError(err)
		uc.rejected("create", err)
		return domain.Relation{}, err
	}

	span.SetAttributes(attribute.String("relation.id", created.ID))
	uc.committed(ctx, domain.RelationEvent{Kind: domain.EventCreated, Relation: created})
	return created, nil
}

// Supersede replaces an active relation with an EDIT relation.
func (uc *LineageUsecase) Supersede(ctx context.Context, in SupersedeInput) (domain.Relation, error) {
	ctx, span := tracer.Start(ctx, "Lineage.Usecase.Supersede")
	defer span.End()
	span.SetAttributes(attribute.String("relation.predecessor", in.PredecessorID))

	if err := validate(in.EPrint, &in.Resource); err != nil {
		span.RecordError(err)
		uc.rejected("supersede", err)
		return domain.Relation{}, err
	}

	rel, err := uc.retire(ctx, "supersede", in.EPrint, in.PredecessorID, func(prev domain.Relation) domain.Relation {
		return domain.Relation{
			Type:        domain.RelationTypeEdit,
			EPrint:      in.EPrint,
			Resource:    in.Resource,
			Description: in.Description,
			Creator:     in.Creator,
		}
	})
	if err != nil {
		span.RecordError(err)
		return domain.Relation{}, err
	}

	span.SetAttributes(attribute.String("relation.id", rel.ID))
	uc.committed(ctx, domain.RelationEvent{Kind: domain.EventSuperseded, Relation: rel, Retired: rel.Predecessor})
	return rel, nil
}

// Suppress retracts an active relation. The new SUPPRESS relation carries the
// predecessor's resource unchanged.
func (uc *LineageUsecase) Suppress(ctx context.Context, in SuppressInput) (domain.Relation, error) {
	ctx, span := tracer.Start(ctx, "Lineage.Usecase.Suppress")
	defer span.End()
	span.SetAttributes(attribute.String("relation.predecessor", in.PredecessorID))

	if err := validate(in.EPrint, nil); err != nil {
		span.RecordError(err)
		uc.rejected("suppress", err)
		return domain.Relation{}, err
	}

	rel, err := uc.retire(ctx, "suppress", in.EPrint, in.PredecessorID, func(prev domain.Relation) domain.Relation {
		return domain.Relation{
			Type:        domain.RelationTypeSuppress,
			EPrint:      in.EPrint,
			Resource:    prev.Resource,
			Description: in.Description,
			Creator:     in.Creator,
		}
	})
	if err != nil {
		span.RecordError(err)
		return domain.Relation{}, err
	}

	span.SetAttributes(attribute.String("relation.id", rel.ID))
	uc.committed(ctx, domain.RelationEvent{Kind: domain.EventSuppressed, Relation: rel, Retired: rel.Predecessor})
	return rel, nil
}

// IsActive reports the activation flag of a relation.
func (uc *LineageUsecase) IsActive(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Lineage.Usecase.IsActive")
	defer span.End()

	var active bool
	err := uc.uow.Read(ctx, func(ctx context.Context, _ RelationStore, index ActivationIndex) error {
		var err error
		active, err = index.IsActive(ctx, id)
		return err
	})
	if err != nil {
		err = classifyRead("isActive", err)
		span.RecordError(err)
		return false, err
	}
	return active, nil
}

// retire checks the predecessor, then inserts the relation built from it and
// swaps the activation flags, all in one transaction.
func (uc *LineageUsecase) retire(
	ctx context.Context,
	op string,
	ePrint domain.EPrint,
	predecessorID string,
	build func(prev domain.Relation) domain.Relation,
) (domain.Relation, error) {
	var created domain.Relation
	err := uc.uow.Atomic(ctx, func(ctx context.Context, store RelationStore, index ActivationIndex) error {
		prev, err := store.Get(ctx, predecessorID)
		if err != nil {
			return err
		}
		if prev.EPrint != ePrint {
			return domain.NotFoundError{Resource: "relation", ID: fmt.Sprintf("%s for e-print %s", predecessorID, ePrint)}
		}
		if prev.Type == domain.RelationTypeSuppress {
			return domain.InactivePredecessorError{RelationID: predecessorID, Reason: "a suppression ends its lineage"}
		}

		active, err := index.LockActive(ctx, predecessorID)
		if errors.Is(err, domain.ErrNotFound) {
			uc.logger.Error("activation record missing",
				zap.String("op", op),
				zap.String("relation_id", predecessorID),
			)
			return &domain.StorageError{Op: op, Err: fmt.Errorf("activation record missing for relation %s", predecessorID)}
		}
		if err != nil {
			return err
		}
		if !active {
			return domain.InactivePredecessorError{RelationID: predecessorID}
		}

		next := build(prev)
		next.Predecessor = &predecessorID
		rel, err := store.Insert(ctx, next)
		if err != nil {
			return err
		}
		if err := index.Deactivate(ctx, predecessorID); err != nil {
			return err
		}
		if err := index.Create(ctx, rel.ID); err != nil {
			return err
		}
		created = rel
		return nil
	})
	if err != nil {
		err = classifyWrite(op, err)
		uc.rejected(op, err)
		return domain.Relation{}, err
	}
	return created, nil
}

func (uc *LineageUsecase) committed(ctx context.Context, event domain.RelationEvent) {
	if uc.metrics != nil {
		uc.metrics.RelationCommitted(event.Relation.Type)
	}
	uc.logger.Info("relation committed",
		zap.String("kind", string(event.Kind)),
		zap.String("relation_id", event.Relation.ID),
		zap.String("eprint", event.Relation.EPrint.String()),
	)
	if uc.events == nil {
		return
	}
	if err := uc.events.Publish(ctx, event); err != nil {
		uc.logger.Warn("failed to publish relation event",
			zap.String("relation_id", event.Relation.ID),
			zap.Error(err),
		)
	}
}

func (uc *LineageUsecase) rejected(op string, err error) {
	if uc.metrics != nil {
		uc.metrics.LineageRejected(op, err)
	}
	if errors.Is(err, domain.ErrStorage) {
		uc.logger.Error("lineage write failed", zap.String("op", op), zap.Error(err))
	}
}

// validate checks caller input before any transaction starts. resource is nil
// for suppressions, which copy it from the predecessor.
func validate(ePrint domain.EPrint, resource *domain.Resource) error {
	if err := ePrint.Validate(); err != nil {
		return err
	}
	if resource != nil {
		return resource.Validate()
	}
	return nil
}

// classifyWrite keeps domain errors and turns anything else into a
// StorageError for op.
func classifyWrite(op string, err error) error {
	if isDomainError(err) {
		return err
	}
	return &domain.StorageError{Op: op, Err: err}
}

// classifyRead keeps domain errors and turns anything else into a LookupError
// for op.
func classifyRead(op string, err error) error {
	if isDomainError(err) {
		return err
	}
	return &domain.LookupError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInactivePredecessor) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrStorage) ||
		errors.Is(err, domain.ErrLookup)
}
