package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arxiv/relations/internal/domain"
	"github.com/arxiv/relations/internal/infra/clock"
	"github.com/arxiv/relations/internal/infra/database/models"
)

const exportBatchSize = 500

type RelationRepository struct {
	db    *gorm.DB
	clock *clock.Clock
}

func NewRelationRepository(db *gorm.DB, c *clock.Clock) *RelationRepository {
	if c == nil {
		c = clock.New(time.Now)
	}
	return &RelationRepository{db: db, clock: c}
}

// Insert assigns the identifier and creation time and persists the relation.
func (r *RelationRepository) Insert(ctx context.Context, rel domain.Relation) (domain.Relation, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Relation{}, errors.Wrap(err, "generate relation id")
	}
	rel.ID = id.String()
	rel.CreatedAt = r.clock.Now()

	model := toModel(rel)
	err = r.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error
	if err != nil {
		if rel.Predecessor != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.Relation{}, domain.InactivePredecessorError{RelationID: *rel.Predecessor, Reason: "already has a successor"}
			}
			if errors.Is(err, gorm.ErrForeignKeyViolated) {
				return domain.Relation{}, domain.NotFoundError{Resource: "relation", ID: *rel.Predecessor}
			}
		}
		return domain.Relation{}, errors.Wrap(err, "insert relation")
	}

	return rel, nil
}

func (r *RelationRepository) Get(ctx context.Context, id string) (domain.Relation, error) {
	var model models.Relation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Relation{}, domain.NotFoundError{Resource: "relation", ID: id}
		}
		return domain.Relation{}, errors.Wrapf(err, "get relation %s", id)
	}
	return toDomain(model), nil
}

func (r *RelationRepository) ListByEPrint(ctx context.Context, ePrint domain.EPrint) ([]domain.Relation, error) {
	var rows []models.Relation
	err := r.db.WithContext(ctx).
		Where("arxiv_id = ? AND arxiv_version = ?", ePrint.ArxivID, ePrint.Version).
		Order("c_date asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list relations for %s", ePrint)
	}

	result := make([]domain.Relation, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomain(row))
	}
	return result, nil
}

func (r *RelationRepository) FindSuccessor(ctx context.Context, predecessorID string) (*domain.Relation, error) {
	var model models.Relation
	err := r.db.WithContext(ctx).
		Where("predecessor_id = ?", predecessorID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find successor of %s", predecessorID)
	}
	rel := toDomain(model)
	return &rel, nil
}

// Each visits every relation with its activation flag in id order.
func (r *RelationRepository) Each(ctx context.Context, fn func(domain.Relation, bool) error) error {
	activations := NewActivationRepository(r.db)
	last := ""
	for {
		var batch []models.Relation
		err := r.db.WithContext(ctx).
			Where("id > ?", last).
			Order("id asc").
			Limit(exportBatchSize).
			Find(&batch).Error
		if err != nil {
			return errors.Wrap(err, "export relations")
		}
		if len(batch) == 0 {
			return nil
		}

		ids := make([]string, len(batch))
		for i, row := range batch {
			ids[i] = row.ID
		}
		active, err := activations.ActiveSet(ctx, ids)
		if err != nil {
			return err
		}

		for _, row := range batch {
			if err := fn(toDomain(row), active[row.ID]); err != nil {
				return err
			}
		}
		last = batch[len(batch)-1].ID
	}
}

func toModel(rel domain.Relation) models.Relation {
	return models.Relation{
		ID:            rel.ID,
		RelationType:  string(rel.Type),
		ArxivID:       rel.EPrint.ArxivID,
		ArxivVersion:  rel.EPrint.Version,
		ResourceType:  rel.Resource.ResourceType,
		ResourceID:    rel.Resource.Identifier,
		Description:   rel.Description,
		Creator:       rel.Creator,
		PredecessorID: rel.Predecessor,
		CDate:         rel.CreatedAt,
	}
}

func toDomain(model models.Relation) domain.Relation {
	return domain.Relation{
		ID:   model.ID,
		Type: domain.RelationType(model.RelationType),
		EPrint: domain.EPrint{
			ArxivID: model.ArxivID,
			Version: model.ArxivVersion,
		},
		Resource: domain.Resource{
			ResourceType: model.ResourceType,
			Identifier:   model.ResourceID,
		},
		Description: model.Description,
		CreatedAt:   model.CDate.UTC(),
		Creator:     model.Creator,
		Predecessor: model.PredecessorID,
	}
}
