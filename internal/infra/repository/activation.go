package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arxiv/relations/internal/domain"
	"github.com/arxiv/relations/internal/infra/database/models"
)

type ActivationRepository struct {
	db *gorm.DB
}

func NewActivationRepository(db *gorm.DB) *ActivationRepository {
	return &ActivationRepository{db: db}
}

func (r *ActivationRepository) Create(ctx context.Context, relationID string) error {
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Create(&models.Activation{RelationID: relationID, Active: true}).Error
	if err != nil {
		return errors.Wrapf(err, "create activation for %s", relationID)
	}
	return nil
}

// Deactivate is a conditional write so that of two transactions racing on the
// same relation only one can flip it.
func (r *ActivationRepository) Deactivate(ctx context.Context, relationID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Activation{}).
		Where("relation_id = ? AND active = ?", relationID, true).
		Update("active", false)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "deactivate %s", relationID)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	if _, err := r.IsActive(ctx, relationID); err != nil {
		return err
	}
	return domain.InactivePredecessorError{RelationID: relationID}
}

func (r *ActivationRepository) LockActive(ctx context.Context, relationID string) (bool, error) {
	var activation models.Activation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("relation_id = ?", relationID).
		Take(&activation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, domain.NotFoundError{Resource: "activation", ID: relationID}
		}
		return false, errors.Wrapf(err, "lock activation %s", relationID)
	}
	return activation.Active, nil
}

func (r *ActivationRepository) IsActive(ctx context.Context, relationID string) (bool, error) {
	var activation models.Activation
	err := r.db.WithContext(ctx).
		Where("relation_id = ?", relationID).
		Take(&activation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, domain.NotFoundError{Resource: "activation", ID: relationID}
		}
		return false, errors.Wrapf(err, "get activation %s", relationID)
	}
	return activation.Active, nil
}

func (r *ActivationRepository) ActiveSet(ctx context.Context, relationIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(relationIDs))
	if len(relationIDs) == 0 {
		return result, nil
	}
	for _, id := range relationIDs {
		result[id] = false
	}

	var rows []models.Activation
	err := r.db.WithContext(ctx).
		Where("relation_id IN ?", relationIDs).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list activations")
	}
	for _, row := range rows {
		result[row.RelationID] = row.Active
	}
	return result, nil
}
