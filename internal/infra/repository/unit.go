package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/arxiv/relations/internal/domain"
	"github.com/arxiv/relations/internal/infra/clock"
	"github.com/arxiv/relations/internal/usecase"
)

// UnitOfWork binds the relation and activation repositories to one gorm
// transaction per call.
type UnitOfWork struct {
	db       *gorm.DB
	clock    *clock.Clock
	readOpts *sql.TxOptions
}

func NewUnitOfWork(db *gorm.DB, c *clock.Clock) *UnitOfWork {
	if c == nil {
		c = clock.New(time.Now)
	}
	u := &UnitOfWork{db: db, clock: c}
	if db.Dialector.Name() == "postgres" {
		u.readOpts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return u
}

func (u *UnitOfWork) Atomic(ctx context.Context, fn usecase.TxFunc) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewRelationRepository(tx, u.clock), NewActivationRepository(tx))
	})
}

func (u *UnitOfWork) Read(ctx context.Context, fn usecase.TxFunc) error {
	body := func(tx *gorm.DB) error {
		return fn(ctx, NewRelationRepository(tx, u.clock), NewActivationRepository(tx))
	}
	if u.readOpts == nil {
		return u.db.WithContext(ctx).Transaction(body)
	}
	return u.db.WithContext(ctx).Transaction(body, u.readOpts)
}

// Each streams every relation with its activation flag from one snapshot.
func (u *UnitOfWork) Each(ctx context.Context, fn func(domain.Relation, bool) error) error {
	return u.Read(ctx, func(ctx context.Context, store usecase.RelationStore, _ usecase.ActivationIndex) error {
		return store.(*RelationRepository).Each(ctx, fn)
	})
}
