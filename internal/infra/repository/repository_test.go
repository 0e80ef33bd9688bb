package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arxiv/relations/internal/domain"
	"github.com/arxiv/relations/internal/infra/database"
	"github.com/arxiv/relations/internal/usecase"
)

var (
	testEPrint = domain.EPrint{ArxivID: "2101.00001", Version: 1}
	testDOI    = domain.Resource{ResourceType: "DOI", Identifier: "10.1000/xyz"}
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "relations.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func insert(t *testing.T, repo *RelationRepository, rel domain.Relation) domain.Relation {
	t.Helper()
	created, err := repo.Insert(context.Background(), rel)
	require.NoError(t, err)
	return created
}

func TestRelationRepositoryInsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewRelationRepository(db, nil)
	ctx := context.Background()
	creator := "alice"

	created := insert(t, repo, domain.Relation{
		Type:        domain.RelationTypeAdd,
		EPrint:      testEPrint,
		Resource:    testDOI,
		Description: "journal version",
		Creator:     &creator,
	})
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, time.UTC, created.CreatedAt.Location())
	assert.Equal(t, created.CreatedAt, created.CreatedAt.Truncate(time.Microsecond))

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.RelationTypeAdd, got.Type)
	assert.Equal(t, testEPrint, got.EPrint)
	assert.Equal(t, testDOI, got.Resource)
	assert.Equal(t, "journal version", got.Description)
	require.NotNil(t, got.Creator)
	assert.Equal(t, "alice", *got.Creator)
	assert.Nil(t, got.Predecessor)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRelationRepositorySingleSuccessor(t *testing.T) {
	db := newTestDB(t)
	repo := NewRelationRepository(db, nil)
	ctx := context.Background()

	root := insert(t, repo, domain.Relation{Type: domain.RelationTypeAdd, EPrint: testEPrint, Resource: testDOI})
	next := insert(t, repo, domain.Relation{Type: domain.RelationTypeEdit, EPrint: testEPrint, Resource: testDOI, Predecessor: &root.ID})

	_, err := repo.Insert(ctx, domain.Relation{Type: domain.RelationTypeEdit, EPrint: testEPrint, Resource: testDOI, Predecessor: &root.ID})
	assert.ErrorIs(t, err, domain.ErrInactivePredecessor)

	missing := "missing"
	_, err = repo.Insert(ctx, domain.Relation{Type: domain.RelationTypeEdit, EPrint: testEPrint, Resource: testDOI, Predecessor: &missing})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	successor, err := repo.FindSuccessor(ctx, root.ID)
	require.NoError(t, err)
	require.NotNil(t, successor)
	assert.Equal(t, next.ID, successor.ID)

	successor, err = repo.FindSuccessor(ctx, next.ID)
	require.NoError(t, err)
	assert.Nil(t, successor)
}

func TestRelationRepositoryListByEPrint(t *testing.T) {
	db := newTestDB(t)
	repo := NewRelationRepository(db, nil)
	ctx := context.Background()

	a := insert(t, repo, domain.Relation{Type: domain.RelationTypeAdd, EPrint: testEPrint, Resource: testDOI})
	b := insert(t, repo, domain.Relation{Type: domain.RelationTypeAdd, EPrint: testEPrint, Resource: testDOI})
	insert(t, repo, domain.Relation{Type: domain.RelationTypeAdd, EPrint: domain.EPrint{ArxivID: "2101.00001", Version: 2}, Resource: testDOI})

	rels, err := repo.ListByEPrint(ctx, testEPrint)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, a.ID, rels[0].ID)
	assert.Equal(t, b.ID, rels[1].ID)

	rels, err = repo.ListByEPrint(ctx, domain.EPrint{ArxivID: "9999.99999", Version: 1})
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestActivationRepository(t *testing.T) {
	db := newTestDB(t)
	relations := NewRelationRepository(db, nil)
	activations := NewActivationRepository(db)
	ctx := context.Background()

	a := insert(t, relations, domain.Relation{Type: domain.RelationTypeAdd, EPrint: testEPrint, Resource: testDOI})
	b := insert(t, relations, domain.Relation{Type: domain.RelationTypeAdd, EPrint: testEPrint, Resource: testDOI})
	require.NoError(t, activations.Create(ctx, a.ID))
	require.NoError(t, activations.Create(ctx, b.ID))

	active, err := activations.LockActive(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, activations.Deactivate(ctx, a.ID))
	err = activations.Deactivate(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrInactivePredecessor)

	err = activations.Deactivate(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	active, err = activations.IsActive(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, active)

	_, err = activations.IsActive(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	set, err := activations.ActiveSet(ctx, []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{a.ID: false, b.ID: true, "missing": false}, set)

	set, err = activations.ActiveSet(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestUnitOfWorkRollsBack(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db, nil)
	ctx := context.Background()

	err := uow.Atomic(ctx, func(ctx context.Context, store usecase.RelationStore, index usecase.ActivationIndex) error {
		rel, err := store.Insert(ctx, domain.Relation{Type: domain.RelationTypeAdd, EPrint: testEPrint, Resource: testDOI})
		if err != nil {
			return err
		}
		if err := index.Create(ctx, rel.ID); err != nil {
			return err
		}
		return index.Deactivate(ctx, "missing")
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	var count int64
	require.NoError(t, db.Table("relations").Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Table("activations").Count(&count).Error)
	assert.Zero(t, count)
}

func TestLineageOverSQLite(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db, nil)
	lineage := usecase.NewLineageUsecase(uow)
	query := usecase.NewQueryUsecase(uow, nil)
	ctx := context.Background()

	r1, err := lineage.Create(ctx, usecase.CreateInput{EPrint: testEPrint, Resource: testDOI})
	require.NoError(t, err)

	r2, err := lineage.Supersede(ctx, usecase.SupersedeInput{
		EPrint:        testEPrint,
		Resource:      domain.Resource{ResourceType: "DOI", Identifier: "10.1000/abc"},
		PredecessorID: r1.ID,
	})
	require.NoError(t, err)

	_, err = lineage.Supersede(ctx, usecase.SupersedeInput{EPrint: testEPrint, Resource: testDOI, PredecessorID: r1.ID})
	assert.ErrorIs(t, err, domain.ErrInactivePredecessor)

	r3, err := lineage.Suppress(ctx, usecase.SuppressInput{EPrint: testEPrint, PredecessorID: r2.ID})
	require.NoError(t, err)
	assert.Equal(t, r2.Resource, r3.Resource)

	_, err = lineage.Suppress(ctx, usecase.SuppressInput{EPrint: testEPrint, PredecessorID: r3.ID})
	assert.ErrorIs(t, err, domain.ErrInactivePredecessor)

	active, err := query.ListForEPrint(ctx, testEPrint, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := query.ListForEPrint(ctx, testEPrint, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{r1.ID, r2.ID, r3.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	chain, err := query.Lineage(ctx, r1.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, domain.RelationStateSuperseded, chain[0].State)
	assert.Equal(t, domain.RelationStateSuppressed, chain[1].State)
	assert.Equal(t, domain.RelationStateActive, chain[2].State)
}

func TestConcurrentSupersedeOverSQLite(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db, nil)
	lineage := usecase.NewLineageUsecase(uow)
	ctx := context.Background()

	r1, err := lineage.Create(ctx, usecase.CreateInput{EPrint: testEPrint, Resource: testDOI})
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = lineage.Supersede(ctx, usecase.SupersedeInput{EPrint: testEPrint, Resource: testDOI, PredecessorID: r1.ID})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			errors.Is(err, domain.ErrInactivePredecessor) || errors.Is(err, domain.ErrStorage),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	var successors int64
	require.NoError(t, db.Table("relations").Where("predecessor_id = ?", r1.ID).Count(&successors).Error)
	assert.Equal(t, int64(1), successors)
}

func TestUnitOfWorkEach(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db, nil)
	lineage := usecase.NewLineageUsecase(uow)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		rel, err := lineage.Create(ctx, usecase.CreateInput{EPrint: testEPrint, Resource: testDOI})
		require.NoError(t, err)
		ids = append(ids, rel.ID)
	}
	_, err := lineage.Supersede(ctx, usecase.SupersedeInput{EPrint: testEPrint, Resource: testDOI, PredecessorID: ids[0]})
	require.NoError(t, err)

	seen := map[string]bool{}
	var order []string
	err = uow.Each(ctx, func(rel domain.Relation, active bool) error {
		seen[rel.ID] = active
		order = append(order, rel.ID)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, seen, 4)
	assert.False(t, seen[ids[0]])
	assert.True(t, seen[ids[1]])
	assert.True(t, seen[ids[2]])
	assert.IsIncreasing(t, order)
}
