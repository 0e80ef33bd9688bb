package usecase

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/arxiv/relations/internal/domain"
)

type QueryUsecase struct {
	uow   UnitOfWork
	cache RelationCache
}

// NewQueryUsecase builds the read side. cache may be nil.
func NewQueryUsecase(uow UnitOfWork, cache RelationCache) *QueryUsecase {
	return &QueryUsecase{uow: uow, cache: cache}
}

// GetByID returns a single relation.
func (uc *QueryUsecase) GetByID(ctx context.Context, id string) (domain.Relation, error) {
	ctx, span := tracer.Start(ctx, "Query.Usecase.GetByID")
	defer span.End()
	span.SetAttributes(attribute.String("relation.id", id))

	if uc.cache != nil {
		if rel, ok := uc.cache.Get(ctx, id); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return rel, nil
		}
	}

	var rel domain.Relation
	err := uc.uow.Read(ctx, func(ctx context.Context, store RelationStore, _ ActivationIndex) error {
		var err error
		rel, err = store.Get(ctx, id)
		return err
	})
	if err != nil {
		err = classifyRead("getById", err)
		span.RecordError(err)
		return domain.Relation{}, err
	}

	if uc.cache != nil {
		uc.cache.Set(ctx, rel)
	}
	return rel, nil
}

// ListForEPrint returns the relations of an e-print ordered by creation time.
// With activeOnly it returns only the heads of live lineages: relations whose
// activation flag is set, excluding SUPPRESS relations since a suppression
// asserts nothing.
func (uc *QueryUsecase) ListForEPrint(ctx context.Context, ePrint domain.EPrint, activeOnly bool) ([]domain.Relation, error) {
	ctx, span := tracer.Start(ctx, "Query.Usecase.ListForEPrint")
	defer span.End()
	span.SetAttributes(
		attribute.String("eprint", ePrint.String()),
		attribute.Bool("activeOnly", activeOnly),
	)

	if err := ePrint.Validate(); err != nil {
		return nil, err
	}

	var result []domain.Relation
	err := uc.uow.Read(ctx, func(ctx context.Context, store RelationStore, index ActivationIndex) error {
		all, err := store.ListByEPrint(ctx, ePrint)
		if err != nil {
			return err
		}
		if !activeOnly {
			result = all
			return nil
		}

		ids := make([]string, 0, len(all))
		for _, rel := range all {
			ids = append(ids, rel.ID)
		}
		active, err := index.ActiveSet(ctx, ids)
		if err != nil {
			return err
		}

		result = make([]domain.Relation, 0, len(all))
		for _, rel := range all {
			if active[rel.ID] && rel.Type != domain.RelationTypeSuppress {
				result = append(result, rel)
			}
		}
		return nil
	})
	if err != nil {
		err = classifyRead("listForEPrint", err)
		span.RecordError(err)
		return nil, err
	}

	sortByCreation(result)
	return result, nil
}

// History returns every relation of an e-print with its derived state.
func (uc *QueryUsecase) History(ctx context.Context, ePrint domain.EPrint) ([]domain.LineageEntry, error) {
	ctx, span := tracer.Start(ctx, "Query.Usecase.History")
	defer span.End()

	if err := ePrint.Validate(); err != nil {
		return nil, err
	}

	var entries []domain.LineageEntry
	err := uc.uow.Read(ctx, func(ctx context.Context, store RelationStore, _ ActivationIndex) error {
		all, err := store.ListByEPrint(ctx, ePrint)
		if err != nil {
			return err
		}
		sortByCreation(all)

		successors := make(map[string]*domain.Relation, len(all))
		for i := range all {
			if p := all[i].Predecessor; p != nil {
				successors[*p] = &all[i]
			}
		}

		entries = make([]domain.LineageEntry, 0, len(all))
		for _, rel := range all {
			entries = append(entries, domain.LineageEntry{
				Relation: rel,
				State:    domain.StateFor(successors[rel.ID]),
			})
		}
		return nil
	})
	if err != nil {
		err = classifyRead("history", err)
		span.RecordError(err)
		return nil, err
	}
	return entries, nil
}

// Lineage returns the whole chain the relation belongs to, oldest first.
func (uc *QueryUsecase) Lineage(ctx context.Context, id string) ([]domain.LineageEntry, error) {
	ctx, span := tracer.Start(ctx, "Query.Usecase.Lineage")
	defer span.End()
	span.SetAttributes(attribute.String("relation.id", id))

	var chain []domain.Relation
	err := uc.uow.Read(ctx, func(ctx context.Context, store RelationStore, _ ActivationIndex) error {
		rel, err := store.Get(ctx, id)
		if err != nil {
			return err
		}

		var back []domain.Relation
		for cur := rel; cur.Predecessor != nil; {
			cur, err = store.Get(ctx, *cur.Predecessor)
			if err != nil {
				return err
			}
			back = append(back, cur)
		}
		for i := len(back) - 1; i >= 0; i-- {
			chain = append(chain, back[i])
		}
		chain = append(chain, rel)

		for cur := rel; ; {
			next, err := store.FindSuccessor(ctx, cur.ID)
			if err != nil {
				return err
			}
			if next == nil {
				break
			}
			chain = append(chain, *next)
			cur = *next
		}
		return nil
	})
	if err != nil {
		err = classifyRead("lineage", err)
		span.RecordError(err)
		return nil, err
	}

	entries := make([]domain.LineageEntry, len(chain))
	for i, rel := range chain {
		var successor *domain.Relation
		if i+1 < len(chain) {
			successor = &chain[i+1]
		}
		entries[i] = domain.LineageEntry{Relation: rel, State: domain.StateFor(successor)}
	}
	return entries, nil
}

func sortByCreation(relations []domain.Relation) {
	sort.SliceStable(relations, func(i, j int) bool {
		if relations[i].CreatedAt.Equal(relations[j].CreatedAt) {
			return relations[i].ID < relations[j].ID
		}
		return relations[i].CreatedAt.Before(relations[j].CreatedAt)
	})
}
