// Package memory provides an in-process implementation of the relation store
// and activation index. Transactions work on a copy of the state and swap it
// in on commit, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arxiv/relations/internal/domain"
	"github.com/arxiv/relations/internal/infra/clock"
	"github.com/arxiv/relations/internal/usecase"
)

type state struct {
	relations   map[string]domain.Relation
	activations map[string]bool
	successors  map[string]string
}

func newState() state {
	return state{
		relations:   map[string]domain.Relation{},
		activations: map[string]bool{},
		successors:  map[string]string{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.relations {
		c.relations[k] = v
	}
	for k, v := range s.activations {
		c.activations[k] = v
	}
	for k, v := range s.successors {
		c.successors[k] = v
	}
	return c
}

// Store is safe for concurrent use. Writers are serialized.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   state
	clock   *clock.Clock
}

func New() *Store {
	return &Store{state: newState(), clock: clock.New(time.Now)}
}

// WithClock replaces the wall clock used for CreatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.clock = clock.New(now)
	return s
}

func (s *Store) Atomic(ctx context.Context, fn usecase.TxFunc) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	tx := &txn{store: s, state: working}
	if err := fn(ctx, tx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

func (s *Store) Read(ctx context.Context, fn usecase.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state
	s.mu.RUnlock()

	tx := &txn{store: s, state: snapshot, readOnly: true}
	return fn(ctx, tx, tx)
}

// Len reports the number of relations and activation records.
func (s *Store) Len() (relations, activations int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.relations), len(s.state.activations)
}

// Each visits every relation with its activation flag.
func (s *Store) Each(ctx context.Context, fn func(domain.Relation, bool) error) error {
	s.mu.RLock()
	snapshot := s.state
	s.mu.RUnlock()

	ids := make([]string, 0, len(snapshot.relations))
	for id := range snapshot.relations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(snapshot.relations[id], snapshot.activations[id]); err != nil {
			return err
		}
	}
	return nil
}

type txn struct {
	store    *Store
	state    state
	readOnly bool
}

var errReadOnly = readOnlyError{}

type readOnlyError struct{}

func (readOnlyError) Error() string { return "write in read-only transaction" }

func (t *txn) Insert(ctx context.Context, rel domain.Relation) (domain.Relation, error) {
	if t.readOnly {
		return domain.Relation{}, errReadOnly
	}
	if rel.Predecessor != nil {
		if _, ok := t.state.relations[*rel.Predecessor]; !ok {
			return domain.Relation{}, domain.NotFoundError{Resource: "relation", ID: *rel.Predecessor}
		}
		if _, taken := t.state.successors[*rel.Predecessor]; taken {
			return domain.Relation{}, domain.InactivePredecessorError{RelationID: *rel.Predecessor, Reason: "already has a successor"}
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Relation{}, err
	}
	rel.ID = id.String()
	rel.CreatedAt = t.store.clock.Now()

	t.state.relations[rel.ID] = rel
	if rel.Predecessor != nil {
		t.state.successors[*rel.Predecessor] = rel.ID
	}
	return rel, nil
}

func (t *txn) Get(ctx context.Context, id string) (domain.Relation, error) {
	rel, ok := t.state.relations[id]
	if !ok {
		return domain.Relation{}, domain.NotFoundError{Resource: "relation", ID: id}
	}
	return rel, nil
}

func (t *txn) ListByEPrint(ctx context.Context, ePrint domain.EPrint) ([]domain.Relation, error) {
	var result []domain.Relation
	for _, rel := range t.state.relations {
		if rel.EPrint == ePrint {
			result = append(result, rel)
		}
	}
	return result, nil
}

func (t *txn) FindSuccessor(ctx context.Context, predecessorID string) (*domain.Relation, error) {
	id, ok := t.state.successors[predecessorID]
	if !ok {
		return nil, nil
	}
	rel := t.state.relations[id]
	return &rel, nil
}

func (t *txn) Create(ctx context.Context, relationID string) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.state.relations[relationID]; !ok {
		return domain.NotFoundError{Resource: "relation", ID: relationID}
	}
	t.state.activations[relationID] = true
	return nil
}

func (t *txn) Deactivate(ctx context.Context, relationID string) error {
	if t.readOnly {
		return errReadOnly
	}
	active, ok := t.state.activations[relationID]
	if !ok {
		return domain.NotFoundError{Resource: "activation", ID: relationID}
	}
	if !active {
		return domain.InactivePredecessorError{RelationID: relationID}
	}
	t.state.activations[relationID] = false
	return nil
}

func (t *txn) LockActive(ctx context.Context, relationID string) (bool, error) {
	return t.IsActive(ctx, relationID)
}

func (t *txn) IsActive(ctx context.Context, relationID string) (bool, error) {
	active, ok := t.state.activations[relationID]
	if !ok {
		return false, domain.NotFoundError{Resource: "activation", ID: relationID}
	}
	return active, nil
}

func (t *txn) ActiveSet(ctx context.Context, relationIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(relationIDs))
	for _, id := range relationIDs {
		result[id] = t.state.activations[id]
	}
	return result, nil
}
