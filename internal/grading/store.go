package grading

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/content"
)

// AttemptStore persists attempts and their grading state.
type AttemptStore interface {
	Create(ctx context.Context, a *Attempt) error
	Get(ctx context.Context, id int64) (*Attempt, error)
	// ListPending returns up to limit Pending attempts, oldest first, with
	// their topic attached.
	ListPending(ctx context.Context, limit int) ([]Attempt, error)
	// MarkProcessing moves a Pending attempt to Processing. It reports false
	// when the attempt is no longer Pending.
	MarkProcessing(ctx context.Context, id int64, at time.Time) (bool, error)
	// Complete stores the graded result and clears any previous error.
	Complete(ctx context.Context, a *Attempt) error
	Fail(ctx context.Context, id int64, reason string, at time.Time) error
	// Requeue sends a Failed attempt back to Pending.
	Requeue(ctx context.Context, id int64, at time.Time) error
}

// MemoryAttemptStore is an in-memory AttemptStore for tests and development.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[int64]*Attempt
	nextID   int64
	topics   content.Repository
}

// NewMemoryAttemptStore creates an empty store. Topics are looked up in
// topics when listing pending attempts; topics may be nil.
func NewMemoryAttemptStore(topics content.Repository) *MemoryAttemptStore {
	return &MemoryAttemptStore{
		attempts: make(map[int64]*Attempt),
		topics:   topics,
	}
}

func (s *MemoryAttemptStore) Create(_ context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	a.ID = s.nextID
	if a.LastUpdatedAt.IsZero() {
		a.LastUpdatedAt = a.StartedAt
	}
	cp := *a
	cp.Topic = nil
	s.attempts[a.ID] = &cp
	return nil
}

func (s *MemoryAttemptStore) Get(_ context.Context, id int64) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAttemptNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAttemptStore) ListPending(ctx context.Context, limit int) ([]Attempt, error) {
	s.mu.Lock()
	var pending []Attempt
	for _, a := range s.attempts {
		if a.Status == StatusPending {
			pending = append(pending, *a)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(pending, func(a, b Attempt) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	if s.topics == nil {
		return pending, nil
	}
	for i := range pending {
		t, err := s.topics.GetTopic(ctx, pending[i].TopicID)
		if err != nil {
			return nil, fmt.Errorf("loading topic of attempt %d: %w", pending[i].ID, err)
		}
		pending[i].Topic = t
	}
	return pending, nil
}

func (s *MemoryAttemptStore) MarkProcessing(_ context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrAttemptNotFound, id)
	}
	if a.Status != StatusPending {
		return false, nil
	}
	a.Status = StatusProcessing
	a.LastUpdatedAt = at
	return true, nil
}

func (s *MemoryAttemptStore) Complete(_ context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.attempts[a.ID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrAttemptNotFound, a.ID)
	}
	cur.ResultJSON = a.ResultJSON
	cur.ScorePercent = a.ScorePercent
	cur.Status = StatusCompleted
	cur.GradingError = nil
	cur.LastUpdatedAt = a.LastUpdatedAt
	return nil
}

func (s *MemoryAttemptStore) Fail(_ context.Context, id int64, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrAttemptNotFound, id)
	}
	a.Status = StatusFailed
	a.GradingError = &reason
	a.LastUpdatedAt = at
	return nil
}

func (s *MemoryAttemptStore) Requeue(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrAttemptNotFound, id)
	}
	if a.Status != StatusFailed {
		return fmt.Errorf("attempt %d is %s, only failed attempts can be requeued", id, a.Status)
	}
	a.Status = StatusPending
	a.GradingError = nil
	a.LastUpdatedAt = at
	return nil
}
