package content

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Repository persists topics and their history.
type Repository interface {
	FindTopicByKey(ctx context.Context, key string) (*Topic, error)
	GetTopic(ctx context.Context, id int64) (*Topic, error)
	ListTopics(ctx context.Context, includeDeleted bool) ([]Topic, error)
	CreateTopic(ctx context.Context, t *Topic) error
	UpdateTopic(ctx context.Context, t *Topic) error
	DeleteTopic(ctx context.Context, id int64) error

	AppendHistory(ctx context.Context, e *HistoryEntry) error
	// LatestContent returns the newest non-nil content logged for key.
	LatestContent(ctx context.Context, key string) (string, bool, error)
	ListHistory(ctx context.Context, key string) ([]HistoryEntry, error)
}

// MemoryStore is an in-memory Repository for development and tests.
type MemoryStore struct {
	topics    map[int64]*Topic
	byKey     map[string]int64
	history   []HistoryEntry
	nextTopic int64
	nextEntry int64
	mu        sync.RWMutex
}

// NewMemoryStore creates an empty in-memory repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		topics: make(map[int64]*Topic),
		byKey:  make(map[string]int64),
	}
}

func (s *MemoryStore) FindTopicByKey(_ context.Context, key string) (*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, key)
	}
	t := *s.topics[id]
	return &t, nil
}

func (s *MemoryStore) GetTopic(_ context.Context, id int64) (*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.topics[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrTopicNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTopics(_ context.Context, includeDeleted bool) ([]Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]Topic, 0, len(s.topics))
	for _, t := range s.topics {
		if t.IsDeleted && !includeDeleted {
			continue
		}
		topics = append(topics, *t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID < topics[j].ID })
	return topics, nil
}

func (s *MemoryStore) CreateTopic(_ context.Context, t *Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.Key()
	if _, exists := s.byKey[key]; exists {
		return fmt.Errorf("topic already exists: %s", t.FileName)
	}

	s.nextTopic++
	t.ID = s.nextTopic
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	s.topics[t.ID] = &cp
	s.byKey[key] = t.ID
	return nil
}

func (s *MemoryStore) UpdateTopic(_ context.Context, t *Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.topics[t.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrTopicNotFound, t.ID)
	}
	if oldKey, newKey := old.Key(), t.Key(); oldKey != newKey {
		if _, taken := s.byKey[newKey]; taken {
			return fmt.Errorf("topic already exists: %s", t.FileName)
		}
		delete(s.byKey, oldKey)
		s.byKey[newKey] = t.ID
	}
	cp := *t
	cp.CreatedAt = old.CreatedAt
	s.topics[t.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteTopic(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrTopicNotFound, id)
	}
	delete(s.byKey, t.Key())
	delete(s.topics, id)
	return nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, e *HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEntry++
	e.ID = s.nextEntry
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	cp := *e
	if e.Content != nil {
		c := *e.Content
		cp.Content = &c
	}
	s.history = append(s.history, cp)
	return nil
}

func (s *MemoryStore) LatestContent(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *HistoryEntry
	for i := range s.history {
		e := &s.history[i]
		if e.Content == nil || PathKey(e.FileName) != key {
			continue
		}
		if latest == nil || newerEntry(e, latest) {
			latest = e
		}
	}
	if latest == nil {
		return "", false, nil
	}
	return *latest.Content, true, nil
}

func (s *MemoryStore) ListHistory(_ context.Context, key string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []HistoryEntry
	for _, e := range s.history {
		if PathKey(e.FileName) == key {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return newerEntry(&entries[j], &entries[i]) })
	return entries, nil
}

// topicsUnder returns live and deleted topics whose key lies below folderKey.
func topicsUnder(topics []Topic, folderKey string) []Topic {
	prefix := strings.TrimSuffix(folderKey, "/") + "/"
	var out []Topic
	for _, t := range topics {
		if strings.HasPrefix(t.Key(), prefix) {
			out = append(out, t)
		}
	}
	return out
}

// newerEntry orders history by timestamp, then by id.
func newerEntry(a, b *HistoryEntry) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}
