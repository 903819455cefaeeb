package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process realtime store for local/dev use and tests.
type MemoryStore struct {
	mu        sync.Mutex
	closed    bool
	docs      map[string]map[string]Record
	subs      map[string]map[int]*snapshotSub
	nextSubID int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]Record),
		subs: make(map[string]map[int]*snapshotSub),
	}
}

func (s *MemoryStore) Create(ctx context.Context, path string, record Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	record = record.Clone()
	record.ID = uuid.NewString()
	if s.docs[path] == nil {
		s.docs[path] = make(map[string]Record)
	}
	s.docs[path][record.ID] = record
	s.publishLocked(path)
	return record.ID, nil
}

func (s *MemoryStore) Update(ctx context.Context, path, id string, patch Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	rec, ok := s.docs[path][id]
	if !ok {
		return ErrNotFound
	}
	if patch.IsCompleted != nil {
		rec.IsCompleted = *patch.IsCompleted
	}
	s.docs[path][id] = rec
	s.publishLocked(path)
	return nil
}

// Delete of a missing id succeeds without publishing.
func (s *MemoryStore) Delete(ctx context.Context, path, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.docs[path][id]; !ok {
		return nil
	}
	delete(s.docs[path], id)
	if len(s.docs[path]) == 0 {
		delete(s.docs, path)
	}
	s.publishLocked(path)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, path string, onSnapshot SnapshotFunc, _ ErrorFunc) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextSubID++
	id := s.nextSubID
	sub := newSnapshotSub()
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]*snapshotSub)
	}
	s.subs[path][id] = sub
	sub.offer(s.snapshotLocked(path))
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		if subs := s.subs[path]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(s.subs, path)
			}
		}
		s.mu.Unlock()
		sub.stop()
	}
	go sub.run(ctx, onSnapshot, unsubscribe)
	return unsubscribe, nil
}

// Records returns a copy of the current contents of path, ordered by id.
func (s *MemoryStore) Records(path string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(path)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for path, subs := range s.subs {
		for _, sub := range subs {
			sub.stop()
		}
		delete(s.subs, path)
	}
	return nil
}

func (s *MemoryStore) snapshotLocked(path string) []Record {
	docs := s.docs[path]
	out := make([]Record, 0, len(docs))
	for _, rec := range docs {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].ID, out[j].ID) < 0
	})
	return out
}

func (s *MemoryStore) publishLocked(path string) {
	subs := s.subs[path]
	if len(subs) == 0 {
		return
	}
	snapshot := s.snapshotLocked(path)
	for _, sub := range subs {
		sub.offer(cloneRecords(snapshot))
	}
}
