package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/parlorhq/parlor/core"
)

type memThread struct {
	name      string
	snapshots [][]core.Message
	order     int
}

// InMemoryStore is a Store kept entirely in process memory. It is intended
// for tests and short-lived agents where durability across restarts does
// not matter. All operations are safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*memThread
	nextOrd int
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[string]*memThread)}
}

// LoadLatest implements the Store interface.
func (s *InMemoryStore) LoadLatest(_ context.Context, threadID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok || len(t.snapshots) == 0 {
		return []core.Message{}, nil
	}
	return cloneHistory(t.snapshots[len(t.snapshots)-1]), nil
}

// Commit implements the Store interface.
func (s *InMemoryStore) Commit(_ context.Context, threadID string, history []core.Message, name string) (core.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		t = &memThread{order: s.nextOrd}
		s.nextOrd++
		s.threads[threadID] = t
	}
	if t.name == "" && name != "" {
		t.name = name
	}
	t.snapshots = append(t.snapshots, cloneHistory(history))

	return core.Checkpoint{
		ThreadID:  threadID,
		Seq:       int64(len(t.snapshots)),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ListThreads implements the Store interface.
func (s *InMemoryStore) ListThreads(_ context.Context) ([]ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		info  ThreadInfo
		order int
	}
	var entries []entry
	for id, t := range s.threads {
		if len(t.snapshots) == 0 {
			continue
		}
		entries = append(entries, entry{info: ThreadInfo{ThreadID: id, Name: t.name}, order: t.order})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })

	infos := make([]ThreadInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.info)
	}
	return infos, nil
}

// SetName implements the Store interface.
func (s *InMemoryStore) SetName(_ context.Context, threadID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		t = &memThread{order: s.nextOrd}
		s.nextOrd++
		s.threads[threadID] = t
	}
	t.name = name
	return nil
}

// Delete implements the Store interface.
func (s *InMemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// Close implements the Store interface. It is a no-op for the in-memory
// store.
func (s *InMemoryStore) Close() error { return nil }

func cloneHistory(history []core.Message) []core.Message {
	out := make([]core.Message, len(history))
	copy(out, history)
	return out
}
