package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryEntry pairs an instance with its eviction deadline.
type memoryEntry struct {
	inst      *Instance
	expiresAt time.Time
}

// MemoryInstanceStore is an in-process InstanceRepository with TTL eviction.
// Every Put refreshes the entry's lifetime; a background sweeper removes
// expired entries. Intended for development and tests; production deployments
// use the Postgres-backed store.
type MemoryInstanceStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
	ttl     time.Duration
	clock   func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryInstanceStore creates a store whose entries expire ttl after their
// last write. A sweeper runs every sweepEvery; pass 0 to disable background
// sweeping (expired entries are still invisible to Get).
func NewMemoryInstanceStore(ttl, sweepEvery time.Duration) *MemoryInstanceStore {
	s := &MemoryInstanceStore{
		entries: make(map[uuid.UUID]memoryEntry),
		ttl:     ttl,
		clock:   time.Now,
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.sweeper(sweepEvery)
	}
	return s
}

func (s *MemoryInstanceStore) sweeper(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryInstanceStore) sweep() {
	now := s.clock()
	s.mu.Lock()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()
}

// Close stops the background sweeper. Safe to call more than once.
func (s *MemoryInstanceStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

// Len returns the number of live (unexpired) entries.
func (s *MemoryInstanceStore) Len() int {
	now := s.clock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}

func (s *MemoryInstanceStore) Get(ctx context.Context, id uuid.UUID) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || s.clock().After(e.expiresAt) {
		return nil, NewRecordNotFound("workflow instance", id.String())
	}
	return e.inst.clone(), nil
}

// Put inserts a new instance (Version 0) or compare-and-swaps an existing
// one: the write only succeeds when the caller's Version matches the stored
// entry's, so a transition built on a stale read fails with a conflict
// instead of overwriting another caller's history append.
func (s *MemoryInstanceStore) Put(ctx context.Context, in *Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, live := s.entries[in.ID]
	if live && s.clock().After(e.expiresAt) {
		delete(s.entries, in.ID)
		live = false
	}

	if in.Version == 0 {
		if live {
			return NewConflict("workflow instance already exists")
		}
		in.Version = 1
	} else {
		if !live || e.inst.Version != in.Version {
			return NewConflict("workflow instance was modified concurrently")
		}
		in.Version++
	}

	s.entries[in.ID] = memoryEntry{inst: in.clone(), expiresAt: s.clock().Add(s.ttl)}
	return nil
}

func (s *MemoryInstanceStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryInstanceStore) ListByWorkflow(ctx context.Context, workflowName string, limit, offset int) ([]*Instance, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	now := s.clock()
	s.mu.RLock()
	var all []*Instance
	for _, e := range s.entries {
		if now.After(e.expiresAt) {
			continue
		}
		if workflowName == "" || e.inst.WorkflowName == workflowName {
			all = append(all, e.inst.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}
