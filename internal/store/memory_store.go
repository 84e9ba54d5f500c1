package store

import (
	"context"
	"sync"
	"time"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/domain"
)

type memoryEntry struct {
	state     domain.PaymentVerificationState
	expiresAt time.Time
}

// MemoryStore keeps flow state in process. It backs local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[FlowKey]memoryEntry
}

// NewMemoryStore creates a store whose entries live for ttl after their last write.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[FlowKey]memoryEntry),
	}
}

// SetClock overrides the time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(ctx context.Context, key FlowKey) (domain.PaymentVerificationState, error) {
	if err := key.Validate(); err != nil {
		return domain.PaymentVerificationState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return domain.PaymentVerificationState{}, ErrStateNotFound
	}
	return entry.state.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, key FlowKey, fn Mutator) (domain.PaymentVerificationState, error) {
	if err := key.Validate(); err != nil {
		return domain.PaymentVerificationState{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.PaymentVerificationState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := domain.PaymentVerificationState{}
	if entry, ok := s.live(key); ok {
		current = entry.state
	}

	now := s.now()
	next, err := applyMutator(current, fn, now)
	if err != nil {
		return domain.PaymentVerificationState{}, err
	}
	s.entries[key] = memoryEntry{state: next, expiresAt: s.expiry(now)}
	return next.Clone(), nil
}

func (s *MemoryStore) Clear(ctx context.Context, key FlowKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) ClearAgent(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if key.AgentID == agentID {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	purged := 0
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			purged++
		}
	}
	return purged, nil
}

// live returns the entry for key unless it has expired. Callers hold s.mu.
func (s *MemoryStore) live(key FlowKey) (memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *MemoryStore) expiry(now time.Time) time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(s.ttl)
}
