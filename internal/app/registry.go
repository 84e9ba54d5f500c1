package app

import (
	"errors"
	"sync"
	"time"
)

// ErrFlowNotFound is returned for unknown sessions and for sessions owned by another agent.
var ErrFlowNotFound = errors.New("flow session not found")

type registryEntry[T any] struct {
	owner    string
	value    T
	lastUsed time.Time
}

// Registry holds the in-process sessions of the wizards (verification flows, OTP
// modals, calculation steps). Sessions belong to one agent and are released when
// removed or idle for too long.
type Registry[K comparable, T any] struct {
	mu      sync.Mutex
	entries map[K]*registryEntry[T]
	release func(T)
	now     func() time.Time
}

func NewRegistry[K comparable, T any](release func(T)) *Registry[K, T] {
	return &Registry[K, T]{
		entries: make(map[K]*registryEntry[T]),
		release: release,
		now:     time.Now,
	}
}

func (r *Registry[K, T]) Put(key K, owner string, value T) {
	r.mu.Lock()
	old, existed := r.entries[key]
	r.entries[key] = &registryEntry[T]{owner: owner, value: value, lastUsed: r.now()}
	r.mu.Unlock()

	if existed {
		r.releaseValue(old.value)
	}
}

// Get returns the session when it exists and belongs to owner.
func (r *Registry[K, T]) Get(key K, owner string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok || entry.owner != owner {
		var zero T
		return zero, ErrFlowNotFound
	}
	entry.lastUsed = r.now()
	return entry.value, nil
}

// GetOrCreate returns the owner's session for key, creating it when missing.
func (r *Registry[K, T]) GetOrCreate(key K, owner string, create func() T) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[key]; ok {
		if entry.owner != owner {
			var zero T
			return zero, ErrFlowNotFound
		}
		entry.lastUsed = r.now()
		return entry.value, nil
	}
	value := create()
	r.entries[key] = &registryEntry[T]{owner: owner, value: value, lastUsed: r.now()}
	return value, nil
}

func (r *Registry[K, T]) Remove(key K) bool {
	r.mu.Lock()
	entry, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()

	if ok {
		r.releaseValue(entry.value)
	}
	return ok
}

// RemoveOwner drops every session of owner.
func (r *Registry[K, T]) RemoveOwner(owner string) int {
	return r.removeWhere(func(e *registryEntry[T]) bool { return e.owner == owner })
}

// Sweep drops sessions unused for longer than idle.
func (r *Registry[K, T]) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	return r.removeWhere(func(e *registryEntry[T]) bool { return e.lastUsed.Before(cutoff) })
}

func (r *Registry[K, T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry[K, T]) removeWhere(match func(*registryEntry[T]) bool) int {
	r.mu.Lock()
	var released []T
	for key, entry := range r.entries {
		if match(entry) {
			released = append(released, entry.value)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()

	for _, value := range released {
		r.releaseValue(value)
	}
	return len(released)
}

func (r *Registry[K, T]) releaseValue(value T) {
	if r.release != nil {
		r.release(value)
	}
}
