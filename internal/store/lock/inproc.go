package lock

import (
	"context"
	"sync"
)

// InProcessManager realizes the Lock Manager as a process-wide mutex keyed
// by lock name — spec.md §4.1's fallback "for single-instance deployments
// without row-lock support". It is cluster-unsafe by construction: two
// separate processes sharing a database but each running their own
// InProcessManager would not actually exclude one another. Only use this
// when is_clustered=false.
type InProcessManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewInProcessManager returns a ready-to-use in-process lock manager.
func NewInProcessManager() *InProcessManager {
	return &InProcessManager{locks: make(map[string]*sync.Mutex)}
}

func (m *InProcessManager) mutexFor(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[name]
	if !ok {
		l = &sync.Mutex{}
		m.locks[name] = l
	}
	return l
}

// Obtain blocks until the named mutex is free. ctx cancellation is not
// honored mid-wait — sync.Mutex has no cancellable Lock — matching
// spec.md §5's "no soft cancellation" concurrency model.
func (m *InProcessManager) Obtain(_ context.Context, _ Conn, name string) error {
	m.mutexFor(name).Lock()
	return nil
}

// Release unlocks the named mutex, unless wasOwner is false (spec.md §4.1).
func (m *InProcessManager) Release(_ context.Context, _ Conn, name string, wasOwner bool) error {
	if !wasOwner {
		return nil
	}
	m.mutexFor(name).Unlock()
	return nil
}
