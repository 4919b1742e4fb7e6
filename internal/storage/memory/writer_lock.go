package memory

import (
	"context"
	"sync"

	"orb-lab/internal/storage"
)

// WriterLock is an in-process implementation of storage.WriterLock.
type WriterLock struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewWriterLock creates a new in-process writer lock.
func NewWriterLock() *WriterLock {
	return &WriterLock{held: make(map[string]bool)}
}

// Compile-time interface check.
var _ storage.WriterLock = (*WriterLock)(nil)

// TryLock acquires name without waiting. Returns ErrStoreBusy if already held.
func (l *WriterLock) TryLock(_ context.Context, name string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return nil, storage.ErrStoreBusy
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}
