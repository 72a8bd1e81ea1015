package memlock

import (
	"context"
	"sync"

	"clipstack/internal/ports"
)

var _ ports.Locker = (*Locker)(nil)

// Locker is a keyed try-lock for a single process.
type Locker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func New() *Locker {
	return &Locker{held: make(map[string]struct{})}
}

func (l *Locker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
