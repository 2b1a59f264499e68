package memory

import (
	"context"
	"sync"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// Locker はプロセス内でのみ有効な Locker 実装です
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ domain.Locker = (*Locker)(nil)

// NewLocker は新しいLockerを作成します
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

func (l *Locker) TryWithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return false, nil
	}
	defer m.Unlock()

	return true, fn(ctx)
}
