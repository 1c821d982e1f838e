package memory

import (
	"context"
	"sync"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// Locker hands out per-key locks inside one process. A held key maps to a
// channel that is closed on release, which wakes every waiter.
type Locker struct {
	held sync.Map
}

func New() *Locker {
	return &Locker{}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		release := make(chan struct{})
		current, loaded := l.held.LoadOrStore(key, release)
		if !loaded {
			var once sync.Once
			return func() {
				once.Do(func() {
					l.held.Delete(key)
					close(release)
				})
			}, nil
		}
		select {
		case <-current.(chan struct{}):
		case <-ctx.Done():
			return nil, domain.WrapError(domain.ErrTemporary, "acquire lock "+key, ctx.Err())
		}
	}
}
