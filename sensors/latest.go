package sensors

import "sync/atomic"

// Latest holds the most recent snapshot of one worker. Single writer, any readers.
type Latest[T any] struct {
	p atomic.Pointer[T]
}

func (l *Latest[T]) Store(v T) {
	l.p.Store(&v)
}

// Load returns false until something was stored
func (l *Latest[T]) Load() (T, bool) {
	p := l.p.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
