package persistence

import "context"

// LocalLocker is an in-process mutex that respects context cancellation.
type LocalLocker struct {
	ch chan struct{}
}

// NewLocalLocker returns an unlocked LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{ch: make(chan struct{}, 1)}
}

// Acquire waits for the lock or for ctx to be done.
func (l *LocalLocker) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		return func() { <-l.ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
