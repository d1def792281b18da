package app

import (
	"sync"
	"sync/atomic"
)

// CancellationToken is a one-way cancel flag shared between a session's
// worker and its callers. Once set it stays set.
type CancellationToken struct {
	cancelled atomic.Bool
	done      chan struct{}
	once      sync.Once
}

// NewCancellationToken creates an unset token
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel sets the token. Safe to call repeatedly and from any goroutine.
func (t *CancellationToken) Cancel() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
	})
}

// IsCancelled checks if the token is set
func (t *CancellationToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done is closed when the token is set
func (t *CancellationToken) Done() <-chan struct{} {
	return t.done
}
