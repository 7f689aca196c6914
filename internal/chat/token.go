package chat

import (
	"context"
	"sync"
	"sync/atomic"
)

// cancelToken is the cooperative cancellation primitive for one stream.
// It is consulted at every point a fragment is applied; in-flight IO may
// still deliver a final fragment after Cancel, which the controller drops.
type cancelToken struct {
	cancelled atomic.Bool
	mu        sync.Mutex
	stop      context.CancelFunc
}

func newCancelToken() *cancelToken {
	return &cancelToken{}
}

// bind attaches the context cancel func that tears down the transport.
func (t *cancelToken) bind(stop context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stop = stop
	if t.cancelled.Load() {
		stop()
	}
}

// Cancel flips the token and stops the bound transport. Idempotent; calls
// after the first have no additional effect.
func (t *cancelToken) Cancel() {
	if t.cancelled.Swap(true) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		t.stop()
	}
}

// Cancelled reports whether Cancel has been called.
func (t *cancelToken) Cancelled() bool {
	return t.cancelled.Load()
}
