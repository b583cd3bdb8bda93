package bubble

import (
	"context"
	"sync"
	"time"
)

// Handle controls a running frame loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartLoop calls tick once per interval on a single goroutine until the
// handle is cancelled or ctx ends. Ticks never overlap; a slow tick drops
// frames instead of queueing them.
func StartLoop(ctx context.Context, interval time.Duration, tick func()) *Handle {
	if interval <= 0 {
		interval = time.Second / DefaultFrameHz
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()

	return h
}

// Cancel stops requesting frames and waits for the loop goroutine to exit.
// Safe to call more than once. Must not be called from inside tick.
func (h *Handle) Cancel() {
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
