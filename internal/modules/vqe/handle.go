package vqe

import (
	"context"
	"sync"

	"github.com/aristath/hybrid/internal/domain"
)

// Handle is the pending result of an asynchronous run.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu       sync.Mutex
	result   *Result
	err      error
	consumed bool
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

func (h *Handle) complete(res *Result, err error) {
	h.mu.Lock()
	h.result = res
	h.err = err
	h.mu.Unlock()

	// Release the run context once the run is over
	h.cancel()
	close(h.done)
}

// Get blocks until the run finishes and returns its outcome. The outcome can be
// retrieved once; later calls return domain.ErrResultConsumed.
func (h *Handle) Get() (*Result, error) {
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.consumed {
		return nil, domain.ErrResultConsumed
	}
	h.consumed = true
	return h.result, h.err
}

// IsReady reports whether the run has finished.
func (h *Handle) IsReady() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done is closed when the run finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel asks the run to stop before its next executor call.
func (h *Handle) Cancel() {
	h.cancel()
}
