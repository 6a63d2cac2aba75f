package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tuyable/tuyable/pkg/datapoint"
)

// Handle tracks one submitted command from enqueue to completion. It
// resolves exactly once: with the device's reported datapoints, with a
// dispatch error, or with the context error from Wait.
type Handle struct {
	// CorrelationID identifies the command in logs and to callers. It is
	// host-local; on the wire, correlation is by frame number.
	CorrelationID uuid.UUID

	mu     sync.Mutex
	done   chan struct{}
	report []datapoint.Datapoint
	err    error
}

func newHandle() *Handle {
	return &Handle{
		CorrelationID: uuid.New(),
		done:          make(chan struct{}),
	}
}

// resolve completes the handle. Later calls are no-ops; a late response for
// an already resolved command is discarded by the dispatcher before it gets
// here.
func (h *Handle) resolve(report []datapoint.Datapoint, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return
	default:
	}
	h.report = report
	h.err = err
	close(h.done)
}

// Done returns a channel closed when the command completes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the outcome. It blocks until the command completes.
func (h *Handle) Result() ([]datapoint.Datapoint, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.report, h.err
}

// Wait blocks until the command completes or the context is cancelled.
// Cancellation abandons the wait, not the command; the dispatcher still
// resolves the handle in the background.
func (h *Handle) Wait(ctx context.Context) ([]datapoint.Datapoint, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
