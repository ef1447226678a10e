package learned

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// State is the lifecycle stage of the process-wide model.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// loadFunc acquires and loads the model. It runs at most once per handle.
type loadFunc func(ctx context.Context) (Engine, error)

// modelHandle owns the loaded model. The first Acquire starts loading; every
// caller, including concurrent first callers, waits for that single load.
// A failed load is final for the life of the handle.
type modelHandle struct {
	load  loadFunc
	once  sync.Once
	done  chan struct{}
	state atomic.Int32

	// engine and err are written once before done is closed.
	engine Engine
	err    error
}

func newModelHandle(load loadFunc) *modelHandle {
	return &modelHandle{load: load, done: make(chan struct{})}
}

// State reports the current lifecycle stage without blocking.
func (h *modelHandle) State() State {
	return State(h.state.Load())
}

// Acquire returns the engine once the model is ready, or the load error.
// Cancelling ctx stops this caller from waiting; the load itself continues
// detached so later callers can still use it.
func (h *modelHandle) Acquire(ctx context.Context) (Engine, error) {
	h.once.Do(func() {
		h.state.Store(int32(StateLoading))
		go h.run(context.WithoutCancel(ctx))
	})

	select {
	case <-h.done:
		return h.engine, h.err
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	}
}

func (h *modelHandle) run(ctx context.Context) {
	defer close(h.done)

	engine, err := h.load(ctx)
	if err == nil && engine == nil {
		err = unavailable(nil, "runtime returned no engine")
	}
	if err != nil {
		h.err = err
		h.state.Store(int32(StateFailed))
		return
	}
	h.engine = engine
	h.state.Store(int32(StateReady))
}

// Close releases the engine if the model was loaded, waiting for a load in
// progress to finish. A handle closed before first use never loads.
func (h *modelHandle) Close() error {
	h.once.Do(func() {
		h.err = unavailable(nil, "detector closed")
		h.state.Store(int32(StateFailed))
		close(h.done)
	})
	<-h.done
	if h.engine != nil {
		return h.engine.Close()
	}
	return nil
}
