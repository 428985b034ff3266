// Package hostpart declares the host-part lifecycle collaborator: a
// thing that can start a named service and hand back a handle
// reporting state changes and accepting cancellation. It also ships
// StaticHost, a minimal in-memory implementation sufficient to drive a
// remote service action end-to-end in tests and the demo CLI.
package hostpart

import (
	"context"
	"fmt"

	"github.com/tablefabric/vtable/internal/propagation"
	"github.com/tablefabric/vtable/internal/value"
)

// ActionHandle and ServiceHost alias the propagation package's types
// directly: a ServiceHost implementation must satisfy the exact type
// the engine calls through, not just an identically-shaped interface.
type ActionHandle = propagation.ActionHandle
type ServiceHost = propagation.ServiceHost

// HandlerFunc implements a single named service synchronously: it
// returns the named-value results, or an error which becomes a failed
// terminal state.
type HandlerFunc func(ctx context.Context, params []value.NamedValue) ([]value.NamedValue, error)

// StaticHost is a ServiceHost backed by a fixed name->handler map. Each
// StartAction runs the handler on its own goroutine and reports exactly
// one terminal ActionState.
type StaticHost struct {
	handlers map[string]HandlerFunc
}

// NewStaticHost builds a StaticHost from a name->handler map.
func NewStaticHost(handlers map[string]HandlerFunc) *StaticHost {
	cp := make(map[string]HandlerFunc, len(handlers))
	for k, v := range handlers {
		cp[k] = v
	}
	return &StaticHost{handlers: cp}
}

type staticHandle struct {
	ch     chan propagation.ActionState
	cancel context.CancelFunc
}

func (h *staticHandle) States() <-chan propagation.ActionState { return h.ch }
func (h *staticHandle) Cancel()                                { h.cancel() }

func (s *StaticHost) StartAction(ctx context.Context, serviceName string, params []value.NamedValue) (ActionHandle, error) {
	fn, ok := s.handlers[serviceName]
	if !ok {
		return nil, fmt.Errorf("hostpart: no part exposes service %q", serviceName)
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &staticHandle{ch: make(chan propagation.ActionState, 1), cancel: cancel}

	go func() {
		defer close(h.ch)
		results, err := fn(runCtx, params)
		if runCtx.Err() != nil {
			h.ch <- propagation.ActionState{Terminal: true, ResultCode: propagation.ActionCanceled, Detail: "canceled"}
			return
		}
		if err != nil {
			h.ch <- propagation.ActionState{Terminal: true, ResultCode: propagation.ActionFailed, Detail: err.Error()}
			return
		}
		h.ch <- propagation.ActionState{Terminal: true, ResultCode: propagation.ActionSucceeded, Results: results}
	}()

	return h, nil
}
