package propagation

import (
	"context"

	"github.com/google/uuid"
	"github.com/tablefabric/vtable/internal/value"
)

// pingServiceName is the literal sentinel the engine handles entirely
// in-process, without reaching the host part.
const pingServiceName = "$WcfServicePing$"

// localAction tracks one local-originated remote-service action.
type localAction struct {
	uuid            string
	serviceName     string
	cancelRequested bool
	cancelForwarded bool
	done            chan ActionState
}

// peerAction tracks one peer-originated remote-service action running
// on this side's host part.
type peerAction struct {
	uuid      string
	handle    ActionHandle
	ctx       context.Context
	cancel    context.CancelFunc
	completed bool
}

// ActionHandle reports state changes for one running remote-service
// action and accepts cancellation. Declared in propagation (rather
// than hostpart) so both the engine and any ServiceHost implementation
// share one type — hostpart.ActionHandle is an alias of this.
type ActionHandle interface {
	States() <-chan ActionState
	Cancel()
}

func newUUID() string {
	return uuid.NewString()
}

// StartLocalAction enqueues a request to run serviceName on the peer
// with params, and returns a channel that receives exactly one terminal
// ActionState.
func (e *Engine) StartLocalAction(serviceName string, params []value.NamedValue) <-chan ActionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := newUUID()
	la := &localAction{uuid: id, serviceName: serviceName, done: make(chan ActionState, 1)}
	e.localActions[id] = la
	e.outRequests = append(e.outRequests, ActionRequest{UUID: id, ServiceName: serviceName, Params: params})
	return la.done
}

// CancelLocalAction marks a local action for cancellation; the next
// service pass forwards it as a cancel-only request.
func (e *Engine) CancelLocalAction(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if la, ok := e.localActions[id]; ok {
		la.cancelRequested = true
	}
}

func (e *Engine) completeLocalActionLocked(id string, st ActionState) {
	la, ok := e.localActions[id]
	if !ok {
		return
	}
	delete(e.localActions, id)
	la.done <- st
	close(la.done)
}

// serviceCancelsLocked enqueues requests for any local action whose
// cancel has been requested but not yet forwarded.
func (e *Engine) serviceCancelsLocked() {
	for id, la := range e.localActions {
		if la.cancelRequested && !la.cancelForwarded {
			la.cancelForwarded = true
			e.outRequests = append(e.outRequests, ActionRequest{UUID: id, Cancel: true})
		}
	}
}

// handlePingRequest synthesizes the $WcfServicePing$ terminal update
// entirely inside the engine.
func handlePingRequest(req ActionRequest) ActionUpdate {
	st := ActionState{Terminal: true, ResultCode: ActionSucceeded, Detail: "pong"}
	if len(req.Params) > 0 {
		st.Results = []value.NamedValue{{Name: "echo", Value: value.I32(int32(len(req.Params)))}}
	}
	return ActionUpdate{UUID: req.UUID, State: st}
}
