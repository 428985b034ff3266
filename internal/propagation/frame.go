// Package propagation implements the session-oriented propagation
// engine: registration, value diffusion, ack-based
// flow control, idle keepalive, and remote-service-action forwarding
// over a Push Frame wire model.
package propagation

import (
	"errors"

	"github.com/tablefabric/vtable/internal/value"
)

// ErrProtocolViolation wraps every reason the engine aborts a session
// for a malformed frame.
var ErrProtocolViolation = errors.New("propagation: protocol violation")

// Vpi is one of the three wire records discriminated by (ID, Name):
//
//	ID>0, Name set   -> Registration Record (server -> client)
//	ID==0, Name set  -> Add-Name Request (client -> server)
//	ID>0, Name empty -> Normal Update (either direction)
type Vpi struct {
	ID        uint32
	Name      string
	Container value.Value
	// HasContainer distinguishes an explicitly-empty container from an
	// absent one.
	HasContainer bool
}

// VpiClass is the receiver-side classification of a Vpi.
type VpiClass int

const (
	VpiInvalid VpiClass = iota
	VpiRegistration
	VpiAddRequest
	VpiNormalUpdate
)

// Classify resolves the vpi's (ID, Name) pair to one of the three wire
// record kinds, or VpiInvalid if neither ID nor Name is set.
func (v Vpi) Classify() VpiClass {
	switch {
	case v.ID > 0 && v.Name != "":
		return VpiRegistration
	case v.ID == 0 && v.Name != "":
		return VpiAddRequest
	case v.ID > 0 && v.Name == "":
		return VpiNormalUpdate
	default:
		return VpiInvalid
	}
}

// ActionRequest is a remote-service-action request record.
type ActionRequest struct {
	UUID        string
	ServiceName string
	Params      []value.NamedValue
	Cancel      bool
}

// ActionResultCode is the small fixed set of outcomes a remote action
// can terminate with.
type ActionResultCode string

const (
	ActionSucceeded      ActionResultCode = "succeeded"
	ActionFailed         ActionResultCode = "failed"
	ActionNotFound       ActionResultCode = "not-found"
	ActionSevered        ActionResultCode = "severed"
	ActionNeverReached   ActionResultCode = "never-reached"
	ActionCanceled       ActionResultCode = "canceled"
)

// ActionState is the lifecycle payload of an ActionUpdate.
type ActionState struct {
	Terminal   bool
	ResultCode ActionResultCode
	Detail     string
	Results    []value.NamedValue
}

// ActionUpdate is a remote-service-action update record.
type ActionUpdate struct {
	UUID  string
	State ActionState
}

// Frame is the single wire message exchanged in either direction.
// Zero values for AckSeq/Seq mean "absent"; nil slices mean "omitted"
// on the wire.
type Frame struct {
	AckSeq   uint32
	Seq      uint32
	Vpis     []Vpi
	Requests []ActionRequest
	Updates  []ActionUpdate
}

// IsEndOfRegistration reports whether this frame is the server's
// zero-content registration-closing marker: it carries a seq but no
// vpis.
func (f Frame) IsEndOfRegistration() bool {
	return f.Seq != 0 && len(f.Vpis) == 0
}

// SignalsConnected reports whether, received by a client still in
// Registering, this frame should flip it to Connected: no vpis, or a
// first vpi with no name.
func (f Frame) SignalsConnected() bool {
	if len(f.Vpis) == 0 {
		return true
	}
	return f.Vpis[0].Name == ""
}

// EstimatedSize sums a rough per-field byte estimate, used to bound
// frame packing against nominal-max-bytes-per-frame.
func (f Frame) EstimatedSize() int {
	n := 16 // ack_seq + seq overhead
	for _, vp := range f.Vpis {
		n += 8 + len(vp.Name)
		if vp.HasContainer {
			n += vp.Container.EstimatedSize()
		}
	}
	for _, r := range f.Requests {
		n += 16 + len(r.UUID) + len(r.ServiceName)
		for _, p := range r.Params {
			n += len(p.Name) + 4 + p.Value.EstimatedSize()
		}
	}
	for _, u := range f.Updates {
		n += 16 + len(u.UUID) + len(u.State.Detail)
		for _, rv := range u.State.Results {
			n += len(rv.Name) + 4 + rv.Value.EstimatedSize()
		}
	}
	return n
}

// IsEmpty reports whether the frame carries no vpis, requests, or
// updates (used for ack-only and ping frames).
func (f Frame) IsEmpty() bool {
	return len(f.Vpis) == 0 && len(f.Requests) == 0 && len(f.Updates) == 0
}
