package propagation

import "context"

// Transport is a duplex message stream with in-order, one-way delivery
// in each direction. Recv blocks until a frame arrives or the
// transport closes, in which case it returns a non-nil error (its value
// depends on the implementation).
type Transport interface {
	// Send must not retain Frame's slices past return — the engine
	// recycles its backing frame carriers through a pool immediately
	// after Send returns.
	Send(Frame) error
	Recv() (Frame, error)
	Close() error
}

// Dialer establishes a client-side Transport for one
// (client-name, table-name) session. No match-rule-set is passed: the
// client engine applies its remote match set to inbound registrations.
type Dialer interface {
	Dial(ctx context.Context, clientName, tableName string) (Transport, error)
}
