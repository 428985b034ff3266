// Package nats binds propagation.Transport onto a pair of NATS
// subjects, so a session can run across process boundaries without a
// dedicated listener socket: each side publishes Frames onto its
// send subject and subscribes to its receive subject.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/tablefabric/vtable/internal/propagation"
)

// Transport is a propagation.Transport over two NATS subjects.
type Transport struct {
	nc   *nats.Conn
	send string
	sub  *nats.Subscription
	msgs chan *nats.Msg

	closeOnce sync.Once
	done      chan struct{}
}

// NewTransport subscribes to recvSubject and returns a Transport that
// publishes outbound Frames to sendSubject.
func NewTransport(nc *nats.Conn, sendSubject, recvSubject string) (*Transport, error) {
	msgs := make(chan *nats.Msg, 256)
	sub, err := nc.ChanSubscribe(recvSubject, msgs)
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %q: %w", recvSubject, err)
	}
	return &Transport{nc: nc, send: sendSubject, sub: sub, msgs: msgs, done: make(chan struct{})}, nil
}

func (t *Transport) Send(f propagation.Frame) error {
	wf, err := propagation.ToWire(f)
	if err != nil {
		return fmt.Errorf("nats: encode frame: %w", err)
	}
	b, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("nats: marshal frame: %w", err)
	}
	return t.nc.Publish(t.send, b)
}

func (t *Transport) Recv() (propagation.Frame, error) {
	select {
	case <-t.done:
		return propagation.Frame{}, fmt.Errorf("nats: transport closed")
	case msg, ok := <-t.msgs:
		if !ok {
			return propagation.Frame{}, fmt.Errorf("nats: subscription %q closed", t.sub.Subject)
		}
		var wf propagation.WireFrame
		if err := json.Unmarshal(msg.Data, &wf); err != nil {
			return propagation.Frame{}, fmt.Errorf("nats: decode frame: %w", err)
		}
		return propagation.FromWire(wf)
	}
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.sub.Unsubscribe()
		close(t.done)
	})
	return nil
}

// subjects derives the client-to-server and server-to-client subjects
// for one client's session against tableName.
func subjects(tableName, clientName string) (c2s, s2c string) {
	base := "vtable." + tableName + "." + clientName
	return base + ".c2s", base + ".s2c"
}

// Dialer establishes client-side Transports over an existing NATS
// connection.
type Dialer struct {
	Conn *nats.Conn
}

// NewDialer wraps an already-connected *nats.Conn.
func NewDialer(nc *nats.Conn) *Dialer { return &Dialer{Conn: nc} }

func (d *Dialer) Dial(ctx context.Context, clientName, tableName string) (propagation.Transport, error) {
	c2s, s2c := subjects(tableName, clientName)
	return NewTransport(d.Conn, c2s, s2c)
}

// ServerTransport builds the server side's Transport for one named
// client, with send/recv subjects inverted relative to Dialer.Dial.
func ServerTransport(nc *nats.Conn, tableName, clientName string) (*Transport, error) {
	c2s, s2c := subjects(tableName, clientName)
	return NewTransport(nc, s2c, c2s)
}
