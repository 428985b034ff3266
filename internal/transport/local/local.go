// Package local implements an in-process propagation.Transport over a
// net.Pipe, framed as newline-delimited JSON: a json.Encoder writes to
// the conn and a bufio reader splits incoming lines. It exists for
// tests, where dialing a real network listener would be unnecessary
// ceremony.
package local

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/tablefabric/vtable/internal/propagation"
)

// Transport is a propagation.Transport backed by one side of a
// net.Conn, with one Frame encoded per line.
type Transport struct {
	conn   net.Conn
	wmu    sync.Mutex
	enc    *json.Encoder
	rd     *bufio.Reader
	closed chan struct{}
}

func newTransport(conn net.Conn) *Transport {
	return &Transport{
		conn:   conn,
		enc:    json.NewEncoder(conn),
		rd:     bufio.NewReader(conn),
		closed: make(chan struct{}),
	}
}

// Pair returns two connected Transports, as if a client had dialed a
// server, without touching the network stack.
func Pair() (client *Transport, server *Transport) {
	a, b := net.Pipe()
	return newTransport(a), newTransport(b)
}

func (t *Transport) Send(f propagation.Frame) error {
	wf, err := propagation.ToWire(f)
	if err != nil {
		return fmt.Errorf("local: encode frame: %w", err)
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.enc.Encode(wf)
}

func (t *Transport) Recv() (propagation.Frame, error) {
	line, err := t.rd.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return propagation.Frame{}, err
	}
	var wf propagation.WireFrame
	if jerr := json.Unmarshal(line, &wf); jerr != nil {
		return propagation.Frame{}, fmt.Errorf("local: decode frame: %w", jerr)
	}
	return propagation.FromWire(wf)
}

func (t *Transport) Close() error {
	select {
	case <-t.closed:
		return nil
	default:
		close(t.closed)
	}
	return t.conn.Close()
}

// Dialer hands out the client side of an in-process Pair, keyed by
// table name, so a test can register a server listener and
// dial it by name without an actual network round-trip.
type Dialer struct {
	mu        sync.Mutex
	listeners map[string]func() (*Transport, error)
}

// NewDialer creates an empty in-process dialer registry.
func NewDialer() *Dialer {
	return &Dialer{listeners: make(map[string]func() (*Transport, error))}
}

// Listen registers tableName so Dial(ctx, _, tableName) hands the
// caller a connected client Transport while accept receives the paired
// server Transport.
func (d *Dialer) Listen(tableName string, accept func(*Transport)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[tableName] = func() (*Transport, error) {
		client, server := Pair()
		go accept(server)
		return client, nil
	}
}

func (d *Dialer) Dial(ctx context.Context, clientName, tableName string) (propagation.Transport, error) {
	d.mu.Lock()
	fn, ok := d.listeners[tableName]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("local: no listener registered for table %q", tableName)
	}
	return fn()
}
