// Package session implements the session endpoint: it owns a Transport
// and a propagation.Engine, runs their inbound-receive and outbound-scan
// loops concurrently, and — on the client side — reconnects with a
// backoff-governed holdoff when the transport drops.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/tablefabric/vtable/internal/config"
	"github.com/tablefabric/vtable/internal/propagation"
	"github.com/tablefabric/vtable/internal/table"
	"github.com/tablefabric/vtable/internal/telemetry"
)

// ErrClosed is returned by Run when the engine reaches its terminal
// state without a recorded reason. Session.Close does not produce it:
// Close ends the engine with a "session ended by owner" reason, and Run
// returns that error or the transport-closed error that follows it.
var ErrClosed = errors.New("session: closed")

// Session ties one Transport to one propagation.Engine and runs both
// their receive loop and their scan loop for its lifetime.
type Session struct {
	engine    *propagation.Engine
	transport propagation.Transport
	settings  config.EndpointSettings
}

// NewServer builds a session endpoint in the server role: it exports
// exportMatch's subset of tbl and accepts Add-Name Requests and
// remote-service-action requests routed to host.
func NewServer(tbl *table.Table, transport propagation.Transport, settings config.EndpointSettings, exportMatch table.MatchRuleSet, host propagation.ServiceHost) *Session {
	eng := propagation.NewEngine(propagation.EngineConfig{
		Role:        propagation.RoleServer,
		Table:       tbl,
		Transport:   transport,
		Settings:    settings,
		ExportMatch: exportMatch,
		Host:        host,
	})
	return &Session{engine: eng, transport: transport, settings: settings}
}

// NewClient builds a session endpoint in the client role: it mirrors
// remoteMatch's subset of the peer's names into tbl.
func NewClient(tbl *table.Table, transport propagation.Transport, settings config.EndpointSettings, remoteMatch table.MatchRuleSet, host propagation.ServiceHost) *Session {
	eng := propagation.NewEngine(propagation.EngineConfig{
		Role:        propagation.RoleClient,
		Table:       tbl,
		Transport:   transport,
		Settings:    settings,
		RemoteMatch: remoteMatch,
		Host:        host,
	})
	return &Session{engine: eng, transport: transport, settings: settings}
}

// Engine exposes the underlying propagation engine, e.g. to start or
// cancel remote-service actions.
func (s *Session) Engine() *propagation.Engine { return s.engine }

// Close explicitly ends the session.
func (s *Session) Close() { s.engine.Shutdown() }

// Run drives the session until the transport closes, a protocol
// violation aborts it, ctx is canceled, or Close is called. It always
// returns a non-nil error describing why the session ended.
func (s *Session) Run(ctx context.Context) error {
	parent := ctx
	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		for {
			f, err := s.transport.Recv()
			if err != nil {
				return fmt.Errorf("session: transport closed: %w", err)
			}
			s.engine.Deliver(f)
		}
	})

	grp.Go(func() error {
		period := s.settings.NominalScanPeriod
		if period <= 0 {
			period = 100 * time.Millisecond
		}
		tick := period / 4
		if tick <= 0 {
			tick = time.Millisecond
		}
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		// Closing the transport on the way out unblocks the receive
		// loop's pending Recv, so both goroutines can return and
		// grp.Wait() below doesn't hang.
		defer s.transport.Close()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.engine.Done():
				if err := s.engine.Err(); err != nil {
					return err
				}
				return ErrClosed
			case <-ticker.C:
				s.engine.Service(ctx)
			}
		}
	})

	err := grp.Wait()
	s.engine.Shutdown()
	// Closing the transport on cancellation can let the receive loop's
	// EOF reach errgroup first; a canceled caller still sees ctx.Err().
	if perr := parent.Err(); perr != nil {
		return perr
	}
	return err
}

// Dialer establishes client transports; satisfied by
// internal/transport/local and internal/transport/nats.
type Dialer = propagation.Dialer

// RunClient dials, runs, and — on transport failure — re-dials a client
// session forever (until ctx is canceled), honoring reconnect-holdoff
// between attempts.
func RunClient(ctx context.Context, dialer Dialer, clientName, tableName string, tbl *table.Table, settings config.EndpointSettings, remoteMatch table.MatchRuleSet, host propagation.ServiceHost) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = settings.ReconnectHoldoff
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = 3 * time.Second
	}
	bo.MaxInterval = 10 * bo.InitialInterval
	bo.MaxElapsedTime = 0 // retry indefinitely; ctx governs termination

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		transport, err := dialer.Dial(ctx, clientName, tableName)
		if err != nil {
			wait := bo.NextBackOff()
			telemetry.Logf("session: dial failed, retrying in %s: %v", wait, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		bo.Reset()
		sess := NewClient(tbl, transport, settings, remoteMatch, host)
		runErr := sess.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		telemetry.Logf("session: lost connection, reconnecting: %v", runErr)

		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
