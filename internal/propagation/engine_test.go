package propagation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tablefabric/vtable/internal/config"
	"github.com/tablefabric/vtable/internal/propagation"
	"github.com/tablefabric/vtable/internal/table"
	"github.com/tablefabric/vtable/internal/transport/local"
	"github.com/tablefabric/vtable/internal/value"
)

func pumpRecv(t *testing.T, eng *propagation.Engine, tr propagation.Transport) {
	t.Helper()
	go func() {
		for {
			f, err := tr.Recv()
			if err != nil {
				return
			}
			eng.Deliver(f)
		}
	}()
}

func pumpService(eng *propagation.Engine, ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-eng.Done():
				return
			case <-ticker.C:
				eng.Service(ctx)
			}
		}
	}()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func testSettings() config.EndpointSettings {
	s := config.DefaultEndpointSettings()
	s.NominalScanPeriod = 5 * time.Millisecond
	s.IdlePingAfter = time.Hour // keep idle pings out of the way of assertions
	return s
}

func TestEngineRegistersAndMirrorsInitialValue(t *testing.T) {
	clientTr, serverTr := local.Pair()

	srvTbl := table.New("server")
	srvTbl.GetAccessor("temp").Set(value.I32(72))

	cliTbl := table.New("client")

	srvEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleServer, Table: srvTbl, Transport: serverTr,
		Settings: testSettings(), ExportMatch: table.MatchAny(),
	})
	cliEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleClient, Table: cliTbl, Transport: clientTr,
		Settings: testSettings(), RemoteMatch: table.MatchAny(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumpRecv(t, srvEng, serverTr)
	pumpRecv(t, cliEng, clientTr)
	pumpService(srvEng, ctx)
	pumpService(cliEng, ctx)

	waitFor(t, 2*time.Second, func() bool {
		return cliEng.State() == propagation.StateConnected
	})

	waitFor(t, 2*time.Second, func() bool {
		a := cliTbl.GetAccessor("temp")
		return a.Value().Int64() == 72
	})
}

func TestEngineClientAddNameRequestRoundTrip(t *testing.T) {
	clientTr, serverTr := local.Pair()

	srvTbl := table.New("server")
	cliTbl := table.New("client")

	srvEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleServer, Table: srvTbl, Transport: serverTr,
		Settings: testSettings(), ExportMatch: table.MatchAny(),
	})
	cliEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleClient, Table: cliTbl, Transport: clientTr,
		Settings: testSettings(), RemoteMatch: table.MatchAny(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumpRecv(t, srvEng, serverTr)
	pumpRecv(t, cliEng, clientTr)
	pumpService(srvEng, ctx)
	pumpService(cliEng, ctx)

	waitFor(t, 2*time.Second, func() bool { return cliEng.State() == propagation.StateConnected })

	cliTbl.GetAccessor("q").Set(value.String("hello"))

	waitFor(t, 2*time.Second, func() bool {
		return srvTbl.GetAccessor("q").Value().String() == "hello"
	})
}

func TestEngineUpdatesPropagateAfterConnect(t *testing.T) {
	clientTr, serverTr := local.Pair()

	srvTbl := table.New("server")
	srvTbl.GetAccessor("count").Set(value.I32(1))
	cliTbl := table.New("client")

	srvEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleServer, Table: srvTbl, Transport: serverTr,
		Settings: testSettings(), ExportMatch: table.MatchAny(),
	})
	cliEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleClient, Table: cliTbl, Transport: clientTr,
		Settings: testSettings(), RemoteMatch: table.MatchAny(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumpRecv(t, srvEng, serverTr)
	pumpRecv(t, cliEng, clientTr)
	pumpService(srvEng, ctx)
	pumpService(cliEng, ctx)

	waitFor(t, 2*time.Second, func() bool {
		return cliTbl.GetAccessor("count").Value().Int64() == 1
	})

	srvTbl.GetAccessor("count").Set(value.I32(2))

	waitFor(t, 2*time.Second, func() bool {
		return cliTbl.GetAccessor("count").Value().Int64() == 2
	})
}

func TestEngineRemoteServiceActionRoundTrip(t *testing.T) {
	clientTr, serverTr := local.Pair()

	srvTbl := table.New("server")
	cliTbl := table.New("client")

	host := &echoHost{}
	srvEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleServer, Table: srvTbl, Transport: serverTr,
		Settings: testSettings(), ExportMatch: table.MatchAny(), Host: host,
	})
	cliEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleClient, Table: cliTbl, Transport: clientTr,
		Settings: testSettings(), RemoteMatch: table.MatchAny(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumpRecv(t, srvEng, serverTr)
	pumpRecv(t, cliEng, clientTr)
	pumpService(srvEng, ctx)
	pumpService(cliEng, ctx)

	waitFor(t, 2*time.Second, func() bool { return cliEng.State() == propagation.StateConnected })

	done := cliEng.StartLocalAction("double", []value.NamedValue{{Name: "n", Value: value.I32(21)}})

	select {
	case st := <-done:
		if !st.Terminal || st.ResultCode != propagation.ActionSucceeded {
			t.Fatalf("expected a successful terminal state, got %+v", st)
		}
		if len(st.Results) != 1 || st.Results[0].Value.Int64() != 42 {
			t.Fatalf("expected a result of 42, got %+v", st.Results)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the remote action to complete")
	}
}

// echoHost is a minimal propagation.ServiceHost that doubles its first
// i32 parameter, for exercising the remote-service-action path without
// depending on internal/hostpart.
type echoHost struct{}

type echoHandle struct{ ch chan propagation.ActionState }

func (h *echoHandle) States() <-chan propagation.ActionState { return h.ch }
func (h *echoHandle) Cancel()                                {}

func (h *echoHost) StartAction(ctx context.Context, serviceName string, params []value.NamedValue) (propagation.ActionHandle, error) {
	ch := make(chan propagation.ActionState, 1)
	n := int64(0)
	if len(params) > 0 {
		n = params[0].Value.Int64()
	}
	ch <- propagation.ActionState{
		Terminal: true, ResultCode: propagation.ActionSucceeded,
		Results: []value.NamedValue{{Name: "result", Value: value.I32(int32(n * 2))}},
	}
	return &echoHandle{ch: ch}, nil
}

// progressHost writes a progress value into its table before reporting
// the terminal state, so a test can check the value is mirrored to the
// peer no later than the completion that implies it.
type progressHost struct{ tbl *table.Table }

func (h *progressHost) StartAction(ctx context.Context, serviceName string, params []value.NamedValue) (propagation.ActionHandle, error) {
	h.tbl.GetAccessor("partA.progress").Set(value.I32(50))
	ch := make(chan propagation.ActionState, 1)
	ch <- propagation.ActionState{Terminal: true, ResultCode: propagation.ActionSucceeded}
	return &echoHandle{ch: ch}, nil
}

// When an action's execution writes to the server's table, the client
// must observe the corresponding value on its mirror strictly before
// the action's terminal update for that uuid.
func TestEngineActionSideEffectsVisibleBeforeCompletion(t *testing.T) {
	clientTr, serverTr := local.Pair()

	srvTbl := table.New("server")
	cliTbl := table.New("client")

	srvEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleServer, Table: srvTbl, Transport: serverTr,
		Settings: testSettings(), ExportMatch: table.MatchAny(), Host: &progressHost{tbl: srvTbl},
	})
	cliEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleClient, Table: cliTbl, Transport: clientTr,
		Settings: testSettings(), RemoteMatch: table.MatchAny(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumpRecv(t, srvEng, serverTr)
	pumpRecv(t, cliEng, clientTr)
	pumpService(srvEng, ctx)
	pumpService(cliEng, ctx)

	waitFor(t, 2*time.Second, func() bool { return cliEng.State() == propagation.StateConnected })

	done := cliEng.StartLocalAction("partA.doWork", nil)

	select {
	case st := <-done:
		if !st.Terminal || st.ResultCode != propagation.ActionSucceeded {
			t.Fatalf("expected a successful terminal state, got %+v", st)
		}
		if got := cliTbl.GetAccessor("partA.progress").Value().Int64(); got != 50 {
			t.Fatalf("completion observed before its table side effects: partA.progress = %d", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the remote action to complete")
	}
}

// An inbound ack_seq that doesn't line up contiguously with what's
// outstanding is a protocol violation, and the engine must abort rather
// than silently drop the mismatched trackers.
func TestEngineAbortsOnAckSeqSkipMismatch(t *testing.T) {
	clientTr, serverTr := local.Pair()

	srvTbl := table.New("server")
	cliTbl := table.New("client")

	srvEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleServer, Table: srvTbl, Transport: serverTr,
		Settings: testSettings(), ExportMatch: table.MatchAny(),
	})
	cliEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleClient, Table: cliTbl, Transport: clientTr,
		Settings: testSettings(), RemoteMatch: table.MatchAny(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumpRecv(t, srvEng, serverTr)
	pumpRecv(t, cliEng, clientTr)
	pumpService(srvEng, ctx)
	pumpService(cliEng, ctx)

	waitFor(t, 2*time.Second, func() bool { return cliEng.State() == propagation.StateConnected })

	// No frame has ever carried this ack_seq, so it can't line up with
	// anything outstanding: foldAckLocked must treat it as a skip.
	cliEng.Deliver(propagation.Frame{AckSeq: 9999})

	waitFor(t, 2*time.Second, func() bool { return cliEng.State() == propagation.StateTerminal })

	if err := cliEng.Err(); !errors.Is(err, propagation.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}

// With nothing to propagate, the engine must still emit a ping once
// idle-ping-after elapses, and the peer's ack of that ping must keep
// the ack-wait window from ever tripping.
func TestEngineIdlePingKeepsSessionAlive(t *testing.T) {
	clientTr, serverTr := local.Pair()

	srvTbl := table.New("server")
	cliTbl := table.New("client")

	settings := testSettings()
	settings.IdlePingAfter = 15 * time.Millisecond
	settings.AckWaitLimit = 200 * time.Millisecond

	srvEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleServer, Table: srvTbl, Transport: serverTr,
		Settings: settings, ExportMatch: table.MatchAny(),
	})
	cliEng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleClient, Table: cliTbl, Transport: clientTr,
		Settings: settings, RemoteMatch: table.MatchAny(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumpRecv(t, srvEng, serverTr)
	pumpRecv(t, cliEng, clientTr)
	pumpService(srvEng, ctx)
	pumpService(cliEng, ctx)

	waitFor(t, 2*time.Second, func() bool { return cliEng.State() == propagation.StateConnected })

	// Stay idle for several idle-ping-after intervals, well past
	// ack-wait-limit too: if pings weren't being sent and acked, the
	// window check would abort the session long before this returns.
	time.Sleep(6 * settings.IdlePingAfter)

	if got := cliEng.State(); got != propagation.StateConnected {
		t.Fatalf("expected the session to stay connected via keepalive pings, got %s (err=%v)", got, cliEng.Err())
	}
	if got := srvEng.State(); got != propagation.StateConnected {
		t.Fatalf("expected the server session to stay connected via keepalive pings, got %s (err=%v)", got, srvEng.Err())
	}
}

// blackHoleTransport is a propagation.Transport whose Send always
// succeeds but whose peer never acks anything: Recv blocks until the
// transport is closed. It exists to provoke the ack-wait-limit abort
// path without a cooperating peer.
type blackHoleTransport struct {
	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

func newBlackHoleTransport() *blackHoleTransport {
	return &blackHoleTransport{closed: make(chan struct{})}
}

func (b *blackHoleTransport) Send(propagation.Frame) error { return nil }

func (b *blackHoleTransport) Recv() (propagation.Frame, error) {
	<-b.closed
	return propagation.Frame{}, errors.New("blackHoleTransport: closed")
}

func (b *blackHoleTransport) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

// A frame that stays unacknowledged past ack-wait-limit must abort the
// session and sever every pending local action with ActionSevered.
func TestEngineAbortsOnAckWaitTimeout(t *testing.T) {
	tr := newBlackHoleTransport()
	tbl := table.New("client")

	settings := testSettings()
	settings.AckWaitLimit = 20 * time.Millisecond
	settings.IdlePingAfter = time.Hour

	eng := propagation.NewEngine(propagation.EngineConfig{
		Role: propagation.RoleClient, Table: tbl, Transport: tr,
		Settings: settings, RemoteMatch: table.MatchAny(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pumpService(eng, ctx)

	done := eng.StartLocalAction("double", []value.NamedValue{{Name: "n", Value: value.I32(21)}})

	waitFor(t, 2*time.Second, func() bool { return eng.State() == propagation.StateTerminal })

	select {
	case st := <-done:
		if !st.Terminal || st.ResultCode != propagation.ActionSevered {
			t.Fatalf("expected a severed terminal state, got %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the local action to be severed")
	}
}
