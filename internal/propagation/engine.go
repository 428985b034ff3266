package propagation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tablefabric/vtable/internal/config"
	"github.com/tablefabric/vtable/internal/table"
	"github.com/tablefabric/vtable/internal/telemetry"
	"github.com/tablefabric/vtable/internal/value"
)

// Role is the session role driven by one Engine.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// State is the session's propagation state.
type State int

const (
	StateRegistering State = iota
	StateConnected
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateConnected:
		return "connected"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// ServiceHost starts a named remote-service action. Declared locally
// (rather than imported from internal/hostpart) so propagation has no
// dependency on hostpart; hostpart.ServiceHost is a type alias of this
// interface.
type ServiceHost interface {
	StartAction(ctx context.Context, serviceName string, params []value.NamedValue) (ActionHandle, error)
}

type pushedTracker struct {
	seq     uint32
	sentAt  time.Time
	estSize int
}

// EngineConfig parameterizes a new Engine.
type EngineConfig struct {
	Role      Role
	Table     *table.Table
	Transport Transport
	Settings  config.EndpointSettings
	// ExportMatch selects which of Table's names the server exports.
	// Ignored for RoleClient.
	ExportMatch table.MatchRuleSet
	// RemoteMatch selects which inbound registrations the client
	// accepts. Ignored for RoleServer.
	RemoteMatch table.MatchRuleSet
	// Host, if set, handles inbound (peer-originated) remote-service
	// action requests.
	Host ServiceHost
}

// Engine drives one endpoint of a peer-to-peer propagation session.
type Engine struct {
	role        Role
	tbl         *table.Table
	transport   Transport
	settings    config.EndpointSettings
	exportMatch table.MatchRuleSet
	remoteMatch table.MatchRuleSet
	host        ServiceHost
	prefix      string

	pool *framePool

	mu    sync.Mutex
	state State

	nextOutSeq uint32
	// lastInboundSeqProcessed is the highest seq we've received from the
	// peer; echoed back as the ack_seq we stamp on our own frames.
	lastInboundSeqProcessed uint32
	// lastInboundAckProcessed is the highest ack_seq the peer has told us
	// it fully processed — how much of pendingPushed we've folded away.
	lastInboundAckProcessed uint32
	// lastPushedAckSent is the ack_seq value we last stamped on our own
	// outbound frame, used only to detect whether we still owe the peer
	// an ack-only frame.
	lastPushedAckSent uint32

	pendingPushed []pushedTracker
	pendingBytes  int

	outVpis              []Vpi
	outRequests          []ActionRequest
	outUpdates           []ActionUpdate
	outCompletionUpdates []ActionUpdate

	// stagedForSet accumulates accessors touched by this pass's inbound
	// vpis, applied through one atomic table.SetMany in step 2.
	stagedForSet []*table.Accessor

	tracking *trackingTable

	localActions map[string]*localAction
	peerActions  map[string]*peerAction

	lastScannedGlobalSeq  uint32
	lastScanAt            time.Time
	lastActivityAt        time.Time
	endOfRegistrationSent bool
	// scanNeeded forces the next scan even when global-seq is
	// unchanged, e.g. an Add-Name Request that resolved to an entry the
	// table already held still needs its Registration Record answered.
	scanNeeded bool

	abortReason error
	done        chan struct{}
	doneOnce    sync.Once

	inboundMu sync.Mutex
	inbound   []Frame
}

// NewEngine constructs an Engine in the initial Registering state.
func NewEngine(cfg EngineConfig) *Engine {
	prefix := cfg.Settings.AddRemoveLocalPrefix
	e := &Engine{
		role:         cfg.Role,
		tbl:          cfg.Table,
		transport:    cfg.Transport,
		settings:     cfg.Settings,
		exportMatch:  cfg.ExportMatch,
		remoteMatch:  cfg.RemoteMatch,
		host:         cfg.Host,
		prefix:       prefix,
		pool:         newFramePool(cfg.Settings.MaxPendingFrames),
		state:        StateRegistering,
		tracking:     newTrackingTable(),
		localActions: make(map[string]*localAction),
		peerActions:  make(map[string]*peerAction),
		done:         make(chan struct{}),
	}
	e.lastActivityAt = time.Now()
	return e
}

// State returns the engine's current propagation state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the reason the session terminated, or nil.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.abortReason
}

// Done returns a channel closed once the session reaches StateTerminal.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Deliver enqueues an inbound frame for the next Service pass. Safe to
// call from any goroutine.
func (e *Engine) Deliver(f Frame) {
	e.inboundMu.Lock()
	e.inbound = append(e.inbound, f)
	e.inboundMu.Unlock()
}

func (e *Engine) drainInbound() []Frame {
	e.inboundMu.Lock()
	defer e.inboundMu.Unlock()
	if len(e.inbound) == 0 {
		return nil
	}
	out := e.inbound
	e.inbound = nil
	return out
}

func (e *Engine) toConnectionName(localName string) string {
	if e.prefix == "" {
		return localName
	}
	return strings.TrimPrefix(localName, e.prefix)
}

func (e *Engine) toLocalName(connectionName string) string {
	if e.prefix == "" {
		return connectionName
	}
	return e.prefix + connectionName
}

// Service runs exactly one scan pass of the engine's per-scan outbound
// pipeline. The caller (internal/session) invokes Service
// in a loop on a ticker running at a quarter of nominal-scan-period.
func (e *Engine) Service(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateTerminal {
		return
	}

	scanStart := time.Now()

	// 1. Drain inbound.
	for _, f := range e.drainInbound() {
		e.lastActivityAt = time.Now()
		if err := e.processFrameLocked(ctx, f); err != nil {
			e.abortLocked(ctx, err)
			return
		}
	}

	// 2. Apply staged writes.
	e.applyStagedWritesLocked()

	// 3. Service pending local action cancels.
	e.serviceCancelsLocked()

	// 4. Remote-side (peer-originated) action tracking pass.
	if len(e.outVpis) == 0 && len(e.outUpdates) == 0 {
		e.servicePeerActionsLocked()
	}

	// 5. Scan table for outbound vpis.
	e.maybeScanTableLocked()

	// 6. Pack and send frames.
	sent := e.packAndSendLocked(ctx)

	// 7. Idle handling.
	if !sent {
		e.idleHandlingLocked(ctx)
	}

	// 8. Window check (ack-wait timeout).
	e.windowCheckLocked(ctx)

	if e.role == RoleServer {
		e.maybeFinishRegistrationLocked(ctx)
	}

	telemetry.RecordScanDuration(ctx, float64(time.Since(scanStart).Microseconds())/1000)
}

// processFrameLocked folds ack_seq and processes vpis/requests/updates
// for one inbound frame. Caller holds e.mu.
func (e *Engine) processFrameLocked(ctx context.Context, f Frame) error {
	if f.AckSeq != 0 {
		if err := e.foldAckLocked(ctx, f.AckSeq); err != nil {
			return err
		}
	}

	if f.Seq == 0 && !f.IsEmpty() {
		return fmt.Errorf("%w: inbound frame with no seq carries content", ErrProtocolViolation)
	}
	if f.Seq != 0 {
		e.lastInboundSeqProcessed = f.Seq
	}

	if e.role == RoleClient && e.state == StateRegistering {
		if f.SignalsConnected() {
			e.state = StateConnected
			if len(f.Vpis) == 0 {
				return nil
			}
		}
	}

	for _, vp := range f.Vpis {
		if err := e.processVpiLocked(vp); err != nil {
			return err
		}
	}
	for _, req := range f.Requests {
		e.processRequestLocked(req)
	}
	for _, upd := range f.Updates {
		e.processUpdateLocked(upd)
	}
	return nil
}

// foldAckLocked removes every pending-pushed tracker the peer has now
// fully processed. The run of removed seqs must be exactly contiguous
// from lastInboundAckProcessed+1 through ack; any gap — a tracker
// skipped over, or an ack that names a seq we never find pending — is
// a protocol violation that aborts the session.
func (e *Engine) foldAckLocked(ctx context.Context, ack uint32) error {
	if ack == e.lastInboundAckProcessed {
		return nil
	}

	expected := nextSeq(e.lastInboundAckProcessed)
	i := 0
	matched := false
	for i < len(e.pendingPushed) && e.pendingPushed[i].seq <= ack {
		if e.pendingPushed[i].seq != expected {
			return fmt.Errorf("%w: ack_seq skip mismatch (expected seq %d, pending seq %d)",
				ErrProtocolViolation, expected, e.pendingPushed[i].seq)
		}
		e.pendingBytes -= e.pendingPushed[i].estSize
		if e.pendingPushed[i].seq == ack {
			matched = true
		}
		expected = nextSeq(expected)
		i++
	}
	if !matched {
		return fmt.Errorf("%w: ack_seq skip mismatch (ack %d not among pending seqs)", ErrProtocolViolation, ack)
	}

	telemetry.RecordFramesAcked(ctx, int64(i))
	e.pendingPushed = e.pendingPushed[i:]
	e.lastInboundAckProcessed = ack
	return nil
}

// nextSeq advances a seq counter: monotonically increasing, skipping
// zero on wraparound.
func nextSeq(s uint32) uint32 {
	s++
	if s == 0 {
		s = 1
	}
	return s
}

func (e *Engine) processVpiLocked(vp Vpi) error {
	switch vp.Classify() {
	case VpiRegistration:
		if e.role != RoleClient {
			return fmt.Errorf("%w: registration record received by server", ErrProtocolViolation)
		}
		return e.handleRegistrationLocked(vp)
	case VpiAddRequest:
		if e.role != RoleServer {
			return fmt.Errorf("%w: add-name request received by client", ErrProtocolViolation)
		}
		return e.handleAddRequestLocked(vp)
	case VpiNormalUpdate:
		return e.handleNormalUpdateLocked(vp)
	default:
		return fmt.Errorf("%w: malformed vpi discriminator (id=%d name=%q)", ErrProtocolViolation, vp.ID, vp.Name)
	}
}

// handleRegistrationLocked binds a server-assigned id to a tracking
// item, creating one if this is the first time the name is seen.
func (e *Engine) handleRegistrationLocked(vp Vpi) error {
	if item, ok := e.tracking.byConnectionName(vp.Name); ok {
		// Echo of our own Add-Name Request: bind the server-assigned id.
		e.tracking.assignID(item, vp.ID)
		item.registrationSent = true
		if vp.HasContainer {
			// An Add-Name Request echo that carries a container (empty
			// or not) is applied to the local accessor, same as any
			// other registration.
			item.accessor.Stage(vp.Container)
			e.stagedForSet = append(e.stagedForSet, item.accessor)
		}
		return nil
	}

	localName := e.toLocalName(vp.Name)
	if !e.remoteMatch.Matches(localName) {
		// Client silently drops non-matching inbound registrations.
		return nil
	}

	acc := e.tbl.GetAccessor(localName)
	item := &trackingItem{accessor: acc, connectionName: vp.Name, id: vp.ID, registrationSent: true}
	e.tracking.add(item)
	if vp.HasContainer {
		item.accessor.Stage(vp.Container)
		e.stagedForSet = append(e.stagedForSet, item.accessor)
	}
	return nil
}

// handleAddRequestLocked creates a new server-side tracking item for a
// client-requested name. The server honors any client Add-Name Request
// regardless of its own export match set.
func (e *Engine) handleAddRequestLocked(vp Vpi) error {
	localName := e.toLocalName(vp.Name)
	if item, ok := e.tracking.byConnectionName(vp.Name); ok {
		if vp.HasContainer {
			item.accessor.Stage(vp.Container)
			e.stagedForSet = append(e.stagedForSet, item.accessor)
		}
		return nil
	}

	acc := e.tbl.GetAccessor(localName)
	id := e.tracking.serverIDForPosition()
	item := &trackingItem{accessor: acc, connectionName: vp.Name, id: id}
	e.tracking.add(item)
	e.scanNeeded = true
	if vp.HasContainer {
		item.accessor.Stage(vp.Container)
		e.stagedForSet = append(e.stagedForSet, item.accessor)
	}
	return nil
}

func (e *Engine) handleNormalUpdateLocked(vp Vpi) error {
	item, ok := e.tracking.byIDLookup(vp.ID)
	if !ok {
		return fmt.Errorf("%w: normal update for unknown id %d", ErrProtocolViolation, vp.ID)
	}
	if vp.HasContainer {
		item.accessor.Stage(vp.Container)
	} else {
		item.accessor.Stage(value.Empty())
	}
	e.stagedForSet = append(e.stagedForSet, item.accessor)
	return nil
}

// applyStagedWritesLocked performs step 2 of the per-scan pipeline: one
// atomic SetMany over every accessor touched by this pass's inbound
// vpis.
func (e *Engine) applyStagedWritesLocked() {
	if len(e.stagedForSet) == 0 {
		return
	}
	e.tbl.SetMany(e.stagedForSet, false)
	e.stagedForSet = nil
}

func (e *Engine) processRequestLocked(req ActionRequest) {
	if req.Cancel {
		if pa, ok := e.peerActions[req.UUID]; ok {
			pa.cancel()
		} else {
			// Action not found on an incoming cancel: logged, ignored.
			telemetry.Logf("propagation: cancel for unknown peer action %s", req.UUID)
		}
		return
	}

	if req.ServiceName == pingServiceName {
		e.outUpdates = append(e.outUpdates, handlePingRequest(req))
		return
	}

	if e.host == nil {
		e.outCompletionUpdates = append(e.outCompletionUpdates, ActionUpdate{
			UUID: req.UUID,
			State: ActionState{Terminal: true, ResultCode: ActionNotFound, Detail: "no service host configured"},
		})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := e.host.StartAction(ctx, req.ServiceName, req.Params)
	if err != nil {
		cancel()
		e.outCompletionUpdates = append(e.outCompletionUpdates, ActionUpdate{
			UUID: req.UUID,
			State: ActionState{Terminal: true, ResultCode: ActionNotFound, Detail: err.Error()},
		})
		return
	}
	e.peerActions[req.UUID] = &peerAction{uuid: req.UUID, handle: handle, ctx: ctx, cancel: cancel}
}

func (e *Engine) processUpdateLocked(upd ActionUpdate) {
	if upd.State.Terminal {
		// Any value writes staged from this frame's vpis must land in
		// the table before the completion wakes a waiting caller, or it
		// could read the table ahead of the action's own side effects.
		e.applyStagedWritesLocked()
		e.completeLocalActionLocked(upd.UUID, upd.State)
		return
	}
	// Non-terminal progress updates for local-originated actions have
	// no further local state to update beyond what the sender's own
	// table writes already delivered.
}

func (e *Engine) servicePeerActionsLocked() {
	for id, pa := range e.peerActions {
		if pa.completed {
			continue
		}
		select {
		case st, ok := <-pa.handle.States():
			if !ok {
				continue
			}
			upd := ActionUpdate{UUID: id, State: st}
			if st.Terminal {
				pa.completed = true
				e.outCompletionUpdates = append(e.outCompletionUpdates, upd)
				delete(e.peerActions, id)
			} else {
				e.outUpdates = append(e.outUpdates, upd)
			}
		default:
		}
	}
}

// maybeScanTableLocked implements step 5: discovers new names to
// track, then emits at most one vpi per tracking item.
func (e *Engine) maybeScanTableLocked() {
	if len(e.outVpis) != 0 {
		return
	}
	seq := e.tbl.GlobalSeq()
	if seq == e.lastScannedGlobalSeq && !e.scanNeeded {
		return
	}
	windowFull := len(e.pendingPushed) >= e.settings.MaxPendingFrames || e.pendingBytes >= e.settings.MaxPendingBytes
	if windowFull {
		return
	}
	// A queued completion must not go out ahead of the side effects
	// its action wrote, so it bypasses the scan timer like Registering.
	if e.state != StateRegistering && len(e.outCompletionUpdates) == 0 {
		if time.Since(e.lastScanAt) < e.settings.NominalScanPeriod {
			return
		}
	}
	e.lastScanAt = time.Now()
	e.lastScannedGlobalSeq = seq
	e.scanNeeded = false

	e.discoverNewNamesLocked()

	var toUpdate []*table.Accessor
	var toUpdateItems []*trackingItem

	for _, item := range e.tracking.items {
		switch {
		case e.role == RoleServer && !item.registrationSent:
			e.outVpis = append(e.outVpis, e.registrationVpiLocked(item))
			item.registrationSent = true
		case e.role == RoleClient && e.state == StateConnected && !item.addRequestSent && item.id == 0:
			e.outVpis = append(e.outVpis, e.addRequestVpiLocked(item))
			item.addRequestSent = true
		case e.state == StateConnected && item.id != 0 && item.accessor.UpdateNeeded():
			toUpdate = append(toUpdate, item.accessor)
			toUpdateItems = append(toUpdateItems, item)
		}
	}

	if len(toUpdate) > 0 {
		e.tbl.UpdateMany(toUpdate)
		for _, item := range toUpdateItems {
			e.outVpis = append(e.outVpis, Vpi{ID: item.id, Container: item.accessor.Value(), HasContainer: true})
		}
	}
}

func (e *Engine) registrationVpiLocked(item *trackingItem) Vpi {
	e.tbl.Update(item.accessor)
	return Vpi{ID: item.id, Name: item.connectionName, Container: item.accessor.Value(), HasContainer: item.accessor.HasValueBeenSet()}
}

func (e *Engine) addRequestVpiLocked(item *trackingItem) Vpi {
	e.tbl.Update(item.accessor)
	return Vpi{ID: 0, Name: item.connectionName, Container: item.accessor.Value(), HasContainer: item.accessor.HasValueBeenSet()}
}

// discoverNewNamesLocked finds table names not yet tracked and creates
// tracking items for them: server filters by its export match set,
// client tracks any new local name. A configured local prefix acts as
// an additional filter on both roles — names outside it never cross
// the connection.
func (e *Engine) discoverNewNamesLocked() {
	names := e.tbl.NamesRange(0, 0)
	for _, name := range names {
		if e.prefix != "" && !strings.HasPrefix(name, e.prefix) {
			continue
		}
		conn := e.toConnectionName(name)
		if _, tracked := e.tracking.byConnectionName(conn); tracked {
			continue
		}
		if e.role == RoleServer {
			if !e.exportMatch.Matches(name) {
				continue
			}
			acc := e.tbl.GetAccessor(name)
			id := e.tracking.serverIDForPosition()
			e.tracking.add(&trackingItem{accessor: acc, connectionName: conn, id: id})
		} else {
			acc := e.tbl.GetAccessor(name)
			e.tracking.add(&trackingItem{accessor: acc, connectionName: conn})
		}
	}
}

// packAndSendLocked implements step 6. Returns true if at least one
// frame was sent.
func (e *Engine) packAndSendLocked(ctx context.Context) bool {
	sentAny := false
	for {
		windowFull := len(e.pendingPushed) >= e.settings.MaxPendingFrames || e.pendingBytes >= e.settings.MaxPendingBytes
		if windowFull {
			break
		}
		if len(e.outVpis) == 0 && len(e.outRequests) == 0 && len(e.outUpdates) == 0 && len(e.outCompletionUpdates) == 0 {
			break
		}

		f := e.pool.Get()
		f.AckSeq = e.lastInboundSeqProcessed

		budget := e.settings.NominalMaxBytesPerFrame
		if budget <= 0 {
			budget = 250_000
		}
		size := f.EstimatedSize()

		for len(e.outVpis) > 0 && size < budget {
			vp := e.outVpis[0]
			add := 8 + len(vp.Name)
			if vp.HasContainer {
				add += vp.Container.EstimatedSize()
			}
			if size+add > budget && len(f.Vpis) > 0 {
				break
			}
			f.Vpis = append(f.Vpis, vp)
			size += add
			e.outVpis = e.outVpis[1:]
		}
		for len(e.outRequests) > 0 && size < budget {
			r := e.outRequests[0]
			f.Requests = append(f.Requests, r)
			size += 16 + len(r.UUID) + len(r.ServiceName)
			e.outRequests = e.outRequests[1:]
		}
		for len(e.outUpdates) > 0 && size < budget {
			u := e.outUpdates[0]
			f.Updates = append(f.Updates, u)
			size += 16 + len(u.UUID)
			e.outUpdates = e.outUpdates[1:]
		}
		// Completion updates only pack after this scan's outbound vpi
		// queue is empty, so any table side effects precede the
		// completion that implies them.
		if len(e.outVpis) == 0 {
			for len(e.outCompletionUpdates) > 0 && size < budget {
				u := e.outCompletionUpdates[0]
				f.Updates = append(f.Updates, u)
				size += 16 + len(u.UUID)
				e.outCompletionUpdates = e.outCompletionUpdates[1:]
			}
		}

		if f.IsEmpty() {
			e.pool.Put(f)
			break
		}

		seq := e.nextOutboundSeqLocked()
		f.Seq = seq
		if err := e.transport.Send(*f); err != nil {
			e.pool.Put(f)
			e.abortLocked(ctx, fmt.Errorf("propagation: transport send failed: %w", err))
			return sentAny
		}
		est := f.EstimatedSize()
		e.pendingPushed = append(e.pendingPushed, pushedTracker{seq: seq, sentAt: time.Now(), estSize: est})
		e.pendingBytes += est
		e.lastPushedAckSent = f.AckSeq
		e.lastActivityAt = time.Now()
		e.pool.Put(f)
		sentAny = true
		telemetry.RecordFrameSent(ctx)
	}
	return sentAny
}

func (e *Engine) nextOutboundSeqLocked() uint32 {
	e.nextOutSeq = nextSeq(e.nextOutSeq)
	return e.nextOutSeq
}

// idleHandlingLocked implements step 7.
func (e *Engine) idleHandlingLocked(ctx context.Context) {
	oweAck := e.lastPushedAckSent != e.lastInboundSeqProcessed
	if oweAck {
		f := Frame{AckSeq: e.lastInboundSeqProcessed}
		if err := e.transport.Send(f); err == nil {
			e.lastPushedAckSent = e.lastInboundSeqProcessed
			e.lastActivityAt = time.Now()
			telemetry.RecordFrameSent(ctx)
		}
		return
	}

	idleFor := time.Since(e.lastActivityAt)
	if idleFor >= e.settings.IdlePingAfter {
		seq := e.nextOutboundSeqLocked()
		f := Frame{AckSeq: e.lastInboundSeqProcessed, Seq: seq}
		if err := e.transport.Send(f); err != nil {
			e.abortLocked(ctx, fmt.Errorf("propagation: ping send failed: %w", err))
			return
		}
		e.pendingPushed = append(e.pendingPushed, pushedTracker{seq: seq, sentAt: time.Now()})
		e.lastPushedAckSent = e.lastInboundSeqProcessed
		e.lastActivityAt = time.Now()
		telemetry.RecordFrameSent(ctx)
	}
}

// windowCheckLocked implements step 8: abort if the oldest
// unacknowledged pushed frame has waited longer than ack-wait-limit.
func (e *Engine) windowCheckLocked(ctx context.Context) {
	if len(e.pendingPushed) == 0 {
		return
	}
	oldest := e.pendingPushed[0]
	if time.Since(oldest.sentAt) > e.settings.AckWaitLimit {
		telemetry.RecordAckTimeout(ctx)
		e.abortLocked(ctx, fmt.Errorf("propagation: ack-wait timeout: seq %d outstanding for %s", oldest.seq, time.Since(oldest.sentAt)))
	}
}

func (e *Engine) maybeFinishRegistrationLocked(ctx context.Context) {
	if e.state != StateRegistering || e.endOfRegistrationSent {
		return
	}
	for _, item := range e.tracking.items {
		if !item.registrationSent {
			return
		}
	}
	if len(e.outVpis) != 0 {
		return
	}
	seq := e.nextOutboundSeqLocked()
	f := Frame{AckSeq: e.lastInboundSeqProcessed, Seq: seq}
	if err := e.transport.Send(f); err != nil {
		e.abortLocked(ctx, fmt.Errorf("propagation: end-of-registration send failed: %w", err))
		return
	}
	e.pendingPushed = append(e.pendingPushed, pushedTracker{seq: seq, sentAt: time.Now()})
	e.lastPushedAckSent = e.lastInboundSeqProcessed
	e.lastActivityAt = time.Now()
	e.endOfRegistrationSent = true
	e.state = StateConnected
	telemetry.RecordFrameSent(ctx)
}

func (e *Engine) abortLocked(ctx context.Context, reason error) {
	if e.state == StateTerminal {
		return
	}
	e.abortReason = reason
	e.state = StateTerminal
	_ = e.transport.Close()
	for id := range e.localActions {
		e.completeLocalActionLocked(id, ActionState{Terminal: true, ResultCode: ActionSevered, Detail: reason.Error()})
	}
	e.doneOnce.Do(func() { close(e.done) })
}

// Shutdown explicitly ends the session.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abortLocked(context.Background(), fmt.Errorf("propagation: session ended by owner"))
}
