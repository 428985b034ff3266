// Package vtable is the root facade over the named-value
// interconnection fabric: in-process tables (internal/table), the
// process-wide registry (internal/registry), and session-oriented
// propagation to a peer (internal/session, internal/propagation). It
// re-exports just enough of those packages' surface for a typical
// caller to avoid reaching into internal/ directly.
package vtable

import (
	"context"

	"github.com/tablefabric/vtable/internal/config"
	"github.com/tablefabric/vtable/internal/hostpart"
	"github.com/tablefabric/vtable/internal/propagation"
	"github.com/tablefabric/vtable/internal/registry"
	"github.com/tablefabric/vtable/internal/session"
	"github.com/tablefabric/vtable/internal/table"
	"github.com/tablefabric/vtable/internal/value"
)

// Re-exported value-container constructors and types.
type (
	Value      = value.Value
	Kind       = value.Kind
	NamedValue = value.NamedValue
)

var (
	Empty         = value.Empty
	Bool          = value.Bool
	I8            = value.I8
	I16           = value.I16
	I32           = value.I32
	I64           = value.I64
	U8            = value.U8
	U16           = value.U16
	U32           = value.U32
	U64           = value.U64
	F32           = value.F32
	F64           = value.F64
	String        = value.String
	Object        = value.Object
	StringList    = value.StringList
	Container     = value.Container
	NamedValueSet = value.NamedValueSet
)

// Re-exported table types.
type (
	Table        = table.Table
	Accessor     = table.Accessor
	Typed        = table.Typed
	MatchRuleSet = table.MatchRuleSet
	MappingRule  = table.Rule
)

// NewTable creates a standalone table.
func NewTable(name string) *Table { return table.New(name) }

// MatchAny matches every name.
func MatchAny() MatchRuleSet { return table.MatchAny() }

// NewMatchRuleSet builds a prefix-based match set.
func NewMatchRuleSet(prefixes ...string) MatchRuleSet { return table.NewMatchRuleSet(prefixes...) }

// NewTyped wraps base with static Kind/nullable decoding of zero's Go
// type.
func NewTyped(base *Accessor, zero any) *Typed { return table.NewTyped(base, zero) }

// DefaultRegistry returns the process-wide table registry.
func DefaultRegistry() *registry.Registry { return registry.Default() }

// GetOrCreateTable resolves name through the default registry,
// creating a table if none exists yet.
func GetOrCreateTable(name string) *Table { return registry.Default().Get(name, true) }

// Re-exported propagation/session types.
type (
	Transport        = propagation.Transport
	Dialer           = propagation.Dialer
	ActionState      = propagation.ActionState
	ActionResultCode = propagation.ActionResultCode
	ServiceHost      = propagation.ServiceHost
	Session          = session.Session
	EndpointSettings = config.EndpointSettings
)

const (
	ActionSucceeded    = propagation.ActionSucceeded
	ActionFailed       = propagation.ActionFailed
	ActionNotFound     = propagation.ActionNotFound
	ActionSevered      = propagation.ActionSevered
	ActionNeverReached = propagation.ActionNeverReached
	ActionCanceled     = propagation.ActionCanceled
)

// DefaultEndpointSettings returns the built-in endpoint defaults.
func DefaultEndpointSettings() EndpointSettings { return config.DefaultEndpointSettings() }

// NewStaticHost builds a ServiceHost from a name->handler map, enough
// to drive remote-service actions end to end in tests and demos.
func NewStaticHost(handlers map[string]hostpart.HandlerFunc) ServiceHost {
	return hostpart.NewStaticHost(handlers)
}

// NewServerSession builds a session endpoint that exports
// exportMatch's subset of tbl over transport to a connecting peer; its
// Run method drives it.
func NewServerSession(tbl *Table, transport Transport, settings EndpointSettings, exportMatch MatchRuleSet, host ServiceHost) *Session {
	return session.NewServer(tbl, transport, settings, exportMatch, host)
}

// NewClientSession builds a session endpoint that mirrors
// remoteMatch's subset of the peer's table into tbl; its Run method
// drives it.
func NewClientSession(tbl *Table, transport Transport, settings EndpointSettings, remoteMatch MatchRuleSet, host ServiceHost) *Session {
	return session.NewClient(tbl, transport, settings, remoteMatch, host)
}

// RunClient dials, runs, and transparently reconnects a client session
// until ctx is canceled.
func RunClient(ctx context.Context, dialer Dialer, clientName, tableName string, tbl *Table, settings EndpointSettings, remoteMatch MatchRuleSet, host ServiceHost) error {
	return session.RunClient(ctx, dialer, clientName, tableName, tbl, settings, remoteMatch, host)
}
