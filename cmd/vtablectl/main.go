// vtablectl connects to a vtabled server over NATS, mirrors its table
// locally, and gives a small set of subcommands for inspecting the
// mirrored values and invoking remote service actions.
//
// Usage:
//
//	vtablectl watch --nats-url nats://127.0.0.1:4222 --table inventory
//	vtablectl call --nats-url nats://127.0.0.1:4222 --table inventory echo msg=hi
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/tablefabric/vtable/internal/config"
	"github.com/tablefabric/vtable/internal/propagation"
	"github.com/tablefabric/vtable/internal/session"
	"github.com/tablefabric/vtable/internal/table"
	natstransport "github.com/tablefabric/vtable/internal/transport/nats"
	"github.com/tablefabric/vtable/internal/value"
)

var (
	natsURL    string
	tableName  string
	clientName string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "vtablectl",
	Short: "vtablectl mirrors and drives a remote vtabled table",
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "connect, mirror the server's table, and print every value change",
	RunE:  runWatch,
}

var callCmd = &cobra.Command{
	Use:   "call <service> [name=value ...]",
	Short: "connect and invoke a remote service action, printing its result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCall,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", nats.DefaultURL, "NATS server URL the target vtabled is listening on")
	rootCmd.PersistentFlags().StringVar(&tableName, "table", "default", "name of the table to connect to")
	rootCmd.PersistentFlags().StringVar(&clientName, "client-name", "", "this client's connection name (default: a generated uuid)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML file of endpoint settings to merge over the built-in defaults")
	rootCmd.AddCommand(watchCmd, callCmd)
}

func loadSettings() (config.EndpointSettings, error) {
	if err := config.Initialize(); err != nil {
		return config.EndpointSettings{}, err
	}
	if configFile != "" {
		if err := config.LoadFile(configFile); err != nil {
			return config.EndpointSettings{}, err
		}
	}
	return config.GetEndpointSettings(), nil
}

// connect announces this client on vtabled's well-known connect
// subject, waits briefly (no reply is awaited), then opens the
// per-client subject pair vtabled subscribes to on that announcement.
func connect(nc *nats.Conn, name string) (propagation.Transport, error) {
	if err := nc.Publish("vtable."+tableName+".connect", []byte(name)); err != nil {
		return nil, fmt.Errorf("vtablectl: announce connection: %w", err)
	}
	time.Sleep(50 * time.Millisecond) // give vtabled a moment to subscribe its side
	return natstransport.NewTransport(nc, subjectC2S(name), subjectS2C(name))
}

func subjectC2S(name string) string { return "vtable." + tableName + "." + name + ".c2s" }
func subjectS2C(name string) string { return "vtable." + tableName + "." + name + ".s2c" }

// describeValue renders a Value for terminal output; Value has no
// built-in cross-kind formatter since most callers know their kind
// ahead of time via Typed.
func describeValue(v value.Value) string {
	switch v.Kind {
	case value.KindEmpty:
		return "<empty>"
	case value.KindBool:
		return fmt.Sprintf("%v", v.Bool())
	case value.KindString:
		return v.String()
	case value.KindF32, value.KindF64:
		return fmt.Sprintf("%v", v.Float64())
	case value.KindStringList:
		return strings.Join(v.StringList(), ",")
	default:
		if i, err := v.ConvertTo(value.KindI64, false); err == nil {
			return fmt.Sprintf("%d", i.Int64())
		}
		return fmt.Sprintf("%s(%v)", v.Kind, v.Object())
	}
}

func resolveClientName() string {
	if clientName != "" {
		return clientName
	}
	return "vtablectl-" + uuid.NewString()
}

// remoteMatch builds the client's remote-name filter from the endpoint
// settings; no configured prefixes means accept everything.
func remoteMatch(settings config.EndpointSettings) table.MatchRuleSet {
	if len(settings.RemoteNameMatchPrefixes) == 0 {
		return table.MatchAny()
	}
	return table.NewMatchRuleSet(settings.RemoteNameMatchPrefixes...)
}

func runWatch(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("vtablectl: connect to %s: %w", natsURL, err)
	}
	defer nc.Close()

	name := resolveClientName()
	transport, err := connect(nc, name)
	if err != nil {
		return err
	}

	tbl := table.New(tableName)
	tbl.Subscribe(func(globalSeq uint32) {
		for _, n := range tbl.NamesRange(0, 0) {
			fmt.Printf("%s = %s\n", n, describeValue(tbl.GetAccessor(n).Value()))
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess := session.NewClient(tbl, transport, settings, remoteMatch(settings), nil)
	return sess.Run(ctx)
}

func runCall(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	serviceName := args[0]
	params := make([]value.NamedValue, 0, len(args)-1)
	for _, kv := range args[1:] {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("vtablectl: malformed parameter %q, expected name=value", kv)
		}
		params = append(params, value.NamedValue{Name: parts[0], Value: value.String(parts[1])})
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("vtablectl: connect to %s: %w", natsURL, err)
	}
	defer nc.Close()

	name := resolveClientName()
	transport, err := connect(nc, name)
	if err != nil {
		return err
	}

	tbl := table.New(tableName)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess := session.NewClient(tbl, transport, settings, remoteMatch(settings), nil)
	go sess.Run(ctx)

	states := sess.Engine().StartLocalAction(serviceName, params)

	select {
	case state, ok := <-states:
		if !ok {
			return fmt.Errorf("vtablectl: %s never reached a terminal state", serviceName)
		}
		if state.ResultCode != propagation.ActionSucceeded {
			return fmt.Errorf("vtablectl: %s failed: %s (%v)", serviceName, state.Detail, state.ResultCode)
		}
		for _, nv := range state.Results {
			fmt.Printf("%s = %s\n", nv.Name, describeValue(nv.Value))
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("vtablectl: %s timed out: %w", serviceName, ctx.Err())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
