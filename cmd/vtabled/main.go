// vtabled runs the server side of a named-value table: it owns a
// table, answers registrations and Add-Name Requests from connecting
// clients over NATS, and dispatches any remote service actions they
// request to a fixed set of demo handlers.
//
// Usage:
//
//	vtabled --nats-url nats://127.0.0.1:4222 --table inventory --export ""
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/tablefabric/vtable/internal/config"
	"github.com/tablefabric/vtable/internal/hostpart"
	"github.com/tablefabric/vtable/internal/registry"
	"github.com/tablefabric/vtable/internal/session"
	"github.com/tablefabric/vtable/internal/table"
	natstransport "github.com/tablefabric/vtable/internal/transport/nats"
	"github.com/tablefabric/vtable/internal/value"
)

var (
	natsURL     string
	tableName   string
	exportPrefs []string
	configFile  string
	seedGreet   bool
)

var rootCmd = &cobra.Command{
	Use:   "vtabled",
	Short: "vtabled serves a named-value table to connecting peers",
	RunE:  runServer,
}

func init() {
	rootCmd.Flags().StringVar(&natsURL, "nats-url", nats.DefaultURL, "NATS server URL to accept client connections on")
	rootCmd.Flags().StringVar(&tableName, "table", "default", "name under which this table is registered and addressed by clients")
	rootCmd.Flags().StringSliceVar(&exportPrefs, "export", nil, "name prefixes to export to clients (default: export everything)")
	rootCmd.Flags().StringVar(&configFile, "config", "", "YAML file of endpoint settings to merge over the built-in defaults")
	rootCmd.Flags().BoolVar(&seedGreet, "seed-greeting", true, "seed a \"greeting\" entry so a freshly started server has something to mirror")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("vtabled: init config: %w", err)
	}
	if configFile != "" {
		if err := config.LoadFile(configFile); err != nil {
			return fmt.Errorf("vtabled: load config: %w", err)
		}
	}
	settings := config.GetEndpointSettings()

	tbl := registry.Default().Get(tableName, true)
	if seedGreet && tbl.GetAccessor("greeting").Value().Kind == value.KindEmpty {
		tbl.GetAccessor("greeting").Set(value.String("hello from vtabled"))
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("vtabled: connect to %s: %w", natsURL, err)
	}
	defer nc.Close()

	exportMatch := table.MatchAny()
	if len(exportPrefs) > 0 {
		exportMatch = table.NewMatchRuleSet(exportPrefs...)
	}

	host := hostpart.NewStaticHost(map[string]hostpart.HandlerFunc{
		"echo": func(ctx context.Context, params []value.NamedValue) ([]value.NamedValue, error) {
			return params, nil
		},
		"uptime": func(ctx context.Context, params []value.NamedValue) ([]value.NamedValue, error) {
			return []value.NamedValue{{Name: "seconds", Value: value.F64(time.Since(startedAt).Seconds())}}, nil
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clientSub, err := nc.Subscribe("vtable."+tableName+".connect", func(msg *nats.Msg) {
		clientName := string(msg.Data)
		transport, err := natstransport.ServerTransport(nc, tableName, clientName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vtabled: accept %s: %v\n", clientName, err)
			return
		}
		sess := session.NewServer(tbl, transport, settings, exportMatch, host)
		go func() {
			if err := sess.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "vtabled: session with %s ended: %v\n", clientName, err)
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("vtabled: subscribe to connect subject: %w", err)
	}
	defer clientSub.Unsubscribe()

	fmt.Printf("vtabled: serving table %q over %s\n", tableName, natsURL)
	<-ctx.Done()
	return nil
}

var startedAt = time.Now()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
