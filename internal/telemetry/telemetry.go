// Package telemetry is an env-gated diagnostic logger: a package-level
// flag read once from the environment, a couple of Printf-shaped
// functions that no-op when disabled.
package telemetry

import (
	"fmt"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	enabled = os.Getenv("VTABLE_DEBUG") != ""
)

// Enabled reports whether diagnostic logging is active.
func Enabled() bool { return enabled }

// SetEnabled overrides the env-derived default, mainly for tests.
func SetEnabled(v bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = v
}

// Logf writes a formatted diagnostic line to stderr when enabled.
func Logf(format string, args ...any) {
	mu.Lock()
	on := enabled
	mu.Unlock()
	if !on {
		return
	}
	fmt.Fprintf(os.Stderr, "[vtable] "+format+"\n", args...)
}
