// Package config loads propagation-endpoint settings through a
// package-level viper singleton: Key* constants, Register*Defaults()
// calling v.SetDefault, and typed Get* accessors assembled into a
// settings struct.
package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Endpoint option keys.
const (
	KeyPartID                  = "endpoint.part-id"
	KeyNominalScanPeriod       = "endpoint.nominal-scan-period"
	KeyReconnectHoldoff        = "endpoint.reconnect-holdoff"
	KeyLocalTableName          = "endpoint.local-table-name"
	KeyRemoteTableName         = "endpoint.remote-table-name"
	KeyAddRemoveLocalPrefix    = "endpoint.add-remove-local-prefix"
	KeyRemoteNameMatchRules    = "endpoint.remote-name-match-rule-set"
	KeyAckWaitLimit            = "endpoint.ack-wait-limit"
	KeyMaxPendingFrames        = "endpoint.max-pending-frames"
	KeyMaxPendingBytes         = "endpoint.max-pending-bytes"
	KeyNominalMaxBytesPerFrame = "endpoint.nominal-max-bytes-per-frame"
	KeyIdlePingAfter           = "endpoint.idle-ping-after"
)

// EndpointSettings are the tunables one session endpoint runs with.
type EndpointSettings struct {
	PartID                  string
	NominalScanPeriod       time.Duration
	ReconnectHoldoff        time.Duration
	LocalTableName          string
	RemoteTableName         string
	AddRemoveLocalPrefix    string
	// RemoteNameMatchPrefixes lists the prefix rules of the endpoint's
	// remote-name match set; empty means match any.
	RemoteNameMatchPrefixes []string
	AckWaitLimit            time.Duration
	MaxPendingFrames        int
	MaxPendingBytes         int
	NominalMaxBytesPerFrame int
	IdlePingAfter           time.Duration
}

// Initialize creates the viper singleton, registers the endpoint
// defaults, and layers in VTABLE_* environment variable overrides.
func Initialize() error {
	v = viper.New()
	v.SetEnvPrefix("VTABLE")
	v.AutomaticEnv()
	RegisterEndpointDefaults()
	return nil
}

// RegisterEndpointDefaults registers the endpoint default values on the
// package-level viper instance; it does nothing before Initialize has
// created that instance. Called from Initialize.
func RegisterEndpointDefaults() {
	if v == nil {
		return
	}
	v.SetDefault(KeyPartID, "")
	v.SetDefault(KeyNominalScanPeriod, "100ms")
	v.SetDefault(KeyReconnectHoldoff, "3s")
	v.SetDefault(KeyLocalTableName, "")
	v.SetDefault(KeyRemoteTableName, "")
	v.SetDefault(KeyAddRemoveLocalPrefix, "")
	v.SetDefault(KeyRemoteNameMatchRules, []string{})
	v.SetDefault(KeyAckWaitLimit, "30s")
	v.SetDefault(KeyMaxPendingFrames, 100)
	v.SetDefault(KeyMaxPendingBytes, 10_000_000)
	v.SetDefault(KeyNominalMaxBytesPerFrame, 250_000)
	v.SetDefault(KeyIdlePingAfter, "10s")
}

// LoadFile layers a YAML config file on top of the registered
// defaults, routed through the shared viper instance so callers of
// GetEndpointSettings see the override too.
func LoadFile(path string) error {
	if v == nil {
		if err := Initialize(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v.MergeInConfig()
}

func ensure() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

func GetString(key string) string          { return ensure().GetString(key) }
func GetDuration(key string) time.Duration { return ensure().GetDuration(key) }
func GetInt(key string) int                { return ensure().GetInt(key) }
func GetStringSlice(key string) []string   { return ensure().GetStringSlice(key) }

// GetEndpointSettings assembles the full EndpointSettings struct from
// the current viper state.
func GetEndpointSettings() EndpointSettings {
	return EndpointSettings{
		PartID:                  GetString(KeyPartID),
		NominalScanPeriod:       GetDuration(KeyNominalScanPeriod),
		ReconnectHoldoff:        GetDuration(KeyReconnectHoldoff),
		LocalTableName:          GetString(KeyLocalTableName),
		RemoteTableName:         GetString(KeyRemoteTableName),
		AddRemoveLocalPrefix:    GetString(KeyAddRemoveLocalPrefix),
		RemoteNameMatchPrefixes: GetStringSlice(KeyRemoteNameMatchRules),
		AckWaitLimit:            GetDuration(KeyAckWaitLimit),
		MaxPendingFrames:        GetInt(KeyMaxPendingFrames),
		MaxPendingBytes:         GetInt(KeyMaxPendingBytes),
		NominalMaxBytesPerFrame: GetInt(KeyNominalMaxBytesPerFrame),
		IdlePingAfter:           GetDuration(KeyIdlePingAfter),
	}
}

// DefaultEndpointSettings returns the built-in defaults without touching
// the package-level viper singleton — convenient for library callers
// that construct an Engine directly rather than through config files.
func DefaultEndpointSettings() EndpointSettings {
	return EndpointSettings{
		NominalScanPeriod:       100 * time.Millisecond,
		ReconnectHoldoff:        3 * time.Second,
		AckWaitLimit:            30 * time.Second,
		MaxPendingFrames:        100,
		MaxPendingBytes:         10_000_000,
		NominalMaxBytesPerFrame: 250_000,
		IdlePingAfter:           10 * time.Second,
	}
}
