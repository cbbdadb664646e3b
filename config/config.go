// Package config loads the per-domain-participant defaults this
// module's kernel needs at startup: QoS defaults, resource limits,
// history policy, and reliability timing. Grounded on this codebase's
// mailproxy package, which names its TOML config file
// ("mailproxy.toml") but otherwise leaves config parsing to the
// BurntSushi/toml library's standard DecodeFile/Encoder entry points,
// used here directly.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/meridian-dds/meridian/match"
	"github.com/meridian-dds/meridian/rhc"
	"github.com/meridian-dds/meridian/whc"
)

// QoSDefaults holds the domain-wide QoS fallback applied when a writer
// or reader does not specify a policy explicitly.
type QoSDefaults struct {
	Reliability  string  `toml:"reliability"`   // "best_effort" | "reliable"
	Durability   string  `toml:"durability"`    // "volatile" | "transient_local" | "transient" | "persistent"
	Liveliness   string  `toml:"liveliness"`     // "automatic" | "manual_by_participant" | "manual_by_topic"
	LeaseSeconds float64 `toml:"lease_seconds"`
}

// ResourceLimits mirrors rhc.ResourceLimits in config-file form.
type ResourceLimits struct {
	MaxSamples            int `toml:"max_samples"`
	MaxInstances           int `toml:"max_instances"`
	MaxSamplesPerInstance int `toml:"max_samples_per_instance"`
}

// History mirrors whc.Policy's history kind/depth in config-file form.
type History struct {
	Kind  string `toml:"kind"` // "keep_last" | "keep_all"
	Depth int    `toml:"depth"`
}

// Reliability holds the timing knobs of spec section 4.5's heartbeat
// and AckNack scheduling and the retransmit queue's resource caps.
type Reliability struct {
	MinHeartbeatIntervalMillis int64 `toml:"min_heartbeat_interval_millis"`
	MinAckNackIntervalMillis  int64 `toml:"min_acknack_interval_millis"`
	MaxQueuedRexmitBytes       int64 `toml:"max_queued_rexmit_bytes"`
	MaxQueuedRexmitMsgs        int   `toml:"max_queued_rexmit_msgs"`
}

// Config is the top-level TOML document this package loads and saves.
type Config struct {
	QoS            QoSDefaults    `toml:"qos"`
	ResourceLimits ResourceLimits `toml:"resource_limits"`
	History        History        `toml:"history"`
	Reliability    Reliability    `toml:"reliability"`
}

// Default returns the configuration a freshly created domain
// participant uses absent a config file: best-effort/volatile QoS, a
// ten-second automatic liveliness lease, unlimited resource limits,
// KEEP_LAST-1 history, and conservative reliability timing.
func Default() Config {
	return Config{
		QoS: QoSDefaults{
			Reliability:  "best_effort",
			Durability:   "volatile",
			Liveliness:   "automatic",
			LeaseSeconds: 10,
		},
		ResourceLimits: ResourceLimits{
			MaxSamples:            0,
			MaxInstances:          0,
			MaxSamplesPerInstance: 0,
		},
		History: History{Kind: "keep_last", Depth: 1},
		Reliability: Reliability{
			MinHeartbeatIntervalMillis: 50,
			MinAckNackIntervalMillis:  50,
			MaxQueuedRexmitBytes:       4 << 20,
			MaxQueuedRexmitMsgs:        4096,
		},
	}
}

// Load decodes a Config from the TOML file at path.
func Load(path string) (Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}

// Save encodes cfg as TOML to path, truncating any existing file.
func Save(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// RHCResourceLimits converts the configured resource limits into the
// form rhc.New expects.
func (c Config) RHCResourceLimits() rhc.ResourceLimits {
	return rhc.ResourceLimits{
		MaxSamples:            c.ResourceLimits.MaxSamples,
		MaxInstances:          c.ResourceLimits.MaxInstances,
		MaxSamplesPerInstance: c.ResourceLimits.MaxSamplesPerInstance,
	}
}

// WHCPolicy converts the configured history and resource limits into
// the form whc.New expects.
func (c Config) WHCPolicy() whc.Policy {
	kind := whc.KeepLast
	if c.History.Kind == "keep_all" {
		kind = whc.KeepAll
	}
	return whc.Policy{
		History:         kind,
		Depth:           c.History.Depth,
		MaxSamples:      c.ResourceLimits.MaxSamples,
		MaxUnackedBytes: c.Reliability.MaxQueuedRexmitBytes,
	}
}

// Liveliness converts the configured liveliness kind name into a
// match.LivelinessKind, defaulting to Automatic for an unrecognized or
// empty value.
func (c Config) Liveliness() match.LivelinessKind {
	switch c.QoS.Liveliness {
	case "manual_by_participant":
		return match.ManualByParticipant
	case "manual_by_topic":
		return match.ManualByTopic
	default:
		return match.Automatic
	}
}

// ReliabilityKind converts the configured reliability kind name into a
// match.ReliabilityKind.
func (c Config) ReliabilityKind() match.ReliabilityKind {
	if c.QoS.Reliability == "reliable" {
		return match.Reliable
	}
	return match.BestEffort
}

// DurabilityKind converts the configured durability kind name into a
// match.DurabilityKind.
func (c Config) DurabilityKind() match.DurabilityKind {
	switch c.QoS.Durability {
	case "transient_local":
		return match.TransientLocal
	case "transient":
		return match.Transient
	case "persistent":
		return match.Persistent
	default:
		return match.Volatile
	}
}

// LeaseDuration returns the configured lease as a time.Duration.
func (c Config) LeaseDuration() time.Duration {
	return time.Duration(c.QoS.LeaseSeconds * float64(time.Second))
}

// MinHeartbeatInterval returns the configured minimum heartbeat
// interval as a time.Duration.
func (c Config) MinHeartbeatInterval() time.Duration {
	return time.Duration(c.Reliability.MinHeartbeatIntervalMillis) * time.Millisecond
}

// MinAckNackInterval returns the configured minimum AckNack interval
// as a time.Duration.
func (c Config) MinAckNackInterval() time.Duration {
	return time.Duration(c.Reliability.MinAckNackIntervalMillis) * time.Millisecond
}
