// Package config provides the configuration schema, loader, and file watcher
// for the callbridge server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/callbridge-io/callbridge/pkg/audio"
)

// LogLevel controls log verbosity for the callbridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML values like "5s" or "250ms" decode
// directly into config fields.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler using [time.ParseDuration] syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a standard [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for callbridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sink     SinkConfig     `yaml:"sink"`
	Playback PlaybackConfig `yaml:"playback"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig holds network and logging settings for the callbridge server.
type ServerConfig struct {
	// ControlAddr is the TCP address the line-based command listener binds
	// to (e.g., "127.0.0.1:9090").
	ControlAddr string `yaml:"control_addr"`

	// HTTPAddr is the TCP address serving /metrics, /healthz, and /readyz.
	HTTPAddr string `yaml:"http_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the HTTP server. When nil, it runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// SinkConfig holds defaults applied to every outbound sink connection.
type SinkConfig struct {
	// DialTimeout bounds the WebSocket handshake with a sink.
	// Zero means the built-in default of 5 seconds.
	DialTimeout Duration `yaml:"dial_timeout"`

	// AuthToken, when non-empty, is sent as a Bearer token in the
	// Authorization header of every sink handshake.
	AuthToken string `yaml:"auth_token"`

	// Headers holds additional HTTP headers attached to the sink handshake,
	// e.g. routing hints for a sink load balancer.
	Headers map[string]string `yaml:"headers"`
}

// PlaybackConfig tunes the per-call playback buffer.
type PlaybackConfig struct {
	// CapacityQuanta is the playback buffer size in 20ms quanta.
	// Zero means the built-in default.
	CapacityQuanta int `yaml:"capacity_quanta"`
}

// LimitsConfig bounds operator-supplied payloads.
type LimitsConfig struct {
	// MetadataBytes caps the length of metadata and text arguments accepted
	// on the control connection. Zero means the built-in default of 8 KiB.
	MetadataBytes int `yaml:"metadata_bytes"`
}

// Default values applied by [ApplyDefaults].
const (
	DefaultControlAddr    = "127.0.0.1:9090"
	DefaultHTTPAddr       = ":8080"
	DefaultDialTimeout    = 5 * time.Second
	DefaultCapacityQuanta = 50 // one second of audio
)

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ControlAddr == "" {
		cfg.Server.ControlAddr = DefaultControlAddr
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Sink.DialTimeout == 0 {
		cfg.Sink.DialTimeout = Duration(DefaultDialTimeout)
	}
	if cfg.Playback.CapacityQuanta == 0 {
		cfg.Playback.CapacityQuanta = DefaultCapacityQuanta
	}
}

// PlaybackCapacityBytes returns the playback buffer capacity in bytes.
func (c PlaybackConfig) PlaybackCapacityBytes() int {
	return c.CapacityQuanta * audio.QuantumBytes
}
