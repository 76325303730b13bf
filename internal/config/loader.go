package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/callbridge-io/callbridge/pkg/audio"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ControlAddr == "" {
		errs = append(errs, errors.New("server.control_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	if cfg.Sink.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("sink.dial_timeout %s must not be negative", cfg.Sink.DialTimeout.Std()))
	}

	if cfg.Playback.CapacityQuanta < 0 {
		errs = append(errs, fmt.Errorf("playback.capacity_quanta %d must not be negative", cfg.Playback.CapacityQuanta))
	}
	if n := cfg.Playback.CapacityQuanta; n > 0 && n < audio.WarmupQuanta {
		errs = append(errs, fmt.Errorf("playback.capacity_quanta %d is below the warmup threshold of %d quanta; buffered audio could never start playing", n, audio.WarmupQuanta))
	}

	if cfg.Limits.MetadataBytes < 0 {
		errs = append(errs, fmt.Errorf("limits.metadata_bytes %d must not be negative", cfg.Limits.MetadataBytes))
	}

	return errors.Join(errs...)
}
