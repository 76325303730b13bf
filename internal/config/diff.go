package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; listener
// addresses and TLS settings require a restart and are ignored here.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SinkChanged is true when dial timeout, auth token, or handshake
	// headers changed. Applies to sessions started after the reload;
	// established sink connections are untouched.
	SinkChanged bool

	// PlaybackChanged is true when the playback buffer capacity changed.
	// Applies to sessions started after the reload.
	PlaybackChanged bool

	// LimitsChanged is true when command payload limits changed.
	LimitsChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.SinkChanged || d.PlaybackChanged || d.LimitsChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Sink.DialTimeout != new.Sink.DialTimeout ||
		old.Sink.AuthToken != new.Sink.AuthToken ||
		!maps.Equal(old.Sink.Headers, new.Sink.Headers) {
		d.SinkChanged = true
	}

	if old.Playback.CapacityQuanta != new.Playback.CapacityQuanta {
		d.PlaybackChanged = true
	}

	if old.Limits.MetadataBytes != new.Limits.MetadataBytes {
		d.LimitsChanged = true
	}

	return d
}
