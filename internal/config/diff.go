package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only log level and
// session tuning can be hot-reloaded; everything else requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true when queue size, idle timeout, or strategy
	// changed. Strategy changes apply to new sessions only.
	SessionChanged bool
	NewSession     SessionConfig

	// RestartRequired is true when providers, transcript, audio, or server
	// networking changed. These are bound at startup.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session != new.Session {
		d.SessionChanged = true
		d.NewSession = new.Session
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!reflect.DeepEqual(old.Server.TLS, new.Server.TLS) ||
		!reflect.DeepEqual(old.Providers, new.Providers) ||
		old.Audio != new.Audio ||
		old.Transcript != new.Transcript {
		d.RestartRequired = true
	}

	return d
}
