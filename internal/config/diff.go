package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AlignmentChanged is true if strategy, costs, edge sorting, null or gap
	// symbols changed. A new engine can be swapped in without restart.
	AlignmentChanged bool

	// LexiconChanged is true if the dictionary path, format or case
	// normalisation changed; the dictionary must be reloaded.
	LexiconChanged bool

	// RestartRequired lists keys that changed but only take effect after a
	// restart.
	RestartRequired []string
}

// HotReloadable reports whether d carries any change that can be applied
// in place.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.AlignmentChanged || d.LexiconChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !alignmentEqual(old.Alignment, new.Alignment) || old.Lexicon.WarnOnMiss != new.Lexicon.WarnOnMiss {
		d.AlignmentChanged = true
	}

	ol, nl := old.Lexicon, new.Lexicon
	if ol.Path != nl.Path || ol.Format != nl.Format || ol.NormalizeCase != nl.NormalizeCase {
		d.LexiconChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Batch != new.Batch {
		d.RestartRequired = append(d.RestartRequired, "batch.workers")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func alignmentEqual(a, b AlignmentConfig) bool {
	return a.Strategy == b.Strategy &&
		a.InsertionCost == b.InsertionCost &&
		a.DeletionCost == b.DeletionCost &&
		a.SortEdges == b.SortEdges &&
		a.GapSymbol == b.GapSymbol &&
		slices.Equal(a.NullSymbols, b.NullSymbols)
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
