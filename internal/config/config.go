// Package config provides the configuration schema, loader, validation, diff
// and file watcher for sausalign.
package config

import (
	"log/slog"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/scoring"
	"github.com/MrWong99/sausalign/pkg/lexicon"
)

// LogLevel controls log verbosity.
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

// Slog returns the matching [slog.Level]. Unknown and empty levels map to
// [slog.LevelInfo].
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LexiconFormat selects the pronunciation dictionary file format.
type LexiconFormat string

const (
	// LexiconCMU is the CMU pronouncing dictionary layout: "WORD  PH1 PH2 ...".
	LexiconCMU LexiconFormat = "cmu"
)

// IsValid reports whether f is a recognised lexicon format.
func (f LexiconFormat) IsValid() bool {
	return f == LexiconCMU
}

// StoreDriver selects the run persistence backend.
type StoreDriver string

const (
	// StoreNone disables persistence.
	StoreNone     StoreDriver = ""
	StoreSQLite   StoreDriver = "sqlite"
	StorePostgres StoreDriver = "postgres"
)

// IsValid reports whether d is a recognised store driver.
func (d StoreDriver) IsValid() bool {
	switch d {
	case StoreNone, StoreSQLite, StorePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader],
// which start from [Default] so omitted keys keep their default values.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Lexicon   LexiconConfig   `yaml:"lexicon"`
	Alignment AlignmentConfig `yaml:"alignment"`
	Batch     BatchConfig     `yaml:"batch"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the HTTP API.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// LexiconConfig locates the pronunciation dictionary.
type LexiconConfig struct {
	// Path is the dictionary file. Empty means no lexicon: every word falls
	// back to its spelling.
	Path string `yaml:"path"`

	Format LexiconFormat `yaml:"format"`

	// NormalizeCase is applied to dictionary entries, lookups, sausages and
	// transcripts alike ("", "upper" or "lower").
	NormalizeCase lexicon.Case `yaml:"normalize_case"`

	// WarnOnMiss logs every word that is not in the dictionary.
	WarnOnMiss bool `yaml:"warn_on_miss"`
}

// AlignmentConfig tunes the alignment engine.
type AlignmentConfig struct {
	// Strategy names the registered scoring strategy.
	Strategy scoring.Strategy `yaml:"strategy"`

	InsertionCost float64 `yaml:"insertion_cost"`
	DeletionCost  float64 `yaml:"deletion_cost"`

	// SortEdges orders each slot's alternatives by descending weight on input.
	SortEdges bool `yaml:"sort_edges"`

	// NullSymbols are dropped when they form a slot on their own, and are
	// not counted as errors when left unmatched.
	NullSymbols []string `yaml:"null_symbols"`

	// GapSymbol renders the unmatched side of an alignment column.
	GapSymbol string `yaml:"gap_symbol"`
}

// BatchConfig sizes batch runs.
type BatchConfig struct {
	Workers int `yaml:"workers"`
}

// StoreConfig selects where runs are persisted.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver"`

	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn"`
}

// TelemetryConfig controls OpenTelemetry setup.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// Metrics enables the Prometheus /metrics endpoint.
	Metrics bool `yaml:"metrics"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Lexicon: LexiconConfig{
			Format:        LexiconCMU,
			NormalizeCase: lexicon.CaseUpper,
			WarnOnMiss:    true,
		},
		Alignment: AlignmentConfig{
			Strategy:      scoring.Default,
			InsertionCost: align.DefaultInsertionCost,
			DeletionCost:  align.DefaultDeletionCost,
			NullSymbols:   []string{"<eps>"},
			GapSymbol:     "*",
		},
		Batch: BatchConfig{Workers: 4},
		Telemetry: TelemetryConfig{
			ServiceName: "sausalign",
			Metrics:     true,
		},
	}
}
