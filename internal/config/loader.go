package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/sausalign/internal/scoring"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Lexicon
	if !cfg.Lexicon.Format.IsValid() {
		errs = append(errs, fmt.Errorf("lexicon.format %q is invalid; valid values: cmu", cfg.Lexicon.Format))
	}
	if !cfg.Lexicon.NormalizeCase.IsValid() {
		errs = append(errs, fmt.Errorf("lexicon.normalize_case %q is invalid; valid values: upper, lower or empty", cfg.Lexicon.NormalizeCase))
	}
	if cfg.Lexicon.Path == "" && isPhonemeStrategy(cfg.Alignment.Strategy) {
		slog.Warn("lexicon.path is empty; phoneme strategies will compare spellings only",
			"strategy", cfg.Alignment.Strategy,
		)
	}

	// Alignment
	if !slices.Contains(scoring.Builtin, cfg.Alignment.Strategy) {
		errs = append(errs, fmt.Errorf("alignment.strategy %q is invalid; valid values: %s", cfg.Alignment.Strategy, builtinNames()))
	}
	if !validCost(cfg.Alignment.InsertionCost) {
		errs = append(errs, fmt.Errorf("alignment.insertion_cost %v must be a finite, non-negative number", cfg.Alignment.InsertionCost))
	}
	if !validCost(cfg.Alignment.DeletionCost) {
		errs = append(errs, fmt.Errorf("alignment.deletion_cost %v must be a finite, non-negative number", cfg.Alignment.DeletionCost))
	}
	for i, s := range cfg.Alignment.NullSymbols {
		if strings.TrimSpace(s) == "" || strings.ContainsAny(s, " \t[]") {
			errs = append(errs, fmt.Errorf("alignment.null_symbols[%d] %q must be a single token without brackets", i, s))
		}
	}

	// Batch
	if cfg.Batch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("batch.workers %d must be positive", cfg.Batch.Workers))
	}

	// Store
	if !cfg.Store.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: sqlite, postgres or empty", cfg.Store.Driver))
	} else if cfg.Store.Driver != StoreNone && cfg.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required when store.driver is %q", cfg.Store.Driver))
	}

	return errors.Join(errs...)
}

func validCost(c float64) bool {
	return c >= 0 && !math.IsInf(c, 1)
}

func isPhonemeStrategy(s scoring.Strategy) bool {
	return s == scoring.WeightedPhoneme || s == scoring.MeanPhoneme
}

func builtinNames() string {
	names := make([]string, len(scoring.Builtin))
	for i, s := range scoring.Builtin {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
