package app

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/batch"
	"github.com/MrWong99/sausalign/internal/config"
	"github.com/MrWong99/sausalign/internal/kaldi"
	"github.com/MrWong99/sausalign/internal/observe"
	"github.com/MrWong99/sausalign/internal/phonetic"
	"github.com/MrWong99/sausalign/internal/scoring"
	"github.com/MrWong99/sausalign/internal/server"
	"github.com/MrWong99/sausalign/pkg/lexicon"
	"github.com/MrWong99/sausalign/pkg/sausage"
)

// Pipeline is an immutable snapshot of everything needed to turn Kaldi text
// into alignments for one configuration: the loaded lexicon, the default
// engine and the parse and summary settings. [App] swaps whole pipelines on
// config reload.
type Pipeline struct {
	cfg        *config.Config
	registry   *scoring.Registry
	deps       scoring.Deps
	lexicon    *lexicon.Dict
	engine     *align.Engine
	engineOpts []align.Option
	metrics    *observe.Metrics
	logger     *slog.Logger
}

var _ server.Backend = (*Pipeline)(nil)

// Build loads the lexicon named by cfg and builds the default engine.
func Build(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	return build(cfg, newOptions(opts), nil)
}

// build is [Build] with an already loaded lexicon to reuse; lex is loaded
// from cfg when nil.
func build(cfg *config.Config, o options, lex *lexicon.Dict) (*Pipeline, error) {
	if lex == nil && cfg.Lexicon.Path != "" {
		d, err := lexicon.LoadFile(cfg.Lexicon.Path, lexicon.WithCase(cfg.Lexicon.NormalizeCase))
		if err != nil {
			return nil, fmt.Errorf("app: load lexicon: %w", err)
		}
		o.logger.Info("lexicon loaded", "path", cfg.Lexicon.Path, "words", d.Len())
		lex = d
	}

	p := &Pipeline{
		cfg:      cfg,
		registry: o.registry,
		lexicon:  lex,
		metrics:  o.metrics,
		logger:   o.logger,
	}
	if lex != nil {
		p.deps.Lexicon = lex
	}
	var sinks []phonetic.MissSink
	if cfg.Lexicon.WarnOnMiss {
		sinks = append(sinks, phonetic.LogMisses(o.logger))
	}
	if o.metrics != nil {
		sinks = append(sinks, o.metrics.LexiconMissSink())
	}
	if len(sinks) > 0 {
		p.deps.OnMiss = phonetic.Tee(sinks...)
	}

	p.engineOpts = []align.Option{
		align.WithInsertionCost(cfg.Alignment.InsertionCost),
		align.WithDeletionCost(cfg.Alignment.DeletionCost),
	}
	if o.metrics != nil {
		p.engineOpts = append(p.engineOpts, align.WithMetrics(o.metrics))
	}

	s, err := p.registry.Parse(string(cfg.Alignment.Strategy))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if p.engine, err = align.NewWithStrategy(p.registry, s, p.deps, p.engineOpts...); err != nil {
		return nil, fmt.Errorf("app: build engine: %w", err)
	}
	return p, nil
}

// Config returns the configuration the pipeline was built from.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// Lexicon returns the loaded dictionary, or nil when none is configured.
func (p *Pipeline) Lexicon() *lexicon.Dict { return p.lexicon }

// Engine returns the default engine for "" or its own strategy, and a fresh
// engine with the same costs and lexicon for any other registered strategy.
func (p *Pipeline) Engine(strategy string) (*align.Engine, error) {
	if strategy == "" || strategy == p.engine.Strategy() {
		return p.engine, nil
	}
	s, err := p.registry.Parse(strategy)
	if err != nil {
		return nil, err
	}
	return align.NewWithStrategy(p.registry, s, p.deps, p.engineOpts...)
}

// Strategies lists the registered strategies.
func (p *Pipeline) Strategies() []scoring.Strategy { return p.registry.Strategies() }

// Settings derives request handling from the configuration. Null symbols are
// normalised with the configured case so they match parsed words.
func (p *Pipeline) Settings() server.Settings {
	a := p.cfg.Alignment
	cs := p.cfg.Lexicon.NormalizeCase

	fillers := make([]string, len(a.NullSymbols))
	for i, s := range a.NullSymbols {
		fillers[i] = cs.Apply(s)
	}

	set := server.Settings{
		Parse:   []kaldi.Option{kaldi.WithNullSymbols(a.NullSymbols...), kaldi.WithCase(cs)},
		Case:    cs,
		Summary: []align.SummaryOption{align.IgnoreFillers(fillers...)},
		Gap:     a.GapSymbol,
		Workers: p.cfg.Batch.Workers,
	}
	if a.SortEdges {
		set.Parse = append(set.Parse, kaldi.WithSortedEdges())
		set.Slot = []sausage.SlotOption{sausage.SortByWeight()}
	}
	return set
}

// Runner returns a batch runner over the default engine.
func (p *Pipeline) Runner() *batch.Runner {
	set := p.Settings()
	return batch.New(p.engine,
		batch.WithWorkers(set.Workers),
		batch.WithMetrics(p.metrics),
		batch.WithLogger(p.logger),
		batch.WithSummaryOptions(set.Summary...),
	)
}
