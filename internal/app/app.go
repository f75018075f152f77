// Package app wires the sausalign subsystems into the long-running API
// server used by `sausalign serve`.
//
// New builds telemetry, the alignment [Pipeline], the run store and the HTTP
// API. Run listens and serves until its context is cancelled, reloading the
// config file when one is being watched. Shutdown tears everything down in
// reverse order.
//
// Tests inject collaborators through functional options (WithStore,
// WithMetrics, ...). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/config"
	"github.com/MrWong99/sausalign/internal/health"
	"github.com/MrWong99/sausalign/internal/observe"
	"github.com/MrWong99/sausalign/internal/resilience"
	"github.com/MrWong99/sausalign/internal/scoring"
	"github.com/MrWong99/sausalign/internal/server"
	"github.com/MrWong99/sausalign/internal/store"
	"github.com/MrWong99/sausalign/pkg/lexicon"
)

type options struct {
	logger        *slog.Logger
	level         *slog.LevelVar
	metrics       *observe.Metrics
	registry      *scoring.Registry
	store         store.Store
	configPath    string
	watchInterval time.Duration
	version       string
}

func newOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = scoring.NewDefaultRegistry()
	}
	return o
}

// Option is a functional option for [New] and [Build].
type Option func(*options)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLevel lets config reloads change the log level through lv.
func WithLevel(lv *slog.LevelVar) Option {
	return func(o *options) { o.level = lv }
}

// WithMetrics injects metric instruments instead of initialising the OTel
// SDK from the config.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRegistry replaces the built-in strategy registry.
func WithRegistry(r *scoring.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithStore injects a run store instead of opening one from the config. An
// injected store is not closed by [App.Shutdown].
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithConfigWatch makes [App.Run] poll path every interval and apply
// hot-reloadable changes.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(o *options) {
		o.configPath = path
		o.watchInterval = interval
	}
}

// WithVersion sets the version reported by telemetry and /healthz.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// App owns all subsystem lifetimes of the API server.
type App struct {
	cfg      *config.Config
	opts     options
	pipeline atomic.Pointer[Pipeline]
	store    store.Store
	api      *server.Server
	httpSrv  *http.Server
	ready    chan struct{}

	mu       sync.Mutex
	listener net.Listener

	// closers run in reverse order during Shutdown.
	closers  []func(context.Context) error
	stopOnce sync.Once
}

var _ server.Backend = (*App)(nil)

// New creates an App from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		opts:  newOptions(opts),
		ready: make(chan struct{}),
	}

	// Telemetry
	var metricsHandler http.Handler
	if a.opts.metrics == nil {
		tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: a.opts.version,
			Metrics:        cfg.Telemetry.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.opts.metrics = tel.Metrics
		metricsHandler = tel.Handler()
		a.closers = append(a.closers, tel.Shutdown)
	}

	// Alignment pipeline
	p, err := build(cfg, a.opts, nil)
	if err != nil {
		a.closeAll(ctx)
		return nil, err
	}
	a.pipeline.Store(p)

	// Run store
	st := a.opts.store
	if st == nil {
		if st, err = OpenStore(ctx, cfg.Store); err != nil {
			a.closeAll(ctx)
			return nil, err
		}
		if st != nil {
			a.closers = append(a.closers, func(context.Context) error { return st.Close() })
		}
	}
	if st != nil {
		a.store = store.WithBreaker(store.WithMetrics(st, a.opts.metrics), resilience.NewCircuitBreaker(resilience.Config{
			Name:      "store",
			IsFailure: store.IsFailure,
			Logger:    a.opts.logger,
		}))
	}

	// HTTP API
	apiOpts := []server.Option{
		server.WithLogger(a.opts.logger),
		server.WithMetrics(a.opts.metrics),
		server.WithHealth(health.New(a.checkers(), health.WithVersion(a.opts.version))),
		server.WithMetricsHandler(metricsHandler),
	}
	if a.store != nil {
		apiOpts = append(apiOpts, server.WithRuns(a.store))
	}
	a.api = server.New(a, apiOpts...)
	a.httpSrv = &http.Server{
		Handler:           a.api,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.opts.logger.Handler(), slog.LevelWarn),
	}

	a.opts.logger.Info("app initialised",
		"strategy", p.engine.Strategy(),
		"lexicon_words", lexiconLen(p.Lexicon()),
		"store", string(cfg.Store.Driver),
	)
	return a, nil
}

func (a *App) checkers() []health.Checker {
	var cs []health.Checker
	if a.cfg.Lexicon.Path != "" {
		cs = append(cs, health.Checker{Name: "lexicon", Check: func(context.Context) error {
			if lexiconLen(a.Pipeline().Lexicon()) == 0 {
				return errors.New("lexicon is empty")
			}
			return nil
		}})
	}
	if a.store != nil {
		cs = append(cs, health.Ping("store", a.store))
	}
	return cs
}

func lexiconLen(d *lexicon.Dict) int {
	if d == nil {
		return 0
	}
	return d.Len()
}

// Pipeline returns the current alignment pipeline.
func (a *App) Pipeline() *Pipeline { return a.pipeline.Load() }

// Engine implements [server.Backend] on the current pipeline.
func (a *App) Engine(strategy string) (*align.Engine, error) { return a.Pipeline().Engine(strategy) }

// Strategies implements [server.Backend].
func (a *App) Strategies() []scoring.Strategy { return a.Pipeline().Strategies() }

// Settings implements [server.Backend] on the current pipeline.
func (a *App) Settings() server.Settings { return a.Pipeline().Settings() }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.api }

// Ready is closed once [App.Run] is listening.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Addr returns the listen address, or nil before [App.Run] has started
// listening.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Reload applies newCfg. Log level and alignment/lexicon changes take effect
// immediately; a pipeline that fails to build is rejected and the previous
// one stays active. Changes to keys that need a restart are only logged.
func (a *App) Reload(newCfg *config.Config) error {
	cur := a.Pipeline()
	diff := config.Diff(cur.Config(), newCfg)
	log := a.opts.logger

	if diff.LogLevelChanged && a.opts.level != nil {
		a.opts.level.Set(diff.NewLogLevel.Slog())
		log.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.HotReloadable() {
		var lex *lexicon.Dict
		if !diff.LexiconChanged {
			lex = cur.Lexicon()
		}
		p, err := build(newCfg, a.opts, lex)
		if err != nil {
			log.Error("config reload rejected, keeping previous alignment settings", "err", err)
			return err
		}
		a.pipeline.Store(p)
		if diff.AlignmentChanged || diff.LexiconChanged {
			log.Info("alignment pipeline reloaded",
				"strategy", p.engine.Strategy(),
				"lexicon_words", lexiconLen(p.Lexicon()),
			)
		}
	}
	if len(diff.RestartRequired) > 0 {
		log.Warn("config changes need a restart to take effect", "keys", diff.RestartRequired)
	}
	return nil
}

// Run listens on the configured address and serves the API until ctx is
// cancelled, in which case it returns ctx.Err(). With [WithConfigWatch] the
// config file is polled for as long as Run serves.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	if a.opts.configPath != "" {
		w, err := config.NewWatcher(a.opts.configPath, a.Reload,
			config.WithInterval(a.opts.watchInterval),
			config.WithWatcherLogger(a.opts.logger),
		)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("app: %w", err)
		}
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go w.Run(watchCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- a.httpSrv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.httpSrv.Serve(ln)
	}()

	a.opts.logger.Info("api listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	close(a.ready)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown stops the HTTP server and every owned subsystem. It respects the context deadline: if ctx expires, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.opts.logger.Info("shutting down", "closers", len(a.closers))

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			a.opts.logger.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}
		if err := a.closeAll(ctx); err != nil {
			shutdownErr = err
			return
		}
		a.opts.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs closers in reverse order. It stops early and returns the
// context error when ctx is done.
func (a *App) closeAll(ctx context.Context) error {
	for i, closer := range slices.Backward(a.closers) {
		if err := ctx.Err(); err != nil {
			a.opts.logger.Warn("shutdown deadline exceeded", "remaining", i+1)
			return err
		}
		if err := closer(ctx); err != nil {
			a.opts.logger.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
	return nil
}
