package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/MrWong99/sausalign/internal/app"
	"github.com/MrWong99/sausalign/internal/config"
	"github.com/MrWong99/sausalign/internal/report"
	"github.com/MrWong99/sausalign/internal/scoring"
)

// commandContext lazily loads the configuration shared by all subcommands.
type commandContext struct {
	configFlag *string

	level  *slog.LevelVar
	logger *slog.Logger

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	level := new(slog.LevelVar)
	return &commandContext{
		configFlag: configFlag,
		level:      level,
		logger:     newLogger(os.Stderr, level),
	}
}

// newLogger returns a text logger whose level follows lv, so config reloads
// can change verbosity.
func newLogger(w io.Writer, lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// ensureConfig loads the --config file, or the defaults when none is given,
// and applies its log level.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := c.configPath()
		if path == "" {
			c.config = config.Default()
		} else if c.config, c.configErr = config.Load(path); c.configErr != nil {
			return
		}
		c.level.Set(c.config.Server.LogLevel.Slog())
		slog.SetDefault(c.logger)
	})
	return c.config, c.configErr
}

// pipeline builds an alignment pipeline from the config, overriding the
// strategy when one is given.
func (c *commandContext) pipeline(strategy string) (*app.Pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if strategy != "" {
		override := *cfg
		override.Alignment.Strategy = scoring.Strategy(strategy)
		cfg = &override
	}
	return app.Build(cfg, app.WithLogger(c.logger))
}

// outputFormat resolves the --format flag, picking a table for terminals
// and plain rows otherwise.
func outputFormat(flag string, w io.Writer) (report.Format, error) {
	if flag == "" {
		return report.DefaultFormat(w), nil
	}
	f := report.Format(flag)
	if !f.IsValid() {
		return "", fmt.Errorf("unknown format %q (valid: table, plain, json)", flag)
	}
	return f, nil
}
