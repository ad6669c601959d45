package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"respstream/internal/adapter/journal"
	"respstream/internal/adapter/llm"
	"respstream/internal/domain"
	"respstream/internal/infra/config"
	"respstream/internal/infra/logger"
	"respstream/internal/infra/tracer"
	"respstream/internal/usecase/eventbus"
)

// app holds the runtime every subcommand shares.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	bus    *eventbus.Bus

	closers []func() error
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".respstream", "config.yaml")
}

// newApp loads config and starts logging, tracing and the event bus.
func newApp(ctx context.Context, g *globalFlags) (*app, error) {
	path := g.configPath
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	switch {
	case g.verbose:
		cfg.Logger.Level = "debug"
	case g.logLevel != "":
		cfg.Logger.Level = g.logLevel
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, closeLog)

	shutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, errors.Join(err, a.close())
	}
	a.closers = append(a.closers, func() error { return shutdown(context.Background()) })

	a.bus = eventbus.New(log)
	a.bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		log.Debug("stream bus event", "type", string(e.Type), "session_id", e.SessionID, "bytes", len(e.Payload))
	})
	a.closers = append(a.closers, func() error { a.bus.Close(); return nil })

	log.Debug("config loaded", "path", path, "providers", len(cfg.LLM.Providers))
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openJournal opens the configured journal and registers it for closing.
func (a *app) openJournal() (*journal.SQLiteJournal, error) {
	j, err := journal.NewSQLiteJournal(a.cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, j.Close)
	return j, nil
}

// registry builds the provider registry. With no providers configured the
// default provider is created with stock settings, so an API key from the
// environment is enough to get started.
func (a *app) registry(opts ...llm.ProviderOption) (*llm.Registry, error) {
	if len(a.cfg.LLM.Providers) == 0 {
		a.cfg.LLM.Providers = []config.ProviderConfig{{
			Name: a.cfg.LLM.DefaultProvider,
			Type: "openai",
		}}
		config.ApplyEnvOverrides(a.cfg)
	}
	r, err := llm.NewRegistryFromConfig(a.cfg, a.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	return r, nil
}
