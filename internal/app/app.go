// Package app initializes and holds long-lived application services.
package app

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/config"
	"github.com/metisreader/metis/internal/document"
	"github.com/metisreader/metis/internal/engine"
	"github.com/metisreader/metis/internal/fetch"
	collyfetch "github.com/metisreader/metis/internal/fetch/colly"
	"github.com/metisreader/metis/internal/fetch/headless"
	"github.com/metisreader/metis/internal/fetch/readerproxy"
	"github.com/metisreader/metis/internal/inbox"
	"github.com/metisreader/metis/internal/logging"
	"github.com/metisreader/metis/internal/metrics"
	"github.com/metisreader/metis/internal/normalize"
	"github.com/metisreader/metis/internal/reader"
	"github.com/metisreader/metis/internal/store"
	"github.com/metisreader/metis/internal/transform"
)

// App is the dependency container built once at startup.
type App struct {
	Cfg      config.Config
	Logger   *zap.Logger
	Engine   *engine.Engine
	Index    *store.Store
	headless *headless.Strategy
}

// New builds all services from configuration, failing fast if any
// critical service cannot be initialized.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	clock := reader.SystemClock{}
	index, err := store.Open(cfg.Paths.Index, clock, logger)
	if err != nil {
		return nil, err
	}

	writer, err := document.NewWriter(cfg.Paths.Vault, logger)
	if err != nil {
		index.Close()
		return nil, err
	}

	a := &App{Cfg: cfg, Logger: logger, Index: index}

	strategies, err := a.buildStrategies(cfg)
	if err != nil {
		index.Close()
		return nil, err
	}
	cascade := fetch.New(strategies, fetch.Config{
		StrategyTimeout: cfg.StrategyTimeout(),
		PerDomainRPS:    cfg.Fetch.PerDomainRPS,
	}, logger)

	images := normalize.NewImageLocalizer(
		&http.Client{Timeout: cfg.FetchTimeout()},
		cfg.Paths.Media, cfg.Fetch.UserAgent, logger)
	normalizer := normalize.New(images, logger)

	transformer, err := buildTransformer(cfg, logger)
	if err != nil {
		index.Close()
		return nil, err
	}

	box := inbox.New(cfg.Paths.Inbox, logger)
	a.Engine = engine.New(cascade, normalizer, transformer, writer, index, box,
		clock, engine.Config{Concurrency: cfg.Sync.Concurrency}, logger)
	return a, nil
}

func (a *App) buildStrategies(cfg config.Config) ([]reader.Strategy, error) {
	strategies := []reader.Strategy{
		collyfetch.New(collyfetch.Config{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		}),
	}
	if cfg.Proxy.Enabled {
		strategies = append(strategies, readerproxy.New(readerproxy.Config{
			Endpoint: cfg.Proxy.Endpoint,
			APIKey:   cfg.Proxy.APIKey,
		}, nil))
	}
	if cfg.Headless.Enabled {
		jar := headless.NewCookieJar(cfg.Paths.Cookies)
		strat, err := headless.New(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.StrategyTimeout(),
		}, jar)
		if err != nil {
			return nil, fmt.Errorf("init headless strategy: %w", err)
		}
		a.headless = strat
		strategies = append(strategies, strat)
	}
	return strategies, nil
}

func buildTransformer(cfg config.Config, logger *zap.Logger) (engine.Transformer, error) {
	if !cfg.Transform.Translate && !cfg.Transform.Summarize {
		return nil, nil
	}
	provider, err := transform.NewProvider(cfg.Transform.Provider, transform.ProviderConfig{
		Model:       cfg.Transform.Model,
		APIKey:      cfg.Transform.APIKey,
		BaseURL:     cfg.Transform.BaseURL,
		MaxTokens:   cfg.Transform.MaxTokens,
		Temperature: cfg.Transform.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return transform.NewPipeline(provider, transform.Options{
		Translate:      cfg.Transform.Translate,
		TargetLanguage: cfg.Transform.TargetLanguage,
		Summarize:      cfg.Transform.Summarize,
		ChunkRunes:     cfg.Transform.ChunkRunes,
	}, logger), nil
}

// Close releases all held resources.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.Index != nil {
		a.Index.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
