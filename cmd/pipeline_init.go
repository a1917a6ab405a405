package main

import (
	"context"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-metrics/internal/aggregate"
	"github.com/sells-group/edgar-metrics/internal/catalog"
	"github.com/sells-group/edgar-metrics/internal/config"
	"github.com/sells-group/edgar-metrics/internal/edgar"
	"github.com/sells-group/edgar-metrics/internal/engine"
	"github.com/sells-group/edgar-metrics/internal/monitoring"
	"github.com/sells-group/edgar-metrics/internal/pipeline"
	"github.com/sells-group/edgar-metrics/internal/store"
)

var (
	metricsOnce sync.Once
	metrics     *monitoring.Metrics
)

// processMetrics returns the instruments registered on the default
// Prometheus registry.
func processMetrics() *monitoring.Metrics {
	metricsOnce.Do(func() {
		metrics = monitoring.NewMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

// pipelineEnv holds everything a run needs. Client is nil in offline mode.
type pipelineEnv struct {
	Store    store.Store
	Client   *edgar.Client
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// envOptions selects optional parts of the environment.
type envOptions struct {
	FY      int
	Offline bool // no EDGAR client unless a user agent is configured
	NoStore bool
}

// initPipeline validates configuration and builds the store, EDGAR client,
// engine and pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, opts envOptions) (*pipelineEnv, error) {
	mode := "run"
	if opts.Offline {
		mode = "resolve"
	}
	if opts.FY != 0 {
		cfg.Engine.FY = opts.FY
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &pipelineEnv{}
	m := processMetrics()

	if !opts.Offline || strings.TrimSpace(cfg.SEC.UserAgent) != "" {
		client, err := edgar.NewFromConfig(cfg.SEC, cfg.Cache, m)
		if err != nil {
			return nil, err
		}
		env.Client = client
	}

	if !opts.NoStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	eng, err := newEngine(cfg.Engine)
	if err != nil {
		env.Close()
		return nil, err
	}

	var src pipeline.Source
	if env.Client != nil {
		src = env.Client
	}
	env.Pipeline = pipeline.New(src, eng, env.Store, m, pipeline.Options{
		FY:      cfg.Engine.FY,
		Workers: cfg.SEC.Workers,
		Aggregate: aggregate.Options{
			SectorScope: cfg.Output.IncludeSectorScope,
		},
	})

	zap.L().Debug("pipeline initialized",
		zap.Int("fy", cfg.Engine.FY),
		zap.Bool("edgar", env.Client != nil),
		zap.Bool("store", env.Store != nil),
	)
	return env, nil
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// newEngine builds the engine from configuration, merging the catalog
// overlay when one is configured.
func newEngine(ec config.EngineConfig) (*engine.Engine, error) {
	cat := catalog.Default()
	if cfg.Catalog.Overlay != "" {
		overlay, err := catalog.LoadFile(cfg.Catalog.Overlay)
		if err != nil {
			return nil, eris.Wrap(err, "load catalog overlay")
		}
		cat = cat.Merge(overlay)
		zap.L().Info("catalog overlay merged", zap.String("path", cfg.Catalog.Overlay))
	}

	return engine.New(cat, engine.Config{
		FY:          ec.FY,
		PreferUnit:  ec.PreferUnit,
		DurationTol: ec.DurationTolDays,
		InstantTol:  ec.InstantTolDays,
		Selection:   catalog.NewSelection(ec.Metrics, ec.SkipDerived),
	}), nil
}
