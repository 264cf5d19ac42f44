package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/perpscan/perpscan/internal/arb"
	"github.com/perpscan/perpscan/internal/cache"
	"github.com/perpscan/perpscan/internal/collector"
	"github.com/perpscan/perpscan/internal/config"
	"github.com/perpscan/perpscan/internal/ma"
	"github.com/perpscan/perpscan/internal/metrics"
	"github.com/perpscan/perpscan/internal/rollup"
	"github.com/perpscan/perpscan/internal/sched"
	"github.com/perpscan/perpscan/internal/store"
	"github.com/perpscan/perpscan/internal/unified"
)

// app bundles the wired tracker components shared by the subcommands.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	stores *store.Stores

	snapshots *store.SnapshotRepo
	status    *store.StatusRepo
	rollups   *store.RollupRepo
	markets   *store.MarketsRepo
	unified   *store.UnifiedRepo
	mas       *store.MARepo
	arbs      *store.ArbRepo

	metrics  *metrics.Registry
	cache    cache.Cache
	pipeline *rollup.Pipeline
	syncer   *unified.Syncer
	maEng    *ma.Engine
	arbEng   *arb.Engine
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.Log.Level, cfg.Log.Pretty)

	stores, err := store.OpenStores(cfg.Primary, cfg.Unified)
	if err != nil {
		return nil, err
	}
	if err := stores.Migrate(ctx); err != nil {
		stores.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	reg := metrics.NewRegistry()
	a := &app{
		cfg:    cfg,
		log:    log,
		stores: stores,

		snapshots: store.NewSnapshotRepo(stores.Primary, stores.Timeout),
		status:    store.NewStatusRepo(stores.Primary, stores.Timeout),
		rollups:   store.NewRollupRepo(stores.Primary, stores.Timeout),
		markets:   store.NewMarketsRepo(stores.Primary, stores.Timeout),
		unified:   store.NewUnifiedRepo(stores.Unified, stores.Timeout),
		mas:       store.NewMARepo(stores.Unified, stores.Timeout),
		arbs:      store.NewArbRepo(stores.Unified, stores.Timeout),

		metrics: reg,
		cache:   cache.NewAuto(),
	}

	a.pipeline = rollup.New(a.rollups, reg, log)
	a.syncer = unified.NewSyncer(a.rollups, a.unified, reg, log)
	a.maEng = ma.NewEngine(a.unified, a.mas, reg, log)
	a.arbEng = arb.NewEngine(a.unified, a.mas, a.arbs, reg, log)
	return a, nil
}

func (a *app) close() {
	if err := a.stores.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close stores")
	}
}

func (a *app) newManager(ctx context.Context) (*collector.Manager, error) {
	factories, err := collector.Factories(collector.Deps{
		Snapshots: a.snapshots,
		Status:    a.status,
		Metrics:   a.metrics,
		Log:       a.log,
	})
	if err != nil {
		return nil, err
	}
	return collector.NewManager(ctx, factories, a.log), nil
}

func (a *app) jobs(mgr *collector.Manager) []sched.Job {
	return sched.Jobs(a.pipeline, a.syncer, a.maEng, a.arbEng, mgr)
}
