package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/vprism/vprism/internal/cache"
	"github.com/vprism/vprism/internal/config"
	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/metrics"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/provider"
	"github.com/vprism/vprism/internal/registry"
	"github.com/vprism/vprism/internal/router"
	"github.com/vprism/vprism/internal/service"
	"github.com/vprism/vprism/internal/store"
	"github.com/vprism/vprism/internal/symbols"
)

// app wires the whole data plane for one CLI invocation.
type app struct {
	cfg     config.AppConfig
	db      *store.DB
	mem     *cache.Memory
	reg     *registry.Registry
	rt      *router.Router
	svc     *service.Service
	points  *store.PointsStore
	promReg *prometheus.Registry
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath, flags.dbPath)
	if err != nil {
		return nil, errs.Validation("cli", err.Error(),
			map[string]any{"config": flags.configPath})
	}
	if flags.dbPath != defaultDBPath() {
		// An explicit --db beats the config file.
		cfg.Store.Path = flags.dbPath
	}

	db, err := store.Open(cfg.Store)
	if err != nil {
		return nil, errs.New(errs.CodeSystem, "cli", "cannot open embedded store", nil).WithCause(err)
	}
	ctx := context.Background()
	if err := store.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, errs.New(errs.CodeSystem, "cli", "schema bootstrap failed", nil).WithCause(err)
	}

	rules := symbols.DefaultRules()
	if cfg.Symbols.RulesFile != "" {
		rules, err = symbols.LoadRulesFile(cfg.Symbols.RulesFile)
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	engineOpts := []symbols.Option{symbols.WithSink(store.NewSymbolMapStore(db))}
	if cfg.Symbols.CacheSize > 0 {
		engineOpts = append(engineOpts, symbols.WithCacheSize(cfg.Symbols.CacheSize))
	}
	engine, err := symbols.NewEngine(rules, engineOpts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	points := store.NewPointsStore(db)

	reg := registry.New()
	native := provider.NewLocal("vprism_native", provider.Capability{
		Assets: []models.AssetType{
			models.AssetStock, models.AssetETF, models.AssetFund,
			models.AssetIndex, models.AssetBond,
		},
		Markets: []models.MarketType{
			models.MarketCN, models.MarketUS, models.MarketHK, models.MarketGlobal,
		},
		Timeframes: []models.Timeframe{
			models.Timeframe1d, models.Timeframe1w, models.Timeframe1M,
		},
		MaxSymbolsPerRequest: 500,
		SupportsHistorical:   true,
	}, points)
	var nativeSettings *registry.Settings
	if s, ok := cfg.Providers["vprism_native"]; ok {
		nativeSettings = &s
	}
	if err := reg.Register(native, nativeSettings); err != nil {
		db.Close()
		return nil, err
	}

	rt := router.New(reg, cfg.Router)

	mem := cache.NewMemory(cfg.Cache.MaxEntries)
	var l2 cache.Cache
	addr := cfg.Cache.Redis.Addr
	if env := os.Getenv("VPRISM_REDIS"); env != "" {
		addr = env
	}
	if addr != "" {
		r := cache.NewRedis(redis.NewClient(&redis.Options{Addr: addr}), cfg.Cache.Redis.KeyPrefix)
		if err := r.WaitHealthy(ctx); err != nil {
			log.Warn().Err(err).Str("addr", addr).Msg("redis unreachable, running memory-only")
		} else {
			l2 = r
		}
	}

	promReg := prometheus.NewRegistry()
	mset := metrics.New(promReg)

	svc := service.New(engine, reg, rt,
		service.WithCache(cache.NewLayered(mem, l2)),
		service.WithRepository(points),
		service.WithAdjustments(store.NewAdjustmentStore(db)),
		service.WithMetrics(mset),
	)

	return &app{
		cfg:     cfg,
		db:      db,
		mem:     mem,
		reg:     reg,
		rt:      rt,
		svc:     svc,
		points:  points,
		promReg: promReg,
	}, nil
}

func (a *app) close() {
	a.mem.Stop()
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("store close failed")
	}
}
