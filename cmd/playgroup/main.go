// Command playgroup runs the Playgroup API server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/justestif/playgroup/internal/aggregate"
	"github.com/justestif/playgroup/internal/cache"
	"github.com/justestif/playgroup/internal/config"
	"github.com/justestif/playgroup/internal/cycles"
	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/db/memdb"
	"github.com/justestif/playgroup/internal/ledger"
	"github.com/justestif/playgroup/internal/logging"
	"github.com/justestif/playgroup/internal/metadata"
	"github.com/justestif/playgroup/internal/metrics"
	"github.com/justestif/playgroup/internal/users"
	"github.com/justestif/playgroup/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Dev(), cfg.LogLevel)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	schedule, err := cfg.Schedule()
	if err != nil {
		return err
	}

	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.Register(reg)
		gatherer = reg
	}

	aggCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}

	cycleSvc := cycles.New(store,
		cycles.WithSchedule(schedule),
		cycles.WithLogger(logger),
	)
	if cfg.TransitionSweepInterval > 0 {
		sched, err := cycleSvc.StartSweeper(cfg.TransitionSweepInterval)
		if err != nil {
			return err
		}
		defer func() { _ = sched.Shutdown() }()
	}

	var provider metadata.Provider = metadata.Disabled{}
	if cfg.SpotifyEnabled() {
		provider = metadata.NewSpotify(cfg.SpotifyID, cfg.SpotifySecret)
	} else {
		logger.Warn().Msg("SPOTIFY_ID/SPOTIFY_SECRET not set; album lookups disabled")
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:       cfg.HTTPAddr,
		AdminToken: cfg.AdminToken,
		Logger:     logger,
		Gatherer:   gatherer,
		Cycles:     cycleSvc,
		Ledger: ledger.New(store, cycleSvc,
			ledger.WithSubmissionLimit(cfg.MaxSubmissionsPerUser),
			ledger.WithMinReviewLength(cfg.MinReviewLength),
			ledger.WithLogger(logger),
		),
		Aggregate: aggregate.New(store,
			aggregate.WithCache(aggCache, cfg.AggregateCacheTTL),
			aggregate.WithLogger(logger),
		),
		Users:    users.New(store, users.WithLogger(logger)),
		Metadata: provider,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}

// openStore connects the configured backend. The memory store keeps nothing
// across restarts.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (db.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return memdb.New(), func() {}, nil
	}

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, nil, err
	}
	logger.Info().Msg("database ready")
	return database, database.Close, nil
}

func openCache(ctx context.Context, cfg config.Config, logger zerolog.Logger) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(), nil
	}
	client, err := cache.Dial(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("aggregate cache on redis")
	return cache.NewRedis(client, "playgroup:"), nil
}
