package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/predictrack/predictrack-go/internal/balance"
	"github.com/predictrack/predictrack-go/internal/bus"
	"github.com/predictrack/predictrack-go/internal/config"
	"github.com/predictrack/predictrack-go/internal/db"
	"github.com/predictrack/predictrack-go/internal/handler"
	"github.com/predictrack/predictrack-go/internal/hybrid"
	"github.com/predictrack/predictrack-go/internal/ledger"
	"github.com/predictrack/predictrack-go/internal/middleware"
	"github.com/predictrack/predictrack-go/internal/model"
	"github.com/predictrack/predictrack-go/internal/router"
	"github.com/predictrack/predictrack-go/internal/service"
	"github.com/predictrack/predictrack-go/internal/store"
)

func main() {
	cfg := config.Load()
	middleware.InitLogger(cfg.LogLevel, "predictrack-api")
	log := middleware.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Remote store and balance ledger are optional: without a database the
	// service runs local-only and the resolver marks every write OriginLocal.
	var (
		pool     *pgxpool.Pool
		remote   store.Store
		balances balance.Ledger
	)
	if cfg.DatabaseURL != "" {
		p, err := db.NewPool(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Warn().Err(err).Msg("remote ledger unreachable, running local-only")
		} else {
			pool = p
			defer pool.Close()

			remoteStore := store.NewRemoteStore(pool)
			if err := remoteStore.EnsureSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("store schema setup failed")
			}
			remote = remoteStore

			pgLedger := balance.NewPostgresLedger(pool)
			if err := pgLedger.EnsureSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("balance schema setup failed")
			}
			balances = pgLedger
		}
	} else {
		log.Info().Msg("no database configured, running local-only")
	}
	if balances == nil {
		balances = balance.NewMemoryLedger()
	}

	local := store.NewLocalStore()
	resolver := hybrid.NewResolver(remote, local, cfg.RemoteTimeout, log)

	worker := hybrid.NewMergeWorker(resolver, cfg.MergeInterval)
	go worker.Start(ctx)

	cache := service.NewCache(cfg.RedisURL, log)
	defer cache.Close()

	eventBus := bus.NewWithBuffer(log, cfg.BusBuffer)

	// Bridge events to the Redis stream for external consumers.
	bridgeEvents, cancelBridge := eventBus.Subscribe()
	defer cancelBridge()
	go bus.NewRedisBridge(cache.Client(), log).Forward(ctx, bridgeEvents)

	// In-process consumer: drop the cached poll list whenever anything
	// changes, in case a mutation path missed an invalidation.
	listEvents, cancelList := eventBus.Subscribe()
	defer cancelList()
	go invalidateListOnEvents(ctx, cache, listEvents, log)

	engine := ledger.NewEngine(resolver, balances, eventBus, cache, log)
	polls := service.NewPollService(resolver, cache, log)

	handler.InitMetrics(pool,
		func() float64 { return float64(resolver.FallbackCount()) },
		func() float64 { return float64(eventBus.Dropped()) },
	)
	cache.SetCounters(handler.Metrics.CacheHits.Inc, handler.Metrics.CacheMisses.Inc)

	app := fiber.New(fiber.Config{
		AppName:      "PredicTrack API",
		ServerHeader: "PredicTrack",
	})

	router.Setup(app, &router.Handlers{
		Poll:   handler.NewPollHandler(engine, polls),
		Vote:   handler.NewVoteHandler(engine),
		Stake:  handler.NewStakeHandler(engine),
		Sync:   handler.NewSyncHandler(resolver),
		Health: handler.NewHealthHandler(pool, cache.Client(), resolver),
	}, cfg.CORSOrigins)

	log.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Environment).
		Bool("remote", remote != nil).
		Msg("predictrack backend starting")

	if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}

	log.Info().Msg("shutdown complete")
}

func invalidateListOnEvents(ctx context.Context, cache *service.Cache, events <-chan model.Event, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := cache.InvalidatePollList(ctx); err != nil {
				log.Warn().Err(err).Str("event", string(evt.Type)).Msg("poll list invalidation failed")
			}
		}
	}
}
