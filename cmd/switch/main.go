package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"payswitch/internal/accesstoken"
	"payswitch/internal/config"
	"payswitch/internal/connector"
	"payswitch/internal/connector/base"
	"payswitch/internal/connector/dummy"
	"payswitch/internal/connector/mpesa"
	"payswitch/internal/core/reconcile"
	"payswitch/internal/events"
	"payswitch/internal/gateway"
	httpx "payswitch/internal/http"
	"payswitch/internal/http/handlers"
	"payswitch/internal/logging"
	"payswitch/internal/orchestrator"
	"payswitch/internal/store/postgres"
	"payswitch/internal/store/redisstore"
	"payswitch/internal/store/repositories"
	"payswitch/internal/telemetry"
	"payswitch/internal/ucs"
)

const dependencyWait = 30 * time.Second

func main() {
	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			config.Load,
			newPool,
			postgres.NewIntentRepository,
			postgres.NewMerchantConnectorAccountRepository,
			newRedis,
			newTokenManager,
			newSnapshots,
			newPublisher,
			newSink,
			newUnifiedClient,
			newBridge,
			newSelector,
			newRegistry,
			newOrchestrator,
		),
		fx.Invoke(
			setupLogging,
			setupTelemetry,
			runRefresher,
			runReconciler,
			registerServer,
		),
	)
	app.Run()
}

func setupLogging(cfg config.Cfg) {
	logging.Setup(cfg.App.LogLevel, cfg.App.LogFormat)
}

func setupTelemetry(lc fx.Lifecycle, cfg config.Cfg) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = telemetry.InitTracer(ctx, cfg.Telemetry)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}

func newPool(lc fx.Lifecycle, cfg config.Cfg) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dependencyWait)
	defer cancel()
	pool, err := postgres.Open(ctx, cfg.DB.DSN, dependencyWait)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		pool.Close()
		return nil
	}})
	return pool, nil
}

// newRedis returns nil when no address is configured. Tokens then live in
// process and the rollout snapshot comes from the environment only.
func newRedis(lc fx.Lifecycle, cfg config.Cfg) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("REDIS_ADDR not set, access tokens are cached in process")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), dependencyWait)
	defer cancel()
	rdb, err := redisstore.Open(ctx, cfg.Redis, dependencyWait)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return rdb.Close() }})
	return rdb, nil
}

func newTokenManager(cfg config.Cfg, rdb *redis.Client) *accesstoken.Manager {
	var store accesstoken.Store = accesstoken.NewMemoryStore()
	if rdb != nil {
		store = redisstore.NewTokenStore(rdb)
	}
	return accesstoken.NewManager(store, cfg.Tokens.ExpiryBuffer)
}

func newSnapshots(cfg config.Cfg) *gateway.SnapshotHolder {
	return gateway.NewSnapshotHolder(gateway.FromConfig(cfg.UCS))
}

func newPublisher(cfg config.Cfg, rdb *redis.Client) handlers.SnapshotPublisher {
	if rdb == nil {
		return nil
	}
	return redisstore.NewSnapshotSource(rdb, cfg.UCS.SnapshotRedisKey)
}

func runRefresher(lc fx.Lifecycle, cfg config.Cfg, rdb *redis.Client, holder *gateway.SnapshotHolder) {
	if rdb == nil {
		return
	}
	r := gateway.NewRefresher(redisstore.NewSnapshotSource(rdb, cfg.UCS.SnapshotRedisKey), holder, cfg.UCS.RefreshInterval)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			r.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			r.Stop()
			return nil
		},
	})
}

func runReconciler(
	lc fx.Lifecycle,
	cfg config.Cfg,
	orch *orchestrator.Orchestrator,
	intents repositories.IntentRepository,
	accounts repositories.MerchantConnectorAccountRepository,
) {
	worker := reconcile.NewWorker(orch, intents, accounts, cfg.Sec.AESKey, cfg.Reconcile.Interval, cfg.Reconcile.MinAge)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				worker.Run(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}

func newSink(lc fx.Lifecycle, cfg config.Cfg) events.Sink {
	if len(cfg.Events.Brokers) == 0 {
		return events.LogSink{}
	}
	p := events.NewProducer(cfg.Events.Brokers, cfg.Events.Topic)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return p.Close() }})
	return p
}

// newUnifiedClient returns nil when the unified service is disabled or
// unreachable at startup; every decision is then Direct.
func newUnifiedClient(lc fx.Lifecycle, cfg config.Cfg) *ucs.Client {
	if !cfg.UCS.Enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), dependencyWait)
	defer cancel()
	client, err := ucs.Dial(ctx, cfg.UCS, dependencyWait)
	if err != nil {
		log.Error().Err(err).Str("addr", cfg.UCS.Addr).Msg("unified connector service unavailable, routing direct")
		return nil
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	return client
}

func newBridge(cfg config.Cfg, client *ucs.Client, tokens *accesstoken.Manager, sink events.Sink) orchestrator.UnifiedBridge {
	if client == nil {
		return nil
	}
	return ucs.NewBridge(client, tokens, sink, cfg.UCS.TenantID)
}

func newSelector(client *ucs.Client, holder *gateway.SnapshotHolder, intents repositories.IntentRepository) orchestrator.Decider {
	return gateway.NewSelector(client, holder, intents)
}

func newRegistry(cfg config.Cfg) *connector.Registry {
	reg := connector.NewRegistry()
	mpesa.Register(reg, mpesa.New(cfg.Connectors.BaseURL(mpesa.ID), cfg.Connectors.MpesaCallbackURL))
	if url := cfg.Connectors.BaseURL(dummy.ID); url != "" {
		dummy.Register(reg, dummy.New(url, dummy.Options{SeparateCapture: true, CustomerObjects: true}))
	}
	log.Info().Strs("connectors", reg.List()).Msg("connectors registered")
	return reg
}

func newOrchestrator(cfg config.Cfg, reg *connector.Registry, decider orchestrator.Decider, bridge orchestrator.UnifiedBridge, tokens *accesstoken.Manager) *orchestrator.Orchestrator {
	return orchestrator.New(reg, base.NewHTTPClient(cfg.Connectors.Timeout), decider, bridge, tokens)
}

func registerServer(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg config.Cfg,
	orch *orchestrator.Orchestrator,
	reg *connector.Registry,
	accounts repositories.MerchantConnectorAccountRepository,
	intents repositories.IntentRepository,
	holder *gateway.SnapshotHolder,
	publisher handlers.SnapshotPublisher,
) {
	srv := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: httpx.NewRouter(httpx.RouterDependencies{
			Config:       cfg,
			Orchestrator: orch,
			Registry:     reg,
			Accounts:     accounts,
			Intents:      intents,
			Snapshots:    holder,
			Publisher:    publisher,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info().Msgf("payswitch listening on :%s", cfg.App.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("server failed")
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			log.Info().Msg("server stopped")
			return err
		},
	})
}
