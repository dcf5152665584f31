package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"restaurant_offline/internal/adapters/connectivity"
	server "restaurant_offline/internal/adapters/http_server"
	"restaurant_offline/internal/adapters/observability"
	redisad "restaurant_offline/internal/adapters/redis"
	"restaurant_offline/internal/adapters/resourcecache"
	"restaurant_offline/internal/adapters/restaurantapi"
	"restaurant_offline/internal/app"
	"restaurant_offline/internal/shared"
	mysqlrepo "restaurant_offline/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// global logger: console in dev, JSON otherwise
	log.Logger = observability.NewLogger(cfg.AppEnv)

	reg := observability.InitRegistry()
	metricsSrv := observability.Serve(cfg.MetricsAddr, reg)

	// entity store
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	if err := mysqlrepo.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	log.Info().Msg("entity store ready")
	repo := mysqlrepo.New(db)

	// blob cache + request policy
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("blob cache unreachable; assets go straight to the network")
	}
	policy, err := resourcecache.PolicyFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid APP_SHELL_ROUTES")
	}
	transport := resourcecache.NewTransport(http.DefaultTransport, cache, policy)

	remote, err := restaurantapi.New(cfg.RemoteBase, cfg.RemoteRPS, cfg.RemoteMaxAttempts, transport)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize remote client")
	}

	// services
	monitor := connectivity.NewMonitor(remote, cfg.ProbeInterval)
	catalog := app.NewCatalogService(repo, remote)
	syncer := app.NewSyncService(repo, remote, catalog).WithFailureLog(repo)
	replayer := app.NewReplayer(syncer, monitor, cfg.SyncInterval)
	syncer.OnMutation(replayer.Trigger)

	go monitor.Run(ctx)
	go replayer.Run(ctx)

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Catalog: catalog, Mutations: syncer, Sync: replayer, Conn: monitor})
	mountProxy(srv, "/app", cfg.AppOrigin, transport)
	mountProxy(srv, "/tiles", cfg.TileOrigin, transport)

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("remote", cfg.RemoteBase).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("shut down")
}

func mountProxy(srv *server.Server, prefix, origin string, rt http.RoundTripper) {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		log.Fatal().Err(err).Str("origin", origin).Msg("invalid origin")
	}
	srv.MountProxy(prefix, u, rt)
}
