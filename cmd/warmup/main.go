package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"restaurant_offline/internal/adapters/observability"
	redisad "restaurant_offline/internal/adapters/redis"
	"restaurant_offline/internal/adapters/resourcecache"
	"restaurant_offline/internal/adapters/restaurantapi"
	"restaurant_offline/internal/app"
	"restaurant_offline/internal/shared"
	mysqlrepo "restaurant_offline/internal/storage/mysql"
)

// warmup prepares a device for offline use: installs the app shell,
// evicts stale buckets, seeds the entity store, prefetches reviews and
// replays anything queued.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)
	log.Info().
		Str("remote", cfg.RemoteBase).
		Str("static_bucket", cfg.StaticBucket).
		Int("workers", cfg.Workers).
		Msg("warmup starting")

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	policy, err := resourcecache.PolicyFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid APP_SHELL_ROUTES")
	}

	// 1) app shell: all-or-nothing install, then drop old versions
	manifest, err := resourcecache.ResolveManifest(cfg.AppOrigin, cfg.Manifest)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid MANIFEST")
	}
	lc := resourcecache.NewLifecycle(cache, policy, nil)
	if err := lc.Install(ctx, manifest); err != nil {
		log.Error().Err(err).Msg("install failed; previous version stays active")
		os.Exit(1)
	}
	if _, err := lc.Activate(ctx); err != nil {
		log.Warn().Err(err).Msg("activate failed")
	}

	// 2) entity store
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
	repo := mysqlrepo.New(db)

	transport := resourcecache.NewTransport(http.DefaultTransport, cache, policy)
	remote, err := restaurantapi.New(cfg.RemoteBase, cfg.RemoteRPS, cfg.RemoteMaxAttempts, transport)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize remote client")
	}
	catalog := app.NewCatalogService(repo, remote)
	syncer := app.NewSyncService(repo, remote, catalog).WithFailureLog(repo)

	all, err := catalog.FetchAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("seeding skipped")
		return
	}

	// 3) reviews, bounded fan-out; acquire before launching, release inside
	sem := semaphore.NewWeighted(int64(max(cfg.Workers, 1)))
	var wg sync.WaitGroup
	for _, r := range all {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("semaphore acquire failed")
			break
		}
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			defer sem.Release(1)
			rs, err := catalog.FetchReviews(ctx, id)
			if err != nil {
				log.Warn().Int64("id", id).Err(err).Msg("reviews prefetch failed")
				return
			}
			log.Debug().Int64("id", id).Int("reviews", len(rs)).Msg("reviews ready")
		}(r.ID)
	}
	wg.Wait()

	// 4) push anything queued while offline
	rep, err := syncer.SyncReviews(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("replay scan failed")
	}
	log.Info().
		Int("restaurants", len(all)).
		Int("reviews_synced", rep.ReviewsSynced).
		Int("reviews_pending", rep.ReviewsFailed).
		Msg("warmup completed")
}
