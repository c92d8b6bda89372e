package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jumpindia/funzone-pos/internal/adapters/crdb"
	mongoadapter "github.com/jumpindia/funzone-pos/internal/adapters/mongo"
	redisadapter "github.com/jumpindia/funzone-pos/internal/adapters/redis"
	"github.com/jumpindia/funzone-pos/internal/auth"
	"github.com/jumpindia/funzone-pos/internal/config"
	"github.com/jumpindia/funzone-pos/internal/drawer"
	httphandler "github.com/jumpindia/funzone-pos/internal/http"
	"github.com/jumpindia/funzone-pos/internal/idempotency"
	"github.com/jumpindia/funzone-pos/internal/observability"
	"github.com/jumpindia/funzone-pos/internal/pos"
	"github.com/jumpindia/funzone-pos/internal/ratelimit"
	"github.com/jumpindia/funzone-pos/internal/suggest"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()
	observability.InitMetrics()

	pool, err := pgxpool.New(context.Background(), cfg.PGDSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("funzone")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	if err := catalog.SeedDefaults(context.Background()); err != nil {
		log.Fatalf("failed to seed catalog: %v", err)
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, cfg.IdempotencyTTL)
	rl := ratelimit.NewRateLimiter(redisCache)

	authStore := auth.NewStore()
	suggestClient := suggest.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.SuggestionTimeout, logger)

	posSvc := pos.NewService(repo, redisCache, catalog, authStore, audit, logger)
	drawerSvc := drawer.NewService(repo, redisCache, authStore, audit, logger)

	handlers := httphandler.NewHandlers(cfg, posSvc, drawerSvc, repo, catalog, suggestClient, authStore, idemp)

	r := httphandler.SetupRouter(handlers, logger, rl, idemp, authStore)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
