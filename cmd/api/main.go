package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/cache"
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/db"
	"github.com/geocoder89/authhub/internal/hashpool"
	httpx "github.com/geocoder89/authhub/internal/http"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/geocoder89/authhub/internal/repo/postgres"
	"github.com/geocoder89/authhub/internal/rpc"
	"github.com/geocoder89/authhub/internal/service"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// .env is a dev convenience; the real environment wins
	_ = godotenv.Load()

	cfg, err := config.Load()

	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)

	// tracing is optional; only wired when an endpoint is configured
	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(context.Background(), "authhub", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("otel init failed", "err", err)
			os.Exit(1)
		}

		defer func() {
			ctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	seedCtx, cancelSeed := config.WithTimeout(10 * time.Second)

	if err := db.EnsureAdminUser(seedCtx, pool, cfg); err != nil {
		cancelSeed()
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}
	cancelSeed()

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	// user-projection cache: redis when configured, in-process otherwise
	var userCache cache.UserCache = cache.NewMemory(30 * time.Second)

	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, 30*time.Second)

		pingCtx, cancelPing := config.WithTimeout(2 * time.Second)

		if err := redisCache.Ping(pingCtx); err != nil {
			cancelPing()
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		cancelPing()

		defer redisCache.Close()

		userCache = redisCache
	}

	jwt := auth.NewManager(cfg.JWTSecret)
	hasher := hashpool.New(cfg.HashWorkers, prom.HashDuration)

	usersRepo := postgres.NewUsersRepo(pool, prom)
	refreshRepo := postgres.NewRefreshTokensRepo(pool, prom)

	svc := service.NewAuth(usersRepo, refreshRepo, hasher, jwt, userCache, log)

	router := httpx.NewRouter(log, cfg, pool, jwt, svc, prom)
	validatorRouter := rpc.NewRouter(jwt, log, prom)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	validatorSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ValidatorPort),
		Handler:           validatorRouter,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("api server failed", "err", err)
			os.Exit(1)
		}
	}()

	go func() {
		log.Info("validator server starting", "port", cfg.ValidatorPort)
		err := validatorSrv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("validator server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)

		defer cancel()

		if err := validatorSrv.Shutdown(ctx); err != nil {
			log.Error("validator shutdown failed", "err", err)
		}

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
