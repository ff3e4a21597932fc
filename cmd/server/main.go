// Command server runs the SummerJobs HTTP API.
//
//	@title						SummerJobs API
//	@version					1.0
//	@description				Profiles, ratings, phone verification and the offers/requests marketplace.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/summerjobs-backend/docs"
	"github.com/tbourn/summerjobs-backend/internal/config"
	"github.com/tbourn/summerjobs-backend/internal/docstore"
	httpapi "github.com/tbourn/summerjobs-backend/internal/http"
	"github.com/tbourn/summerjobs-backend/internal/http/middleware"
	"github.com/tbourn/summerjobs-backend/internal/identity"
	"github.com/tbourn/summerjobs-backend/internal/jobs"
	"github.com/tbourn/summerjobs-backend/internal/observability"
	"github.com/tbourn/summerjobs-backend/internal/repo"
	"github.com/tbourn/summerjobs-backend/internal/services"
	"github.com/tbourn/summerjobs-backend/internal/sms"
	"github.com/tbourn/summerjobs-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = ""

func main() {
	if !sysutil.IsTruthy(os.Getenv("SKIP_DOTENV")) {
		// .env is optional outside local development.
		_ = godotenv.Load()
	}

	cfg := config.MustLoad()
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	gin.SetMode(cfg.GinMode)
	appVersion := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	store := docstore.NewGormStore(db)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping")
		}
		relay := docstore.NewRedisNotifier(rdb, docstore.DefaultChannel, store.Hub)
		store.Notifier = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error().Err(err).Msg("redis change relay stopped")
			}
		}()
	}

	svc := services.NewSet(store, sms.New(cfg.SMS), cfg)

	var verifier middleware.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = identity.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	}
	if cfg.Auth.DevHeaders {
		log.Warn().Msg("AUTH_DEV_HEADERS is on: X-User-ID is trusted without a token")
	}

	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = appVersion

	r := gin.New()
	httpapi.RegisterRoutes(r, db, svc, verifier, cfg)

	janitor, err := jobs.NewJanitor(cfg.JanitorSpec,
		jobs.PurgeVerifications(svc.Phone),
		jobs.PurgeIdempotency(db),
	)
	if err != nil {
		log.Fatal().Err(err).Str("spec", cfg.JanitorSpec).Msg("janitor schedule")
	}
	janitor.Start()

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", appVersion).
			Str("db", cfg.DBDriver).
			Bool("redis", rdb != nil).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Streams observe ctx through BaseContext and end on their own.
	shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	janitor.Stop(shCtx)
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownTracing(shCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}
