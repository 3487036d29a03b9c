// Command server runs the team chat HTTP API.
//
// Startup sequence:
//  1. Load .env (optional) and environment configuration.
//  2. Configure global logging (zerolog level, optional pretty console).
//  3. Open the SQLite store and run migrations.
//  4. Initialize OpenTelemetry tracing (no-op when no endpoint configured).
//  5. Wire the change event bus into the subscription manager.
//  6. Register routes and serve until SIGINT/SIGTERM, then drain gracefully.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crewchat/go-team-chat/internal/access"
	"github.com/crewchat/go-team-chat/internal/config"
	"github.com/crewchat/go-team-chat/internal/events"
	httpapi "github.com/crewchat/go-team-chat/internal/http"
	"github.com/crewchat/go-team-chat/internal/observability"
	"github.com/crewchat/go-team-chat/internal/repo"
	"github.com/crewchat/go-team-chat/internal/subs"
	"github.com/crewchat/go-team-chat/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("init tracing")
	}

	kernel := access.NewKernel(db)
	kernel.AllowSelfDM = cfg.AllowSelfDM

	bus := events.NewBus(cfg.Stream.BusBuffer)
	mgr := subs.NewManager(kernel, cfg.Stream.SubscriberBuffer)
	bus.SubscribeFunc(mgr.Dispatch)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, kernel, bus, mgr, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// Stop accepting requests, then drain streams and the event bus. Closing
	// subscriptions first ends in-flight SSE handlers so Shutdown can return.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mgr.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	bus.Close()

	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown")
	}
	log.Info().Msg("server stopped")
}
