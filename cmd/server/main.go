// Command server runs the support routing backend: the HTTP API, the
// escalation monitor, and the notification dispatcher, wired to a SQLite
// ticket store.
//
// Startup order matters: configuration and logging first, then tracing, then
// the store (with migration), then the thread registry rebuild so routing
// state survives restarts, and finally the HTTP server. Shutdown reverses it.
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
	"golang.org/x/time/rate"

	"github.com/eventdesk/go-support-backend/internal/config"
	"github.com/eventdesk/go-support-backend/internal/escalation"
	httpapi "github.com/eventdesk/go-support-backend/internal/http"
	"github.com/eventdesk/go-support-backend/internal/notify"
	"github.com/eventdesk/go-support-backend/internal/observability"
	"github.com/eventdesk/go-support-backend/internal/platform"
	"github.com/eventdesk/go-support-backend/internal/registry"
	"github.com/eventdesk/go-support-backend/internal/repo"
	"github.com/eventdesk/go-support-backend/internal/services"
	"github.com/eventdesk/go-support-backend/internal/sysutil"

	_ "github.com/eventdesk/go-support-backend/docs"
)

var version = "dev"

// @title        Event Support Backend API
// @version      1.0
// @description  Ticket routing between event attendees and support staff.
// @BasePath     /api/v1
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	reg := registry.New()
	if err := reg.Rebuild(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("registry rebuild failed")
	}
	log.Info().Int("threads", reg.Len()).Msg("thread registry rebuilt")

	// TODO: swap the loopback for the chat platform client once its API
	// credentials land in config.
	messenger := platform.NewLoopback()

	channels := []notify.Channel{
		&notify.StaffAlertChannel{Messenger: messenger, Thread: cfg.StaffAlertThread},
	}
	if cfg.SMTP.Host != "" {
		channels = append(channels, notify.NewEmailChannel(
			cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password,
			cfg.SMTP.From, cfg.SMTP.To,
		))
	}
	dispatcher := notify.NewDispatcher(cfg.QueueCapacity, channels...)

	routerSvc := services.NewRouterService(db, reg, messenger, dispatcher)
	routerSvc.MaxContentRunes = cfg.MaxContentRunes
	routerSvc.IdempotencyTTL = cfg.IdempotencyTTL
	if cfg.MessageRateEvery > 0 {
		routerSvc.RateEvery = rate.Every(cfg.MessageRateEvery)
	} else {
		routerSvc.RateEvery = 0
	}
	routerSvc.RateBurst = cfg.MessageRateBurst
	if len(cfg.BlockedUsers) > 0 {
		blocked := make(map[int64]struct{}, len(cfg.BlockedUsers))
		for _, id := range cfg.BlockedUsers {
			blocked[id] = struct{}{}
		}
		routerSvc.Blocked = blocked
	}
	fbSvc := &services.FeedbackService{DB: db, Events: dispatcher}

	monitor := escalation.NewMonitor(db, dispatcher)
	monitor.Interval = cfg.Escalation.Interval
	monitor.UrgentThreshold = cfg.Escalation.UrgentThreshold
	monitor.CoolDown = cfg.Escalation.CoolDown
	go monitor.Run(ctx)

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, httpapi.Deps{
		DB:       db,
		Router:   routerSvc,
		Feedback: fbSvc,
		Monitor:  monitor,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	dispatcher.Close()
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
}
