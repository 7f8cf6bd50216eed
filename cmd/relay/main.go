package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	httpapi "github.com/immxrtalbeast/cohort/internal/api/http"
	"github.com/immxrtalbeast/cohort/internal/config"
	"github.com/immxrtalbeast/cohort/internal/domain"
	"github.com/immxrtalbeast/cohort/internal/presence"
	"github.com/immxrtalbeast/cohort/internal/ratelimit"
	"github.com/immxrtalbeast/cohort/internal/repository"
	"github.com/immxrtalbeast/cohort/internal/service"
	"github.com/immxrtalbeast/cohort/lib/logger"
	"github.com/immxrtalbeast/cohort/lib/logger/sl"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)
	if cfg.Env == logger.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mirror := setupPresence(ctx, cfg.Presence, log)

	store := repository.NewInMemoryRoomStore(domain.RoomLimits{
		MaxMembers:     cfg.Relay.MaxRoomMembers,
		MaxSourceBytes: cfg.Relay.MaxSourceBytes,
		MaxFileBytes:   cfg.Relay.MaxFileBytes,
		ChatHistory:    cfg.Relay.ChatHistory,
	}, cfg.Relay.RoomGrace,
		repository.WithEvictHook(mirror.Evicted),
		repository.WithLogger(log),
	)
	limiter := ratelimit.New(cfg.Relay.RateLimits, cfg.Relay.RateWindow)

	relay := service.NewRelay(store, limiter, mirror, service.RelayOptions{
		MaxNameLength: cfg.Relay.MaxNameLength,
		MaxChatLength: cfg.Relay.MaxChatLength,
		ChatReplay:    cfg.Relay.ChatReplay,
	}, log)

	origins := httpapi.NewOriginPolicy(cfg.HTTP.AllowedOrigins)
	wsController := httpapi.NewWSController(relay, origins, httpapi.WSOptions{
		SendBuffer:     cfg.Relay.SendBuffer,
		MaxFileBytes:   cfg.Relay.MaxFileBytes,
		MaxSourceBytes: cfg.Relay.MaxSourceBytes,
		MaxFrameBytes:  cfg.Relay.MaxFrameBytes,
	}, log)
	roomController := httpapi.NewRoomController(relay)

	router := httpapi.SetupRouter(wsController, roomController, origins)

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", sl.Err(err))
		}
	}()

	log.Info("starting relay",
		slog.String("addr", cfg.HTTP.Address),
		slog.String("env", cfg.Env),
		slog.Any("allowed_origins", origins.List()),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("relay stopped")
}

// setupPresence mirrors room membership to Redis when an address is
// configured.
func setupPresence(ctx context.Context, cfg config.PresenceConfig, log *slog.Logger) presence.Mirror {
	if cfg.RedisAddr == "" {
		return presence.Nop{}
	}

	mirror := presence.NewRedis(presence.RedisOptions{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		TTL:       cfg.TTL,
		QueueSize: cfg.QueueSize,
	}, log)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := mirror.Ping(pingCtx); err != nil {
		log.Warn("redis unavailable, presence mirror disabled", sl.Err(err))
		_ = mirror.Close()
		return presence.Nop{}
	}

	go func() {
		mirror.Run(ctx)
		if err := mirror.Close(); err != nil {
			log.Warn("close redis", sl.Err(err))
		}
	}()
	log.Info("presence mirror enabled", slog.String("redis", cfg.RedisAddr))
	return mirror
}
