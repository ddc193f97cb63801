package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinel-automod/internal/analytics"
	"sentinel-automod/internal/bot"
	"sentinel-automod/internal/config"
	"sentinel-automod/internal/dispatcher"
	"sentinel-automod/internal/engine"
	"sentinel-automod/internal/lockdown"
	"sentinel-automod/internal/modules/audit"
	"sentinel-automod/internal/settings"
	"sentinel-automod/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// backend is what both SQL stores provide.
type backend interface {
	settings.Store
	audit.Sink
	dispatcher.WarningStore
	analytics.ViolationLister
	bot.Retention
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (backend, func(), error) {
	if cfg.Driver == "postgres" {
		store, err := storage.NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	store, err := storage.New(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	store, closeStore, err := openStorage(startCtx, cfg.Storage)
	if err != nil {
		logger.Fatal("storage init failed", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer closeStore()

	var settingsStore settings.Store = store
	if cfg.Redis.URL != "" {
		redisStore, err := storage.NewRedisSettings(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("redis init failed", zap.Error(err))
		}
		defer func() {
			_ = redisStore.Close()
		}()
		if err := redisStore.Ping(startCtx); err != nil {
			logger.Fatal("redis unreachable", zap.Error(err))
		}
		settingsStore = redisStore
		logger.Info("guild settings stored in redis")
	}

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		logger.Fatal("discord session init failed", zap.Error(err))
	}
	self, err := session.User("@me")
	if err != nil {
		logger.Fatal("discord identity lookup failed", zap.Error(err))
	}
	discord := bot.NewDiscord(session, cfg.Notifications.DMPerSecond, cfg.Notifications.DMBurst)

	settingsCache := settings.New(settingsStore)
	auditLogger := audit.NewLogger(store, logger)
	analyticsService := analytics.New(store)
	dispatch := dispatcher.New(discord, discord, store, logger, dispatcher.Options{
		CallTimeout:        cfg.Engine.CallTimeout(),
		BanDeleteWindow:    cfg.Enforcement.BanDeleteWindow(),
		WarningForgiveness: cfg.Enforcement.WarningForgiveness(),
		MaxTimeout:         cfg.Enforcement.MaxTimeout(),
	})
	lockdowns := lockdown.New(discord, auditLogger, logger, cfg.Engine.CallTimeout())

	moderation, err := engine.New(engine.Deps{
		Settings:   settingsCache,
		Dispatcher: dispatch,
		Lockdowns:  lockdowns,
		Notifier:   discord,
		Recorder:   auditLogger,
		Logger:     logger,
	}, engine.Options{
		SelfID:        self.ID,
		QueueSize:     cfg.Engine.QueueSize,
		Workers:       cfg.Engine.Workers,
		DedupeSize:    cfg.Engine.DedupeSize,
		SweepInterval: cfg.Engine.SweepInterval(),
	})
	if err != nil {
		logger.Fatal("engine init failed", zap.Error(err))
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- moderation.Run(runCtx)
	}()

	botSvc := bot.New(cfg, logger, session, discord, bot.Services{
		Engine:    moderation,
		Settings:  settingsCache,
		Lockdowns: lockdowns,
		Audit:     auditLogger,
		Analytics: analyticsService,
		Retention: store,
	})
	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started", zap.String("user_id", self.ID))

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.Handler())
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	botSvc.Close(ctx)

	moderation.Close()
	select {
	case err := <-engineDone:
		if err != nil && !errors.Is(err, engine.ErrQueueClosed) {
			logger.Warn("engine stopped with error", zap.Error(err))
		}
	case <-ctx.Done():
		stopRun()
		logger.Warn("engine did not drain before shutdown deadline")
	}

	if err := lockdowns.Shutdown(ctx); err != nil {
		logger.Error("lockdowns left in place", zap.Error(err))
	}
}
