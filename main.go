package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildbank/api"
	"github.com/kasuganosora/guildbank/audit"
	"github.com/kasuganosora/guildbank/cache"
	"github.com/kasuganosora/guildbank/config"
	dbadapter "github.com/kasuganosora/guildbank/db"
	"github.com/kasuganosora/guildbank/game/guild"
	"github.com/kasuganosora/guildbank/game/item"
	"github.com/kasuganosora/guildbank/game/player"
	"github.com/kasuganosora/guildbank/model"
	"github.com/kasuganosora/guildbank/notify"
	"github.com/kasuganosora/guildbank/persist"
	"github.com/kasuganosora/guildbank/scheduler"
	"go.uber.org/zap"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		logger.Fatal("security.jwt_secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	backend, err := cache.Open(ctx, cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer backend.Close()
	c, pubsub := backend.Cache, backend.PubSub
	logger.Info("Cache initialized")

	// ---- Write-behind queues ----
	auditSvc := audit.New(db, audit.Config{}, logger)
	store := persist.New(db, persist.Config{
		BatchSize:     cfg.Guild.PersistBatchSize,
		FlushInterval: cfg.Guild.PersistFlush,
	}, logger)

	// ---- Items ----
	catalog, err := item.LoadCatalog(cfg.Guild.ItemCatalog)
	if err != nil {
		logger.Warn("item catalog not loaded; item grants are disabled", zap.Error(err))
		catalog, _ = item.ParseCatalog(nil)
	} else {
		logger.Info("item catalog loaded", zap.Int("entries", catalog.Len()))
	}
	bags := item.NewManager(item.NewStore(db, logger))

	// ---- Sessions / notifications ----
	sm := player.NewSessionManager(logger)
	hub := notify.NewHub(pubsub, c, sm, logger)
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("notify hub stopped", zap.Error(err))
		}
	}()

	// ---- Guilds ----
	reg := guild.NewRegistry(guild.Deps{
		Store:    store,
		Notifier: hub,
		Logs: guild.LogCapacities{
			Event:     cfg.Guild.EventLogCapacity,
			BankEvent: cfg.Guild.BankEventLogCapacity,
			News:      cfg.Guild.NewsLogCapacity,
		},
		Logger: logger,
	})
	if err := reg.Load(ctx, db); err != nil {
		logger.Warn("some guilds failed to load", zap.Error(err))
	}
	logger.Info("guilds loaded", zap.Int("count", reg.Len()))

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.AddDaily("guild_daily_reset", cfg.Guild.DailyResetHour, scheduler.DailyReset(c, reg, logger))
	sched.AddTicker("persist_stats", time.Minute, func() {
		applied, failed := store.Stats()
		logger.Debug("persist stats", zap.Int64("applied", applied), zap.Int64("failed", failed))
	})

	// ---- HTTP ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := api.NewEngine(api.Deps{
		DB:           db,
		Cache:        c,
		PubSub:       pubsub,
		Security:     cfg.Security,
		AdminKey:     cfg.Server.AdminKey,
		AdminIPs:     cfg.Server.AdminIPs,
		MoveCooldown: cfg.Guild.MoveCooldown,
		Sessions:     sm,
		Hub:          hub,
		Registry:     reg,
		Catalog:      catalog,
		Bags:         bags,
		Store:        store,
		Scheduler:    sched,
		Audit:        auditSvc,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sched.Stop()
	sm.CloseAllSessions(5 * time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := store.Flush(shutdownCtx); err != nil {
		logger.Warn("persist flush", zap.Error(err))
	}
	store.Stop(shutdownCtx)
	auditSvc.Stop(shutdownCtx)
}
