package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"perpscope/internal/aggregator"
	"perpscope/internal/cache"
	"perpscope/internal/config"
	cronrunner "perpscope/internal/cron"
	"perpscope/internal/exchange"
	"perpscope/internal/handler"
	"perpscope/internal/logger"
	"perpscope/internal/marketdata"

	_ "perpscope/docs"
)

func main() {
	cfgPath := os.Getenv("PS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		store = cache.NewRedisStore(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		logger.Info("using redis cache", zap.String("addr", cfg.Cache.RedisAddr))
	default:
		store = cache.NewMemoryStore()
	}

	binance := &exchange.BinanceAdapter{
		HTTP:       &http.Client{Timeout: cfg.Binance.Timeout},
		Logger:     logger,
		BaseURL:    cfg.Binance.BaseURL,
		BatchSize:  cfg.Binance.BatchSize,
		BatchDelay: cfg.Binance.BatchDelay,
	}
	bybit := &exchange.BybitAdapter{
		HTTP:       &http.Client{Timeout: cfg.Bybit.Timeout},
		Logger:     logger,
		BaseURL:    cfg.Bybit.BaseURL,
		BatchSize:  cfg.Bybit.BatchSize,
		BatchDelay: cfg.Bybit.BatchDelay,
	}
	resolver := &marketdata.Resolver{
		HTTP:              &http.Client{Timeout: cfg.CoinGecko.Timeout},
		Logger:            logger,
		Cache:             store,
		BaseURL:           cfg.CoinGecko.BaseURL,
		TTL:               cfg.CoinGecko.MarketDataTTL,
		PageSize:          cfg.CoinGecko.PageSize,
		PageDelay:         cfg.CoinGecko.PageDelay,
		SearchConcurrency: cfg.CoinGecko.SearchConcurrency,
		SearchDelay:       cfg.CoinGecko.SearchDelay,
	}
	aggSvc := &aggregator.Service{
		Adapters: []exchange.Adapter{binance, bybit},
		Resolver: resolver,
		Logger:   logger,
	}
	snapshot := &aggregator.SnapshotCache{}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{Snapshot: snapshot, StartedAt: time.Now()}
	healthHandler.Register(engine)

	perpHandler := &handler.PerpHandler{
		Aggregator: aggSvc,
		Resolver:   resolver,
		Logger:     logger,
		Snapshot:   snapshot,
		MaxAge:     cfg.Refresh.MaxAge,
	}
	perpHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Refresh.Enabled {
		if _, err := cronRunner.Add(cfg.Refresh.Schedule, func(ctx context.Context) {
			snapshot.Refresh(ctx, aggSvc, logger)
		}); err != nil {
			logger.Fatal("invalid refresh schedule", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()

		// Warm the snapshot before the first dashboard poll lands.
		go snapshot.Refresh(ctx, aggSvc, logger)
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
