package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"homeworkpoints/internal/cache"
	"homeworkpoints/internal/config"
	cronrunner "homeworkpoints/internal/cron"
	"homeworkpoints/internal/db"
	"homeworkpoints/internal/handler"
	"homeworkpoints/internal/logger"
	gormrepository "homeworkpoints/internal/repository/gorm"
	"homeworkpoints/internal/service"
)

func main() {
	cfgPath := os.Getenv("HWP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("HWP_ENV_ONLY"); envOnlyRaw != "" {
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

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	var leaderboardCache *cache.LeaderboardCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, leaderboard cache disabled", zap.Error(err))
		} else {
			leaderboardCache = cache.NewLeaderboardCache(rdb, cfg.Redis.LeaderboardTTL, logger)
		}
	}

	basePool, err := decimal.NewFromString(cfg.PrizePool.BaseAmount)
	if err != nil {
		logger.Fatal("invalid prize_pool.base_amount", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	pointsSvc := &service.PointsService{
		Repo:   store,
		Cache:  leaderboardCache,
		Logger: logger,
	}
	settlementSvc := &service.SettlementService{
		Repo:     store,
		Points:   pointsSvc,
		Cache:    leaderboardCache,
		Logger:   logger,
		BasePool: basePool,
	}
	leaderboardSvc := &service.LeaderboardService{
		Repo:       store,
		Settlement: settlementSvc,
		Cache:      leaderboardCache,
		Logger:     logger,
	}
	autoSettleSvc := &service.AutoSettleService{
		Repo:       store,
		Settlement: settlementSvc,
		Logger:     logger,
	}
	if err := autoSettleSvc.EnsureDefaultConfig(context.Background(), cfg.PrizePool.AutoSettle); err != nil {
		logger.Fatal("seed auto settlement config failed", zap.Error(err))
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	pointsHandler := &handler.PointsHandler{Service: pointsSvc}
	pointsHandler.Register(engine)
	settlementHandler := &handler.SettlementHandler{
		Settlement: settlementSvc,
		AutoSettle: autoSettleSvc,
	}
	settlementHandler.Register(engine)
	leaderboardHandler := &handler.LeaderboardHandler{Service: leaderboardSvc}
	leaderboardHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add(cfg.Cron.AutoSettleCheck, func(ctx context.Context) {
			if err := autoSettleSvc.Tick(ctx); err != nil {
				logger.Warn("auto settle tick failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register auto settle failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
