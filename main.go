package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BerniceZTT/crm_pool/config"
	"github.com/BerniceZTT/crm_pool/controllers"
	"github.com/BerniceZTT/crm_pool/middleware"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/routes"
	"github.com/BerniceZTT/crm_pool/service"
	"github.com/BerniceZTT/crm_pool/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(1)
	}

	// 初始化日志
	utils.InitLogger(cfg.Debug())
	utils.SetJWTSecret(cfg.JWTKey)

	if cfg.Debug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := utils.SetupTracing(ctx, utils.TracingConfig{
		Enabled:     cfg.OTel.Enabled,
		Endpoint:    cfg.OTel.Endpoint,
		ServiceName: cfg.OTel.ServiceName,
	})
	if err != nil {
		utils.Logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			utils.Logger.Error().Err(err).Msg("导出剩余 span 失败")
		}
	}()

	store, seq, err := openStore(ctx, cfg)
	if err != nil {
		utils.Logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			utils.Logger.Error().Err(err).Msg("关闭存储失败")
		}
	}()

	publisher := openPublisher(cfg)
	defer publisher.Close()

	svc := service.New(store, seq, publisher, service.Options{
		BatchConcurrency: cfg.BatchConcurrency,
		CASRetries:       cfg.CASRetries,
		CodeRetries:      cfg.CodeRetries,
		NoFollowUpDays:   cfg.Eviction.NoFollowUpDays,
		NoOrderDays:      cfg.Eviction.NoOrderDays,
		SweepBatchSize:   cfg.Eviction.BatchSize,
	})

	if cfg.Eviction.Enabled {
		service.ScheduleDailyTaskAt(ctx, cfg.Eviction.Hour, 0, 0, svc.Eviction.RunScheduledSweep)
		utils.Logger.Info().Int("hour", cfg.Eviction.Hour).Msg("公海自动回收任务已启动")
	}

	// 创建Gin实例
	router := gin.New()
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.OperationLoggerMiddleware())

	routes.RegisterRoutes(router, controllers.NewHandler(svc), store)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		utils.Logger.Info().Msgf("服务器启动，监听端口: %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Logger.Fatal().Err(err).Msg("启动服务器失败")
		}
	}()

	// 优雅关闭
	<-ctx.Done()
	utils.Logger.Info().Msg("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Error().Err(err).Msg("服务器关闭异常")
	}

	utils.Logger.Info().Msg("服务器已优雅关闭")
}

// openStore 按配置选择存储与编码计数器：配置了 Redis 时计数器使用 Redis
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, repository.Sequence, error) {
	var (
		store repository.Store
		seq   repository.Sequence
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		utils.Logger.Warn().Msg("使用内存存储，重启后数据丢失")
		store = repository.NewMemoryStore()
		seq = repository.NewMemorySequence()
	default:
		mongoStore, err := repository.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		store = mongoStore
		seq = repository.NewMongoSequence(mongoStore)
	}

	if cfg.RedisURL != "" {
		client, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		seq = repository.NewRedisSequence(client, 48*time.Hour)
		utils.Logger.Info().Msg("编码计数器使用Redis")
	}
	return store, seq, nil
}

// openPublisher 配置了 AMQP 时投递归属事件，连接失败时降级为不投递
func openPublisher(cfg *config.Config) repository.Publisher {
	if cfg.AMQPURL == "" {
		return repository.NoopPublisher{}
	}
	pub, err := repository.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		utils.Logger.Error().Err(err).Msg("连接消息队列失败，归属事件不会投递")
		return repository.NoopPublisher{}
	}
	return pub
}
