package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "furrydomains/backend/internal/auth/jwt"
	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/dns"
	"furrydomains/backend/internal/dns/cloudflare"
	"furrydomains/backend/internal/health"
	"furrydomains/backend/internal/logger"
	"furrydomains/backend/internal/mail"
	"furrydomains/backend/internal/middleware"
	"furrydomains/backend/internal/monitoring"
	"furrydomains/backend/internal/objectstore"
	"furrydomains/backend/internal/pool"
	"furrydomains/backend/internal/security"
	"furrydomains/backend/internal/service"
	"furrydomains/backend/internal/slackbot"
	"furrydomains/backend/internal/smtp"
	"furrydomains/backend/internal/storage"
	"furrydomains/backend/internal/storage/hybrid"
	"furrydomains/backend/internal/storage/memory"
	"furrydomains/backend/internal/storage/postgres"
	"furrydomains/backend/internal/storage/redis"
	httptransport "furrydomains/backend/internal/transport/http"
	"furrydomains/backend/internal/websocket"
)

const (
	defaultPurgeInterval = 6 * time.Hour
	localCacheEntries    = 1000
	localCacheTTL        = 30 * time.Second
	poolStatsInterval    = 15 * time.Second
	limiterCleanup       = 5 * time.Minute
)

// main 启动 HTTP API、可选的 SMTP 接收服务与后台任务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting furrydomains server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("database", cfg.Database.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()
	observer := monitoring.ObserverOrNop(metrics)

	// 存储层
	db, err := openDatabase(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize database storage", zap.Error(err))
	}
	defer db.Close()

	var (
		store      storage.Store = db
		redisCache *redis.Cache
		layered    *hybrid.LayeredCache
	)
	if cfg.Redis.Address != "" {
		client, err := redis.New(ctx, &cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		redisCache = redis.NewCache(client, cfg.Redis.CacheTTL)
		layered = hybrid.NewLayeredCache(localCacheEntries, localCacheTTL, redisCache)
		store = hybrid.NewStore(db, layered, client, log)
		log.Info("using hybrid storage", zap.String("redis", cfg.Redis.Address))
	}

	healthChecker := health.NewHealthChecker(store, log)

	var pgClient *postgres.Client
	if cfg.Database.Type == "postgres" {
		pgClient, err = postgres.NewClient(ctx, &cfg.Database, log)
		if err != nil {
			log.Fatal("failed to create postgres pool", zap.Error(err))
		}
		defer pgClient.Close()
		healthChecker.AddReadinessCheck("postgres_pool", pgClient.Ping)
	}

	// 外部服务
	blobs, err := objectstore.New(cfg.ObjectStore, observer, log)
	if err != nil {
		log.Fatal("failed to initialize object store", zap.Error(err))
	}
	transport, err := mail.NewTransport(cfg.Mail, observer, log)
	if err != nil {
		log.Fatal("failed to initialize mail transport", zap.Error(err))
	}
	cf := cloudflare.NewClient(cfg.Cloudflare, observer, log)
	zones := dns.Zones(cfg.Cloudflare.Zones)
	notifier := slackbot.NewNotifier(cfg.Slack, observer, log)

	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)

	hub := websocket.NewHub(jwtManager, cfg.CORS.AllowedOrigins, metrics, log)
	var relay *websocket.RedisRelay
	if redisCache != nil {
		relay = websocket.NewRedisRelay(redisCache, log)
		hub.SetRelay(relay)
	}

	// 访问量统计在后台协程池中异步写入
	workers := pool.NewWorkerPool(4, 1024, log)
	workers.OnQueueChange(func(length int) { metrics.PoolQueueLength.Set(float64(length)) })
	workers.OnPanic(metrics.PanicsTotal.Inc)

	// 服务层
	schema, err := service.NewRecordSchema()
	if err != nil {
		log.Fatal("failed to compile record schema", zap.Error(err))
	}
	templates, err := service.LoadDNSTemplates()
	if err != nil {
		log.Fatal("failed to load dns templates", zap.Error(err))
	}

	registry := service.NewDomainRegistryService(store, cf, zones, schema, templates, metrics, log)
	access := service.NewAccessService(store, notifier, cfg.Access, cfg.Slack.AdminUserID, metrics, log)
	mailService := service.NewMailService(store, transport, blobs, hub,
		security.NewAttachmentPolicy(cfg.Mail.MaxAttachmentSize), cfg.Mail.Domain, metrics, log)
	files := service.NewFileService(store, blobs, security.NewCDNPolicy(cfg.ObjectStore.MaxUploadSize), workers, metrics, log)
	links := service.NewLinkService(store, cfg.Links, metrics, log)
	forwarding := service.NewForwardingService(store, store, cf, zones, log)
	feedback := service.NewFeedbackService(store)
	profile := service.NewProfileService(store)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	rateLimiter.OnBlock(metrics.RateLimitBlocks.Inc)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:          cfg,
		Logger:          log,
		Metrics:         metrics,
		Health:          healthChecker,
		JWTManager:      jwtManager,
		Hub:             hub,
		RateLimiter:     rateLimiter,
		Registry:        registry,
		Access:          access,
		Mail:            mailService,
		Files:           files,
		Links:           links,
		Forwarding:      forwarding,
		Feedback:        feedback,
		Profile:         profile,
		WebhookVerifier: mail.NewWebhookVerifier(cfg.Mail),
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 接收服务
	if cfg.Mail.InboundEnabled {
		smtpServer := smtp.NewServer(smtp.ServerConfig{
			Addr:              cfg.Mail.InboundAddr,
			Domain:            cfg.Mail.Domain,
			MaxAttachmentSize: cfg.Mail.MaxAttachmentSize,
		}, mailService, log)
		group.Go(func() error {
			return smtpServer.ListenAndServe(groupCtx)
		})
	}

	group.Go(func() error {
		workers.Start(groupCtx)
		<-groupCtx.Done()
		workers.Stop()
		return nil
	})

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		hub.Run(groupCtx)
		return nil
	})

	if relay != nil {
		group.Go(func() error {
			return relay.Run(groupCtx, hub)
		})
	}

	if layered != nil {
		group.Go(func() error {
			layered.Run(groupCtx)
			return nil
		})
	}

	// 定时清理已拒绝与过期的访问申请
	purgeInterval := cfg.Access.PurgeInterval
	if purgeInterval <= 0 {
		purgeInterval = defaultPurgeInterval
	}
	group.Go(func() error {
		log.Info("starting access request purge task", zap.Duration("interval", purgeInterval))
		return access.RunPurge(groupCtx, purgeInterval)
	})

	// 限流器清理与连接池指标
	group.Go(func() error {
		cleanup := time.NewTicker(limiterCleanup)
		stats := time.NewTicker(poolStatsInterval)
		defer cleanup.Stop()
		defer stats.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-cleanup.C:
				rateLimiter.Cleanup()
			case <-stats.C:
				if pgClient != nil {
					metrics.DatabaseConnections.Set(float64(pgClient.Stats().TotalConns()))
				}
			}
		}
	})

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// openDatabase 根据配置选择存储实现
func openDatabase(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	opts := postgres.DefaultOptions()
	if cfg.Database.MaxOpenConns > 0 {
		opts.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		opts.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		opts.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	opts.AutoMigrate = cfg.Database.AutoMigrate

	switch cfg.Database.Type {
	case "", "memory":
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	case "postgres":
		return postgres.NewStore(cfg.Database.DSN, opts)
	case "mysql":
		return postgres.NewMySQLStore(cfg.Database.DSN, opts)
	case "sqlite":
		return postgres.NewSQLiteStore(cfg.Database.DSN, opts)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
}
