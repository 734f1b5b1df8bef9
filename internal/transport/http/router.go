package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	jwtpkg "furrydomains/backend/internal/auth/jwt"
	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/health"
	"furrydomains/backend/internal/middleware"
	"furrydomains/backend/internal/monitoring"
	"furrydomains/backend/internal/service"
	"furrydomains/backend/internal/websocket"
)

const defaultMaxBodyBytes = 55 << 20

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
	Health      *health.HealthChecker
	JWTManager  *jwtpkg.Manager
	Hub         *websocket.Hub
	RateLimiter *middleware.RateLimiter

	Registry   *service.DomainRegistryService
	Access     *service.AccessService
	Mail       *service.MailService
	Files      *service.FileService
	Links      *service.LinkService
	Forwarding *service.ForwardingService
	Feedback   *service.FeedbackService
	Profile    *service.ProfileService

	WebhookVerifier SignatureVerifier
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	cfg := deps.Config
	log := deps.Logger

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics)
	router.Use(middleware.RecoveryHandler(log, monitor.PanicCounter()))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(monitor.HTTPMetrics())
	router.Use(gincors.New(corsConfig(cfg.CORS.AllowedOrigins)))

	// 上传接口使用对象存储的上限，其余使用全局上限
	maxBody := cfg.Server.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	uploadLimits := map[string]int64{}
	if cfg.ObjectStore.MaxUploadSize > 0 {
		uploadLimits["/v1/cdn/files/upload/proxy"] = cfg.ObjectStore.MaxUploadSize + 1<<20
	}
	if cfg.Mail.MaxAttachmentSize > 0 {
		uploadLimits["/v1/attachments"] = cfg.Mail.MaxAttachmentSize + 1<<20
	}
	router.Use(middleware.DynamicBodySizeLimit(uploadLimits, maxBody))

	// 处理器
	domainHandler := NewDomainHandler(deps.Registry, log)
	accessHandler := NewAccessHandler(deps.Access, log)
	slackHandler := NewSlackHandler(deps.Access, cfg.Slack.SigningSecret, log)
	mailHandler := NewMailHandler(deps.Mail, log)
	webhookHandler := NewMailgunWebhookHandler(deps.Mail, deps.WebhookVerifier, log)
	fileHandler := NewFileHandler(deps.Files, cfg.ObjectStore.PresignExpiry, log)
	linkHandler := NewLinkHandler(deps.Links, log)
	forwardingHandler := NewForwardingHandler(deps.Forwarding, log)
	profileHandler := NewProfileHandler(deps.Profile, deps.Feedback, log)

	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, log)

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查与指标
	router.GET("/health", func(c *gin.Context) {
		results := deps.Health.CheckHealth(c.Request.Context())
		status := http.StatusOK
		if !health.Healthy(results) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
	})
	router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// 外部回调，自行校验签名
	router.POST("/slack/events", slackHandler.Events)
	router.POST("/webhooks/mailgun", webhookHandler.Inbound)

	// 公开访问
	router.GET("/l/:code", linkHandler.Resolve)
	router.GET("/cdn/*key", fileHandler.Serve)
	router.NoRoute(linkHandler.NoRoute)

	v1 := router.Group("/v1")
	v1.GET("/ws", websocket.HandleWebSocket(deps.Hub))

	api := v1.Group("", jwtAuth.RequireAuth())
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware())
	}
	{
		// ========== Domains ==========
		domains := api.Group("/domains")
		{
			domains.GET("", domainHandler.List)
			domains.POST("", domainHandler.Add)
			domains.PUT("", domainHandler.Update)
			domains.GET("/templates", domainHandler.Templates)
			domains.GET("/zones", domainHandler.Zones)
			domains.GET("/export", domainHandler.Export)
			domains.DELETE("/:domain", domainHandler.Delete)
		}

		// ========== Access ==========
		access := api.Group("/access")
		{
			access.POST("/request", accessHandler.Request)
			access.GET("/status", accessHandler.Status)
			access.GET("/quiz", accessHandler.QuizStatus)
			access.POST("/quiz", accessHandler.CompleteQuiz)
		}

		// ========== Webmail（需要审批并完成测验） ==========
		webmail := api.Group("", accessHandler.RequireWebmail())
		{
			webmail.GET("/inboxes", mailHandler.ListInboxes)
			webmail.POST("/inboxes", mailHandler.CreateInbox)
			webmail.DELETE("/inboxes/:id", mailHandler.DeleteInbox)

			webmail.GET("/messages", mailHandler.ListMessages)
			webmail.POST("/messages/send", mailHandler.Send)
			webmail.GET("/messages/:id", mailHandler.GetMessage)
			webmail.PATCH("/messages/:id", mailHandler.UpdateMessage)

			webmail.POST("/attachments", mailHandler.UploadAttachment)
		}

		// ========== CDN ==========
		cdn := api.Group("/cdn")
		{
			cdn.GET("/files", fileHandler.List)
			cdn.POST("/files/upload", fileHandler.Presign)
			cdn.POST("/files/upload/proxy", fileHandler.ProxyUpload)
			cdn.DELETE("/files/:id", fileHandler.Delete)
			cdn.GET("/stats", fileHandler.Stats)
		}

		// ========== Links ==========
		api.GET("/links", linkHandler.List)
		api.POST("/links", linkHandler.Shorten)
		api.DELETE("/links/:code", linkHandler.Delete)

		// ========== Forwarding ==========
		forwarding := api.Group("/forwarding")
		{
			forwarding.GET("", forwardingHandler.List)
			forwarding.POST("", forwardingHandler.Create)
			forwarding.DELETE("/:ruleId", forwardingHandler.Delete)
			forwarding.POST("/destinations", forwardingHandler.CreateDestination)
			forwarding.GET("/destinations/:id", forwardingHandler.DestinationStatus)
		}

		// ========== Feedback & Profile ==========
		api.GET("/feedback", profileHandler.ListFeedback)
		api.POST("/feedback", profileHandler.SubmitFeedback)
		api.GET("/profile/stats", profileHandler.Stats)
		api.GET("/profile/export", profileHandler.Export)
	}

	return router
}

func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Disposition",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			cfg.AllowCredentials = false
			cfg.AllowOrigins = nil
			cfg.AllowAllOrigins = true
			break
		}
	}
	return cfg
}
