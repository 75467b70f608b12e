package router

import (
	"fmt"
	"strings"

	"github.com/stockkeeper/internal/cache"
	"github.com/stockkeeper/internal/config"
	adminhandlers "github.com/stockkeeper/internal/http/handlers/admin"
	apihandlers "github.com/stockkeeper/internal/http/handlers/api"
	"github.com/stockkeeper/internal/logger"
	"github.com/stockkeeper/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按业务/管理分组）
	apiHandler := apihandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sk"
	}
	exportRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:audit_export", redisPrefix),
		WindowSeconds: cfg.Security.ExportRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.ExportRateLimit.MaxRequests,
		Message:       "export too frequent",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组（全部需鉴权，组织隔离来自令牌声明）
	apiV1 := r.Group("/api/v1")
	apiV1.Use(JWTAuthMiddleware(cfg.JWT.SecretKey))
	{
		// 库存与预留
		apiV1.GET("/inventory/levels", apiHandler.GetInventoryLevels)
		apiV1.POST("/inventory/levels", apiHandler.CreateInventoryLevel)
		apiV1.GET("/inventory/levels/:sku", apiHandler.GetInventoryLevel)
		apiV1.POST("/inventory/reservations", apiHandler.CreateReservation)
		apiV1.GET("/inventory/reservations/:id", apiHandler.GetReservation)
		apiV1.POST("/inventory/reservations/:id/release", apiHandler.ReleaseReservation)

		// 订单取消、发货与退货
		apiV1.POST("/orders/:id/cancel", apiHandler.CancelOrder)
		apiV1.POST("/orders/:id/shipments", apiHandler.CreateShipment)
		apiV1.POST("/orders/:id/returns", apiHandler.ProcessReturn)

		// 运单
		apiV1.GET("/shipments/:id", apiHandler.GetShipment)
		apiV1.GET("/shipments/:id/label", apiHandler.GetShipmentLabel)
		apiV1.POST("/shipments/:id/track", apiHandler.TrackShipment)
		apiV1.POST("/shipments/:id/cancel", apiHandler.CancelShipment)

		// 管理端接口
		admin := apiV1.Group("/admin")
		{
			// 审计流水
			admin.GET("/audit-logs", adminHandler.QueryAuditLogs)
			admin.GET("/audit-logs/variance-summary", adminHandler.GetAuditVarianceSummary)
			admin.GET("/audit-logs/activity-by-user", adminHandler.GetAuditActivityByUser)
			admin.GET("/audit-logs/activity-by-action", adminHandler.GetAuditActivityByAction)
			admin.GET("/audit-logs/daily-trends", adminHandler.GetAuditDailyTrends)
			admin.GET("/audit-logs/export", RateLimitMiddleware(cache.Client(), exportRule, KeyByOrg), adminHandler.ExportAuditLogs)
			admin.GET("/audit-logs/retention", adminHandler.GetAuditRetention)
			admin.POST("/audit-logs/archive", adminHandler.ArchiveAuditLogs)
			admin.GET("/audit-logs/:id", adminHandler.GetAuditEntry)

			// 预留强制释放
			admin.POST("/reservations/:id/force-release", adminHandler.ForceReleaseReservation)
			admin.POST("/reservations/force-release-by-sku", adminHandler.ForceReleaseBySKU)
			admin.POST("/reservations/force-release-expired", adminHandler.ForceReleaseExpired)

			// 承运商熔断观测
			admin.GET("/carriers/breakers", adminHandler.GetCarrierBreakerStatus)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
