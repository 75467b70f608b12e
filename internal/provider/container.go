package provider

import (
	"time"

	"github.com/stockkeeper/internal/authz"
	"github.com/stockkeeper/internal/cache"
	"github.com/stockkeeper/internal/carrier"
	"github.com/stockkeeper/internal/config"
	"github.com/stockkeeper/internal/logger"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/queue"
	"github.com/stockkeeper/internal/repository"
	"github.com/stockkeeper/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	InventoryRepo   repository.InventoryRepository
	ReservationRepo repository.ReservationRepository
	AuditLogRepo    repository.AuditLogRepository
	OrderRepo       repository.OrderRepository
	ShipmentRepo    repository.ShipmentRepository
	OutboxRepo      repository.OutboxRepository

	// Carrier
	CarrierGateway *carrier.Gateway

	// Services
	AuthzService        *authz.Service
	AuditService        *service.AuditService
	InventoryService    *service.InventoryService
	CancellationService *service.CancellationService
	FulfillmentService  *service.FulfillmentService
	ForceReleaseService *service.ForceReleaseService
	ReturnService       *service.ReturnService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(cache.Options{
		Enabled:  cfg.Redis.Enabled,
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	}); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化承运商网关
	c.initCarrier()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.InventoryRepo = repository.NewInventoryRepository(db)
	c.ReservationRepo = repository.NewReservationRepository(db)
	c.AuditLogRepo = repository.NewAuditLogRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.ShipmentRepo = repository.NewShipmentRepository(db)
	c.OutboxRepo = repository.NewOutboxRepository(db)
}

func (c *Container) initCarrier() {
	store := c.buildBreakerStore()
	breaker := carrier.NewBreaker(carrier.BreakerOptions{
		FailureThreshold: c.Config.Carrier.FailureThreshold,
		FailureWindow:    time.Duration(c.Config.Carrier.FailureWindowSeconds) * time.Second,
		Cooldown:         time.Duration(c.Config.Carrier.CooldownSeconds) * time.Second,
	}, store)

	providers := make(map[string]carrier.ProviderConfig, len(c.Config.Carrier.Providers))
	for name, p := range c.Config.Carrier.Providers {
		providers[name] = carrier.ProviderConfig{Endpoint: p.Endpoint, APIKey: p.APIKey}
	}
	c.CarrierGateway = carrier.NewGateway(providers, breaker, c.Config.Carrier.Timeout())
}

// buildBreakerStore 按配置选择熔断状态存储；外置存储不可用时退回进程内存
func (c *Container) buildBreakerStore() carrier.StateStore {
	switch c.Config.Carrier.BreakerStore {
	case "redis":
		if cache.Enabled() {
			store, err := carrier.NewRedisStore(cache.Client(), c.Config.Redis.Prefix)
			if err == nil {
				return store
			}
			logger.Warnw("provider_breaker_redis_store_failed", "error", err)
		} else {
			logger.Warnw("provider_breaker_redis_store_unavailable")
		}
	case "db":
		store, err := carrier.NewDBStore(models.DB)
		if err == nil {
			return store
		}
		logger.Warnw("provider_breaker_db_store_failed", "error", err)
	}
	return carrier.NewMemoryStore()
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService

	c.AuditService = service.NewAuditService(c.AuditLogRepo, c.Config.Audit.RetentionDays)
	c.InventoryService = service.NewInventoryService(c.InventoryRepo, c.ReservationRepo, c.OutboxRepo, c.AuditService)
	c.CancellationService = service.NewCancellationService(c.OrderRepo, c.ReservationRepo, c.InventoryRepo, c.OutboxRepo, c.AuditService)
	c.FulfillmentService = service.NewFulfillmentService(c.OrderRepo, c.ShipmentRepo, c.ReservationRepo, c.OutboxRepo, c.InventoryService, c.CancellationService, c.CarrierGateway)
	c.ForceReleaseService = service.NewForceReleaseService(c.InventoryService, c.ReservationRepo, c.AuthzService, c.QueueClient)
	c.ReturnService = service.NewReturnService(c.OrderRepo, c.ShipmentRepo, c.InventoryService)
}
