package main

import (
	"log"
	"time"

	"github.com/stockkeeper/internal/config"
	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/logger"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const demoOrgID = 1

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	var levelCount int64
	if err := models.DB.Model(&models.InventoryLevel{}).
		Where("organization_id = ?", demoOrgID).
		Count(&levelCount).Error; err != nil {
		stdLog.Fatalf("Failed to inspect inventory levels: %v", err)
	}
	if levelCount > 0 {
		stdLog.Printf("Demo data already present, skipping seed")
		return
	}

	seedInventory(stdLog)
	seedOrders(stdLog)
	printDemoToken(cfg, stdLog)
	stdLog.Printf("Seed completed")
}

func money(amount float64) *models.Money {
	m := models.NewMoneyFromDecimal(decimal.NewFromFloat(amount))
	return &m
}

func intPtr(v int) *int {
	return &v
}

func seedInventory(stdLog *log.Logger) {
	levels := []models.InventoryLevel{
		{
			OrganizationID: demoOrgID,
			SKU:            "WIDGET-A",
			WarehouseID:    "wh-east",
			Available:      120,
			Price:          money(12.50),
			MinStock:       intPtr(20),
			MaxStock:       intPtr(500),
		},
		{
			OrganizationID: demoOrgID,
			SKU:            "WIDGET-A",
			WarehouseID:    "wh-west",
			Available:      60,
			Price:          money(12.50),
			MinStock:       intPtr(10),
		},
		{
			OrganizationID: demoOrgID,
			SKU:            "GADGET-B",
			WarehouseID:    "wh-east",
			Available:      45,
			Damaged:        3,
			Price:          money(49.90),
		},
		{
			OrganizationID: demoOrgID,
			SKU:            "BRACKET-C",
			WarehouseID:    "wh-west",
			Available:      300,
			Price:          money(4.25),
			MaxStock:       intPtr(1000),
		},
	}
	if err := models.DB.Create(&levels).Error; err != nil {
		stdLog.Fatalf("Failed to seed inventory levels: %v", err)
	}
}

func seedOrders(stdLog *log.Logger) {
	order := models.Order{
		OrderNo:        "SK-DEMO-1001",
		OrganizationID: demoOrgID,
		Status:         constants.OrderStatusProcessing,
		Items: []models.OrderLineItem{
			{SKU: "WIDGET-A", Quantity: 4, UnitPrice: *money(12.50)},
			{SKU: "GADGET-B", Quantity: 1, UnitPrice: *money(49.90)},
		},
	}
	if err := models.DB.Create(&order).Error; err != nil {
		stdLog.Fatalf("Failed to seed order: %v", err)
	}

	// 预占订单所需库存：available → reserved
	reservations := []models.Reservation{
		{
			ID:             uuid.NewString(),
			OrganizationID: demoOrgID,
			WarehouseID:    "wh-east",
			SKU:            "WIDGET-A",
			Quantity:       4,
			OrderID:        order.ID,
			Status:         constants.ReservationStatusActive,
		},
		{
			ID:             uuid.NewString(),
			OrganizationID: demoOrgID,
			WarehouseID:    "wh-east",
			SKU:            "GADGET-B",
			Quantity:       1,
			OrderID:        order.ID,
			Status:         constants.ReservationStatusActive,
		},
	}
	if err := models.DB.Create(&reservations).Error; err != nil {
		stdLog.Fatalf("Failed to seed reservations: %v", err)
	}
	for _, reservation := range reservations {
		if err := models.DB.Model(&models.InventoryLevel{}).
			Where("organization_id = ? AND sku = ? AND warehouse_id = ?",
				demoOrgID, reservation.SKU, reservation.WarehouseID).
			Updates(map[string]interface{}{
				"available": gorm.Expr("available - ?", reservation.Quantity),
				"reserved":  gorm.Expr("reserved + ?", reservation.Quantity),
			}).Error; err != nil {
			stdLog.Fatalf("Failed to reserve seeded stock: %v", err)
		}
	}
}

func printDemoToken(cfg *config.Config, stdLog *log.Logger) {
	if cfg.JWT.SecretKey == "" {
		stdLog.Printf("JWT secret not configured, skipping demo token")
		return
	}
	token, err := service.GenerateToken(cfg.JWT.SecretKey, cfg.JWT.ExpireHours, demoOrgID, 1, constants.RoleAdmin)
	if err != nil {
		stdLog.Fatalf("Failed to issue demo token: %v", err)
	}
	stdLog.Printf("Demo admin token (org %d, valid %s): %s",
		demoOrgID, time.Duration(cfg.JWT.ExpireHours)*time.Hour, token)
}
