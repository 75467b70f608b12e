package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupReturnServiceTest(t *testing.T) (*ReturnService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:return_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{},
		&models.OrderLineItem{},
		&models.Shipment{},
		&models.ShipmentItem{},
		&models.InventoryLevel{},
		&models.Reservation{},
		&models.AuditEntry{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	auditSvc := NewAuditService(repository.NewAuditLogRepository(db), 0)
	inventorySvc := NewInventoryService(
		repository.NewInventoryRepository(db),
		repository.NewReservationRepository(db),
		repository.NewOutboxRepository(db),
		auditSvc,
	)
	svc := NewReturnService(
		repository.NewOrderRepository(db),
		repository.NewShipmentRepository(db),
		inventorySvc,
	)
	return svc, db
}

// seedShippedOrder 构造一个已全量发货的订单：WIDGET-A 发 4 件
func seedShippedOrder(t *testing.T, db *gorm.DB) *models.Order {
	t.Helper()
	order := models.Order{
		OrderNo:        fmt.Sprintf("SK-%d", time.Now().UnixNano()),
		OrganizationID: 1,
		Status:         constants.OrderStatusDelivered,
		Items: []models.OrderLineItem{
			{SKU: "WIDGET-A", Quantity: 4},
		},
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order failed: %v", err)
	}
	shipment := models.Shipment{
		OrderID:        order.ID,
		OrganizationID: 1,
		Provider:       "ups",
		Status:         constants.ShipmentStatusDelivered,
		TrackingNumber: "1Z999",
		Items: []models.ShipmentItem{
			{OrderItemID: order.Items[0].ID, Quantity: 4},
		},
	}
	if err := db.Create(&shipment).Error; err != nil {
		t.Fatalf("seed shipment failed: %v", err)
	}
	level := models.InventoryLevel{
		OrganizationID: 1,
		SKU:            "WIDGET-A",
		WarehouseID:    "wh-east",
		Available:      6,
	}
	if err := db.Create(&level).Error; err != nil {
		t.Fatalf("seed level failed: %v", err)
	}
	return &order
}

func TestReturnServiceRestocksByCondition(t *testing.T) {
	svc, db := setupReturnServiceTest(t)
	order := seedShippedOrder(t, db)

	result, err := svc.ProcessReturn(1, order.ID, []ReturnItemInput{
		{SKU: "WIDGET-A", WarehouseID: "wh-east", Quantity: 3, Condition: constants.StockConditionSellable},
		{SKU: "WIDGET-A", WarehouseID: "wh-east", Quantity: 1, Condition: constants.StockConditionDamaged},
	}, 7)
	if err != nil {
		t.Fatalf("ProcessReturn error: %v", err)
	}
	if result.RestockedItems != 2 || result.SellableQuantity != 3 || result.DamagedQuantity != 1 {
		t.Fatalf("unexpected return accounting: %+v", result)
	}

	var level models.InventoryLevel
	db.Where("organization_id = ?", 1).First(&level)
	if level.Available != 9 || level.Damaged != 1 {
		t.Fatalf("unexpected level after return: %+v", level)
	}

	var got models.Order
	db.First(&got, order.ID)
	if got.Status != constants.OrderStatusReturned {
		t.Fatalf("expected returned order, got %s", got.Status)
	}
}

func TestReturnServicePartialReturnStillMarksReturned(t *testing.T) {
	svc, db := setupReturnServiceTest(t)
	order := seedShippedOrder(t, db)

	result, err := svc.ProcessReturn(1, order.ID, []ReturnItemInput{
		{SKU: "WIDGET-A", WarehouseID: "wh-east", Quantity: 1},
	}, 7)
	if err != nil {
		t.Fatalf("ProcessReturn error: %v", err)
	}
	if result.SellableQuantity != 1 {
		t.Fatalf("condition default must be sellable: %+v", result)
	}

	var got models.Order
	db.First(&got, order.ID)
	if got.Status != constants.OrderStatusReturned {
		t.Fatalf("partial return must still mark order returned, got %s", got.Status)
	}
}

func TestReturnServiceOverReturnRejected(t *testing.T) {
	svc, db := setupReturnServiceTest(t)
	order := seedShippedOrder(t, db)

	_, err := svc.ProcessReturn(1, order.ID, []ReturnItemInput{
		{SKU: "WIDGET-A", WarehouseID: "wh-east", Quantity: 5},
	}, 7)
	qtyErr, ok := AsQuantityError(err)
	if !ok {
		t.Fatalf("expected QuantityError, got %v", err)
	}
	if qtyErr.Error() != "cannot return 5 of WIDGET-A: only 4 shipped" {
		t.Fatalf("unexpected message: %s", qtyErr.Error())
	}

	// 校验失败不触达库存与订单
	var level models.InventoryLevel
	db.Where("organization_id = ?", 1).First(&level)
	if level.Available != 6 || level.Damaged != 0 {
		t.Fatalf("level mutated on rejected return: %+v", level)
	}
	var got models.Order
	db.First(&got, order.ID)
	if got.Status != constants.OrderStatusDelivered {
		t.Fatalf("order mutated on rejected return: %s", got.Status)
	}
}

func TestReturnServiceAggregatesQuantitiesAcrossItems(t *testing.T) {
	svc, db := setupReturnServiceTest(t)
	order := seedShippedOrder(t, db)

	// 同一 SKU 两行合计超发货量
	_, err := svc.ProcessReturn(1, order.ID, []ReturnItemInput{
		{SKU: "WIDGET-A", WarehouseID: "wh-east", Quantity: 3},
		{SKU: "WIDGET-A", WarehouseID: "wh-east", Quantity: 2},
	}, 7)
	if _, ok := AsQuantityError(err); !ok {
		t.Fatalf("expected QuantityError for aggregated overrun, got %v", err)
	}
}

func TestReturnServiceNeverShippedSKURejected(t *testing.T) {
	svc, db := setupReturnServiceTest(t)
	order := seedShippedOrder(t, db)

	_, err := svc.ProcessReturn(1, order.ID, []ReturnItemInput{
		{SKU: "GADGET-B", WarehouseID: "wh-east", Quantity: 1},
	}, 7)
	qtyErr, ok := AsQuantityError(err)
	if !ok {
		t.Fatalf("expected QuantityError, got %v", err)
	}
	if qtyErr.Limit != 0 {
		t.Fatalf("expected shipped limit 0, got %d", qtyErr.Limit)
	}
}

func TestReturnServiceCancelledOrderRejected(t *testing.T) {
	svc, db := setupReturnServiceTest(t)
	order := seedShippedOrder(t, db)
	db.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", constants.OrderStatusCancelled)

	_, err := svc.ProcessReturn(1, order.ID, []ReturnItemInput{
		{SKU: "WIDGET-A", WarehouseID: "wh-east", Quantity: 1},
	}, 7)
	if !errors.Is(err, ErrOrderStatusInvalid) {
		t.Fatalf("expected ErrOrderStatusInvalid, got %v", err)
	}
}

func TestReturnServiceInvalidCondition(t *testing.T) {
	svc, db := setupReturnServiceTest(t)
	order := seedShippedOrder(t, db)

	_, err := svc.ProcessReturn(1, order.ID, []ReturnItemInput{
		{SKU: "WIDGET-A", WarehouseID: "wh-east", Quantity: 1, Condition: "refurbished"},
	}, 7)
	if !errors.Is(err, ErrReturnInvalid) {
		t.Fatalf("expected ErrReturnInvalid, got %v", err)
	}
}
