package service

import (
	"strings"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/logger"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventoryService 库存台账服务
// 守恒不变式由三条原语共同保证：预占/释放只在 available 与 reserved 之间平移，
// 发货扣减只减 reserved，入库只加 available/damaged。
type InventoryService struct {
	inventoryRepo   repository.InventoryRepository
	reservationRepo repository.ReservationRepository
	outboxRepo      repository.OutboxRepository
	auditSvc        *AuditService
}

// NewInventoryService 创建库存服务
func NewInventoryService(inventoryRepo repository.InventoryRepository, reservationRepo repository.ReservationRepository, outboxRepo repository.OutboxRepository, auditSvc *AuditService) *InventoryService {
	return &InventoryService{
		inventoryRepo:   inventoryRepo,
		reservationRepo: reservationRepo,
		outboxRepo:      outboxRepo,
		auditSvc:        auditSvc,
	}
}

// GetLevel 查询库存水位
func (s *InventoryService) GetLevel(orgID uint, sku, warehouseID string) (*models.InventoryLevel, error) {
	if orgID == 0 || strings.TrimSpace(sku) == "" || strings.TrimSpace(warehouseID) == "" {
		return nil, ErrInventoryInvalid
	}
	level, err := s.inventoryRepo.Get(orgID, sku, warehouseID)
	if err != nil {
		return nil, err
	}
	if level == nil {
		return nil, ErrInventoryNotFound
	}
	return level, nil
}

// ListLevels 查询组织下全部库存水位
func (s *InventoryService) ListLevels(orgID uint) ([]models.InventoryLevel, error) {
	if orgID == 0 {
		return nil, ErrInventoryInvalid
	}
	return s.inventoryRepo.ListByOrg(orgID)
}

// CreateLevelInput 建档输入
type CreateLevelInput struct {
	OrganizationID uint
	SKU            string
	WarehouseID    string
	Available      int
	Damaged        int
	Price          *models.Money
	MinStock       *int
	MaxStock       *int
	UserID         uint
	Notes          string
}

// CreateLevel 库存建档：初始量入 available/damaged，记 create 流水并发布事件
func (s *InventoryService) CreateLevel(input CreateLevelInput) (*models.InventoryLevel, error) {
	sku := strings.TrimSpace(input.SKU)
	warehouseID := strings.TrimSpace(input.WarehouseID)
	if input.OrganizationID == 0 || sku == "" || warehouseID == "" || input.Available < 0 || input.Damaged < 0 {
		return nil, ErrInventoryInvalid
	}

	level := &models.InventoryLevel{
		OrganizationID: input.OrganizationID,
		SKU:            sku,
		WarehouseID:    warehouseID,
		Available:      input.Available,
		Damaged:        input.Damaged,
		Price:          input.Price,
		MinStock:       input.MinStock,
		MaxStock:       input.MaxStock,
	}
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.inventoryRepo.WithTx(tx).Create(level); err != nil {
			return err
		}
		if _, err := s.auditSvc.LogChange(LogChangeInput{
			OrganizationID:   input.OrganizationID,
			WarehouseID:      warehouseID,
			SKU:              sku,
			UserID:           input.UserID,
			Action:           constants.AuditActionCreate,
			PreviousQuantity: 0,
			NewQuantity:      input.Available,
			Notes:            input.Notes,
			Tx:               tx,
		}); err != nil {
			return err
		}
		return appendEvent(s.outboxRepo.WithTx(tx), input.OrganizationID, constants.EventInventoryCreated, models.JSON{
			"sku":          sku,
			"warehouse_id": warehouseID,
			"available":    input.Available,
			"damaged":      input.Damaged,
		})
	})
	if err != nil {
		return nil, err
	}
	return level, nil
}

// ReserveInput 预占输入
type ReserveInput struct {
	OrganizationID uint
	WarehouseID    string
	SKU            string
	Quantity       int
	OrderID        uint
	UserID         uint
}

// Reserve 预占库存：available→reserved 并签发 active 预留单
// 可售不足时整体失败，不产生半程副作用。
func (s *InventoryService) Reserve(input ReserveInput) (*models.Reservation, error) {
	sku := strings.TrimSpace(input.SKU)
	warehouseID := strings.TrimSpace(input.WarehouseID)
	if input.OrganizationID == 0 || sku == "" || warehouseID == "" || input.Quantity <= 0 || input.OrderID == 0 {
		return nil, ErrReservationInvalid
	}

	var reservation *models.Reservation
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		invRepo := s.inventoryRepo.WithTx(tx)
		level, err := invRepo.Get(input.OrganizationID, sku, warehouseID)
		if err != nil {
			return err
		}
		if level == nil {
			return ErrInventoryNotFound
		}

		affected, err := invRepo.ReserveStock(input.OrganizationID, sku, warehouseID, input.Quantity)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrInsufficientStock
		}

		now := time.Now()
		reservation = &models.Reservation{
			ID:             uuid.NewString(),
			OrganizationID: input.OrganizationID,
			WarehouseID:    warehouseID,
			SKU:            sku,
			Quantity:       input.Quantity,
			OrderID:        input.OrderID,
			Status:         constants.ReservationStatusActive,
			CreatedAt:      now,
		}
		if err := s.reservationRepo.WithTx(tx).Create(reservation); err != nil {
			return err
		}

		if _, err := s.auditSvc.LogChange(LogChangeInput{
			OrganizationID:   input.OrganizationID,
			WarehouseID:      warehouseID,
			SKU:              sku,
			UserID:           input.UserID,
			Action:           constants.AuditActionReserve,
			PreviousQuantity: level.Available,
			NewQuantity:      level.Available - input.Quantity,
			Metadata:         models.JSON{"reservation_id": reservation.ID, "order_id": input.OrderID},
			Tx:               tx,
		}); err != nil {
			return err
		}
		return appendEvent(s.outboxRepo.WithTx(tx), input.OrganizationID, constants.EventInventoryUpdated, models.JSON{
			"sku":            sku,
			"warehouse_id":   warehouseID,
			"reservation_id": reservation.ID,
			"order_id":       input.OrderID,
			"quantity":       input.Quantity,
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("inventory_reserved",
		"organization_id", input.OrganizationID,
		"sku", sku,
		"warehouse_id", warehouseID,
		"quantity", input.Quantity,
		"reservation_id", reservation.ID,
	)
	return reservation, nil
}

// GetReservation 查询预留单（跨组织等同不存在）
func (s *InventoryService) GetReservation(orgID uint, id string) (*models.Reservation, error) {
	if orgID == 0 || strings.TrimSpace(id) == "" {
		return nil, ErrReservationInvalid
	}
	reservation, err := s.reservationRepo.GetByID(orgID, id)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, ErrReservationNotFound
	}
	return reservation, nil
}

// ReleaseResult 释放结果
// 重复释放返回幂等结果而非错误：Released=false + AlreadyReleased=true。
type ReleaseResult struct {
	Released        bool                `json:"released"`
	AlreadyReleased bool                `json:"already_released"`
	Reservation     *models.Reservation `json:"reservation,omitempty"`
}

// Release 释放预留：reserved→available，预留单 active→released
// 释放经条件 UPDATE 抢占，并发重复释放恰好一个生效，库存只回补一次。
func (s *InventoryService) Release(orgID uint, reservationID string, userID uint) (*ReleaseResult, error) {
	return s.releaseAs(orgID, reservationID, userID, constants.ReservationStatusReleased, constants.ReasonCodeManualAdjust, constants.EventReservationReleased)
}

func (s *InventoryService) releaseAs(orgID uint, reservationID string, userID uint, targetStatus, reasonCode, eventType string) (*ReleaseResult, error) {
	trimmed := strings.TrimSpace(reservationID)
	if orgID == 0 || trimmed == "" {
		return nil, ErrReservationInvalid
	}

	reservation, err := s.reservationRepo.GetByID(orgID, trimmed)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, ErrReservationNotFound
	}
	if reservation.Terminal() {
		return &ReleaseResult{Released: false, AlreadyReleased: true, Reservation: reservation}, nil
	}

	result := &ReleaseResult{}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		affected, err := s.reservationRepo.WithTx(tx).ClaimRelease(orgID, trimmed, targetStatus, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			// 竞争方已释放，幂等返回
			result.AlreadyReleased = true
			return nil
		}

		// 抢占成功后在事务内重读剩余量：并发部分发货可能已在事务前读之后扣减
		claimed, err := s.reservationRepo.WithTx(tx).GetByID(orgID, trimmed)
		if err != nil {
			return err
		}
		if claimed == nil {
			return ErrReservationNotFound
		}
		reservation = claimed

		invRepo := s.inventoryRepo.WithTx(tx)
		level, err := invRepo.Get(orgID, reservation.SKU, reservation.WarehouseID)
		if err != nil {
			return err
		}
		if level == nil {
			return ErrInventoryNotFound
		}
		released, err := invRepo.ReleaseStock(orgID, reservation.SKU, reservation.WarehouseID, reservation.Quantity)
		if err != nil {
			return err
		}
		if released == 0 {
			return ErrReservationInvalid
		}

		if _, err := s.auditSvc.LogChange(LogChangeInput{
			OrganizationID:   orgID,
			WarehouseID:      reservation.WarehouseID,
			SKU:              reservation.SKU,
			UserID:           userID,
			Action:           constants.AuditActionRelease,
			PreviousQuantity: level.Available,
			NewQuantity:      level.Available + reservation.Quantity,
			ReasonCode:       reasonCode,
			Metadata:         models.JSON{"reservation_id": reservation.ID, "order_id": reservation.OrderID, "target_status": targetStatus},
			Tx:               tx,
		}); err != nil {
			return err
		}
		if err := appendEvent(s.outboxRepo.WithTx(tx), orgID, eventType, models.JSON{
			"reservation_id": reservation.ID,
			"sku":            reservation.SKU,
			"warehouse_id":   reservation.WarehouseID,
			"quantity":       reservation.Quantity,
			"order_id":       reservation.OrderID,
			"target_status":  targetStatus,
		}); err != nil {
			return err
		}
		result.Released = true
		reservation.Status = targetStatus
		reservation.ReleasedAt = &now
		result.Reservation = reservation
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyReleased && result.Reservation == nil {
		if fresh, err := s.reservationRepo.GetByID(orgID, trimmed); err == nil && fresh != nil {
			result.Reservation = fresh
		}
	}
	if result.Released {
		logger.Infow("reservation_released",
			"organization_id", orgID,
			"reservation_id", trimmed,
			"target_status", targetStatus,
		)
	}
	return result, nil
}

// DeductOnShip 发货永久扣减：仅减 reserved，总持有量随之下降
// 必须在外层事务内调用，与运单创建同事务提交。
func (s *InventoryService) DeductOnShip(tx *gorm.DB, orgID uint, sku, warehouseID string, quantity int, userID uint, metadata models.JSON) error {
	if tx == nil || orgID == 0 || quantity <= 0 {
		return ErrInventoryInvalid
	}
	invRepo := s.inventoryRepo.WithTx(tx)
	level, err := invRepo.Get(orgID, sku, warehouseID)
	if err != nil {
		return err
	}
	if level == nil {
		return ErrInventoryNotFound
	}
	affected, err := invRepo.DeductReserved(orgID, sku, warehouseID, quantity)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientStock
	}
	_, err = s.auditSvc.LogChange(LogChangeInput{
		OrganizationID:   orgID,
		WarehouseID:      warehouseID,
		SKU:              sku,
		UserID:           userID,
		Action:           constants.AuditActionUpdate,
		PreviousQuantity: level.Reserved,
		NewQuantity:      level.Reserved - quantity,
		ReasonCode:       constants.ReasonCodeShipment,
		Metadata:         metadata,
		Tx:               tx,
	})
	return err
}

// RestockInput 入库输入
type RestockInput struct {
	OrganizationID uint
	SKU            string
	WarehouseID    string
	Quantity       int
	Condition      string // sellable / damaged
	UserID         uint
	ReasonCode     string
	Notes          string
	Tx             *gorm.DB
}

// Restock 入库：sellable 入 available，damaged 入 damaged；水位行不存在则补建
func (s *InventoryService) Restock(input RestockInput) error {
	sku := strings.TrimSpace(input.SKU)
	warehouseID := strings.TrimSpace(input.WarehouseID)
	condition := strings.ToLower(strings.TrimSpace(input.Condition))
	if condition == "" {
		condition = constants.StockConditionSellable
	}
	if input.OrganizationID == 0 || sku == "" || warehouseID == "" || input.Quantity <= 0 {
		return ErrInventoryInvalid
	}
	if condition != constants.StockConditionSellable && condition != constants.StockConditionDamaged {
		return ErrInventoryInvalid
	}

	run := func(tx *gorm.DB) error {
		invRepo := s.inventoryRepo.WithTx(tx)
		level, created, err := invRepo.EnsureRow(input.OrganizationID, sku, warehouseID)
		if err != nil {
			return err
		}

		previous := level.Available
		current := level.Available
		if condition == constants.StockConditionSellable {
			if _, err := invRepo.AddAvailable(input.OrganizationID, sku, warehouseID, input.Quantity); err != nil {
				return err
			}
			current = previous + input.Quantity
		} else {
			if _, err := invRepo.AddDamaged(input.OrganizationID, sku, warehouseID, input.Quantity); err != nil {
				return err
			}
		}

		action := constants.AuditActionImport
		if created {
			action = constants.AuditActionCreate
		}
		if _, err := s.auditSvc.LogChange(LogChangeInput{
			OrganizationID:   input.OrganizationID,
			WarehouseID:      warehouseID,
			SKU:              sku,
			UserID:           input.UserID,
			Action:           action,
			PreviousQuantity: previous,
			NewQuantity:      current,
			ReasonCode:       input.ReasonCode,
			Notes:            input.Notes,
			Metadata:         models.JSON{"condition": condition, "quantity": input.Quantity},
			Tx:               tx,
		}); err != nil {
			return err
		}

		eventType := constants.EventInventoryUpdated
		if created {
			eventType = constants.EventInventoryCreated
		}
		return appendEvent(s.outboxRepo.WithTx(tx), input.OrganizationID, eventType, models.JSON{
			"sku":          sku,
			"warehouse_id": warehouseID,
			"condition":    condition,
			"quantity":     input.Quantity,
		})
	}

	if input.Tx != nil {
		return run(input.Tx)
	}
	return models.DB.Transaction(run)
}
