package service

import (
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/logger"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/repository"

	"gorm.io/gorm"
)

// CancellationService 订单取消服务
// 取消经条件 UPDATE 抢占：并发取消同一订单时恰好一个调用方执行释放，
// 其余收敛到幂等结果，库存不会重复回补。
type CancellationService struct {
	orderRepo       repository.OrderRepository
	reservationRepo repository.ReservationRepository
	inventoryRepo   repository.InventoryRepository
	outboxRepo      repository.OutboxRepository
	auditSvc        *AuditService
}

// NewCancellationService 创建取消服务
func NewCancellationService(orderRepo repository.OrderRepository, reservationRepo repository.ReservationRepository, inventoryRepo repository.InventoryRepository, outboxRepo repository.OutboxRepository, auditSvc *AuditService) *CancellationService {
	return &CancellationService{
		orderRepo:       orderRepo,
		reservationRepo: reservationRepo,
		inventoryRepo:   inventoryRepo,
		outboxRepo:      outboxRepo,
		auditSvc:        auditSvc,
	}
}

// CancelResult 取消结果
type CancelResult struct {
	Cancelled            bool   `json:"cancelled"`
	AlreadyCancelled     bool   `json:"already_cancelled"`
	PreviousStatus       string `json:"previous_status,omitempty"`
	ReleasedReservations int    `json:"released_reservations"`
	ReleasedQuantity     int    `json:"released_quantity"`
}

// CancelOrder 取消订单并释放库存
// 部分发货的订单仅释放未发货剩余：已发货量此前已永久扣减，不再回补。
// 重复取消返回 AlreadyCancelled，不产生任何库存变动。
func (s *CancellationService) CancelOrder(orgID, orderID uint, reason string, userID uint) (*CancelResult, error) {
	if orgID == 0 || orderID == 0 {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByIDForOrg(orgID, orderID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status == constants.OrderStatusCancelled {
		return &CancelResult{AlreadyCancelled: true, PreviousStatus: order.Status}, nil
	}
	if !isTransitionAllowed(order.Status, constants.OrderStatusCancelled) {
		return nil, ErrOrderStatusInvalid
	}

	result := &CancelResult{PreviousStatus: order.Status}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		affected, err := s.orderRepo.WithTx(tx).ClaimCancel(orgID, orderID, reason, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			// 竞争方已取消，收敛为幂等结果
			result.AlreadyCancelled = true
			return nil
		}

		reservationRepo := s.reservationRepo.WithTx(tx)
		invRepo := s.inventoryRepo.WithTx(tx)
		reservations, err := reservationRepo.ListActiveByOrder(orgID, orderID)
		if err != nil {
			return err
		}
		for _, reservation := range reservations {
			claimed, err := reservationRepo.ClaimRelease(orgID, reservation.ID, constants.ReservationStatusReleased, now)
			if err != nil {
				return err
			}
			if claimed == 0 {
				continue
			}
			// 抢占成功后重读剩余量：并发部分发货可能已在列表读取之后扣减
			current, err := reservationRepo.GetByID(orgID, reservation.ID)
			if err != nil {
				return err
			}
			if current == nil || current.Quantity <= 0 {
				continue
			}
			level, err := invRepo.Get(orgID, reservation.SKU, reservation.WarehouseID)
			if err != nil {
				return err
			}
			if level == nil {
				return ErrInventoryNotFound
			}
			released, err := invRepo.ReleaseStock(orgID, reservation.SKU, reservation.WarehouseID, current.Quantity)
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
				NewQuantity:      level.Available + current.Quantity,
				ReasonCode:       constants.ReasonCodeCancellation,
				Notes:            reason,
				Metadata:         models.JSON{"order_id": orderID, "reservation_id": reservation.ID},
				Tx:               tx,
			}); err != nil {
				return err
			}
			result.ReleasedReservations++
			result.ReleasedQuantity += current.Quantity
		}

		result.Cancelled = true
		return appendEvent(s.outboxRepo.WithTx(tx), orgID, constants.EventOrderCancelled, models.JSON{
			"order_id":            orderID,
			"previous_status":     order.Status,
			"new_status":          constants.OrderStatusCancelled,
			"reason":              reason,
			"inventory_released":  result.ReleasedQuantity,
			"released_count":      result.ReleasedReservations,
			"cancelled_at":        now.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Cancelled {
		logger.Infow("order_cancelled",
			"organization_id", orgID,
			"order_id", orderID,
			"previous_status", result.PreviousStatus,
			"released_reservations", result.ReleasedReservations,
			"released_quantity", result.ReleasedQuantity,
		)
	}
	return result, nil
}
