package service

import (
	"strings"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/logger"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/repository"

	"gorm.io/gorm"
)

// ReturnService 退货处理服务
// 部分退货同样将订单置为 returned（不引入 partially_returned 中间态）。
type ReturnService struct {
	orderRepo    repository.OrderRepository
	shipmentRepo repository.ShipmentRepository
	inventorySvc *InventoryService
}

// NewReturnService 创建退货服务
func NewReturnService(orderRepo repository.OrderRepository, shipmentRepo repository.ShipmentRepository, inventorySvc *InventoryService) *ReturnService {
	return &ReturnService{
		orderRepo:    orderRepo,
		shipmentRepo: shipmentRepo,
		inventorySvc: inventorySvc,
	}
}

// ReturnItemInput 退货明细输入
type ReturnItemInput struct {
	SKU         string `json:"sku"`
	WarehouseID string `json:"warehouse_id"`
	Quantity    int    `json:"quantity"`
	Condition   string `json:"condition"` // sellable / damaged
}

// ReturnResult 退货结果
type ReturnResult struct {
	OrderID          uint `json:"order_id"`
	RestockedItems   int  `json:"restocked_items"`
	SellableQuantity int  `json:"sellable_quantity"`
	DamagedQuantity  int  `json:"damaged_quantity"`
}

// ProcessReturn 处理退货
// 每项数量不得超过该 SKU 的有效发货量；sellable 回补可售，damaged 入损坏池，
// 入库与订单状态流转同事务提交。
func (s *ReturnService) ProcessReturn(orgID, orderID uint, items []ReturnItemInput, userID uint) (*ReturnResult, error) {
	if orgID == 0 || orderID == 0 || len(items) == 0 {
		return nil, ErrReturnInvalid
	}
	order, err := s.orderRepo.GetByIDForOrg(orgID, orderID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !isTransitionAllowed(order.Status, constants.OrderStatusReturned) {
		return nil, ErrOrderStatusInvalid
	}

	shippedBySKU, err := s.shipmentRepo.ShippedQuantityBySKU(orderID)
	if err != nil {
		return nil, err
	}

	requested := map[string]int{}
	for i := range items {
		items[i].SKU = strings.TrimSpace(items[i].SKU)
		items[i].WarehouseID = strings.TrimSpace(items[i].WarehouseID)
		items[i].Condition = strings.ToLower(strings.TrimSpace(items[i].Condition))
		if items[i].Condition == "" {
			items[i].Condition = constants.StockConditionSellable
		}
		if items[i].SKU == "" || items[i].WarehouseID == "" || items[i].Quantity <= 0 {
			return nil, ErrReturnInvalid
		}
		if items[i].Condition != constants.StockConditionSellable && items[i].Condition != constants.StockConditionDamaged {
			return nil, ErrReturnInvalid
		}
		requested[items[i].SKU] += items[i].Quantity
	}
	for sku, quantity := range requested {
		shipped := shippedBySKU[sku]
		if quantity > shipped {
			return nil, &QuantityError{SKU: sku, Requested: quantity, Limit: shipped, Kind: "return"}
		}
	}

	result := &ReturnResult{OrderID: orderID}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			if err := s.inventorySvc.Restock(RestockInput{
				OrganizationID: orgID,
				SKU:            item.SKU,
				WarehouseID:    item.WarehouseID,
				Quantity:       item.Quantity,
				Condition:      item.Condition,
				UserID:         userID,
				ReasonCode:     constants.ReasonCodeReturn,
				Tx:             tx,
			}); err != nil {
				return err
			}
			result.RestockedItems++
			if item.Condition == constants.StockConditionDamaged {
				result.DamagedQuantity += item.Quantity
			} else {
				result.SellableQuantity += item.Quantity
			}
		}
		return s.orderRepo.WithTx(tx).UpdateStatus(orderID, constants.OrderStatusReturned, map[string]interface{}{
			"updated_at": time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("order_return_processed",
		"organization_id", orgID,
		"order_id", orderID,
		"restocked_items", result.RestockedItems,
		"sellable_quantity", result.SellableQuantity,
		"damaged_quantity", result.DamagedQuantity,
	)
	return result, nil
}
