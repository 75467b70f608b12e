package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stockkeeper/internal/carrier"
	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/logger"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FulfillmentService 履约服务
// 承运商调用在库存事务之外：熔断/超时失败时不产生任何库存副作用。
type FulfillmentService struct {
	orderRepo       repository.OrderRepository
	shipmentRepo    repository.ShipmentRepository
	reservationRepo repository.ReservationRepository
	outboxRepo      repository.OutboxRepository
	inventorySvc    *InventoryService
	cancellationSvc *CancellationService
	gateway         *carrier.Gateway
}

// NewFulfillmentService 创建履约服务
func NewFulfillmentService(orderRepo repository.OrderRepository, shipmentRepo repository.ShipmentRepository, reservationRepo repository.ReservationRepository, outboxRepo repository.OutboxRepository, inventorySvc *InventoryService, cancellationSvc *CancellationService, gateway *carrier.Gateway) *FulfillmentService {
	return &FulfillmentService{
		orderRepo:       orderRepo,
		shipmentRepo:    shipmentRepo,
		reservationRepo: reservationRepo,
		outboxRepo:      outboxRepo,
		inventorySvc:    inventorySvc,
		cancellationSvc: cancellationSvc,
		gateway:         gateway,
	}
}

// ShipmentItemInput 发货明细输入
// 二选一定位订单行：order_item_id 精确指定，sku 按下单顺序在同 SKU 行间分摊。
type ShipmentItemInput struct {
	OrderItemID uint   `json:"order_item_id"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
}

// CreateShipmentInput 创建运单输入
// Items 为空时发全部未发余量。
type CreateShipmentInput struct {
	OrganizationID uint
	OrderID        uint
	Provider       string
	Items          []ShipmentItemInput
	UserID         uint
}

// shipmentLine 校验后的发货行
type shipmentLine struct {
	item     models.OrderLineItem
	quantity int
}

// CreateShipment 创建运单
// 先按有效运单汇总计算每行剩余可发量并校验，再调用承运商（经熔断器），
// 成功后在单事务内落运单、永久扣减预留库存并消耗预留单。
func (s *FulfillmentService) CreateShipment(ctx context.Context, input CreateShipmentInput) (*models.Shipment, error) {
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	if input.OrganizationID == 0 || input.OrderID == 0 || provider == "" {
		return nil, ErrShipmentInvalid
	}

	order, err := s.orderRepo.GetByIDForOrg(input.OrganizationID, input.OrderID)
	if err != nil {
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if isTerminalOrderStatus(order.Status) || order.Status == constants.OrderStatusDelivered {
		return nil, ErrOrderStatusInvalid
	}
	if len(order.Items) == 0 {
		return nil, ErrShipmentInvalid
	}

	shipped, err := s.shipmentRepo.ShippedQuantityByItem(input.OrderID)
	if err != nil {
		return nil, err
	}
	lines, err := resolveShipmentLines(order.Items, shipped, input.Items)
	if err != nil {
		return nil, err
	}

	// 承运商下单：失败不触达库存
	request := carrier.ShipmentRequest{
		OrderNo:   order.OrderNo,
		Reference: uuid.NewString(),
		Items:     make([]carrier.ShipmentLine, 0, len(lines)),
	}
	for _, line := range lines {
		request.Items = append(request.Items, carrier.ShipmentLine{SKU: line.item.SKU, Quantity: line.quantity})
	}
	carrierResult, err := s.gateway.CreateShipment(ctx, provider, request)
	if err != nil {
		if errors.Is(err, carrier.ErrBreakerOpen) {
			return nil, ErrCircuitOpen
		}
		if errors.Is(err, carrier.ErrProviderNotConfigured) || errors.Is(err, carrier.ErrProviderInvalid) {
			return nil, ErrShipmentInvalid
		}
		return nil, ErrCarrierRejected
	}

	shipment := &models.Shipment{
		OrderID:        input.OrderID,
		OrganizationID: input.OrganizationID,
		Provider:       provider,
		Status:         constants.ShipmentStatusLabelCreated,
		TrackingNumber: carrierResult.TrackingNumber,
		LabelURL:       carrierResult.LabelURL,
	}
	items := make([]models.ShipmentItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.ShipmentItem{OrderItemID: line.item.ID, Quantity: line.quantity})
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.shipmentRepo.WithTx(tx).Create(shipment, items); err != nil {
			return err
		}
		now := time.Now()
		for _, line := range lines {
			consumptions, err := s.consumeReservations(tx, input.OrganizationID, input.OrderID, line.item.SKU, line.quantity, now)
			if err != nil {
				return err
			}
			for _, consumption := range consumptions {
				if err := s.inventorySvc.DeductOnShip(tx, input.OrganizationID, line.item.SKU, consumption.warehouseID, consumption.quantity, input.UserID, models.JSON{
					"order_id":    input.OrderID,
					"shipment_id": shipment.ID,
					"provider":    provider,
				}); err != nil {
					return err
				}
			}
		}

		if fullyShipped(order.Items, shipped, lines) {
			if err := s.orderRepo.WithTx(tx).UpdateStatus(input.OrderID, constants.OrderStatusShipped, map[string]interface{}{"updated_at": now}); err != nil {
				return err
			}
		}
		return appendEvent(s.outboxRepo.WithTx(tx), input.OrganizationID, constants.EventInventoryUpdated, models.JSON{
			"order_id":        input.OrderID,
			"shipment_id":     shipment.ID,
			"provider":        provider,
			"tracking_number": shipment.TrackingNumber,
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("shipment_created",
		"organization_id", input.OrganizationID,
		"order_id", input.OrderID,
		"shipment_id", shipment.ID,
		"provider", provider,
		"tracking_number", shipment.TrackingNumber,
	)
	return shipment, nil
}

// resolveShipmentLines 计算并校验发货行
// 剩余可发 = 下单量 − 有效运单已发量；显式明细越量时返回携带余量的数量错误。
func resolveShipmentLines(orderItems []models.OrderLineItem, shipped map[uint]int, inputs []ShipmentItemInput) ([]shipmentLine, error) {
	byID := make(map[uint]models.OrderLineItem, len(orderItems))
	for _, item := range orderItems {
		byID[item.ID] = item
	}

	if len(inputs) == 0 {
		lines := make([]shipmentLine, 0, len(orderItems))
		for _, item := range orderItems {
			remaining := item.Quantity - shipped[item.ID]
			if remaining > 0 {
				lines = append(lines, shipmentLine{item: item, quantity: remaining})
			}
		}
		if len(lines) == 0 {
			return nil, ErrAlreadyFullyShipped
		}
		return lines, nil
	}

	lines := make([]shipmentLine, 0, len(inputs))
	pending := make(map[uint]int) // 本次请求内已分配量
	for _, input := range inputs {
		if input.Quantity <= 0 {
			return nil, ErrShipmentInvalid
		}
		if input.OrderItemID != 0 {
			item, ok := byID[input.OrderItemID]
			if !ok {
				return nil, ErrUnknownShipmentItem
			}
			remaining := item.Quantity - shipped[item.ID] - pending[item.ID]
			if input.Quantity > remaining {
				return nil, &QuantityError{SKU: item.SKU, Requested: input.Quantity, Limit: remaining, Kind: "ship"}
			}
			pending[item.ID] += input.Quantity
			lines = append(lines, shipmentLine{item: item, quantity: input.Quantity})
			continue
		}

		sku := strings.TrimSpace(input.SKU)
		if sku == "" {
			return nil, ErrShipmentInvalid
		}
		totalRemaining := 0
		onOrder := false
		for _, item := range orderItems {
			if item.SKU != sku {
				continue
			}
			onOrder = true
			if remaining := item.Quantity - shipped[item.ID] - pending[item.ID]; remaining > 0 {
				totalRemaining += remaining
			}
		}
		if !onOrder {
			return nil, ErrUnknownShipmentItem
		}
		if input.Quantity > totalRemaining {
			return nil, &QuantityError{SKU: sku, Requested: input.Quantity, Limit: totalRemaining, Kind: "ship"}
		}
		need := input.Quantity
		for _, item := range orderItems {
			if need == 0 {
				break
			}
			if item.SKU != sku {
				continue
			}
			remaining := item.Quantity - shipped[item.ID] - pending[item.ID]
			if remaining <= 0 {
				continue
			}
			take := need
			if take > remaining {
				take = remaining
			}
			pending[item.ID] += take
			lines = append(lines, shipmentLine{item: item, quantity: take})
			need -= take
		}
	}
	return lines, nil
}

func fullyShipped(orderItems []models.OrderLineItem, previouslyShipped map[uint]int, lines []shipmentLine) bool {
	added := make(map[uint]int, len(lines))
	for _, line := range lines {
		added[line.item.ID] += line.quantity
	}
	for _, item := range orderItems {
		if previouslyShipped[item.ID]+added[item.ID] < item.Quantity {
			return false
		}
	}
	return true
}

// reservationConsumption 单仓实际消耗量
type reservationConsumption struct {
	warehouseID string
	quantity    int
}

// consumeReservations 发货消耗订单预留单，按仓库归集实际消耗量
// 按创建顺序消耗；订单自身 active 预留覆盖不足时整体失败，
// 发货量绝不允许侵占其他订单在共享水位上的预留。
func (s *FulfillmentService) consumeReservations(tx *gorm.DB, orgID, orderID uint, sku string, quantity int, now time.Time) ([]reservationConsumption, error) {
	reservationRepo := s.reservationRepo.WithTx(tx)
	reservations, err := reservationRepo.ListActiveByOrder(orgID, orderID)
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, 1)
	byWarehouse := make(map[string]int)
	remaining := quantity
	for _, reservation := range reservations {
		if remaining == 0 {
			break
		}
		if reservation.SKU != sku || reservation.Quantity <= 0 {
			continue
		}
		consume := remaining
		if consume > reservation.Quantity {
			consume = reservation.Quantity
		}
		affected, err := reservationRepo.ConsumeQuantity(orgID, reservation.ID, consume, now)
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			continue
		}
		if _, seen := byWarehouse[reservation.WarehouseID]; !seen {
			order = append(order, reservation.WarehouseID)
		}
		byWarehouse[reservation.WarehouseID] += consume
		remaining -= consume
	}
	if remaining > 0 {
		return nil, &QuantityError{SKU: sku, Requested: quantity, Limit: quantity - remaining, Kind: "reserve"}
	}
	consumptions := make([]reservationConsumption, 0, len(order))
	for _, warehouseID := range order {
		consumptions = append(consumptions, reservationConsumption{warehouseID: warehouseID, quantity: byWarehouse[warehouseID]})
	}
	return consumptions, nil
}

// GetShipment 查询运单（跨组织等同不存在）
func (s *FulfillmentService) GetShipment(orgID, shipmentID uint) (*models.Shipment, error) {
	if orgID == 0 || shipmentID == 0 {
		return nil, ErrShipmentInvalid
	}
	shipment, err := s.shipmentRepo.GetByIDForOrg(orgID, shipmentID)
	if err != nil {
		return nil, err
	}
	if shipment == nil {
		return nil, ErrShipmentNotFound
	}
	return shipment, nil
}

// GetLabel 获取面单地址
func (s *FulfillmentService) GetLabel(orgID, shipmentID uint) (string, error) {
	shipment, err := s.GetShipment(orgID, shipmentID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(shipment.LabelURL) == "" {
		return "", ErrLabelNotFound
	}
	return shipment.LabelURL, nil
}

// TrackShipment 查询承运商轨迹并同步本地运单状态
func (s *FulfillmentService) TrackShipment(ctx context.Context, orgID, shipmentID uint) (*models.Shipment, error) {
	shipment, err := s.GetShipment(orgID, shipmentID)
	if err != nil {
		return nil, err
	}
	if shipment.TrackingNumber == "" {
		return shipment, nil
	}
	result, err := s.gateway.Track(ctx, shipment.Provider, shipment.TrackingNumber)
	if err != nil {
		if errors.Is(err, carrier.ErrBreakerOpen) {
			return nil, ErrCircuitOpen
		}
		return nil, ErrCarrierRejected
	}
	next := mapCarrierStatus(result.Status)
	if next != "" && next != shipment.Status {
		if err := s.shipmentRepo.UpdateStatus(shipment.ID, next); err != nil {
			return nil, err
		}
		shipment.Status = next
		s.syncOrderStatus(orgID, shipment.OrderID, next)
	}
	return shipment, nil
}

// SyncTrackingStatus 按已知承运商状态同步运单（轮询 worker 使用）
func (s *FulfillmentService) SyncTrackingStatus(shipment *models.Shipment, carrierStatus string) error {
	if shipment == nil {
		return ErrShipmentInvalid
	}
	next := mapCarrierStatus(carrierStatus)
	if next == "" || next == shipment.Status {
		return nil
	}
	if err := s.shipmentRepo.UpdateStatus(shipment.ID, next); err != nil {
		return err
	}
	shipment.Status = next
	s.syncOrderStatus(shipment.OrganizationID, shipment.OrderID, next)
	return nil
}

// mapCarrierStatus 承运商状态映射为本地运单状态
func mapCarrierStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "label_created", "created", "accepted":
		return constants.ShipmentStatusLabelCreated
	case "in_transit", "transit", "out_for_delivery":
		return constants.ShipmentStatusInTransit
	case "delivered":
		return constants.ShipmentStatusDelivered
	case "failed", "exception":
		return constants.ShipmentStatusFailed
	case "returned", "return_to_sender":
		return constants.ShipmentStatusReturned
	default:
		return ""
	}
}

// syncOrderStatus 运单状态推进订单状态（尽力而为，失败仅告警）
func (s *FulfillmentService) syncOrderStatus(orgID, orderID uint, shipmentStatus string) {
	var target string
	switch shipmentStatus {
	case constants.ShipmentStatusInTransit:
		target = constants.OrderStatusInTransit
	case constants.ShipmentStatusDelivered:
		target = constants.OrderStatusDelivered
	default:
		return
	}
	order, err := s.orderRepo.GetByIDForOrg(orgID, orderID)
	if err != nil || order == nil {
		return
	}
	if order.Status == target || !isTransitionAllowed(order.Status, target) {
		return
	}
	if err := s.orderRepo.UpdateStatus(orderID, target, map[string]interface{}{"updated_at": time.Now()}); err != nil {
		logger.Warnw("order_status_sync_failed",
			"organization_id", orgID,
			"order_id", orderID,
			"target_status", target,
			"error", err,
		)
	}
}

// CancelShipment 取消运单
// 已送达/已退回的运单不可取消；其余置为 failed 并联动取消订单释放剩余预留。
func (s *FulfillmentService) CancelShipment(orgID, shipmentID uint, reason string, userID uint) (*models.Shipment, error) {
	shipment, err := s.GetShipment(orgID, shipmentID)
	if err != nil {
		return nil, err
	}
	if shipment.Status == constants.ShipmentStatusDelivered || shipment.Status == constants.ShipmentStatusReturned {
		return nil, ErrShipmentNotCancelable
	}
	if err := s.shipmentRepo.UpdateStatus(shipment.ID, constants.ShipmentStatusFailed); err != nil {
		return nil, err
	}
	shipment.Status = constants.ShipmentStatusFailed

	if s.cancellationSvc != nil {
		if _, err := s.cancellationSvc.CancelOrder(orgID, shipment.OrderID, reason, userID); err != nil &&
			!errors.Is(err, ErrOrderStatusInvalid) {
			logger.Warnw("shipment_cancel_order_failed",
				"organization_id", orgID,
				"shipment_id", shipment.ID,
				"order_id", shipment.OrderID,
				"error", err,
			)
		}
	}
	return shipment, nil
}
