package repository

import (
	"errors"
	"strings"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"

	"gorm.io/gorm"
)

// ShipmentRepository 运单数据访问接口
type ShipmentRepository interface {
	Create(shipment *models.Shipment, items []models.ShipmentItem) error
	GetByIDForOrg(orgID, id uint) (*models.Shipment, error)
	ListEligibleByOrder(orderID uint) ([]models.Shipment, error)
	ShippedQuantityByItem(orderID uint) (map[uint]int, error)
	ShippedQuantityBySKU(orderID uint) (map[string]int, error)
	UpdateStatus(id uint, status string) error
	ListForTracking(limit int) ([]models.Shipment, error)
	WithTx(tx *gorm.DB) ShipmentRepository
}

// GormShipmentRepository GORM 实现
type GormShipmentRepository struct {
	db *gorm.DB
}

// NewShipmentRepository 创建运单仓库
func NewShipmentRepository(db *gorm.DB) *GormShipmentRepository {
	return &GormShipmentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormShipmentRepository) WithTx(tx *gorm.DB) ShipmentRepository {
	if tx == nil {
		return r
	}
	return &GormShipmentRepository{db: tx}
}

// eligibleStatuses 计入已发数量的运单状态（cancelled/returned 不计入）
func eligibleStatuses() []string {
	return []string{
		constants.ShipmentStatusPending,
		constants.ShipmentStatusLabelCreated,
		constants.ShipmentStatusInTransit,
		constants.ShipmentStatusDelivered,
	}
}

// Create 创建运单及明细
func (r *GormShipmentRepository) Create(shipment *models.Shipment, items []models.ShipmentItem) error {
	if shipment == nil {
		return errors.New("shipment is nil")
	}
	if len(items) == 0 {
		return errors.New("shipment items empty")
	}
	if err := r.db.Create(shipment).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].ShipmentID = shipment.ID
	}
	if err := r.db.Create(&items).Error; err != nil {
		return err
	}
	shipment.Items = items
	return nil
}

// GetByIDForOrg 按组织与ID获取运单（含明细）；跨组织等同不存在
func (r *GormShipmentRepository) GetByIDForOrg(orgID, id uint) (*models.Shipment, error) {
	if orgID == 0 || id == 0 {
		return nil, errors.New("invalid shipment id")
	}
	var shipment models.Shipment
	if err := r.db.Preload("Items").
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&shipment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shipment, nil
}

// ListEligibleByOrder 获取订单下计入发货量的运单（含明细）
func (r *GormShipmentRepository) ListEligibleByOrder(orderID uint) ([]models.Shipment, error) {
	if orderID == 0 {
		return nil, errors.New("invalid order id")
	}
	var shipments []models.Shipment
	if err := r.db.Preload("Items").
		Where("order_id = ? AND status IN ?", orderID, eligibleStatuses()).
		Order("id ASC").Find(&shipments).Error; err != nil {
		return nil, err
	}
	return shipments, nil
}

// ShippedQuantityByItem 按订单行项目汇总有效运单发货量
func (r *GormShipmentRepository) ShippedQuantityByItem(orderID uint) (map[uint]int, error) {
	if orderID == 0 {
		return nil, errors.New("invalid order id")
	}
	type row struct {
		OrderItemID uint
		Total       int
	}
	var rows []row
	if err := r.db.Model(&models.ShipmentItem{}).
		Select("shipment_items.order_item_id, COALESCE(SUM(shipment_items.quantity),0) AS total").
		Joins("JOIN shipments ON shipments.id = shipment_items.shipment_id").
		Where("shipments.order_id = ? AND shipments.status IN ? AND shipments.deleted_at IS NULL", orderID, eligibleStatuses()).
		Group("shipment_items.order_item_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	shipped := make(map[uint]int, len(rows))
	for _, row := range rows {
		shipped[row.OrderItemID] = row.Total
	}
	return shipped, nil
}

// ShippedQuantityBySKU 按 SKU 汇总有效运单发货量（退货校验使用）
func (r *GormShipmentRepository) ShippedQuantityBySKU(orderID uint) (map[string]int, error) {
	if orderID == 0 {
		return nil, errors.New("invalid order id")
	}
	type row struct {
		SKU   string
		Total int
	}
	var rows []row
	if err := r.db.Model(&models.ShipmentItem{}).
		Select("order_line_items.sku, COALESCE(SUM(shipment_items.quantity),0) AS total").
		Joins("JOIN shipments ON shipments.id = shipment_items.shipment_id").
		Joins("JOIN order_line_items ON order_line_items.id = shipment_items.order_item_id").
		Where("shipments.order_id = ? AND shipments.status IN ? AND shipments.deleted_at IS NULL", orderID, eligibleStatuses()).
		Group("order_line_items.sku").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	shipped := make(map[string]int, len(rows))
	for _, row := range rows {
		shipped[strings.TrimSpace(row.SKU)] = row.Total
	}
	return shipped, nil
}

// UpdateStatus 更新运单状态
func (r *GormShipmentRepository) UpdateStatus(id uint, status string) error {
	if id == 0 {
		return errors.New("invalid shipment id")
	}
	return r.db.Model(&models.Shipment{}).Where("id = ?", id).Update("status", status).Error
}

// ListForTracking 获取待轮询物流状态的在途运单
func (r *GormShipmentRepository) ListForTracking(limit int) ([]models.Shipment, error) {
	query := r.db.Where("status IN ?", []string{
		constants.ShipmentStatusLabelCreated,
		constants.ShipmentStatusInTransit,
	}).Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var shipments []models.Shipment
	if err := query.Find(&shipments).Error; err != nil {
		return nil, err
	}
	return shipments, nil
}
