package repository

import (
	"errors"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"

	"gorm.io/gorm"
)

// OrderRepository 订单数据访问接口（履约核心只读写状态与行项目）
type OrderRepository interface {
	GetByIDForOrg(orgID, id uint) (*models.Order, error)
	ListItems(orderID uint) ([]models.OrderLineItem, error)
	GetItemByID(id uint) (*models.OrderLineItem, error)
	UpdateStatus(id uint, status string, updates map[string]interface{}) error
	ClaimCancel(orgID, id uint, reason string, canceledAt time.Time) (int64, error)
	Create(order *models.Order, items []models.OrderLineItem) error
	WithTx(tx *gorm.DB) OrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) OrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Create 创建订单及行项目
func (r *GormOrderRepository) Create(order *models.Order, items []models.OrderLineItem) error {
	if order == nil {
		return errors.New("order is nil")
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByIDForOrg 按组织与ID获取订单（含行项目）；跨组织等同不存在
func (r *GormOrderRepository) GetByIDForOrg(orgID, id uint) (*models.Order, error) {
	if orgID == 0 || id == 0 {
		return nil, errors.New("invalid order id")
	}
	var order models.Order
	if err := r.db.Preload("Items").
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListItems 获取订单行项目
func (r *GormOrderRepository) ListItems(orderID uint) ([]models.OrderLineItem, error) {
	if orderID == 0 {
		return nil, errors.New("invalid order id")
	}
	var items []models.OrderLineItem
	if err := r.db.Where("order_id = ?", orderID).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// GetItemByID 获取单个行项目
func (r *GormOrderRepository) GetItemByID(id uint) (*models.OrderLineItem, error) {
	if id == 0 {
		return nil, errors.New("invalid order item id")
	}
	var item models.OrderLineItem
	if err := r.db.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// UpdateStatus 更新订单状态
func (r *GormOrderRepository) UpdateStatus(id uint, status string, updates map[string]interface{}) error {
	if id == 0 {
		return errors.New("invalid order id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = status
	return r.db.Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

// ClaimCancel 抢占式取消：仅当订单尚未取消时置为 cancelled
// 并发取消同一订单时恰好一个调用方命中，其余观察到幂等结果。
func (r *GormOrderRepository) ClaimCancel(orgID, id uint, reason string, canceledAt time.Time) (int64, error) {
	if orgID == 0 || id == 0 {
		return 0, errors.New("invalid order id")
	}
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND organization_id = ? AND status <> ?", id, orgID, constants.OrderStatusCancelled).
		Updates(map[string]interface{}{
			"status":        constants.OrderStatusCancelled,
			"cancel_reason": reason,
			"canceled_at":   canceledAt,
			"updated_at":    canceledAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
