package repository

import (
	"errors"
	"strings"

	"github.com/stockkeeper/internal/models"

	"gorm.io/gorm"
)

// InventoryRepository 库存水位数据访问接口
// 所有变更原语均为条件 UPDATE：命中行数为 0 表示前置条件不满足，由上层决定语义。
type InventoryRepository interface {
	Get(orgID uint, sku, warehouseID string) (*models.InventoryLevel, error)
	ListByOrg(orgID uint) ([]models.InventoryLevel, error)
	Create(level *models.InventoryLevel) error
	EnsureRow(orgID uint, sku, warehouseID string) (*models.InventoryLevel, bool, error)
	ReserveStock(orgID uint, sku, warehouseID string, quantity int) (int64, error)
	ReleaseStock(orgID uint, sku, warehouseID string, quantity int) (int64, error)
	DeductReserved(orgID uint, sku, warehouseID string, quantity int) (int64, error)
	AddAvailable(orgID uint, sku, warehouseID string, quantity int) (int64, error)
	AddDamaged(orgID uint, sku, warehouseID string, quantity int) (int64, error)
	WithTx(tx *gorm.DB) InventoryRepository
}

// GormInventoryRepository GORM 实现
type GormInventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository 创建库存仓库
func NewInventoryRepository(db *gorm.DB) *GormInventoryRepository {
	return &GormInventoryRepository{db: db}
}

// WithTx 绑定事务
func (r *GormInventoryRepository) WithTx(tx *gorm.DB) InventoryRepository {
	if tx == nil {
		return r
	}
	return &GormInventoryRepository{db: tx}
}

func normalizeLevelKey(orgID uint, sku, warehouseID string) (string, string, error) {
	s := strings.TrimSpace(sku)
	w := strings.TrimSpace(warehouseID)
	if orgID == 0 || s == "" || w == "" {
		return "", "", errors.New("invalid inventory level key")
	}
	return s, w, nil
}

// Get 按（组织, SKU, 仓库）获取库存水位
func (r *GormInventoryRepository) Get(orgID uint, sku, warehouseID string) (*models.InventoryLevel, error) {
	s, w, err := normalizeLevelKey(orgID, sku, warehouseID)
	if err != nil {
		return nil, err
	}
	var level models.InventoryLevel
	if err := r.db.Where("organization_id = ? AND sku = ? AND warehouse_id = ?", orgID, s, w).First(&level).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &level, nil
}

// ListByOrg 获取组织下全部库存水位
func (r *GormInventoryRepository) ListByOrg(orgID uint) ([]models.InventoryLevel, error) {
	if orgID == 0 {
		return nil, errors.New("invalid organization id")
	}
	var levels []models.InventoryLevel
	if err := r.db.Where("organization_id = ?", orgID).Order("sku ASC, warehouse_id ASC").Find(&levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}

// Create 创建库存水位行
func (r *GormInventoryRepository) Create(level *models.InventoryLevel) error {
	if level == nil {
		return errors.New("inventory level is nil")
	}
	return r.db.Create(level).Error
}

// EnsureRow 获取库存水位行，不存在则以零库存补建；第二个返回值标记是否新建
func (r *GormInventoryRepository) EnsureRow(orgID uint, sku, warehouseID string) (*models.InventoryLevel, bool, error) {
	s, w, err := normalizeLevelKey(orgID, sku, warehouseID)
	if err != nil {
		return nil, false, err
	}
	level, err := r.Get(orgID, s, w)
	if err != nil {
		return nil, false, err
	}
	if level != nil {
		return level, false, nil
	}
	level = &models.InventoryLevel{
		OrganizationID: orgID,
		SKU:            s,
		WarehouseID:    w,
	}
	if err := r.db.Create(level).Error; err != nil {
		// 并发补建时唯一索引冲突，回读即可
		existing, getErr := r.Get(orgID, s, w)
		if getErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return level, true, nil
}

// ReserveStock 预占库存：available→reserved，可售不足时命中 0 行
func (r *GormInventoryRepository) ReserveStock(orgID uint, sku, warehouseID string, quantity int) (int64, error) {
	s, w, err := normalizeLevelKey(orgID, sku, warehouseID)
	if err != nil || quantity <= 0 {
		return 0, errors.New("invalid stock reserve params")
	}
	result := r.db.Model(&models.InventoryLevel{}).
		Where("organization_id = ? AND sku = ? AND warehouse_id = ? AND available >= ?", orgID, s, w, quantity).
		Updates(map[string]interface{}{
			"available": gorm.Expr("available - ?", quantity),
			"reserved":  gorm.Expr("reserved + ?", quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ReleaseStock 释放预占：reserved→available，预占不足时命中 0 行
func (r *GormInventoryRepository) ReleaseStock(orgID uint, sku, warehouseID string, quantity int) (int64, error) {
	s, w, err := normalizeLevelKey(orgID, sku, warehouseID)
	if err != nil || quantity <= 0 {
		return 0, errors.New("invalid stock release params")
	}
	result := r.db.Model(&models.InventoryLevel{}).
		Where("organization_id = ? AND sku = ? AND warehouse_id = ? AND reserved >= ?", orgID, s, w, quantity).
		Updates(map[string]interface{}{
			"available": gorm.Expr("available + ?", quantity),
			"reserved":  gorm.Expr("reserved - ?", quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeductReserved 发货永久扣减：仅减 reserved，不回补 available
func (r *GormInventoryRepository) DeductReserved(orgID uint, sku, warehouseID string, quantity int) (int64, error) {
	s, w, err := normalizeLevelKey(orgID, sku, warehouseID)
	if err != nil || quantity <= 0 {
		return 0, errors.New("invalid stock deduct params")
	}
	result := r.db.Model(&models.InventoryLevel{}).
		Where("organization_id = ? AND sku = ? AND warehouse_id = ? AND reserved >= ?", orgID, s, w, quantity).
		Updates(map[string]interface{}{
			"reserved": gorm.Expr("reserved - ?", quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// AddAvailable 增加可售库存（入库/可售退货）
func (r *GormInventoryRepository) AddAvailable(orgID uint, sku, warehouseID string, quantity int) (int64, error) {
	s, w, err := normalizeLevelKey(orgID, sku, warehouseID)
	if err != nil || quantity <= 0 {
		return 0, errors.New("invalid stock restock params")
	}
	result := r.db.Model(&models.InventoryLevel{}).
		Where("organization_id = ? AND sku = ? AND warehouse_id = ?", orgID, s, w).
		Updates(map[string]interface{}{
			"available": gorm.Expr("available + ?", quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// AddDamaged 增加损坏库存（损坏退货）
func (r *GormInventoryRepository) AddDamaged(orgID uint, sku, warehouseID string, quantity int) (int64, error) {
	s, w, err := normalizeLevelKey(orgID, sku, warehouseID)
	if err != nil || quantity <= 0 {
		return 0, errors.New("invalid stock damage params")
	}
	result := r.db.Model(&models.InventoryLevel{}).
		Where("organization_id = ? AND sku = ? AND warehouse_id = ?", orgID, s, w).
		Updates(map[string]interface{}{
			"damaged": gorm.Expr("damaged + ?", quantity),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
