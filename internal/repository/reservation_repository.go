package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"

	"gorm.io/gorm"
)

// ReservationRepository 预留单数据访问接口
// 状态流转通过条件 UPDATE 完成：并发释放同一预留单时恰好一个调用方命中。
type ReservationRepository interface {
	Create(reservation *models.Reservation) error
	GetByID(orgID uint, id string) (*models.Reservation, error)
	ListByOrder(orgID, orderID uint) ([]models.Reservation, error)
	ListActiveByOrder(orgID, orderID uint) ([]models.Reservation, error)
	ListActiveBySKU(orgID uint, sku string) ([]models.Reservation, error)
	ListActiveOlderThan(orgID uint, cutoff time.Time, limit int) ([]models.Reservation, error)
	CountActiveOlderThan(orgID uint, cutoff time.Time) (int64, error)
	OrganizationsWithActiveOlderThan(cutoff time.Time) ([]uint, error)
	ClaimRelease(orgID uint, id, targetStatus string, releasedAt time.Time) (int64, error)
	ConsumeQuantity(orgID uint, id string, quantity int, consumedAt time.Time) (int64, error)
	WithTx(tx *gorm.DB) ReservationRepository
}

// GormReservationRepository GORM 实现
type GormReservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository 创建预留单仓库
func NewReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReservationRepository) WithTx(tx *gorm.DB) ReservationRepository {
	if tx == nil {
		return r
	}
	return &GormReservationRepository{db: tx}
}

// Create 创建预留单
func (r *GormReservationRepository) Create(reservation *models.Reservation) error {
	if reservation == nil {
		return errors.New("reservation is nil")
	}
	return r.db.Create(reservation).Error
}

// GetByID 按组织与ID获取预留单；跨组织等同不存在
func (r *GormReservationRepository) GetByID(orgID uint, id string) (*models.Reservation, error) {
	trimmed := strings.TrimSpace(id)
	if orgID == 0 || trimmed == "" {
		return nil, errors.New("invalid reservation id")
	}
	var reservation models.Reservation
	if err := r.db.Where("organization_id = ? AND id = ?", orgID, trimmed).First(&reservation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reservation, nil
}

// ListByOrder 获取订单关联的全部预留单
func (r *GormReservationRepository) ListByOrder(orgID, orderID uint) ([]models.Reservation, error) {
	if orgID == 0 || orderID == 0 {
		return nil, errors.New("invalid order id")
	}
	var reservations []models.Reservation
	if err := r.db.Where("organization_id = ? AND order_id = ?", orgID, orderID).
		Order("created_at ASC").Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// ListActiveByOrder 获取订单下处于 active 状态的预留单
func (r *GormReservationRepository) ListActiveByOrder(orgID, orderID uint) ([]models.Reservation, error) {
	if orgID == 0 || orderID == 0 {
		return nil, errors.New("invalid order id")
	}
	var reservations []models.Reservation
	if err := r.db.Where("organization_id = ? AND order_id = ? AND status = ?",
		orgID, orderID, constants.ReservationStatusActive).
		Order("created_at ASC").Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// ListActiveBySKU 获取组织下某 SKU 的全部 active 预留单（严格组织隔离）
func (r *GormReservationRepository) ListActiveBySKU(orgID uint, sku string) ([]models.Reservation, error) {
	trimmed := strings.TrimSpace(sku)
	if orgID == 0 || trimmed == "" {
		return nil, errors.New("invalid sku")
	}
	var reservations []models.Reservation
	if err := r.db.Where("organization_id = ? AND sku = ? AND status = ?",
		orgID, trimmed, constants.ReservationStatusActive).
		Order("created_at ASC").Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// ListActiveOlderThan 获取早于 cutoff 创建的 active 预留单，limit 限制批量上限
func (r *GormReservationRepository) ListActiveOlderThan(orgID uint, cutoff time.Time, limit int) ([]models.Reservation, error) {
	if orgID == 0 {
		return nil, errors.New("invalid organization id")
	}
	query := r.db.Where("organization_id = ? AND status = ? AND created_at < ?",
		orgID, constants.ReservationStatusActive, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var reservations []models.Reservation
	if err := query.Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// CountActiveOlderThan 统计早于 cutoff 创建的 active 预留单数量
func (r *GormReservationRepository) CountActiveOlderThan(orgID uint, cutoff time.Time) (int64, error) {
	if orgID == 0 {
		return 0, errors.New("invalid organization id")
	}
	var count int64
	if err := r.db.Model(&models.Reservation{}).
		Where("organization_id = ? AND status = ? AND created_at < ?",
			orgID, constants.ReservationStatusActive, cutoff).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// OrganizationsWithActiveOlderThan 列出存在过期 active 预留单的组织（清理循环使用）
func (r *GormReservationRepository) OrganizationsWithActiveOlderThan(cutoff time.Time) ([]uint, error) {
	var orgIDs []uint
	if err := r.db.Model(&models.Reservation{}).
		Where("status = ? AND created_at < ?", constants.ReservationStatusActive, cutoff).
		Distinct("organization_id").
		Order("organization_id ASC").
		Pluck("organization_id", &orgIDs).Error; err != nil {
		return nil, err
	}
	return orgIDs, nil
}

// ClaimRelease 抢占式释放：仅当预留单仍为 active 时置为目标终态
// 返回命中行数；0 表示已被其他调用方释放或预留单不存在。
func (r *GormReservationRepository) ClaimRelease(orgID uint, id, targetStatus string, releasedAt time.Time) (int64, error) {
	trimmed := strings.TrimSpace(id)
	if orgID == 0 || trimmed == "" || strings.TrimSpace(targetStatus) == "" {
		return 0, errors.New("invalid reservation release params")
	}
	result := r.db.Model(&models.Reservation{}).
		Where("organization_id = ? AND id = ? AND status = ?", orgID, trimmed, constants.ReservationStatusActive).
		Updates(map[string]interface{}{
			"status":      targetStatus,
			"released_at": releasedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ConsumeQuantity 发货消耗预留量：quantity 足额时扣减，消耗到 0 自动转 released
// 剩余量代表未发货部分，订单取消时仅释放该剩余。
func (r *GormReservationRepository) ConsumeQuantity(orgID uint, id string, quantity int, consumedAt time.Time) (int64, error) {
	trimmed := strings.TrimSpace(id)
	if orgID == 0 || trimmed == "" || quantity <= 0 {
		return 0, errors.New("invalid reservation consume params")
	}
	result := r.db.Model(&models.Reservation{}).
		Where("organization_id = ? AND id = ? AND status = ? AND quantity >= ?",
			orgID, trimmed, constants.ReservationStatusActive, quantity).
		Update("quantity", gorm.Expr("quantity - ?", quantity))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}
	if err := r.db.Model(&models.Reservation{}).
		Where("organization_id = ? AND id = ? AND status = ? AND quantity = 0",
			orgID, trimmed, constants.ReservationStatusActive).
		Updates(map[string]interface{}{
			"status":      constants.ReservationStatusReleased,
			"released_at": consumedAt,
		}).Error; err != nil {
		return 0, err
	}
	return result.RowsAffected, nil
}
