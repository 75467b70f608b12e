package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"

	"gorm.io/gorm"
)

// OutboxRepository 发件箱数据访问接口
// 事件与业务变更同事务落库，中继 worker 异步投递，保证至少一次送达。
type OutboxRepository interface {
	Append(event *models.OutboxEvent) error
	GetByID(id string) (*models.OutboxEvent, error)
	ListPending(limit int) ([]models.OutboxEvent, error)
	MarkDispatched(id string, dispatchedAt time.Time) error
	MarkFailed(id string) error
	WithTx(tx *gorm.DB) OutboxRepository
}

// GormOutboxRepository GORM 实现
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository 创建发件箱仓库
func NewOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) OutboxRepository {
	if tx == nil {
		return r
	}
	return &GormOutboxRepository{db: tx}
}

// Append 追加一条待投递事件
func (r *GormOutboxRepository) Append(event *models.OutboxEvent) error {
	if event == nil {
		return errors.New("outbox event is nil")
	}
	return r.db.Create(event).Error
}

// GetByID 按ID获取事件
func (r *GormOutboxRepository) GetByID(id string) (*models.OutboxEvent, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, errors.New("invalid outbox event id")
	}
	var event models.OutboxEvent
	if err := r.db.Where("id = ?", trimmed).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// ListPending 按创建时间升序获取待投递事件
func (r *GormOutboxRepository) ListPending(limit int) ([]models.OutboxEvent, error) {
	query := r.db.Where("status = ?", constants.OutboxStatusPending).Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var events []models.OutboxEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// MarkDispatched 标记事件已投递
func (r *GormOutboxRepository) MarkDispatched(id string, dispatchedAt time.Time) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return errors.New("invalid outbox event id")
	}
	return r.db.Model(&models.OutboxEvent{}).
		Where("id = ?", trimmed).
		Updates(map[string]interface{}{
			"status":        constants.OutboxStatusDispatched,
			"dispatched_at": dispatchedAt,
		}).Error
}

// MarkFailed 投递失败计数；事件保持 pending，待下一轮重试
func (r *GormOutboxRepository) MarkFailed(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return errors.New("invalid outbox event id")
	}
	return r.db.Model(&models.OutboxEvent{}).
		Where("id = ?", trimmed).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}
