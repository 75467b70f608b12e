package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stockkeeper/internal/models"

	"gorm.io/gorm"
)

// AuditLogRepository 审计流水数据访问接口
// 仅追加：接口不提供 update/delete 单条记录的能力，归档删除按保留策略整批执行。
type AuditLogRepository interface {
	Append(entry *models.AuditEntry) error
	GetByID(orgID uint, id string) (*models.AuditEntry, error)
	List(orgID uint, filter AuditLogFilter) ([]models.AuditEntry, int64, error)
	VarianceSummary(orgID uint, filter AuditLogFilter) (VarianceSummaryRow, error)
	ActivityByUser(orgID uint, filter AuditLogFilter) ([]UserActivityRow, error)
	ActivityByAction(orgID uint, filter AuditLogFilter) ([]ActionActivityRow, error)
	DailyTrends(orgID uint, filter AuditLogFilter) ([]DailyTrendRow, error)
	CountOlderThan(orgID uint, cutoff time.Time) (int64, error)
	ListOlderThan(orgID uint, cutoff time.Time, limit int) ([]models.AuditEntry, error)
	DeleteOlderThan(orgID uint, cutoff time.Time) (int64, error)
	WithTx(tx *gorm.DB) AuditLogRepository
}

// VarianceSummaryRow 差异汇总统计
type VarianceSummaryRow struct {
	TotalVariance    int64
	AbsoluteVariance int64
	PositiveVariance int64
	NegativeVariance int64
	ItemCount        int64
}

// UserActivityRow 按操作人聚合统计
type UserActivityRow struct {
	UserID     uint
	EntryCount int64
}

// ActionActivityRow 按动作聚合统计
type ActionActivityRow struct {
	Action     string
	EntryCount int64
}

// DailyTrendRow 按天趋势统计
type DailyTrendRow struct {
	Day           string
	EntryCount    int64
	TotalVariance int64
}

// GormAuditLogRepository GORM 实现
type GormAuditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计流水仓库
func NewAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAuditLogRepository) WithTx(tx *gorm.DB) AuditLogRepository {
	if tx == nil {
		return r
	}
	return &GormAuditLogRepository{db: tx}
}

// Append 追加一条审计记录
func (r *GormAuditLogRepository) Append(entry *models.AuditEntry) error {
	if entry == nil {
		return errors.New("audit entry is nil")
	}
	return r.db.Create(entry).Error
}

// GetByID 按组织与ID获取审计记录；跨组织等同不存在
func (r *GormAuditLogRepository) GetByID(orgID uint, id string) (*models.AuditEntry, error) {
	trimmed := strings.TrimSpace(id)
	if orgID == 0 || trimmed == "" {
		return nil, errors.New("invalid audit entry id")
	}
	var entry models.AuditEntry
	if err := r.db.Where("organization_id = ? AND id = ?", orgID, trimmed).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *GormAuditLogRepository) filtered(orgID uint, filter AuditLogFilter) *gorm.DB {
	query := r.db.Model(&models.AuditEntry{}).Where("organization_id = ?", orgID)
	if sku := strings.TrimSpace(filter.SKU); sku != "" {
		query = query.Where("sku = ?", sku)
	}
	if warehouseID := strings.TrimSpace(filter.WarehouseID); warehouseID != "" {
		query = query.Where("warehouse_id = ?", warehouseID)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		query = query.Where("action = ?", action)
	}
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if reasonCode := strings.TrimSpace(filter.ReasonCode); reasonCode != "" {
		query = query.Where("reason_code = ?", reasonCode)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}
	return query
}

var auditSortColumns = map[string]string{
	"created_at":   "created_at",
	"sku":          "sku",
	"action":       "action",
	"variance":     "variance",
	"new_quantity": "new_quantity",
}

// List 分页查询审计记录，默认按创建时间倒序
func (r *GormAuditLogRepository) List(orgID uint, filter AuditLogFilter) ([]models.AuditEntry, int64, error) {
	if orgID == 0 {
		return nil, 0, errors.New("invalid organization id")
	}
	query := r.filtered(orgID, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := auditSortColumns[strings.ToLower(strings.TrimSpace(filter.SortBy))]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(strings.TrimSpace(filter.SortOrder), "asc") {
		direction = "ASC"
	}

	var entries []models.AuditEntry
	if err := applyPagination(query.Order(column+" "+direction+", id ASC"), filter.Page, filter.PageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// VarianceSummary 差异汇总：总差异、绝对差异、正差异、负差异与条目数
func (r *GormAuditLogRepository) VarianceSummary(orgID uint, filter AuditLogFilter) (VarianceSummaryRow, error) {
	result := VarianceSummaryRow{}
	if orgID == 0 {
		return result, errors.New("invalid organization id")
	}
	row := struct {
		Total    *int64
		Absolute *int64
		Positive *int64
		Negative *int64
		Count    int64
	}{}
	if err := r.filtered(orgID, filter).
		Select("COALESCE(SUM(variance),0) AS total, " +
			"COALESCE(SUM(ABS(variance)),0) AS absolute, " +
			"COALESCE(SUM(CASE WHEN variance > 0 THEN variance ELSE 0 END),0) AS positive, " +
			"COALESCE(SUM(CASE WHEN variance < 0 THEN variance ELSE 0 END),0) AS negative, " +
			"COUNT(*) AS count").
		Scan(&row).Error; err != nil {
		return result, err
	}
	if row.Total != nil {
		result.TotalVariance = *row.Total
	}
	if row.Absolute != nil {
		result.AbsoluteVariance = *row.Absolute
	}
	if row.Positive != nil {
		result.PositiveVariance = *row.Positive
	}
	if row.Negative != nil {
		result.NegativeVariance = *row.Negative
	}
	result.ItemCount = row.Count
	return result, nil
}

// ActivityByUser 按操作人聚合
func (r *GormAuditLogRepository) ActivityByUser(orgID uint, filter AuditLogFilter) ([]UserActivityRow, error) {
	if orgID == 0 {
		return nil, errors.New("invalid organization id")
	}
	var rows []UserActivityRow
	if err := r.filtered(orgID, filter).
		Select("user_id, COUNT(*) AS entry_count").
		Group("user_id").
		Order("entry_count DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ActivityByAction 按动作聚合
func (r *GormAuditLogRepository) ActivityByAction(orgID uint, filter AuditLogFilter) ([]ActionActivityRow, error) {
	if orgID == 0 {
		return nil, errors.New("invalid organization id")
	}
	var rows []ActionActivityRow
	if err := r.filtered(orgID, filter).
		Select("action, COUNT(*) AS entry_count").
		Group("action").
		Order("entry_count DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DailyTrends 按天趋势
func (r *GormAuditLogRepository) DailyTrends(orgID uint, filter AuditLogFilter) ([]DailyTrendRow, error) {
	if orgID == 0 {
		return nil, errors.New("invalid organization id")
	}
	dayExpr := dayBucketExpr(r.db, "created_at")
	var rows []DailyTrendRow
	if err := r.filtered(orgID, filter).
		Select(fmt.Sprintf("%s AS day, COUNT(*) AS entry_count, COALESCE(SUM(variance),0) AS total_variance", dayExpr)).
		Group(dayExpr).
		Order("day ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountOlderThan 统计早于 cutoff 的记录数（保留策略候选）
func (r *GormAuditLogRepository) CountOlderThan(orgID uint, cutoff time.Time) (int64, error) {
	if orgID == 0 {
		return 0, errors.New("invalid organization id")
	}
	var count int64
	if err := r.db.Model(&models.AuditEntry{}).
		Where("organization_id = ? AND created_at < ?", orgID, cutoff).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListOlderThan 列出早于 cutoff 的记录
func (r *GormAuditLogRepository) ListOlderThan(orgID uint, cutoff time.Time, limit int) ([]models.AuditEntry, error) {
	if orgID == 0 {
		return nil, errors.New("invalid organization id")
	}
	query := r.db.Where("organization_id = ? AND created_at < ?", orgID, cutoff).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []models.AuditEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteOlderThan 按保留策略整批删除早于 cutoff 的记录
func (r *GormAuditLogRepository) DeleteOlderThan(orgID uint, cutoff time.Time) (int64, error) {
	if orgID == 0 {
		return 0, errors.New("invalid organization id")
	}
	result := r.db.Where("organization_id = ? AND created_at < ?", orgID, cutoff).Delete(&models.AuditEntry{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
