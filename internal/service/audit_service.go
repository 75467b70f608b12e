package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AuditService 库存审计服务
// 流水仅追加：任何改写/删除单条记录的请求都返回 ErrAuditImmutable，
// 仅保留策略允许按时限整批归档删除。
type AuditService struct {
	auditRepo     repository.AuditLogRepository
	retentionDays int
}

// NewAuditService 创建审计服务
func NewAuditService(auditRepo repository.AuditLogRepository, retentionDays int) *AuditService {
	if retentionDays <= 0 {
		retentionDays = constants.DefaultRetentionDays
	}
	return &AuditService{auditRepo: auditRepo, retentionDays: retentionDays}
}

// LogChangeInput 记录库存变更输入
type LogChangeInput struct {
	OrganizationID   uint
	WarehouseID      string
	SKU              string
	UserID           uint
	Action           string
	PreviousQuantity int
	NewQuantity      int
	ReasonCode       string
	Notes            string
	Metadata         models.JSON
	Tx               *gorm.DB
}

var validAuditActions = map[string]bool{
	constants.AuditActionCreate:   true,
	constants.AuditActionUpdate:   true,
	constants.AuditActionDelete:   true,
	constants.AuditActionTransfer: true,
	constants.AuditActionReserve:  true,
	constants.AuditActionRelease:  true,
	constants.AuditActionImport:   true,
}

// LogChange 追加一条库存变更流水
// 差异与差异百分比在写入时固化；备注经脱敏后截断到字段上限。
func (s *AuditService) LogChange(input LogChangeInput) (*models.AuditEntry, error) {
	sku := strings.TrimSpace(input.SKU)
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if input.OrganizationID == 0 || sku == "" {
		return nil, ErrAuditInvalid
	}
	if !validAuditActions[action] {
		return nil, ErrAuditInvalid
	}

	entry := &models.AuditEntry{
		ID:               uuid.NewString(),
		OrganizationID:   input.OrganizationID,
		WarehouseID:      strings.TrimSpace(input.WarehouseID),
		SKU:              sku,
		UserID:           input.UserID,
		Action:           action,
		PreviousQuantity: input.PreviousQuantity,
		NewQuantity:      input.NewQuantity,
		Variance:         input.NewQuantity - input.PreviousQuantity,
		VariancePercent:  variancePercent(input.PreviousQuantity, input.NewQuantity),
		ReasonCode:       strings.TrimSpace(input.ReasonCode),
		Notes:            sanitizeNotes(input.Notes),
		Metadata:         input.Metadata,
		CreatedAt:        time.Now(),
	}

	repo := s.auditRepo
	if input.Tx != nil {
		repo = repo.WithTx(input.Tx)
	}
	if err := repo.Append(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateEntry 审计流水不可改写
func (s *AuditService) UpdateEntry(string) error {
	return ErrAuditImmutable
}

// DeleteEntry 审计流水不可删除
func (s *AuditService) DeleteEntry(string) error {
	return ErrAuditImmutable
}

// GetEntry 按组织与ID获取审计记录
func (s *AuditService) GetEntry(orgID uint, id string) (*models.AuditEntry, error) {
	if orgID == 0 || strings.TrimSpace(id) == "" {
		return nil, ErrAuditInvalid
	}
	entry, err := s.auditRepo.GetByID(orgID, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrAuditNotFound
	}
	return entry, nil
}

// QueryResult 分页查询结果
type QueryResult struct {
	Entries  []models.AuditEntry `json:"entries"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// Query 分页查询审计流水
// 页码与页大小先钳制再下发；起止时间倒置返回空页而非报错。
func (s *AuditService) Query(orgID uint, filter repository.AuditLogFilter) (*QueryResult, error) {
	if orgID == 0 {
		return nil, ErrAuditInvalid
	}
	filter = clampAuditFilter(filter)

	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return &QueryResult{
			Entries:  []models.AuditEntry{},
			Total:    0,
			Page:     filter.Page,
			PageSize: filter.PageSize,
		}, nil
	}

	entries, total, err := s.auditRepo.List(orgID, filter)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return &QueryResult{
		Entries:  entries,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// VarianceSummary 差异汇总统计
func (s *AuditService) VarianceSummary(orgID uint, filter repository.AuditLogFilter) (repository.VarianceSummaryRow, error) {
	if orgID == 0 {
		return repository.VarianceSummaryRow{}, ErrAuditInvalid
	}
	return s.auditRepo.VarianceSummary(orgID, filter)
}

// ActivityByUser 按操作人聚合
func (s *AuditService) ActivityByUser(orgID uint, filter repository.AuditLogFilter) ([]repository.UserActivityRow, error) {
	if orgID == 0 {
		return nil, ErrAuditInvalid
	}
	return s.auditRepo.ActivityByUser(orgID, filter)
}

// ActivityByAction 按动作聚合
func (s *AuditService) ActivityByAction(orgID uint, filter repository.AuditLogFilter) ([]repository.ActionActivityRow, error) {
	if orgID == 0 {
		return nil, ErrAuditInvalid
	}
	return s.auditRepo.ActivityByAction(orgID, filter)
}

// DailyTrends 按天趋势
func (s *AuditService) DailyTrends(orgID uint, filter repository.AuditLogFilter) ([]repository.DailyTrendRow, error) {
	if orgID == 0 {
		return nil, ErrAuditInvalid
	}
	return s.auditRepo.DailyTrends(orgID, filter)
}

// RetentionDays 当前保留天数
func (s *AuditService) RetentionDays() int {
	return s.retentionDays
}

// EntriesPastRetention 统计超出保留期的记录数
func (s *AuditService) EntriesPastRetention(orgID uint) (int64, error) {
	if orgID == 0 {
		return 0, ErrAuditInvalid
	}
	return s.auditRepo.CountOlderThan(orgID, s.retentionCutoff())
}

// ArchiveResult 归档结果
type ArchiveResult struct {
	DryRun  bool  `json:"dry_run"`
	Matched int64 `json:"matched"`
	Deleted int64 `json:"deleted"`
}

// ArchiveOldEntries 按保留策略归档删除；dryRun 仅统计不落刀
func (s *AuditService) ArchiveOldEntries(orgID uint, dryRun bool) (*ArchiveResult, error) {
	if orgID == 0 {
		return nil, ErrAuditInvalid
	}
	cutoff := s.retentionCutoff()
	matched, err := s.auditRepo.CountOlderThan(orgID, cutoff)
	if err != nil {
		return nil, err
	}
	result := &ArchiveResult{DryRun: dryRun, Matched: matched}
	if dryRun || matched == 0 {
		return result, nil
	}
	deleted, err := s.auditRepo.DeleteOlderThan(orgID, cutoff)
	if err != nil {
		return nil, err
	}
	result.Deleted = deleted
	return result, nil
}

func (s *AuditService) retentionCutoff() time.Time {
	return time.Now().AddDate(0, 0, -s.retentionDays)
}

// auditExportColumns 导出列序固定，消费方按位对账
var auditExportColumns = []string{
	"id", "created_at", "sku", "warehouse_id", "action", "user_id",
	"previous_quantity", "new_quantity", "variance", "variance_percent",
	"reason_code", "notes",
}

// ExportCSV 导出 CSV（上限一页最大页大小）
func (s *AuditService) ExportCSV(orgID uint, filter repository.AuditLogFilter) ([]byte, error) {
	entries, err := s.exportEntries(orgID, filter)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(auditExportColumns); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		record := []string{
			entry.ID,
			entry.CreatedAt.UTC().Format(time.RFC3339),
			entry.SKU,
			entry.WarehouseID,
			entry.Action,
			strconv.FormatUint(uint64(entry.UserID), 10),
			strconv.Itoa(entry.PreviousQuantity),
			strconv.Itoa(entry.NewQuantity),
			strconv.Itoa(entry.Variance),
			entry.VariancePercent.StringFixed(2),
			entry.ReasonCode,
			entry.Notes,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportJSON 导出 JSON（上限一页最大页大小）
func (s *AuditService) ExportJSON(orgID uint, filter repository.AuditLogFilter) ([]byte, error) {
	entries, err := s.exportEntries(orgID, filter)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entries)
}

func (s *AuditService) exportEntries(orgID uint, filter repository.AuditLogFilter) ([]models.AuditEntry, error) {
	if orgID == 0 {
		return nil, ErrAuditInvalid
	}
	filter = clampAuditFilter(filter)
	filter.PageSize = constants.MaxPageSize
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return []models.AuditEntry{}, nil
	}
	entries, _, err := s.auditRepo.List(orgID, filter)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}

func clampAuditFilter(filter repository.AuditLogFilter) repository.AuditLogFilter {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = constants.DefaultPageSize
	}
	if filter.PageSize > constants.MaxPageSize {
		filter.PageSize = constants.MaxPageSize
	}
	return filter
}

// variancePercent 差异百分比：基数为 0 且新值为正时按 100% 计
func variancePercent(previous, current int) decimal.Decimal {
	if previous == 0 {
		if current > 0 {
			return decimal.NewFromInt(100)
		}
		return decimal.Zero
	}
	diff := decimal.NewFromInt(int64(current - previous))
	base := decimal.NewFromInt(int64(previous))
	return diff.Div(base).Mul(decimal.NewFromInt(100)).Round(2)
}

var (
	scriptBlockPattern = regexp.MustCompile(`(?is)<script.*?</script>`)
	markupTagPattern   = regexp.MustCompile(`<[^>]*>`)
)

// sanitizeNotes 备注脱敏：剥离脚本与标签，压缩空白并截断
func sanitizeNotes(raw string) string {
	cleaned := scriptBlockPattern.ReplaceAllString(raw, "")
	cleaned = markupTagPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if runes := []rune(cleaned); len(runes) > 500 {
		cleaned = string(runes[:500])
	}
	return cleaned
}
