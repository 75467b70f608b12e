package admin

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/stockkeeper/internal/http/response"
	"github.com/stockkeeper/internal/repository"
	"github.com/stockkeeper/internal/service"

	"github.com/gin-gonic/gin"
)

// parseAuditFilter 解析审计查询条件；页码钳制在服务层统一处理
func parseAuditFilter(c *gin.Context) repository.AuditLogFilter {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	userID, _ := strconv.ParseUint(c.Query("user_id"), 10, 64)

	return repository.AuditLogFilter{
		Page:        page,
		PageSize:    pageSize,
		SKU:         strings.TrimSpace(c.Query("sku")),
		WarehouseID: strings.TrimSpace(c.Query("warehouse_id")),
		Action:      strings.TrimSpace(c.Query("action")),
		UserID:      uint(userID),
		ReasonCode:  strings.TrimSpace(c.Query("reason_code")),
		StartDate:   parseDateQuery(c.Query("start_date")),
		EndDate:     parseDateQuery(c.Query("end_date")),
		SortBy:      strings.TrimSpace(c.Query("sort_by")),
		SortOrder:   strings.TrimSpace(c.Query("sort_order")),
	}
}

// parseDateQuery 支持 RFC3339 与 2006-01-02 两种格式
func parseDateQuery(raw string) *time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed
	}
	if parsed, err := time.Parse("2006-01-02", trimmed); err == nil {
		return &parsed
	}
	return nil
}

func respondAuditError(c *gin.Context, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, service.ErrAuditInvalid):
		respondError(c, response.CodeBadRequest, "audit params invalid", nil)
	case errors.Is(err, service.ErrAuditNotFound):
		respondError(c, response.CodeNotFound, "audit entry not found", nil)
	case errors.Is(err, service.ErrAuditImmutable):
		respondError(c, response.CodeBadRequest, "audit entries are immutable", nil)
	default:
		respondError(c, response.CodeInternal, fallbackMsg, err)
	}
}

// QueryAuditLogs 分页查询审计流水
func (h *Handler) QueryAuditLogs(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}

	result, err := h.AuditService.Query(orgID, parseAuditFilter(c))
	if err != nil {
		respondAuditError(c, err, "audit query failed")
		return
	}

	totalPage := int64(0)
	if result.PageSize > 0 {
		totalPage = (result.Total + int64(result.PageSize) - 1) / int64(result.PageSize)
	}
	response.SuccessWithPage(c, result.Entries, response.Pagination{
		Page:      result.Page,
		PageSize:  result.PageSize,
		Total:     result.Total,
		TotalPage: totalPage,
	})
}

// GetAuditEntry 查询单条审计记录
func (h *Handler) GetAuditEntry(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}

	entry, err := h.AuditService.GetEntry(orgID, c.Param("id"))
	if err != nil {
		respondAuditError(c, err, "audit query failed")
		return
	}
	response.Success(c, entry)
}

// GetAuditVarianceSummary 差异汇总统计
func (h *Handler) GetAuditVarianceSummary(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}

	summary, err := h.AuditService.VarianceSummary(orgID, parseAuditFilter(c))
	if err != nil {
		respondAuditError(c, err, "audit aggregation failed")
		return
	}
	response.Success(c, summary)
}

// GetAuditActivityByUser 按操作人聚合
func (h *Handler) GetAuditActivityByUser(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}

	rows, err := h.AuditService.ActivityByUser(orgID, parseAuditFilter(c))
	if err != nil {
		respondAuditError(c, err, "audit aggregation failed")
		return
	}
	response.Success(c, rows)
}

// GetAuditActivityByAction 按动作聚合
func (h *Handler) GetAuditActivityByAction(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}

	rows, err := h.AuditService.ActivityByAction(orgID, parseAuditFilter(c))
	if err != nil {
		respondAuditError(c, err, "audit aggregation failed")
		return
	}
	response.Success(c, rows)
}

// GetAuditDailyTrends 按天趋势
func (h *Handler) GetAuditDailyTrends(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}

	rows, err := h.AuditService.DailyTrends(orgID, parseAuditFilter(c))
	if err != nil {
		respondAuditError(c, err, "audit aggregation failed")
		return
	}
	response.Success(c, rows)
}

// ExportAuditLogs 导出审计流水，format 支持 csv / json
func (h *Handler) ExportAuditLogs(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	if !h.AuthzService.CanExportAudit(getRole(c)) {
		respondError(c, response.CodeForbidden, "operation not permitted for role", nil)
		return
	}

	filter := parseAuditFilter(c)
	format := strings.ToLower(strings.TrimSpace(c.Query("format")))
	if format == "" {
		format = "csv"
	}

	filename := "audit-logs-" + time.Now().UTC().Format("20060102-150405")
	switch format {
	case "csv":
		data, err := h.AuditService.ExportCSV(orgID, filter)
		if err != nil {
			respondAuditError(c, err, "audit export failed")
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+filename+`.csv"`)
		c.Data(200, "text/csv; charset=utf-8", data)
	case "json":
		data, err := h.AuditService.ExportJSON(orgID, filter)
		if err != nil {
			respondAuditError(c, err, "audit export failed")
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+filename+`.json"`)
		c.Data(200, "application/json; charset=utf-8", data)
	default:
		respondError(c, response.CodeBadRequest, "unsupported export format", nil)
	}
}

// GetAuditRetention 查询保留策略与超期记录数
func (h *Handler) GetAuditRetention(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}

	pastRetention, err := h.AuditService.EntriesPastRetention(orgID)
	if err != nil {
		respondAuditError(c, err, "audit retention query failed")
		return
	}
	response.Success(c, gin.H{
		"retention_days": h.AuditService.RetentionDays(),
		"past_retention": pastRetention,
	})
}

// ArchiveAuditLogsRequest 审计归档请求
type ArchiveAuditLogsRequest struct {
	DryRun bool `json:"dry_run"`
}

// ArchiveAuditLogs 按保留策略归档删除超期审计记录
func (h *Handler) ArchiveAuditLogs(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	if !h.AuthzService.CanArchiveAudit(getRole(c)) {
		respondError(c, response.CodeForbidden, "operation not permitted for role", nil)
		return
	}

	var req ArchiveAuditLogsRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	result, err := h.AuditService.ArchiveOldEntries(orgID, req.DryRun)
	if err != nil {
		respondAuditError(c, err, "audit archive failed")
		return
	}
	if !result.DryRun && result.Deleted > 0 {
		requestLog(c).Infow("audit_entries_archived",
			"organization_id", orgID,
			"user_id", userID,
			"deleted", result.Deleted,
		)
	}
	response.Success(c, result)
}
