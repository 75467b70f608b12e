package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditEntry 库存审计流水表：仅追加、不可变更
// 每一次库存变动恰好对应一条审计记录，与库存变更在同一事务内提交。
type AuditEntry struct {
	ID               string          `gorm:"type:varchar(36);primarykey" json:"id"`                         // 主键（uuid）
	OrganizationID   uint            `gorm:"not null;index:idx_audit_org_created" json:"organization_id"`   // 组织ID
	WarehouseID      string          `gorm:"type:varchar(64);index" json:"warehouse_id"`                    // 仓库ID
	SKU              string          `gorm:"column:sku;type:varchar(64);not null;index" json:"sku"`         // SKU编码
	UserID           uint            `gorm:"index" json:"user_id"`                                          // 操作人ID
	Action           string          `gorm:"type:varchar(20);index;not null" json:"action"`                 // 审计动作
	PreviousQuantity int             `gorm:"not null" json:"previous_quantity"`                             // 变更前数量
	NewQuantity      int             `gorm:"not null" json:"new_quantity"`                                  // 变更后数量
	Variance         int             `gorm:"not null" json:"variance"`                                      // 差异量（new-previous）
	VariancePercent  decimal.Decimal `gorm:"type:decimal(10,2)" json:"variance_percent"`                    // 差异百分比
	ReasonCode       string          `gorm:"type:varchar(40);index" json:"reason_code"`                     // 原因码
	Notes            string          `gorm:"type:varchar(500)" json:"notes"`                                // 备注（已脱敏）
	Metadata         JSON            `gorm:"type:json" json:"metadata,omitempty"`                           // 结构化元数据
	CreatedAt        time.Time       `gorm:"index:idx_audit_org_created" json:"created_at"`                 // 创建时间
}

// TableName 指定表名
func (AuditEntry) TableName() string {
	return "audit_entries"
}
