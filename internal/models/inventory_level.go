package models

import (
	"time"
)

// InventoryLevel 库存水位表：按（组织, SKU, 仓库）唯一
// 守恒不变式：available+reserved+damaged 仅在入库与发货永久扣减时变化，
// 预留/释放只在 available 与 reserved 之间平移。
type InventoryLevel struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                                                                                        // 主键
	OrganizationID uint      `gorm:"not null;index;uniqueIndex:idx_org_sku_warehouse" json:"organization_id"`                                                     // 组织ID
	SKU            string    `gorm:"column:sku;type:varchar(64);not null;uniqueIndex:idx_org_sku_warehouse" json:"sku"`                                           // SKU编码
	WarehouseID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_org_sku_warehouse" json:"warehouse_id"`                                             // 仓库ID
	Available      int       `gorm:"not null;default:0" json:"available"`                                                                                         // 可售数量
	Reserved       int       `gorm:"not null;default:0" json:"reserved"`                                                                                          // 预留数量
	Damaged        int       `gorm:"not null;default:0" json:"damaged"`                                                                                           // 损坏数量
	Price          *Money    `gorm:"type:decimal(20,2)" json:"price,omitempty"`                                                                                   // 申报单价（可选）
	MinStock       *int      `json:"min_stock,omitempty"`                                                                                                         // 补货下限（可选）
	MaxStock       *int      `json:"max_stock,omitempty"`                                                                                                         // 库存上限（可选）
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                                                                                                     // 创建时间
	UpdatedAt      time.Time `gorm:"index" json:"updated_at"`                                                                                                     // 更新时间
}

// TableName 指定表名
func (InventoryLevel) TableName() string {
	return "inventory_levels"
}
