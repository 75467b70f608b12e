package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderLineItem 订单行项目表
type OrderLineItem struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                    // 主键
	OrderID         uint           `gorm:"index;not null" json:"order_id"`                          // 订单ID
	SKU             string         `gorm:"column:sku;type:varchar(64);not null;index" json:"sku"`   // SKU编码
	Quantity        int            `gorm:"not null" json:"quantity"`                                // 下单数量
	UnitPrice       Money          `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"` // 申报单价
	ShippedQuantity int            `gorm:"-" json:"shipped_quantity"`                               // 已发数量（按有效运单汇总，仅结构）
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                 // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                                 // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                          // 软删除时间
}

// TableName 指定表名
func (OrderLineItem) TableName() string {
	return "order_line_items"
}
