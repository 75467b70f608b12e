package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 订单表
// 履约核心只在发货/取消/退货的副作用里读写订单状态，订单其余字段由订单子系统维护。
type Order struct {
	ID             uint           `gorm:"primarykey" json:"id"`                        // 主键
	OrderNo        string         `gorm:"uniqueIndex;not null" json:"order_no"`        // 订单编号
	OrganizationID uint           `gorm:"index;not null" json:"organization_id"`       // 组织ID
	Status         string         `gorm:"index;not null" json:"status"`                // 订单状态
	CancelReason   string         `gorm:"type:varchar(200)" json:"cancel_reason,omitempty"` // 取消原因
	CanceledAt     *time.Time     `gorm:"index" json:"canceled_at,omitempty"`          // 取消时间
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                     // 创建时间
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`                     // 更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                              // 软删除时间

	Items     []OrderLineItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`     // 行项目
	Shipments []Shipment      `gorm:"foreignKey:OrderID" json:"shipments,omitempty"` // 运单
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
