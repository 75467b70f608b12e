package models

import (
	"time"
)

// Reservation 库存预留单表
// 状态单向流转：active → released / force_released / expired，终态不可复用。
type Reservation struct {
	ID             string     `gorm:"type:varchar(36);primarykey" json:"id"`                  // 预留单ID（uuid）
	OrganizationID uint       `gorm:"not null;index:idx_reservation_org_sku" json:"organization_id"` // 组织ID
	WarehouseID    string     `gorm:"type:varchar(64);not null" json:"warehouse_id"`          // 仓库ID
	SKU            string     `gorm:"column:sku;type:varchar(64);not null;index:idx_reservation_org_sku" json:"sku"` // SKU编码
	Quantity       int        `gorm:"not null" json:"quantity"`                               // 预留数量
	OrderID        uint       `gorm:"index;not null" json:"order_id"`                         // 关联订单ID
	Status         string     `gorm:"type:varchar(20);index;not null" json:"status"`          // 预留状态
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`                                // 创建时间
	ReleasedAt     *time.Time `json:"released_at,omitempty"`                                  // 释放时间
}

// TableName 指定表名
func (Reservation) TableName() string {
	return "reservations"
}

// Terminal 判断预留单是否已进入终态
func (r *Reservation) Terminal() bool {
	return r != nil && r.Status != "" && r.Status != "active"
}
