package models

import (
	"time"

	"gorm.io/gorm"
)

// Shipment 运单表
// 同一订单下全部有效运单（非 cancelled/returned）按行项目汇总的数量不得超过下单数量。
type Shipment struct {
	ID             uint           `gorm:"primarykey" json:"id"`                              // 主键
	OrderID        uint           `gorm:"index;not null" json:"order_id"`                    // 订单ID
	OrganizationID uint           `gorm:"index;not null" json:"organization_id"`             // 组织ID
	Provider       string         `gorm:"type:varchar(40);not null;index" json:"provider"`   // 承运商标识
	Status         string         `gorm:"type:varchar(20);index;not null" json:"status"`     // 运单状态
	TrackingNumber string         `gorm:"type:varchar(100);index" json:"tracking_number"`    // 运单号
	LabelURL       string         `gorm:"type:varchar(500)" json:"label_url,omitempty"`      // 面单地址
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`                           // 更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                                    // 软删除时间

	Items []ShipmentItem `gorm:"foreignKey:ShipmentID" json:"items,omitempty"` // 运单明细
}

// TableName 指定表名
func (Shipment) TableName() string {
	return "shipments"
}

// ShipmentItem 运单明细表
type ShipmentItem struct {
	ID          uint `gorm:"primarykey" json:"id"`               // 主键
	ShipmentID  uint `gorm:"index;not null" json:"shipment_id"`  // 运单ID
	OrderItemID uint `gorm:"index;not null" json:"order_item_id"` // 订单行项目ID
	Quantity    int  `gorm:"not null" json:"quantity"`           // 发货数量
}

// TableName 指定表名
func (ShipmentItem) TableName() string {
	return "shipment_items"
}
