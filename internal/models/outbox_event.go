package models

import (
	"time"
)

// OutboxEvent 事件发件箱表
// 领域事件与业务变更同事务落库，由 worker 中继至队列，至少一次投递；
// 消费端按事件ID幂等处理。
type OutboxEvent struct {
	ID             string     `gorm:"type:varchar(36);primarykey" json:"id"`         // 事件ID（uuid）
	OrganizationID uint       `gorm:"index;not null" json:"organization_id"`         // 组织ID
	EventType      string     `gorm:"type:varchar(64);index;not null" json:"event_type"` // 事件类型
	Payload        JSON       `gorm:"type:json" json:"payload"`                      // 事件载荷
	Status         string     `gorm:"type:varchar(20);index;not null" json:"status"` // 投递状态
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`            // 投递尝试次数
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`                       // 创建时间
	DispatchedAt   *time.Time `json:"dispatched_at,omitempty"`                       // 投递时间
}

// TableName 指定表名
func (OutboxEvent) TableName() string {
	return "outbox_events"
}
