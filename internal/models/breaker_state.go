package models

import (
	"time"
)

// BreakerState 熔断器状态表
// 多实例部署时熔断状态外置共享，单实例默认走进程内存，不落库。
type BreakerState struct {
	Provider      string     `gorm:"type:varchar(40);primarykey" json:"provider"`   // 承运商标识
	State         string     `gorm:"type:varchar(20);not null" json:"state"`        // 熔断状态
	FailureCount   int        `gorm:"not null;default:0" json:"failure_count"`      // 窗口内失败次数
	FirstFailureAt *time.Time `json:"first_failure_at,omitempty"`                   // 窗口首次失败时间
	LastFailureAt  *time.Time `json:"last_failure_at,omitempty"`                    // 最近失败时间
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`                     // 允许下次探测时间
	UpdatedAt     time.Time  `json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (BreakerState) TableName() string {
	return "breaker_states"
}
