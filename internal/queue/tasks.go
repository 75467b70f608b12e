package queue

import (
	"encoding/json"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"

	"github.com/hibiken/asynq"
)

const (
	// TaskEventDispatch 领域事件投递任务
	TaskEventDispatch = constants.TaskEventDispatch
	// TaskOwnerNotification 订单归属人通知任务
	TaskOwnerNotification = constants.TaskOwnerNotification
)

// EventDispatchPayload 事件投递任务载荷
// EventID 为幂等键：同一事件可能因至少一次投递被重复消费。
type EventDispatchPayload struct {
	EventID        string      `json:"event_id"`
	OrganizationID uint        `json:"organization_id"`
	EventType      string      `json:"event_type"`
	Payload        models.JSON `json:"payload"`
}

// OwnerNotificationPayload 归属人通知任务载荷
type OwnerNotificationPayload struct {
	OrganizationID uint   `json:"organization_id"`
	OrderID        uint   `json:"order_id"`
	ReservationID  string `json:"reservation_id"`
	Reason         string `json:"reason"`
}

// NewEventDispatchTask 创建事件投递任务
func NewEventDispatchTask(payload EventDispatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEventDispatch, body), nil
}

// NewOwnerNotificationTask 创建归属人通知任务
func NewOwnerNotificationTask(payload OwnerNotificationPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOwnerNotification, body), nil
}
