package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stockkeeper/internal/cache"
	"github.com/stockkeeper/internal/logger"
	"github.com/stockkeeper/internal/provider"
	"github.com/stockkeeper/internal/queue"

	"github.com/hibiken/asynq"
)

// eventDedupTTL 事件幂等标记保留时长
const eventDedupTTL = 24 * time.Hour

// Consumer 异步任务消费者
// 事件投递为至少一次：处理端以事件ID做幂等去重。
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskEventDispatch, c.handleEventDispatch)
	mux.HandleFunc(queue.TaskOwnerNotification, c.handleOwnerNotification)
}

func (c *Consumer) handleEventDispatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_event_dispatch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.EventDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_event_dispatch_unmarshal_failed", "error", err)
		return err
	}
	if payload.EventID == "" || payload.EventType == "" {
		logger.Debugw("worker_event_dispatch_skip_invalid_payload", "event_id", payload.EventID)
		return nil
	}

	// 重复投递直接吸收
	if seen, err := c.markEventSeen(ctx, payload.EventID); err != nil {
		logger.Warnw("worker_event_dedup_failed", "event_id", payload.EventID, "error", err)
	} else if seen {
		logger.Debugw("worker_event_dispatch_skip_duplicate", "event_id", payload.EventID)
		return nil
	}

	logger.Infow("domain_event_processed",
		"event_id", payload.EventID,
		"event_type", payload.EventType,
		"organization_id", payload.OrganizationID,
	)
	return nil
}

// markEventSeen 以事件ID打幂等标记；返回 true 表示此前已处理
func (c *Consumer) markEventSeen(ctx context.Context, eventID string) (bool, error) {
	if !cache.Enabled() {
		return false, nil
	}
	key := cache.BuildKey(fmt.Sprintf("event:seen:%s", eventID))
	ok, err := cache.Client().SetNX(ctx, key, 1, eventDedupTTL).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (c *Consumer) handleOwnerNotification(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_owner_notification_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OwnerNotificationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_owner_notification_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_owner_notification_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	order, err := c.OrderRepo.GetByIDForOrg(payload.OrganizationID, payload.OrderID)
	if err != nil {
		logger.Warnw("worker_owner_notification_fetch_order_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	if order == nil {
		logger.Debugw("worker_owner_notification_skip_order_not_found", "order_id", payload.OrderID)
		return nil
	}
	// 通知渠道留作接入点：当前记录结构化日志供运营侧消费
	logger.Infow("order_owner_notified",
		"organization_id", payload.OrganizationID,
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"reservation_id", payload.ReservationID,
		"reason", payload.Reason,
	)
	return nil
}
