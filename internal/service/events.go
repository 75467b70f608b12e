package service

import (
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/repository"

	"github.com/google/uuid"
)

// appendEvent 在当前事务内追加一条待投递领域事件
// 事件与业务变更同事务提交，由 outbox 中继异步投递，保证至少一次送达。
func appendEvent(outboxRepo repository.OutboxRepository, orgID uint, eventType string, payload models.JSON) error {
	if outboxRepo == nil {
		return nil
	}
	if payload == nil {
		payload = models.JSON{}
	}
	event := &models.OutboxEvent{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		EventType:      eventType,
		Payload:        payload,
		Status:         constants.OutboxStatusPending,
		CreatedAt:      time.Now(),
	}
	return outboxRepo.Append(event)
}
