package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupOutboxRepositoryTest(t *testing.T) *GormOutboxRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:outbox_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.OutboxEvent{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewOutboxRepository(db)
}

func mustAppendEvent(t *testing.T, repo *GormOutboxRepository, eventType string, createdAt time.Time) string {
	t.Helper()
	event := models.OutboxEvent{
		ID:             uuid.NewString(),
		OrganizationID: 1,
		EventType:      eventType,
		Payload:        models.JSON{"sku": "WIDGET-A"},
		Status:         constants.OutboxStatusPending,
		CreatedAt:      createdAt,
	}
	if err := repo.Append(&event); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	return event.ID
}

func TestOutboxRepositoryListPendingOrdersByCreatedAt(t *testing.T) {
	repo := setupOutboxRepositoryTest(t)
	now := time.Now()
	second := mustAppendEvent(t, repo, constants.EventReservationReleased, now)
	first := mustAppendEvent(t, repo, constants.EventInventoryUpdated, now.Add(-time.Minute))

	events, err := repo.ListPending(10)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 pending events, got %d", len(events))
	}
	if events[0].ID != first || events[1].ID != second {
		t.Fatalf("pending events out of order: %+v", events)
	}

	limited, err := repo.ListPending(1)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != first {
		t.Fatalf("expected oldest event under limit, got %+v", limited)
	}
}

func TestOutboxRepositoryMarkDispatched(t *testing.T) {
	repo := setupOutboxRepositoryTest(t)
	id := mustAppendEvent(t, repo, constants.EventOrderCancelled, time.Now())

	dispatchedAt := time.Now()
	if err := repo.MarkDispatched(id, dispatchedAt); err != nil {
		t.Fatalf("MarkDispatched error: %v", err)
	}

	event, err := repo.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if event.Status != constants.OutboxStatusDispatched {
		t.Fatalf("expected dispatched status, got %s", event.Status)
	}
	if event.DispatchedAt == nil {
		t.Fatalf("dispatched_at not set")
	}

	events, err := repo.ListPending(10)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("dispatched event still pending: %+v", events)
	}
}

func TestOutboxRepositoryMarkFailedKeepsPending(t *testing.T) {
	repo := setupOutboxRepositoryTest(t)
	id := mustAppendEvent(t, repo, constants.EventInventoryCreated, time.Now())

	if err := repo.MarkFailed(id); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	if err := repo.MarkFailed(id); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}

	event, err := repo.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if event.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", event.Attempts)
	}
	if event.Status != constants.OutboxStatusPending {
		t.Fatalf("failed event must stay pending for retry, got %s", event.Status)
	}

	events, err := repo.ListPending(10)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected event still retryable, got %d", len(events))
	}
}
