package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type roleAuthorizerStub struct{}

func (roleAuthorizerStub) CanForceRelease(role string) bool {
	return role == constants.RoleAdmin || role == constants.RoleInventoryManager
}

func setupForceReleaseServiceTest(t *testing.T) (*ForceReleaseService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:force_release_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.InventoryLevel{},
		&models.Reservation{},
		&models.AuditEntry{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	reservationRepo := repository.NewReservationRepository(db)
	auditSvc := NewAuditService(repository.NewAuditLogRepository(db), 0)
	inventorySvc := NewInventoryService(
		repository.NewInventoryRepository(db),
		reservationRepo,
		repository.NewOutboxRepository(db),
		auditSvc,
	)
	return NewForceReleaseService(inventorySvc, reservationRepo, roleAuthorizerStub{}, nil), db
}

func seedActiveReservation(t *testing.T, db *gorm.DB, orgID uint, quantity int, createdAt time.Time) string {
	t.Helper()
	level := models.InventoryLevel{}
	if err := db.Where("organization_id = ? AND sku = ?", orgID, "WIDGET-A").First(&level).Error; err != nil {
		level = models.InventoryLevel{
			OrganizationID: orgID,
			SKU:            "WIDGET-A",
			WarehouseID:    "wh-east",
			Available:      10 - quantity,
			Reserved:       quantity,
		}
		if err := db.Create(&level).Error; err != nil {
			t.Fatalf("seed level failed: %v", err)
		}
	} else {
		db.Model(&level).Updates(map[string]interface{}{
			"reserved": gorm.Expr("reserved + ?", quantity),
		})
	}
	reservation := models.Reservation{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		WarehouseID:    "wh-east",
		SKU:            "WIDGET-A",
		Quantity:       quantity,
		OrderID:        100,
		Status:         constants.ReservationStatusActive,
		CreatedAt:      createdAt,
	}
	if err := db.Create(&reservation).Error; err != nil {
		t.Fatalf("seed reservation failed: %v", err)
	}
	return reservation.ID
}

func TestForceReleaseServiceRoleGate(t *testing.T) {
	svc, db := setupForceReleaseServiceTest(t)
	id := seedActiveReservation(t, db, 1, 4, time.Now())

	_, err := svc.ForceReleaseReservation(ForceReleaseInput{
		OrganizationID: 1,
		ReservationID:  id,
		Role:           constants.RoleViewer,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for viewer, got %v", err)
	}

	var reservation models.Reservation
	db.First(&reservation, "id = ?", id)
	if reservation.Status != constants.ReservationStatusActive {
		t.Fatalf("reservation mutated by forbidden call: %s", reservation.Status)
	}
}

func TestForceReleaseServiceReleasesStock(t *testing.T) {
	svc, db := setupForceReleaseServiceTest(t)
	id := seedActiveReservation(t, db, 1, 4, time.Now())

	result, err := svc.ForceReleaseReservation(ForceReleaseInput{
		OrganizationID: 1,
		ReservationID:  id,
		UserID:         7,
		Role:           constants.RoleInventoryManager,
		Reason:         "stuck order",
	})
	if err != nil {
		t.Fatalf("ForceReleaseReservation error: %v", err)
	}
	if !result.Success || result.Quantity != 4 {
		t.Fatalf("unexpected result: %+v", result)
	}

	var level models.InventoryLevel
	db.Where("organization_id = ?", 1).First(&level)
	if level.Available != 10 || level.Reserved != 0 {
		t.Fatalf("stock not restored: %+v", level)
	}

	var reservation models.Reservation
	db.First(&reservation, "id = ?", id)
	if reservation.Status != constants.ReservationStatusForceReleased {
		t.Fatalf("expected force_released, got %s", reservation.Status)
	}

	var event models.OutboxEvent
	if err := db.Where("event_type = ?", constants.EventReservationForceReleased).First(&event).Error; err != nil {
		t.Fatalf("force release event missing: %v", err)
	}
}

func TestForceReleaseServiceAlreadyReleasedMessage(t *testing.T) {
	svc, db := setupForceReleaseServiceTest(t)
	id := seedActiveReservation(t, db, 1, 4, time.Now())

	input := ForceReleaseInput{
		OrganizationID: 1,
		ReservationID:  id,
		UserID:         7,
		Role:           constants.RoleAdmin,
	}
	if _, err := svc.ForceReleaseReservation(input); err != nil {
		t.Fatalf("ForceReleaseReservation error: %v", err)
	}

	result, err := svc.ForceReleaseReservation(input)
	if err != nil {
		t.Fatalf("ForceReleaseReservation error: %v", err)
	}
	if result.Success {
		t.Fatalf("second release must not succeed: %+v", result)
	}
	want := fmt.Sprintf("reservation %s already released (status %s)", id, constants.ReservationStatusForceReleased)
	if result.Message != want {
		t.Fatalf("unexpected message: %s", result.Message)
	}

	// 库存不重复回补
	var level models.InventoryLevel
	db.Where("organization_id = ?", 1).First(&level)
	if level.Available != 10 {
		t.Fatalf("stock double restored: %+v", level)
	}
}

func TestForceReleaseServiceBySKU(t *testing.T) {
	svc, db := setupForceReleaseServiceTest(t)
	seedActiveReservation(t, db, 1, 3, time.Now())
	seedActiveReservation(t, db, 1, 2, time.Now())
	seedActiveReservation(t, db, 2, 5, time.Now()) // 其他组织不受影响

	result, err := svc.ForceReleaseAllForSKU(1, 7, constants.RoleAdmin, "WIDGET-A", "audit cleanup")
	if err != nil {
		t.Fatalf("ForceReleaseAllForSKU error: %v", err)
	}
	if result.Released != 2 || result.Quantity != 5 {
		t.Fatalf("unexpected batch result: %+v", result)
	}

	var crossOrg models.Reservation
	db.Where("organization_id = ?", 2).First(&crossOrg)
	if crossOrg.Status != constants.ReservationStatusActive {
		t.Fatalf("cross-org reservation released: %s", crossOrg.Status)
	}
}

func TestForceReleaseServiceExpiredDryRun(t *testing.T) {
	svc, db := setupForceReleaseServiceTest(t)
	seedActiveReservation(t, db, 1, 3, time.Now().Add(-2*time.Hour))
	seedActiveReservation(t, db, 1, 2, time.Now())

	result, err := svc.ForceReleaseExpired(ExpiredReleaseInput{
		OrganizationID: 1,
		Role:           constants.RoleAdmin,
		ExpiryMinutes:  60,
		DryRun:         true,
	})
	if err != nil {
		t.Fatalf("ForceReleaseExpired error: %v", err)
	}
	if !result.DryRun || result.WouldRelease != 1 || result.Released != 0 {
		t.Fatalf("unexpected dry-run result: %+v", result)
	}

	var count int64
	db.Model(&models.Reservation{}).Where("status = ?", constants.ReservationStatusActive).Count(&count)
	if count != 2 {
		t.Fatalf("dry run mutated reservations: %d active", count)
	}
}

func TestForceReleaseServiceExpiredRelease(t *testing.T) {
	svc, db := setupForceReleaseServiceTest(t)
	expiredID := seedActiveReservation(t, db, 1, 3, time.Now().Add(-2*time.Hour))
	freshID := seedActiveReservation(t, db, 1, 2, time.Now())

	result, err := svc.ForceReleaseExpired(ExpiredReleaseInput{
		OrganizationID: 1,
		UserID:         7,
		Role:           constants.RoleInventoryManager,
		ExpiryMinutes:  60,
	})
	if err != nil {
		t.Fatalf("ForceReleaseExpired error: %v", err)
	}
	if result.Released != 1 || result.Quantity != 3 {
		t.Fatalf("unexpected expired release result: %+v", result)
	}

	var expired, fresh models.Reservation
	db.First(&expired, "id = ?", expiredID)
	db.First(&fresh, "id = ?", freshID)
	if expired.Status != constants.ReservationStatusExpired {
		t.Fatalf("expected expired status, got %s", expired.Status)
	}
	if fresh.Status != constants.ReservationStatusActive {
		t.Fatalf("fresh reservation released: %s", fresh.Status)
	}
}

func TestForceReleaseServiceExpiredOrganizations(t *testing.T) {
	svc, db := setupForceReleaseServiceTest(t)
	seedActiveReservation(t, db, 3, 1, time.Now().Add(-2*time.Hour))
	seedActiveReservation(t, db, 1, 1, time.Now().Add(-2*time.Hour))
	seedActiveReservation(t, db, 2, 1, time.Now())

	orgIDs, err := svc.ExpiredOrganizations(60)
	if err != nil {
		t.Fatalf("ExpiredOrganizations error: %v", err)
	}
	if len(orgIDs) != 2 {
		t.Fatalf("expected 2 organizations, got %v", orgIDs)
	}
	joined := fmt.Sprint(orgIDs)
	if !strings.Contains(joined, "1") || !strings.Contains(joined, "3") {
		t.Fatalf("expected orgs 1 and 3, got %v", orgIDs)
	}
}
