package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stockkeeper/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupInventoryRepositoryTest(t *testing.T) (*GormInventoryRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:inventory_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.InventoryLevel{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewInventoryRepository(db), db
}

func mustCreateLevel(t *testing.T, db *gorm.DB, orgID uint, sku, warehouseID string, available, reserved int) {
	t.Helper()
	level := models.InventoryLevel{
		OrganizationID: orgID,
		SKU:            sku,
		WarehouseID:    warehouseID,
		Available:      available,
		Reserved:       reserved,
	}
	if err := db.Create(&level).Error; err != nil {
		t.Fatalf("create level failed: %v", err)
	}
}

func TestInventoryRepositoryReserveStockMovesAvailableToReserved(t *testing.T) {
	repo, db := setupInventoryRepositoryTest(t)
	mustCreateLevel(t, db, 1, "WIDGET-A", "wh-east", 10, 0)

	affected, err := repo.ReserveStock(1, "WIDGET-A", "wh-east", 4)
	if err != nil {
		t.Fatalf("ReserveStock error: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}

	level, err := repo.Get(1, "WIDGET-A", "wh-east")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if level.Available != 6 || level.Reserved != 4 {
		t.Fatalf("unexpected level after reserve: available=%d reserved=%d", level.Available, level.Reserved)
	}
	if level.Available+level.Reserved != 10 {
		t.Fatalf("total stock changed on reserve: %d", level.Available+level.Reserved)
	}
}

func TestInventoryRepositoryReserveStockInsufficient(t *testing.T) {
	repo, db := setupInventoryRepositoryTest(t)
	mustCreateLevel(t, db, 1, "WIDGET-A", "wh-east", 3, 0)

	affected, err := repo.ReserveStock(1, "WIDGET-A", "wh-east", 4)
	if err != nil {
		t.Fatalf("ReserveStock error: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 rows affected for insufficient stock, got %d", affected)
	}

	level, _ := repo.Get(1, "WIDGET-A", "wh-east")
	if level.Available != 3 || level.Reserved != 0 {
		t.Fatalf("level mutated on failed reserve: %+v", level)
	}
}

func TestInventoryRepositoryReleaseStockRestoresAvailable(t *testing.T) {
	repo, db := setupInventoryRepositoryTest(t)
	mustCreateLevel(t, db, 1, "WIDGET-A", "wh-east", 6, 4)

	affected, err := repo.ReleaseStock(1, "WIDGET-A", "wh-east", 4)
	if err != nil {
		t.Fatalf("ReleaseStock error: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}

	level, _ := repo.Get(1, "WIDGET-A", "wh-east")
	if level.Available != 10 || level.Reserved != 0 {
		t.Fatalf("unexpected level after release: %+v", level)
	}
}

func TestInventoryRepositoryReleaseStockRequiresReserved(t *testing.T) {
	repo, db := setupInventoryRepositoryTest(t)
	mustCreateLevel(t, db, 1, "WIDGET-A", "wh-east", 6, 2)

	affected, err := repo.ReleaseStock(1, "WIDGET-A", "wh-east", 4)
	if err != nil {
		t.Fatalf("ReleaseStock error: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 rows affected when reserved below quantity, got %d", affected)
	}
}

func TestInventoryRepositoryDeductReservedDoesNotRestoreAvailable(t *testing.T) {
	repo, db := setupInventoryRepositoryTest(t)
	mustCreateLevel(t, db, 1, "WIDGET-A", "wh-east", 6, 4)

	affected, err := repo.DeductReserved(1, "WIDGET-A", "wh-east", 3)
	if err != nil {
		t.Fatalf("DeductReserved error: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}

	level, _ := repo.Get(1, "WIDGET-A", "wh-east")
	if level.Available != 6 || level.Reserved != 1 {
		t.Fatalf("unexpected level after deduct: %+v", level)
	}
}

func TestInventoryRepositoryEnsureRowCreatesOnce(t *testing.T) {
	repo, _ := setupInventoryRepositoryTest(t)

	level, created, err := repo.EnsureRow(1, "GADGET-B", "wh-west")
	if err != nil {
		t.Fatalf("EnsureRow error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true on first ensure")
	}
	if level.Available != 0 || level.Reserved != 0 || level.Damaged != 0 {
		t.Fatalf("new row should start at zero: %+v", level)
	}

	again, created, err := repo.EnsureRow(1, "GADGET-B", "wh-west")
	if err != nil {
		t.Fatalf("EnsureRow error: %v", err)
	}
	if created {
		t.Fatalf("expected created=false on second ensure")
	}
	if again.ID != level.ID {
		t.Fatalf("expected same row, got %d vs %d", again.ID, level.ID)
	}
}

func TestInventoryRepositoryAddAvailableAndDamaged(t *testing.T) {
	repo, db := setupInventoryRepositoryTest(t)
	mustCreateLevel(t, db, 1, "WIDGET-A", "wh-east", 5, 0)

	if _, err := repo.AddAvailable(1, "WIDGET-A", "wh-east", 7); err != nil {
		t.Fatalf("AddAvailable error: %v", err)
	}
	if _, err := repo.AddDamaged(1, "WIDGET-A", "wh-east", 2); err != nil {
		t.Fatalf("AddDamaged error: %v", err)
	}

	level, _ := repo.Get(1, "WIDGET-A", "wh-east")
	if level.Available != 12 || level.Damaged != 2 {
		t.Fatalf("unexpected level after restock: %+v", level)
	}
}

func TestInventoryRepositoryOrganizationIsolation(t *testing.T) {
	repo, db := setupInventoryRepositoryTest(t)
	mustCreateLevel(t, db, 1, "WIDGET-A", "wh-east", 10, 0)
	mustCreateLevel(t, db, 2, "WIDGET-A", "wh-east", 10, 0)

	affected, err := repo.ReserveStock(2, "WIDGET-A", "wh-east", 5)
	if err != nil {
		t.Fatalf("ReserveStock error: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}

	other, _ := repo.Get(1, "WIDGET-A", "wh-east")
	if other.Available != 10 || other.Reserved != 0 {
		t.Fatalf("org 1 stock mutated by org 2 reserve: %+v", other)
	}

	levels, err := repo.ListByOrg(1)
	if err != nil {
		t.Fatalf("ListByOrg error: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("expected 1 level for org 1, got %d", len(levels))
	}
}
