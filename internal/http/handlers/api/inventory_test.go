package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/provider"
	"github.com/stockkeeper/internal/repository"
	"github.com/stockkeeper/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupInventoryHandlerTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:inventory_handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	auditSvc := service.NewAuditService(repository.NewAuditLogRepository(db), 0)
	inventorySvc := service.NewInventoryService(
		repository.NewInventoryRepository(db),
		repository.NewReservationRepository(db),
		repository.NewOutboxRepository(db),
		auditSvc,
	)
	h := &Handler{Container: &provider.Container{InventoryService: inventorySvc}}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("org_id", uint(1))
		c.Set("user_id", uint(7))
		c.Next()
	})
	r.GET("/inventory/levels", h.GetInventoryLevels)
	r.GET("/inventory/levels/:sku", h.GetInventoryLevel)
	r.POST("/inventory/levels", h.CreateInventoryLevel)
	r.POST("/inventory/reservations", h.CreateReservation)
	r.GET("/inventory/reservations/:id", h.GetReservation)
	r.POST("/inventory/reservations/:id/release", h.ReleaseReservation)
	return r, db
}

type apiResponse struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, payload interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload failed: %v", err)
		}
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v (body %s)", err, w.Body.String())
	}
	return w, resp
}

func TestInventoryHandlerCreateAndListLevels(t *testing.T) {
	r, _ := setupInventoryHandlerTest(t)

	_, resp := doJSON(t, r, http.MethodPost, "/inventory/levels", gin.H{
		"sku":          "WIDGET-A",
		"warehouse_id": "wh-east",
		"available":    50,
	})
	if resp.StatusCode != 0 {
		t.Fatalf("create level status_code want 0 got %d (%s)", resp.StatusCode, resp.Msg)
	}

	_, resp = doJSON(t, r, http.MethodGet, "/inventory/levels", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("list levels status_code want 0 got %d", resp.StatusCode)
	}
	var levels []models.InventoryLevel
	if err := json.Unmarshal(resp.Data, &levels); err != nil {
		t.Fatalf("unmarshal levels failed: %v", err)
	}
	if len(levels) != 1 || levels[0].SKU != "WIDGET-A" || levels[0].Available != 50 {
		t.Fatalf("unexpected levels: %+v", levels)
	}
}

func TestInventoryHandlerCreateLevelMissingFields(t *testing.T) {
	r, _ := setupInventoryHandlerTest(t)

	_, resp := doJSON(t, r, http.MethodPost, "/inventory/levels", gin.H{"available": 10})
	if resp.StatusCode != 400 {
		t.Fatalf("status_code want 400 got %d", resp.StatusCode)
	}
}

func TestInventoryHandlerReserveInsufficientStock(t *testing.T) {
	r, _ := setupInventoryHandlerTest(t)

	if _, resp := doJSON(t, r, http.MethodPost, "/inventory/levels", gin.H{
		"sku":          "WIDGET-A",
		"warehouse_id": "wh-east",
		"available":    3,
	}); resp.StatusCode != 0 {
		t.Fatalf("create level failed: %d", resp.StatusCode)
	}

	_, resp := doJSON(t, r, http.MethodPost, "/inventory/reservations", gin.H{
		"sku":          "WIDGET-A",
		"warehouse_id": "wh-east",
		"quantity":     4,
		"order_id":     100,
	})
	if resp.StatusCode != 400 {
		t.Fatalf("status_code want 400 got %d", resp.StatusCode)
	}
	if resp.Msg != "insufficient available stock" {
		t.Fatalf("unexpected message: %s", resp.Msg)
	}
}

func TestInventoryHandlerReservationLifecycle(t *testing.T) {
	r, _ := setupInventoryHandlerTest(t)

	if _, resp := doJSON(t, r, http.MethodPost, "/inventory/levels", gin.H{
		"sku":          "WIDGET-A",
		"warehouse_id": "wh-east",
		"available":    10,
	}); resp.StatusCode != 0 {
		t.Fatalf("create level failed: %d", resp.StatusCode)
	}

	_, resp := doJSON(t, r, http.MethodPost, "/inventory/reservations", gin.H{
		"sku":          "WIDGET-A",
		"warehouse_id": "wh-east",
		"quantity":     4,
		"order_id":     100,
	})
	if resp.StatusCode != 0 {
		t.Fatalf("create reservation failed: %d (%s)", resp.StatusCode, resp.Msg)
	}
	var reservation models.Reservation
	if err := json.Unmarshal(resp.Data, &reservation); err != nil {
		t.Fatalf("unmarshal reservation failed: %v", err)
	}

	_, resp = doJSON(t, r, http.MethodGet, "/inventory/reservations/"+reservation.ID, nil)
	if resp.StatusCode != 0 {
		t.Fatalf("get reservation failed: %d", resp.StatusCode)
	}

	_, resp = doJSON(t, r, http.MethodPost, "/inventory/reservations/"+reservation.ID+"/release", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("release failed: %d (%s)", resp.StatusCode, resp.Msg)
	}
	var result service.ReleaseResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		t.Fatalf("unmarshal release result failed: %v", err)
	}
	if !result.Released {
		t.Fatalf("expected released result: %+v", result)
	}

	// 重复释放幂等
	_, resp = doJSON(t, r, http.MethodPost, "/inventory/reservations/"+reservation.ID+"/release", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("second release failed: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		t.Fatalf("unmarshal release result failed: %v", err)
	}
	if result.Released || !result.AlreadyReleased {
		t.Fatalf("expected idempotent release result: %+v", result)
	}
}

func TestInventoryHandlerGetUnknownReservation(t *testing.T) {
	r, _ := setupInventoryHandlerTest(t)

	_, resp := doJSON(t, r, http.MethodGet, "/inventory/reservations/no-such-id", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("status_code want 404 got %d", resp.StatusCode)
	}
}
