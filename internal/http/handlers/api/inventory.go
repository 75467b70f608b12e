package api

import (
	"strings"

	"github.com/stockkeeper/internal/http/response"
	"github.com/stockkeeper/internal/models"
	"github.com/stockkeeper/internal/service"

	"github.com/gin-gonic/gin"
)

// GetInventoryLevels 查询组织下全部库存水位
func (h *Handler) GetInventoryLevels(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}

	levels, err := h.InventoryService.ListLevels(orgID)
	if err != nil {
		respondWithMappedError(c, err, inventoryCommonErrorRules, response.CodeInternal, "inventory query failed")
		return
	}
	response.Success(c, levels)
}

// GetInventoryLevel 查询单个 SKU 在指定仓库的水位
func (h *Handler) GetInventoryLevel(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	sku := strings.TrimSpace(c.Param("sku"))
	warehouseID := strings.TrimSpace(c.Query("warehouse_id"))

	level, err := h.InventoryService.GetLevel(orgID, sku, warehouseID)
	if err != nil {
		respondWithMappedError(c, err, inventoryCommonErrorRules, response.CodeInternal, "inventory query failed")
		return
	}
	response.Success(c, level)
}

// CreateInventoryLevelRequest 库存建档请求
type CreateInventoryLevelRequest struct {
	SKU         string        `json:"sku" binding:"required"`
	WarehouseID string        `json:"warehouse_id" binding:"required"`
	Available   int           `json:"available"`
	Damaged     int           `json:"damaged"`
	Price       *models.Money `json:"price"`
	MinStock    *int          `json:"min_stock"`
	MaxStock    *int          `json:"max_stock"`
	Notes       string        `json:"notes"`
}

// CreateInventoryLevel 库存建档
func (h *Handler) CreateInventoryLevel(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreateInventoryLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	level, err := h.InventoryService.CreateLevel(service.CreateLevelInput{
		OrganizationID: orgID,
		SKU:            req.SKU,
		WarehouseID:    req.WarehouseID,
		Available:      req.Available,
		Damaged:        req.Damaged,
		Price:          req.Price,
		MinStock:       req.MinStock,
		MaxStock:       req.MaxStock,
		UserID:         userID,
		Notes:          req.Notes,
	})
	if err != nil {
		respondWithMappedError(c, err, inventoryCommonErrorRules, response.CodeInternal, "inventory create failed")
		return
	}
	response.Success(c, level)
}

// CreateReservationRequest 预占库存请求
type CreateReservationRequest struct {
	SKU         string `json:"sku" binding:"required"`
	WarehouseID string `json:"warehouse_id" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required"`
	OrderID     uint   `json:"order_id" binding:"required"`
}

// CreateReservation 预占库存
func (h *Handler) CreateReservation(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	reservation, err := h.InventoryService.Reserve(service.ReserveInput{
		OrganizationID: orgID,
		WarehouseID:    req.WarehouseID,
		SKU:            req.SKU,
		Quantity:       req.Quantity,
		OrderID:        req.OrderID,
		UserID:         userID,
	})
	if err != nil {
		respondWithMappedError(c, err, inventoryCommonErrorRules, response.CodeInternal, "reservation create failed")
		return
	}
	response.Success(c, reservation)
}

// GetReservation 查询预留单
func (h *Handler) GetReservation(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}

	reservation, err := h.InventoryService.GetReservation(orgID, c.Param("id"))
	if err != nil {
		respondWithMappedError(c, err, inventoryCommonErrorRules, response.CodeInternal, "reservation query failed")
		return
	}
	response.Success(c, reservation)
}

// ReleaseReservation 释放预留；重复释放返回幂等结果
func (h *Handler) ReleaseReservation(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	result, err := h.InventoryService.Release(orgID, c.Param("id"), userID)
	if err != nil {
		respondWithMappedError(c, err, inventoryCommonErrorRules, response.CodeInternal, "reservation release failed")
		return
	}
	response.Success(c, result)
}
