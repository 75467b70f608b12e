package api

import (
	"strconv"

	"github.com/stockkeeper/internal/http/response"
	"github.com/stockkeeper/internal/service"

	"github.com/gin-gonic/gin"
)

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || value == 0 {
		respondError(c, response.CodeBadRequest, "invalid "+name, nil)
		return 0, false
	}
	return uint(value), true
}

// CreateShipmentRequest 创建运单请求
// Items 为空时发订单全部未发余量。
type CreateShipmentRequest struct {
	Provider string                      `json:"provider" binding:"required"`
	Items    []service.ShipmentItemInput `json:"items"`
}

// CreateShipment 创建运单并永久扣减预留库存
func (h *Handler) CreateShipment(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	orderID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req CreateShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	shipment, err := h.FulfillmentService.CreateShipment(c.Request.Context(), service.CreateShipmentInput{
		OrganizationID: orgID,
		OrderID:        orderID,
		Provider:       req.Provider,
		Items:          req.Items,
		UserID:         userID,
	})
	if err != nil {
		respondWithMappedError(c, err, shipmentCreateErrorRules, response.CodeInternal, "shipment create failed")
		return
	}
	response.Success(c, shipment)
}

// GetShipment 查询运单
func (h *Handler) GetShipment(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	shipmentID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	shipment, err := h.FulfillmentService.GetShipment(orgID, shipmentID)
	if err != nil {
		respondWithMappedError(c, err, shipmentQueryErrorRules, response.CodeInternal, "shipment query failed")
		return
	}
	response.Success(c, shipment)
}

// GetShipmentLabel 查询运单面单地址
func (h *Handler) GetShipmentLabel(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	shipmentID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	labelURL, err := h.FulfillmentService.GetLabel(orgID, shipmentID)
	if err != nil {
		respondWithMappedError(c, err, shipmentQueryErrorRules, response.CodeInternal, "shipment label query failed")
		return
	}
	response.Success(c, gin.H{"label_url": labelURL})
}

// TrackShipment 主动拉取承运商轨迹并同步运单状态
func (h *Handler) TrackShipment(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	shipmentID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	shipment, err := h.FulfillmentService.TrackShipment(c.Request.Context(), orgID, shipmentID)
	if err != nil {
		respondWithMappedError(c, err, shipmentTrackErrorRules, response.CodeInternal, "shipment track failed")
		return
	}
	response.Success(c, shipment)
}

// CancelShipmentRequest 取消运单请求
type CancelShipmentRequest struct {
	Reason string `json:"reason"`
}

// CancelShipment 取消运单并级联取消订单
func (h *Handler) CancelShipment(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	shipmentID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req CancelShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	shipment, err := h.FulfillmentService.CancelShipment(orgID, shipmentID, req.Reason, userID)
	if err != nil {
		respondWithMappedError(c, err, shipmentCancelErrorRules, response.CodeInternal, "shipment cancel failed")
		return
	}
	response.Success(c, shipment)
}
