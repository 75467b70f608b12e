package api

import (
	"github.com/stockkeeper/internal/http/response"
	"github.com/stockkeeper/internal/service"

	"github.com/gin-gonic/gin"
)

// CancelOrderRequest 取消订单请求
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder 取消订单并释放未发货预留
func (h *Handler) CancelOrder(c *gin.Context) {
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

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	result, err := h.CancellationService.CancelOrder(orgID, orderID, req.Reason, userID)
	if err != nil {
		respondWithMappedError(c, err, orderCommonErrorRules, response.CodeInternal, "order cancel failed")
		return
	}
	response.Success(c, result)
}

// ProcessReturnRequest 退货入库请求
type ProcessReturnRequest struct {
	Items []service.ReturnItemInput `json:"items" binding:"required"`
}

// ProcessReturn 退货入库：sellable 回可售，damaged 入损耗
func (h *Handler) ProcessReturn(c *gin.Context) {
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

	var req ProcessReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	result, err := h.ReturnService.ProcessReturn(orgID, orderID, req.Items, userID)
	if err != nil {
		respondWithMappedError(c, err, returnErrorRules, response.CodeInternal, "return process failed")
		return
	}
	response.Success(c, result)
}
