package admin

import (
	"errors"

	"github.com/stockkeeper/internal/http/response"
	"github.com/stockkeeper/internal/service"

	"github.com/gin-gonic/gin"
)

func respondReleaseError(c *gin.Context, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		respondError(c, response.CodeForbidden, "operation not permitted for role", nil)
	case errors.Is(err, service.ErrReservationInvalid):
		respondError(c, response.CodeBadRequest, "reservation params invalid", nil)
	case errors.Is(err, service.ErrReservationNotFound):
		respondError(c, response.CodeNotFound, "reservation not found", nil)
	default:
		respondError(c, response.CodeInternal, fallbackMsg, err)
	}
}

// ForceReleaseRequest 强制释放单个预留请求
type ForceReleaseRequest struct {
	Reason           string `json:"reason"`
	ReasonCode       string `json:"reason_code"`
	NotifyOrderOwner bool   `json:"notify_order_owner"`
}

// ForceReleaseReservation 强制释放卡单预留
func (h *Handler) ForceReleaseReservation(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req ForceReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	result, err := h.ForceReleaseService.ForceReleaseReservation(service.ForceReleaseInput{
		OrganizationID:   orgID,
		ReservationID:    c.Param("id"),
		UserID:           userID,
		Role:             getRole(c),
		Reason:           req.Reason,
		ReasonCode:       req.ReasonCode,
		NotifyOrderOwner: req.NotifyOrderOwner,
	})
	if err != nil {
		respondReleaseError(c, err, "force release failed")
		return
	}
	response.Success(c, result)
}

// ForceReleaseBySKURequest 按 SKU 批量强制释放请求
type ForceReleaseBySKURequest struct {
	SKU    string `json:"sku" binding:"required"`
	Reason string `json:"reason"`
}

// ForceReleaseBySKU 释放组织下某 SKU 的全部 active 预留
func (h *Handler) ForceReleaseBySKU(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req ForceReleaseBySKURequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	result, err := h.ForceReleaseService.ForceReleaseAllForSKU(orgID, userID, getRole(c), req.SKU, req.Reason)
	if err != nil {
		respondReleaseError(c, err, "force release failed")
		return
	}
	response.Success(c, result)
}

// ForceReleaseExpiredRequest 过期预留清理请求
type ForceReleaseExpiredRequest struct {
	ExpiryMinutes int  `json:"expiry_minutes"`
	MaxToRelease  int  `json:"max_to_release"`
	DryRun        bool `json:"dry_run"`
}

// ForceReleaseExpired 清理超时仍 active 的预留；dry_run 仅统计
func (h *Handler) ForceReleaseExpired(c *gin.Context) {
	orgID, ok := getOrgID(c)
	if !ok {
		return
	}
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req ForceReleaseExpiredRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	if req.ExpiryMinutes <= 0 {
		req.ExpiryMinutes = h.Config.Reservation.ExpiryMinutes
	}

	result, err := h.ForceReleaseService.ForceReleaseExpired(service.ExpiredReleaseInput{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           getRole(c),
		ExpiryMinutes:  req.ExpiryMinutes,
		MaxToRelease:   req.MaxToRelease,
		DryRun:         req.DryRun,
	})
	if err != nil {
		respondReleaseError(c, err, "expired release failed")
		return
	}
	response.Success(c, result)
}
