package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/logger"
	"github.com/stockkeeper/internal/queue"
	"github.com/stockkeeper/internal/repository"
)

// ReleaseAuthorizer 强制释放的角色门禁
type ReleaseAuthorizer interface {
	CanForceRelease(role string) bool
}

// ForceReleaseService 预留强制释放服务（管理操作，角色门禁）
type ForceReleaseService struct {
	inventorySvc    *InventoryService
	reservationRepo repository.ReservationRepository
	authorizer      ReleaseAuthorizer
	queueClient     *queue.Client
}

// NewForceReleaseService 创建强制释放服务
func NewForceReleaseService(inventorySvc *InventoryService, reservationRepo repository.ReservationRepository, authorizer ReleaseAuthorizer, queueClient *queue.Client) *ForceReleaseService {
	return &ForceReleaseService{
		inventorySvc:    inventorySvc,
		reservationRepo: reservationRepo,
		authorizer:      authorizer,
		queueClient:     queueClient,
	}
}

// ForceReleaseInput 强制释放输入
type ForceReleaseInput struct {
	OrganizationID   uint
	ReservationID    string
	UserID           uint
	Role             string
	Reason           string
	ReasonCode       string
	NotifyOrderOwner bool
}

// ForceReleaseResult 强制释放结果
// 已处于终态的预留单返回 Success=false 与说明信息，不产生任何库存变动。
type ForceReleaseResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	ReservationID string `json:"reservation_id"`
	Quantity      int    `json:"quantity,omitempty"`
}

func (s *ForceReleaseService) authorize(role string) error {
	if s.authorizer == nil {
		return ErrForbidden
	}
	if !s.authorizer.CanForceRelease(role) {
		return ErrForbidden
	}
	return nil
}

// ForceReleaseReservation 强制释放单个预留
func (s *ForceReleaseService) ForceReleaseReservation(input ForceReleaseInput) (*ForceReleaseResult, error) {
	if err := s.authorize(input.Role); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(input.ReservationID)
	if input.OrganizationID == 0 || trimmed == "" {
		return nil, ErrReservationInvalid
	}
	reasonCode := strings.TrimSpace(input.ReasonCode)
	if reasonCode == "" {
		reasonCode = constants.ReasonCodeManualAdjust
	}

	reservation, err := s.reservationRepo.GetByID(input.OrganizationID, trimmed)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, ErrReservationNotFound
	}
	if reservation.Terminal() {
		return &ForceReleaseResult{
			Success:       false,
			Message:       fmt.Sprintf("reservation %s already released (status %s)", trimmed, reservation.Status),
			ReservationID: trimmed,
		}, nil
	}

	released, err := s.inventorySvc.releaseAs(input.OrganizationID, trimmed, input.UserID,
		constants.ReservationStatusForceReleased, reasonCode, constants.EventReservationForceReleased)
	if err != nil {
		return nil, err
	}
	if !released.Released {
		return &ForceReleaseResult{
			Success:       false,
			Message:       fmt.Sprintf("reservation %s already released", trimmed),
			ReservationID: trimmed,
		}, nil
	}

	logger.Infow("reservation_force_released",
		"organization_id", input.OrganizationID,
		"reservation_id", trimmed,
		"user_id", input.UserID,
		"reason_code", reasonCode,
	)
	if input.NotifyOrderOwner && s.queueClient != nil {
		if err := s.queueClient.EnqueueOwnerNotification(queue.OwnerNotificationPayload{
			OrganizationID: input.OrganizationID,
			OrderID:        reservation.OrderID,
			ReservationID:  trimmed,
			Reason:         input.Reason,
		}); err != nil {
			logger.Warnw("owner_notification_enqueue_failed",
				"organization_id", input.OrganizationID,
				"reservation_id", trimmed,
				"error", err,
			)
		}
	}
	return &ForceReleaseResult{
		Success:       true,
		ReservationID: trimmed,
		Quantity:      reservation.Quantity,
	}, nil
}

// BatchReleaseResult 批量释放结果
type BatchReleaseResult struct {
	Released int      `json:"released"`
	Skipped  int      `json:"skipped"`
	Quantity int      `json:"quantity"`
	Messages []string `json:"messages,omitempty"`
}

// ForceReleaseAllForSKU 按 SKU 批量强制释放（严格组织隔离）
func (s *ForceReleaseService) ForceReleaseAllForSKU(orgID uint, userID uint, role, sku, reason string) (*BatchReleaseResult, error) {
	if err := s.authorize(role); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(sku)
	if orgID == 0 || trimmed == "" {
		return nil, ErrReservationInvalid
	}

	reservations, err := s.reservationRepo.ListActiveBySKU(orgID, trimmed)
	if err != nil {
		return nil, err
	}
	result := &BatchReleaseResult{}
	for _, reservation := range reservations {
		released, err := s.ForceReleaseReservation(ForceReleaseInput{
			OrganizationID: orgID,
			ReservationID:  reservation.ID,
			UserID:         userID,
			Role:           role,
			Reason:         reason,
			ReasonCode:     constants.ReasonCodeStuckOrder,
		})
		if err != nil {
			result.Skipped++
			result.Messages = append(result.Messages, err.Error())
			continue
		}
		if released.Success {
			result.Released++
			result.Quantity += released.Quantity
		} else {
			result.Skipped++
			result.Messages = append(result.Messages, released.Message)
		}
	}
	return result, nil
}

// ExpiredReleaseInput 过期预留清理输入
type ExpiredReleaseInput struct {
	OrganizationID uint
	UserID         uint
	Role           string
	ExpiryMinutes  int
	MaxToRelease   int
	DryRun         bool
}

// ExpiredReleaseResult 过期预留清理结果
type ExpiredReleaseResult struct {
	DryRun       bool `json:"dry_run"`
	WouldRelease int  `json:"would_release"`
	Released     int  `json:"released"`
	Quantity     int  `json:"quantity"`
}

// ForceReleaseExpired 释放超过时限仍 active 的预留
// dryRun 仅统计；MaxToRelease 限制单轮释放规模，避免长事务风暴。
func (s *ForceReleaseService) ForceReleaseExpired(input ExpiredReleaseInput) (*ExpiredReleaseResult, error) {
	if err := s.authorize(input.Role); err != nil {
		return nil, err
	}
	return s.releaseExpired(input)
}

// SweepExpired 后台清理循环入口：系统身份执行，不过角色门禁
func (s *ForceReleaseService) SweepExpired(orgID uint, expiryMinutes, maxToRelease int) (*ExpiredReleaseResult, error) {
	return s.releaseExpired(ExpiredReleaseInput{
		OrganizationID: orgID,
		ExpiryMinutes:  expiryMinutes,
		MaxToRelease:   maxToRelease,
	})
}

// ExpiredOrganizations 存在过期预留的组织列表
func (s *ForceReleaseService) ExpiredOrganizations(expiryMinutes int) ([]uint, error) {
	if expiryMinutes <= 0 {
		return nil, ErrReservationInvalid
	}
	cutoff := time.Now().Add(-time.Duration(expiryMinutes) * time.Minute)
	return s.reservationRepo.OrganizationsWithActiveOlderThan(cutoff)
}

func (s *ForceReleaseService) releaseExpired(input ExpiredReleaseInput) (*ExpiredReleaseResult, error) {
	if input.OrganizationID == 0 || input.ExpiryMinutes <= 0 {
		return nil, ErrReservationInvalid
	}
	cutoff := time.Now().Add(-time.Duration(input.ExpiryMinutes) * time.Minute)

	if input.DryRun {
		count, err := s.reservationRepo.CountActiveOlderThan(input.OrganizationID, cutoff)
		if err != nil {
			return nil, err
		}
		return &ExpiredReleaseResult{DryRun: true, WouldRelease: int(count)}, nil
	}

	reservations, err := s.reservationRepo.ListActiveOlderThan(input.OrganizationID, cutoff, input.MaxToRelease)
	if err != nil {
		return nil, err
	}
	result := &ExpiredReleaseResult{WouldRelease: len(reservations)}
	for _, reservation := range reservations {
		released, err := s.inventorySvc.releaseAs(input.OrganizationID, reservation.ID, input.UserID,
			constants.ReservationStatusExpired, constants.ReasonCodeExpiredHold, constants.EventReservationForceReleased)
		if err != nil {
			logger.Warnw("expired_reservation_release_failed",
				"organization_id", input.OrganizationID,
				"reservation_id", reservation.ID,
				"error", err,
			)
			continue
		}
		if released.Released {
			result.Released++
			result.Quantity += reservation.Quantity
		}
	}
	if result.Released > 0 {
		logger.Infow("expired_reservations_released",
			"organization_id", input.OrganizationID,
			"released", result.Released,
			"quantity", result.Quantity,
		)
	}
	return result, nil
}
