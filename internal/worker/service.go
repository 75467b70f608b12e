package worker

import (
	"context"
	"errors"
	"time"

	"github.com/stockkeeper/internal/config"
	"github.com/stockkeeper/internal/logger"
	"github.com/stockkeeper/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	outboxRelayInterval = 5 * time.Second
	outboxRelayBatch    = 100
)

// Service 异步队列服务
// 除 asynq 消费外承担三个周期循环：outbox 中继、过期预留清理、运单轨迹轮询。
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	go s.runOutboxRelayLoop(ctx)
	go s.runExpirySweepLoop(ctx)
	if s.consumer != nil && s.consumer.Config != nil && s.consumer.Config.Tracking.Enabled {
		go s.runTrackingPollLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runOutboxRelayLoop 发件箱中继：pending 事件转投 asynq，成功后标记 dispatched
// 崩溃窗口内的事件下一轮重投，消费端按事件ID幂等吸收。
func (s *Service) runOutboxRelayLoop(ctx context.Context) {
	if s == nil || s.consumer == nil {
		return
	}
	runOnce := func() {
		events, err := s.consumer.OutboxRepo.ListPending(outboxRelayBatch)
		if err != nil {
			logger.Warnw("worker_outbox_list_failed", "error", err)
			return
		}
		for _, event := range events {
			if err := s.consumer.QueueClient.EnqueueEventDispatch(queue.EventDispatchPayload{
				EventID:        event.ID,
				OrganizationID: event.OrganizationID,
				EventType:      event.EventType,
				Payload:        event.Payload,
			}); err != nil {
				logger.Warnw("worker_outbox_enqueue_failed", "event_id", event.ID, "error", err)
				if markErr := s.consumer.OutboxRepo.MarkFailed(event.ID); markErr != nil {
					logger.Warnw("worker_outbox_mark_failed_error", "event_id", event.ID, "error", markErr)
				}
				continue
			}
			if err := s.consumer.OutboxRepo.MarkDispatched(event.ID, time.Now()); err != nil {
				logger.Warnw("worker_outbox_mark_dispatched_failed", "event_id", event.ID, "error", err)
			}
		}
	}
	runOnce()

	ticker := time.NewTicker(outboxRelayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// runExpirySweepLoop 过期预留清理循环
func (s *Service) runExpirySweepLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.Config == nil {
		return
	}
	cfg := s.consumer.Config.Reservation
	interval := time.Duration(cfg.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	expiryMinutes := cfg.ExpiryMinutes
	if expiryMinutes <= 0 {
		expiryMinutes = 30
	}
	batch := cfg.SweepBatchSize
	if batch <= 0 {
		batch = 100
	}

	runOnce := func() {
		orgIDs, err := s.consumer.ForceReleaseService.ExpiredOrganizations(expiryMinutes)
		if err != nil {
			logger.Warnw("worker_expiry_sweep_list_orgs_failed", "error", err)
			return
		}
		for _, orgID := range orgIDs {
			result, err := s.consumer.ForceReleaseService.SweepExpired(orgID, expiryMinutes, batch)
			if err != nil {
				logger.Warnw("worker_expiry_sweep_failed", "organization_id", orgID, "error", err)
				continue
			}
			if result.Released > 0 {
				logger.Infow("worker_expiry_sweep_released",
					"organization_id", orgID,
					"released", result.Released,
					"quantity", result.Quantity,
				)
			}
		}
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// runTrackingPollLoop 运单轨迹轮询：单个运单失败不中断整批
func (s *Service) runTrackingPollLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.Config == nil {
		return
	}
	cfg := s.consumer.Config.Tracking
	interval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}

	runOnce := func() {
		shipments, err := s.consumer.ShipmentRepo.ListForTracking(batch)
		if err != nil {
			logger.Warnw("worker_tracking_list_failed", "error", err)
			return
		}
		for i := range shipments {
			shipment := shipments[i]
			result, err := s.consumer.CarrierGateway.Track(ctx, shipment.Provider, shipment.TrackingNumber)
			if err != nil {
				logger.Warnw("worker_tracking_poll_failed",
					"shipment_id", shipment.ID,
					"provider", shipment.Provider,
					"error", err,
				)
				continue
			}
			if err := s.consumer.FulfillmentService.SyncTrackingStatus(&shipment, result.Status); err != nil {
				logger.Warnw("worker_tracking_sync_failed",
					"shipment_id", shipment.ID,
					"error", err,
				)
			}
		}
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
