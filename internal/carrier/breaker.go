package carrier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/logger"
)

var (
	ErrBreakerOpen     = errors.New("carrier breaker open")
	ErrProviderInvalid = errors.New("carrier provider invalid")
)

// Snapshot 单个承运商的熔断状态快照
type Snapshot struct {
	Provider       string     `json:"provider"`
	State          string     `json:"state"`
	FailureCount   int        `json:"failure_count"`
	FirstFailureAt *time.Time `json:"first_failure_at,omitempty"`
	LastFailureAt  *time.Time `json:"last_failure_at,omitempty"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
}

// StateStore 熔断状态存储接口
// 多实例部署时状态外置（redis/db）共享，单实例默认进程内存。
type StateStore interface {
	Load(ctx context.Context, provider string) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
	Lock(provider string) func()
}

// BreakerOptions 熔断参数
type BreakerOptions struct {
	FailureThreshold int           // 窗口内连续失败阈值
	FailureWindow    time.Duration // 失败计数滚动窗口
	Cooldown         time.Duration // open 态冷却时长
}

func (o BreakerOptions) normalized() BreakerOptions {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.FailureWindow <= 0 {
		o.FailureWindow = 30 * time.Second
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 60 * time.Second
	}
	return o
}

// Breaker 按承运商维度隔离的熔断器
// closed：正常放行并统计失败；窗口内失败达到阈值转 open。
// open：快速拒绝；冷却期满后首个请求转 half_open 探测。
// half_open：放行单次探测，成功转 closed 并清零计数，失败立即回 open。
type Breaker struct {
	opts  BreakerOptions
	store StateStore
	now   func() time.Time
}

// NewBreaker 创建熔断器
func NewBreaker(opts BreakerOptions, store StateStore) *Breaker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Breaker{opts: opts.normalized(), store: store, now: time.Now}
}

// Allow 判断是否放行请求；open 态且未到冷却期返回 ErrBreakerOpen
func (b *Breaker) Allow(ctx context.Context, provider string) error {
	name := strings.TrimSpace(provider)
	if name == "" {
		return ErrProviderInvalid
	}
	unlock := b.store.Lock(name)
	defer unlock()

	snapshot, err := b.store.Load(ctx, name)
	if err != nil {
		return err
	}
	now := b.now()

	switch snapshot.State {
	case constants.BreakerStateOpen:
		if snapshot.NextAttemptAt != nil && now.Before(*snapshot.NextAttemptAt) {
			return ErrBreakerOpen
		}
		// 冷却期满，转 half_open 放行单次探测
		snapshot.State = constants.BreakerStateHalfOpen
		snapshot.NextAttemptAt = nil
		if err := b.store.Save(ctx, snapshot); err != nil {
			return err
		}
		logger.Infow("carrier_breaker_half_open", "provider", name)
		return nil
	case constants.BreakerStateHalfOpen:
		// 探测已在途，其余请求仍拒绝
		return ErrBreakerOpen
	default:
		return nil
	}
}

// Success 记录一次成功调用
func (b *Breaker) Success(ctx context.Context, provider string) error {
	name := strings.TrimSpace(provider)
	if name == "" {
		return ErrProviderInvalid
	}
	unlock := b.store.Lock(name)
	defer unlock()

	snapshot, err := b.store.Load(ctx, name)
	if err != nil {
		return err
	}
	if snapshot.State == constants.BreakerStateHalfOpen {
		logger.Infow("carrier_breaker_closed", "provider", name)
	}
	snapshot.State = constants.BreakerStateClosed
	snapshot.FailureCount = 0
	snapshot.FirstFailureAt = nil
	snapshot.LastFailureAt = nil
	snapshot.NextAttemptAt = nil
	return b.store.Save(ctx, snapshot)
}

// Failure 记录一次失败调用，必要时打开熔断
func (b *Breaker) Failure(ctx context.Context, provider string) error {
	name := strings.TrimSpace(provider)
	if name == "" {
		return ErrProviderInvalid
	}
	unlock := b.store.Lock(name)
	defer unlock()

	snapshot, err := b.store.Load(ctx, name)
	if err != nil {
		return err
	}
	now := b.now()

	if snapshot.State == constants.BreakerStateHalfOpen {
		// 探测失败，立即回 open 重新计冷却
		snapshot.State = constants.BreakerStateOpen
		next := now.Add(b.opts.Cooldown)
		snapshot.NextAttemptAt = &next
		snapshot.LastFailureAt = &now
		logger.Warnw("carrier_breaker_reopened", "provider", name, "cooldown", b.opts.Cooldown.String())
		return b.store.Save(ctx, snapshot)
	}

	if snapshot.FirstFailureAt == nil || now.Sub(*snapshot.FirstFailureAt) > b.opts.FailureWindow {
		// 窗口外失败重开窗口
		first := now
		snapshot.FirstFailureAt = &first
		snapshot.FailureCount = 1
	} else {
		snapshot.FailureCount++
	}
	snapshot.LastFailureAt = &now

	if snapshot.FailureCount >= b.opts.FailureThreshold {
		snapshot.State = constants.BreakerStateOpen
		next := now.Add(b.opts.Cooldown)
		snapshot.NextAttemptAt = &next
		logger.Warnw("carrier_breaker_opened",
			"provider", name,
			"failure_count", snapshot.FailureCount,
			"cooldown", b.opts.Cooldown.String())
	}
	return b.store.Save(ctx, snapshot)
}

// Snapshot 获取承运商当前熔断状态（管理端可见）
func (b *Breaker) Snapshot(ctx context.Context, provider string) (Snapshot, error) {
	name := strings.TrimSpace(provider)
	if name == "" {
		return Snapshot{}, ErrProviderInvalid
	}
	unlock := b.store.Lock(name)
	defer unlock()
	return b.store.Load(ctx, name)
}
