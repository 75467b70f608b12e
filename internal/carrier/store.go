package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stockkeeper/internal/constants"
	"github.com/stockkeeper/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func emptySnapshot(provider string) Snapshot {
	return Snapshot{Provider: provider, State: constants.BreakerStateClosed}
}

// keyedMutex 按承运商维度的互斥锁
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*sync.Mutex{}}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// MemoryStore 进程内存储（单实例默认）
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	locks     *keyedMutex
}

// NewMemoryStore 创建进程内存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: map[string]Snapshot{}, locks: newKeyedMutex()}
}

// Lock 锁定承运商
func (s *MemoryStore) Lock(provider string) func() {
	return s.locks.lock(provider)
}

// Load 读取快照
func (s *MemoryStore) Load(_ context.Context, provider string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if snapshot, ok := s.snapshots[provider]; ok {
		return snapshot, nil
	}
	return emptySnapshot(provider), nil
}

// Save 写入快照
func (s *MemoryStore) Save(_ context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Provider] = snapshot
	return nil
}

// RedisStore Redis 存储（多实例共享）
// 锁仍是进程内的：跨实例探测竞争最多放行多次探测，不破坏状态机。
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	locks  *keyedMutex
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "sk"
	}
	return &RedisStore{client: client, prefix: p, ttl: 24 * time.Hour, locks: newKeyedMutex()}, nil
}

// Lock 锁定承运商
func (s *RedisStore) Lock(provider string) func() {
	return s.locks.lock(provider)
}

func (s *RedisStore) key(provider string) string {
	return fmt.Sprintf("%s:carrier:breaker:%s", s.prefix, provider)
}

// Load 读取快照
func (s *RedisStore) Load(ctx context.Context, provider string) (Snapshot, error) {
	val, err := s.client.Get(ctx, s.key(provider)).Result()
	if err == redis.Nil {
		return emptySnapshot(provider), nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return Snapshot{}, err
	}
	if snapshot.Provider == "" {
		snapshot.Provider = provider
	}
	return snapshot, nil
}

// Save 写入快照
func (s *RedisStore) Save(ctx context.Context, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(snapshot.Provider), payload, s.ttl).Err()
}

// DBStore 数据库存储（无 Redis 的多实例部署）
type DBStore struct {
	db    *gorm.DB
	locks *keyedMutex
}

// NewDBStore 创建数据库存储
func NewDBStore(db *gorm.DB) (*DBStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	return &DBStore{db: db, locks: newKeyedMutex()}, nil
}

// Lock 锁定承运商
func (s *DBStore) Lock(provider string) func() {
	return s.locks.lock(provider)
}

// Load 读取快照
func (s *DBStore) Load(_ context.Context, provider string) (Snapshot, error) {
	var state models.BreakerState
	if err := s.db.Where("provider = ?", provider).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return emptySnapshot(provider), nil
		}
		return Snapshot{}, err
	}
	snapshot := Snapshot{
		Provider:       state.Provider,
		State:          state.State,
		FailureCount:   state.FailureCount,
		FirstFailureAt: state.FirstFailureAt,
		LastFailureAt:  state.LastFailureAt,
		NextAttemptAt:  state.NextAttemptAt,
	}
	if snapshot.State == "" {
		snapshot.State = constants.BreakerStateClosed
	}
	return snapshot, nil
}

// Save 写入快照（upsert）
func (s *DBStore) Save(_ context.Context, snapshot Snapshot) error {
	state := models.BreakerState{
		Provider:       snapshot.Provider,
		State:          snapshot.State,
		FailureCount:   snapshot.FailureCount,
		FirstFailureAt: snapshot.FirstFailureAt,
		LastFailureAt:  snapshot.LastFailureAt,
		NextAttemptAt:  snapshot.NextAttemptAt,
		UpdatedAt:      time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		UpdateAll: true,
	}).Create(&state).Error
}
