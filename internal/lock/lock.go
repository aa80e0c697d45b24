package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dujiao-next/payin/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired 在等待时间内未获取到锁
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrLockLost 释放时锁已过期或被他人持有
	ErrLockLost = errors.New("lock lost")
)

const defaultRetryInterval = 50 * time.Millisecond

// Lease 已持有的锁，Release 幂等
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Manager 咨询锁管理器
type Manager interface {
	// Acquire 获取 key 上的锁，ttl 到期自动释放；ctx 到期前持续重试
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Key 拼接锁键
func Key(prefix string, parts ...string) string {
	trimmed := make([]string, 0, len(parts)+1)
	trimmed = append(trimmed, strings.TrimSpace(prefix))
	for _, part := range parts {
		trimmed = append(trimmed, strings.TrimSpace(part))
	}
	return strings.Join(trimmed, ":")
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisManager 基于 SET NX PX 的分布式锁
type RedisManager struct {
	client        *redis.Client
	prefix        string
	retryInterval time.Duration
}

// NewRedisManager 创建 Redis 锁管理器
func NewRedisManager(client *redis.Client, prefix string) *RedisManager {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "lock"
	} else {
		prefix = prefix + ":lock"
	}
	return &RedisManager{
		client:        client,
		prefix:        prefix,
		retryInterval: defaultRetryInterval,
	}
}

// Acquire 获取锁
func (m *RedisManager) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if m == nil || m.client == nil {
		return nil, fmt.Errorf("%w: redis client unavailable", ErrNotAcquired)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrNotAcquired)
	}
	fullKey := m.prefix + ":" + strings.TrimSpace(key)
	token := uuid.NewString()

	for {
		ok, err := m.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotAcquired, err)
		}
		if ok {
			return &redisLease{client: m.client, key: fullKey, token: token}, nil
		}
		if err := waitRetry(ctx, m.retryInterval); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		}
	}
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	once   sync.Once
	err    error
}

func (l *redisLease) Key() string {
	return l.key
}

func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		// 使用独立 context，调用方 ctx 已取消时仍需释放
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		deleted, err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, l.token).Int64()
		if err != nil {
			l.err = err
			return
		}
		if deleted == 0 {
			l.err = ErrLockLost
			logger.Warnw("lock_release_lost", "key", l.key)
		}
	})
	return l.err
}

// LocalManager 进程内锁，用于单机部署与测试
type LocalManager struct {
	mu            sync.Mutex
	held          map[string]localEntry
	retryInterval time.Duration
	now           func() time.Time
}

type localEntry struct {
	token     string
	expiresAt time.Time
}

// NewLocalManager 创建进程内锁管理器
func NewLocalManager() *LocalManager {
	return &LocalManager{
		held:          make(map[string]localEntry),
		retryInterval: 5 * time.Millisecond,
		now:           time.Now,
	}
}

// Acquire 获取锁
func (m *LocalManager) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrNotAcquired)
	}
	key = strings.TrimSpace(key)
	token := uuid.NewString()
	for {
		if m.tryAcquire(key, token, ttl) {
			return &localLease{manager: m, key: key, token: token}, nil
		}
		if err := waitRetry(ctx, m.retryInterval); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		}
	}
}

func (m *LocalManager) tryAcquire(key, token string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if entry, ok := m.held[key]; ok && now.Before(entry.expiresAt) {
		return false
	}
	m.held[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return true
}

func (m *LocalManager) release(key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.held[key]
	if !ok || entry.token != token {
		return ErrLockLost
	}
	delete(m.held, key)
	return nil
}

type localLease struct {
	manager *LocalManager
	key     string
	token   string
	once    sync.Once
	err     error
}

func (l *localLease) Key() string {
	return l.key
}

func (l *localLease) Release(_ context.Context) error {
	l.once.Do(func() {
		l.err = l.manager.release(l.key, l.token)
	})
	return l.err
}

func waitRetry(ctx context.Context, interval time.Duration) error {
	if ctx == nil {
		return ErrNotAcquired
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
