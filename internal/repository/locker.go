package repository

import (
	"Roger/internal/pkg/consts"
	"Roger/internal/pkg/redis"
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const lockExpiration = 10 * time.Second

// Locker 协调对共享缓存文件的读写，防止其他进程同时写入
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker 进程内锁
func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

type redisLocker struct {
	local Locker
}

// NewLocker redis 可用时使用分布式锁跨进程协调，否则退化为进程内锁
func NewLocker() Locker {
	local := NewLocalLocker()
	if !redis.Enabled() {
		return local
	}
	return &redisLocker{local: local}
}

func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	lockKey := consts.LockKeyPrefix + key
	value := uuid.NewString()
	ok, err := redis.TryLock(ctx, lockKey, value, lockExpiration, -1)
	if err != nil || !ok {
		unlockLocal()
		if err == nil {
			err = context.DeadlineExceeded
		}
		log.WarnContext(ctx, "acquire file lock failed", "key", key, "err", err)
		return nil, err
	}
	return func() {
		redis.UnLock(context.Background(), lockKey, value)
		unlockLocal()
	}, nil
}
