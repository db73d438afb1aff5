package repository

import (
	"Roger/internal/model"
	"context"
	"fmt"
	"path/filepath"
)

const streamCacheVersion = "streams-v4"

// StreamCache 一个账号的会话缓存，Streams 按最近列表顺序保存
type StreamCache struct {
	Streams  []*model.StreamPayload `json:"streams"`
	Services []map[string]any       `json:"services"`
	Bots     []map[string]any       `json:"bots"`
	Cursor   string                 `json:"cursor,omitempty"`
}

type StreamCacheRepo interface {
	Load(ctx context.Context, accountID int64) (*StreamCache, error)
	Save(ctx context.Context, accountID int64, cache *StreamCache) error
	Clear(ctx context.Context, accountID int64) error
}

type streamCacheRepoImpl struct {
	dir   string
	store blobStore
}

func NewStreamCacheRepo(dir string, locker Locker) StreamCacheRepo {
	return &streamCacheRepoImpl{
		dir:   dir,
		store: blobStore{locker: locker},
	}
}

func (r *streamCacheRepoImpl) path(accountID int64) string {
	return filepath.Join(r.dir, fmt.Sprintf("streams_%d.json", accountID))
}

// Load 没有缓存或版本不一致时返回空缓存
func (r *streamCacheRepoImpl) Load(ctx context.Context, accountID int64) (*StreamCache, error) {
	cache := &StreamCache{}
	_, err := r.store.read(ctx, r.path(accountID), streamCacheVersion, cache)
	if err != nil && err != ErrVersionMismatch {
		return &StreamCache{}, err
	}
	if err == ErrVersionMismatch {
		return &StreamCache{}, nil
	}
	return cache, nil
}

func (r *streamCacheRepoImpl) Save(ctx context.Context, accountID int64, cache *StreamCache) error {
	return r.store.write(ctx, r.path(accountID), streamCacheVersion, cache)
}

func (r *streamCacheRepoImpl) Clear(ctx context.Context, accountID int64) error {
	return r.store.remove(ctx, r.path(accountID))
}
