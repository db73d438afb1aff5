package repository

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
)

const playPositionVersion = "positions-v1"

// PlayPositionRepo 每个会话上次播放到的时间戳，用于中途恢复。
// Set/Delete 只改内存，Flush 把最新快照写入文件。
type PlayPositionRepo interface {
	Get(streamID int64) (int64, bool)
	Set(streamID, timestamp int64)
	Delete(streamID int64) bool
	Flush(ctx context.Context) error
	Load(ctx context.Context) error
}

type playPositionRepoImpl struct {
	mu        sync.Mutex
	path      string
	store     blobStore
	positions map[int64]int64
	// gen 每次修改加一，written 为已落盘的 gen
	gen     uint64
	written uint64
	// writeMu 串行化写文件，保证旧快照不会覆盖新快照
	writeMu sync.Mutex
}

func NewPlayPositionRepo(dir string, locker Locker) PlayPositionRepo {
	return &playPositionRepoImpl{
		path:      filepath.Join(dir, "play_positions.json"),
		store:     blobStore{locker: locker},
		positions: make(map[int64]int64),
	}
}

func (r *playPositionRepoImpl) Load(ctx context.Context) error {
	raw := map[string]int64{}
	if _, err := r.store.read(ctx, r.path, playPositionVersion, &raw); err != nil && err != ErrVersionMismatch {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		// 内存中已有的新值优先
		if _, ok := r.positions[id]; !ok {
			r.positions[id] = v
		}
	}
	return nil
}

func (r *playPositionRepoImpl) Get(streamID int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.positions[streamID]
	return ts, ok
}

func (r *playPositionRepoImpl) Set(streamID, timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[streamID] = timestamp
	r.gen++
}

func (r *playPositionRepoImpl) Delete(streamID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[streamID]; !ok {
		return false
	}
	delete(r.positions, streamID)
	r.gen++
	return true
}

// Flush 写入当前快照，已落盘的版本不重复写
func (r *playPositionRepoImpl) Flush(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	gen := r.gen
	if gen == r.written {
		r.mu.Unlock()
		return nil
	}
	snapshot := r.snapshot()
	r.mu.Unlock()

	if err := r.store.write(ctx, r.path, playPositionVersion, snapshot); err != nil {
		return err
	}
	r.mu.Lock()
	r.written = gen
	r.mu.Unlock()
	return nil
}

// snapshot 需持有锁
func (r *playPositionRepoImpl) snapshot() map[string]int64 {
	out := make(map[string]int64, len(r.positions))
	for id, ts := range r.positions {
		out[strconv.FormatInt(id, 10)] = ts
	}
	return out
}
