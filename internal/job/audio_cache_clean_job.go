package job

import (
	"Roger/internal/pkg/logger"
	"context"
	log "log/slog"
	"time"
)

// CachePruner 按保留期清理本地文件
type CachePruner interface {
	Prune(now time.Time) int
}

// AudioCacheCleanJob 清理过期的音频缓存与临时录音
type AudioCacheCleanJob struct {
	cache CachePruner
}

func NewAudioCacheCleanJob(cache CachePruner) *AudioCacheCleanJob {
	return &AudioCacheCleanJob{cache: cache}
}

func (s *AudioCacheCleanJob) Run() {
	ctx := logger.NewTraceContext(context.Background(), "job-cache")
	removed := s.cache.Prune(time.Now())
	if removed > 0 {
		log.InfoContext(ctx, "audio cache cleanup finished", "removed", removed)
	}
}
