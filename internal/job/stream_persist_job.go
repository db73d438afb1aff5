package job

import (
	"Roger/internal/pkg/logger"
	"context"
	log "log/slog"
)

// StreamPersister 把最近会话写入本地缓存
type StreamPersister interface {
	Persist(ctx context.Context) error
}

// StreamPersistJob 定期持久化最近会话，进程异常退出时最多丢失一个周期的数据
type StreamPersistJob struct {
	streams StreamPersister
}

func NewStreamPersistJob(streams StreamPersister) *StreamPersistJob {
	return &StreamPersistJob{streams: streams}
}

func (s *StreamPersistJob) Run() {
	ctx := logger.NewTraceContext(context.Background(), "job-persist")
	if err := s.streams.Persist(ctx); err != nil {
		log.ErrorContext(ctx, "persist streams failed", "err", err)
	}
}
