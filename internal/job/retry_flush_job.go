package job

import (
	"Roger/internal/pkg/logger"
	"context"
	log "log/slog"
	"time"
)

// RetryFlusher 重发因网络失败排队的请求
type RetryFlusher interface {
	Pending() int
	FlushPending(ctx context.Context) int
}

type RetryFlushJob struct {
	client  RetryFlusher
	timeout time.Duration
}

func NewRetryFlushJob(client RetryFlusher) *RetryFlushJob {
	return &RetryFlushJob{client: client, timeout: 50 * time.Second}
}

func (s *RetryFlushJob) Run() {
	if s.client.Pending() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(logger.NewTraceContext(context.Background(), "job-retry"), s.timeout)
	defer cancel()

	sent := s.client.FlushPending(ctx)
	log.InfoContext(ctx, "retry queue flushed", "sent", sent, "remaining", s.client.Pending())
}
