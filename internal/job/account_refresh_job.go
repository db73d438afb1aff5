package job

import (
	"Roger/internal/pkg/logger"
	"context"
	log "log/slog"
)

// AccountRefresher 账号索引过期时触发全量刷新
type AccountRefresher interface {
	RefreshIfStale(ctx context.Context) error
}

// AccountRefreshJob 定期检查通讯录账号索引是否过期
type AccountRefreshJob struct {
	contacts AccountRefresher
}

func NewAccountRefreshJob(contacts AccountRefresher) *AccountRefreshJob {
	return &AccountRefreshJob{contacts: contacts}
}

func (s *AccountRefreshJob) Run() {
	ctx := logger.NewTraceContext(context.Background(), "job-accounts")
	if err := s.contacts.RefreshIfStale(ctx); err != nil {
		log.ErrorContext(ctx, "schedule account refresh failed", "err", err)
	}
}
