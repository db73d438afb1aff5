package cron

import (
	"Roger/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine             *cron.Cron
	audioCacheCleanJob *job.AudioCacheCleanJob
	accountRefreshJob  *job.AccountRefreshJob
	retryFlushJob      *job.RetryFlushJob
	streamPersistJob   *job.StreamPersistJob
}

func NewCronManager(
	audioCacheCleanJob *job.AudioCacheCleanJob,
	accountRefreshJob *job.AccountRefreshJob,
	retryFlushJob *job.RetryFlushJob,
	streamPersistJob *job.StreamPersistJob,
) *Manager {
	return &Manager{
		engine:             cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		audioCacheCleanJob: audioCacheCleanJob,
		accountRefreshJob:  accountRefreshJob,
		retryFlushJob:      retryFlushJob,
		streamPersistJob:   streamPersistJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	jobs := []struct {
		spec string
		job  cron.Job
	}{
		{"@hourly", s.audioCacheCleanJob},
		{"0 */30 * * * *", s.accountRefreshJob},
		{"30 * * * * *", s.retryFlushJob},
		{"0 */5 * * * *", s.streamPersistJob},
	}
	for _, j := range jobs {
		if _, err := s.engine.AddJob(j.spec, j.job); err != nil {
			return err
		}
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动")
	s.engine.Start()
}

// Stop 等待正在执行的任务结束
func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
