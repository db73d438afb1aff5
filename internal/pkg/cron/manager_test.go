package cron

import (
	"Roger/internal/job"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type noop struct{}

func (noop) Prune(time.Time) int                  { return 0 }
func (noop) RefreshIfStale(context.Context) error { return nil }
func (noop) Pending() int                         { return 0 }
func (noop) FlushPending(context.Context) int     { return 0 }
func (noop) Persist(context.Context) error        { return nil }

func TestRegisterJobs(t *testing.T) {
	mgr := NewCronManager(
		job.NewAudioCacheCleanJob(noop{}),
		job.NewAccountRefreshJob(noop{}),
		job.NewRetryFlushJob(noop{}),
		job.NewStreamPersistJob(noop{}),
	)
	require.NoError(t, mgr.RegisterJobs())
	require.Len(t, mgr.engine.Entries(), 4)
	mgr.Start()
	mgr.Stop()
}
