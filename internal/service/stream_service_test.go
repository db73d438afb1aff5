package service

import (
	"Roger/internal/model"
	"Roger/internal/pkg/backend"
	"Roger/internal/repository"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStreamService(t *testing.T, fb *fakeBackend) (StreamService, *SessionService) {
	t.Helper()
	q := newTestQueue(t)
	session := newTestSession(t, "US")
	dir := t.TempDir()
	locker := repository.NewLocalLocker()
	svc := NewStreamService(q, fb, session,
		repository.NewStreamCacheRepo(dir, locker),
		repository.NewPlayPositionRepo(dir, locker),
		nil, nil)
	return svc, session
}

// applyDiff 按约定由旧列表和差异重建新列表
func applyDiff(before, after []int64, d StreamsDiff) []int64 {
	inserted := make(map[int]bool, len(d.Inserted))
	for _, i := range d.Inserted {
		inserted[i] = true
	}
	movedTo := make(map[int]int, len(d.Moved))
	for _, m := range d.Moved {
		movedTo[m.To] = m.From
	}
	out := make([]int64, len(before)-len(d.Deleted)+len(d.Inserted))
	for i := range out {
		switch {
		case inserted[i]:
			out[i] = after[i]
		case hasKey(movedTo, i):
			out[i] = before[movedTo[i]]
		default:
			out[i] = before[i]
		}
	}
	return out
}

func hasKey(m map[int]int, k int) bool {
	_, ok := m[k]
	return ok
}

func recentIDs(svc StreamService) []int64 {
	out := []int64{}
	for _, s := range svc.Recents() {
		out = append(out, s.ID())
	}
	return out
}

func TestDiffIDsReconstructs(t *testing.T) {
	cases := []struct{ before, after []int64 }{
		{[]int64{}, []int64{1, 2, 3}},
		{[]int64{1, 2, 3}, []int64{}},
		{[]int64{1, 2, 3}, []int64{3, 2, 1}},
		{[]int64{1, 2, 3, 4}, []int64{5, 1, 3, 6}},
		{[]int64{9, 8, 7}, []int64{9, 8, 7}},
	}
	for _, c := range cases {
		d := DiffIDs(c.before, c.after)
		require.Equal(t, c.after, applyDiff(c.before, c.after, d))
	}

	rng := rand.New(rand.NewSource(1))
	for n := 0; n < 200; n++ {
		before := rng.Perm(12)[:rng.Intn(12)]
		after := rng.Perm(15)[:rng.Intn(15)]
		b := make([]int64, len(before))
		for i, v := range before {
			b[i] = int64(v)
		}
		a := make([]int64, len(after))
		for i, v := range after {
			a[i] = int64(v)
		}
		require.Equal(t, a, applyDiff(b, a, DiffIDs(b, a)))
	}
}

func TestUpsertFromPayloadIdempotent(t *testing.T) {
	svc, _ := newTestStreamService(t, &fakeBackend{})
	p := streamPayload(1, 5000)
	p.Chunks = append(p.Chunks, chunkPayload(3, 1000, 2000, 7), chunkPayload(2, 2000, 3000, testSelfID))

	first := svc.UpsertFromPayload(p)
	require.NotNil(t, first)
	chunks := first.Chunks()

	second := svc.UpsertFromPayload(p)
	require.Same(t, first, second)
	require.Equal(t, chunks, second.Chunks())
	require.Equal(t, int64(5000), second.LastInteraction())
	require.True(t, second.Chunks()[1].ByCurrentUser)
}

func TestUpsertRejectsIncompletePayload(t *testing.T) {
	svc, _ := newTestStreamService(t, &fakeBackend{})
	require.Nil(t, svc.UpsertFromPayload(nil))
	require.Nil(t, svc.UpsertFromPayload(&model.StreamPayload{}))
	require.Nil(t, svc.UpsertFromPayload(&model.StreamPayload{ID: 4, Chunks: []model.ChunkPayload{}}))
	require.Nil(t, svc.GetStream(4))
}

func TestUpsertChunkRequiresKnownStream(t *testing.T) {
	svc, _ := newTestStreamService(t, &fakeBackend{})
	require.Nil(t, svc.UpsertChunk(1, chunkPayload(10, 1000, 2000, 7)))
	require.Nil(t, svc.GetStream(1))

	stream := svc.UpsertFromPayload(streamPayload(1, 2000))
	require.NotNil(t, stream)
	require.Same(t, stream, svc.UpsertChunk(1, chunkPayload(11, 500, 900, 7)))
	require.Same(t, stream, svc.UpsertChunk(1, chunkPayload(12, 9000, 9500, 7)))
	require.Nil(t, svc.UpsertChunk(1, model.ChunkPayload{ID: 13}))

	var starts []int64
	for _, c := range stream.Chunks() {
		starts = append(starts, c.Start)
	}
	require.IsIncreasing(t, starts)
	require.Equal(t, int64(9500), stream.LastInteraction())
}

func TestBatchEmitsSingleCoherentDiff(t *testing.T) {
	svc, _ := newTestStreamService(t, &fakeBackend{})
	svc.SetStreamList([]*model.StreamPayload{
		streamPayload(1, 1000),
		streamPayload(2, 2000),
		streamPayload(3, 3000),
		streamPayload(4, 4000),
	}, false)
	before := recentIDs(svc)
	require.Equal(t, []int64{4, 3, 2, 1}, before)

	var diffs []StreamsDiff
	svc.OnStreamsChanged(func(d StreamsDiff) { diffs = append(diffs, d) })

	svc.Batch(func() {
		svc.UpsertChunk(1, chunkPayload(500, 9000, 9500, 7))
		svc.UpsertChunk(2, chunkPayload(501, 8000, 8500, 7))
		svc.UpsertChunk(1, chunkPayload(502, 9500, 9900, 7))
		fresh := svc.UpsertFromPayload(streamPayload(5, 5000))
		svc.IncludeInRecents(fresh)
		svc.RemoveFromRecents(svc.GetStream(3))
		svc.Batch(func() {
			svc.UpsertChunk(4, chunkPayload(503, 4000, 4100, 7))
		})
	})

	require.Len(t, diffs, 1)
	after := recentIDs(svc)
	require.Equal(t, []int64{1, 2, 5, 4}, after)
	require.Equal(t, after, applyDiff(before, after, diffs[0]))
}

func TestSetStreamListPurgesOnlyFirstTen(t *testing.T) {
	svc, _ := newTestStreamService(t, &fakeBackend{})
	var payloads []*model.StreamPayload
	for id := int64(1); id <= 15; id++ {
		payloads = append(payloads, streamPayload(id, 100000-id*1000))
	}
	svc.SetStreamList(payloads, false)
	require.Len(t, svc.Recents(), 15)
	held := svc.GetStream(3)

	// 本页只包含 1、2 以及排在第 10 之后的 12
	svc.SetStreamList([]*model.StreamPayload{streamPayload(1, 99000), streamPayload(2, 98000), streamPayload(12, 88000)}, true)

	ids := recentIDs(svc)
	require.Equal(t, []int64{1, 2, 11, 12, 13, 14, 15}, ids)
	require.Same(t, held, svc.GetStream(3))
}

func TestHiddenStreamLeavesRecents(t *testing.T) {
	svc, _ := newTestStreamService(t, &fakeBackend{})
	svc.SetStreamList([]*model.StreamPayload{streamPayload(1, 1000), streamPayload(2, 2000)}, false)

	hidden := false
	svc.UpsertFromPayload(&model.StreamPayload{ID: 1, Visible: &hidden})
	require.Equal(t, []int64{2}, recentIDs(svc))
	require.NotNil(t, svc.GetStream(1))
}

func TestApplyStatusExpires(t *testing.T) {
	svc, _ := newTestStreamService(t, &fakeBackend{})
	stream := svc.UpsertFromPayload(streamPayload(1, 1000))
	require.True(t, svc.ApplyStatus(1, model.StatusPayload{AccountID: 7, Status: "talking", EstimatedDuration: 60000}))
	require.Equal(t, model.StatusTalking, stream.StatusOf(7, time.Now()))
	require.False(t, svc.ApplyStatus(1, model.StatusPayload{AccountID: 7, Status: "shouting"}))
	require.False(t, svc.ApplyStatus(99, model.StatusPayload{AccountID: 7, Status: "idle"}))
}

func TestApplyChunkPushFetchesUnknownStream(t *testing.T) {
	fb := &fakeBackend{}
	svc, _ := newTestStreamService(t, fb)
	fb.handler = func(in backend.Intent) backend.Result {
		if in.Name == "get-stream" {
			p := streamPayload(42, 7000)
			return backend.Result{Code: 200, Data: payloadMap(t, p)}
		}
		return backend.Result{Code: 200}
	}

	stream, err := svc.ApplyChunkPush(context.Background(), 42, chunkPayload(4201, 6000, 7000, 7))
	require.NoError(t, err)
	require.Equal(t, int64(42), stream.ID())
	require.Len(t, fb.callsNamed("get-stream"), 1)

	stream, err = svc.ApplyChunkPush(context.Background(), 42, chunkPayload(4202, 8000, 9000, 7))
	require.NoError(t, err)
	require.Len(t, stream.Chunks(), 2)
	require.Len(t, fb.callsNamed("get-stream"), 1)
}

func TestLoadStreamsAndNextPage(t *testing.T) {
	fb := &fakeBackend{}
	svc, _ := newTestStreamService(t, fb)
	fb.handler = func(in backend.Intent) backend.Result {
		if in.Query["cursor"] == "" {
			return backend.Result{Code: 200, Data: map[string]any{
				"data":   []any{payloadMap(t, streamPayload(1, 5000)), map[string]any{"id": "bad"}},
				"cursor": "page-2",
			}}
		}
		return backend.Result{Code: 200, Data: map[string]any{
			"data": []any{payloadMap(t, streamPayload(2, 1000))},
		}}
	}

	require.NoError(t, svc.LoadStreams(context.Background()))
	more, err := svc.LoadNextPage(context.Background())
	require.NoError(t, err)
	require.False(t, more)
	more, err = svc.LoadNextPage(context.Background())
	require.NoError(t, err)
	require.False(t, more)
	require.Len(t, fb.callsNamed("get-streams"), 2)
	require.Equal(t, []int64{1, 2}, recentIDs(svc))
}

func TestPersistAndRestore(t *testing.T) {
	fb := &fakeBackend{}
	q := newTestQueue(t)
	session := newTestSession(t, "US")
	dir := t.TempDir()
	locker := repository.NewLocalLocker()
	cache := repository.NewStreamCacheRepo(dir, locker)
	positions := repository.NewPlayPositionRepo(dir, locker)

	svc := NewStreamService(q, fb, session, cache, positions, nil, nil)
	onQueue(t, q, func() {
		svc.SetStreamList([]*model.StreamPayload{streamPayload(1, 1000), streamPayload(2, 2000)}, false)
	})
	require.NoError(t, svc.Persist(context.Background()))

	restored := NewStreamService(newTestQueue(t), fb, session, cache, positions, nil, nil)
	require.NoError(t, restored.Restore(context.Background()))
	require.Equal(t, []int64{2, 1}, recentIDs(restored))
}

func TestSetPlayedUntilIsOptimistic(t *testing.T) {
	fb := &fakeBackend{}
	fb.handler = func(in backend.Intent) backend.Result {
		return backend.Result{Err: backend.ErrNoResponse}
	}
	svc, _ := newTestStreamService(t, fb)
	stream := svc.UpsertFromPayload(streamPayload(1, 5000))
	svc.SetPlayedUntil(stream, 5000)
	require.Equal(t, int64(5000), stream.PlayedUntil())
	require.Eventually(t, func() bool { return len(fb.callsNamed("set-played-until")) == 1 }, time.Second, 5*time.Millisecond)

	svc.SetPlayedUntil(stream, 4000)
	require.Equal(t, int64(5000), stream.PlayedUntil())
	require.False(t, stream.Unplayed())
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("send result not delivered")
		return nil
	}
}

func TestSendChunkQueuedUntilRetried(t *testing.T) {
	fb := &fakeBackend{}
	fb.handler = func(in backend.Intent) backend.Result {
		if in.Name == "send-chunk" {
			return backend.Result{Err: backend.ErrNoResponse, Queued: true}
		}
		return backend.Result{Code: 200, Data: map[string]any{}}
	}
	q := newTestQueue(t)
	dir := t.TempDir()
	locker := repository.NewLocalLocker()
	svc := NewStreamService(q, fb, newTestSession(t, "US"),
		repository.NewStreamCacheRepo(dir, locker), repository.NewPlayPositionRepo(dir, locker), nil, nil)

	path := filepath.Join(t.TempDir(), "chunk.m4a")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))

	results := make(chan error, 2)
	svc.SendChunk(42, path, 3*time.Second, func(err error) { results <- err })
	require.ErrorIs(t, waitDone(t, results), ErrChunkQueued)
	_, err := os.Stat(path)
	require.NoError(t, err)

	calls := fb.callsNamed("send-chunk")
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].OnRetried)
	calls[0].OnRetried(backend.Result{Code: 200, Data: payloadMap(t, streamPayload(42, 7000))})

	require.NoError(t, waitDone(t, results))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
	onQueue(t, q, func() {
		stream := svc.GetStream(42)
		require.NotNil(t, stream)
		require.Len(t, stream.Chunks(), 1)
	})
}

func TestReportStatusKeepsOrder(t *testing.T) {
	fb := &fakeBackend{}
	release := make(chan struct{})
	var first sync.Once
	fb.handler = func(in backend.Intent) backend.Result {
		if in.Name == "set-status" {
			first.Do(func() { <-release })
		}
		return backend.Result{Code: 200, Data: map[string]any{}}
	}
	svc, _ := newTestStreamService(t, fb)

	svc.ReportStatus(1, model.StatusListening, 0)
	require.Eventually(t, func() bool { return len(fb.callsNamed("set-status")) == 1 }, time.Second, 5*time.Millisecond)
	svc.ReportStatus(1, model.StatusIdle, 0)
	svc.ReportStatus(1, model.StatusTalking, 0)

	// 前一个请求返回之前不会发出下一个
	time.Sleep(20 * time.Millisecond)
	require.Len(t, fb.callsNamed("set-status"), 1)

	close(release)
	require.Eventually(t, func() bool { return len(fb.callsNamed("set-status")) == 3 }, time.Second, 5*time.Millisecond)
	var got []string
	for _, c := range fb.callsNamed("set-status") {
		got = append(got, c.Body["status"].(string))
	}
	require.Equal(t, []string{"listening", "idle", "talking"}, got)
}
