package service

import (
	"Roger/internal/model"
	"Roger/internal/pkg/backend"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPushService(t *testing.T, fb *fakeBackend) (*PushService, StreamService) {
	t.Helper()
	svc, session := newTestStreamService(t, fb)
	return NewPushService(svc.(*streamServiceImpl).queue, svc, session), svc
}

func TestPushChunkForKnownStream(t *testing.T) {
	fb := &fakeBackend{}
	push, streams := newTestPushService(t, fb)
	queue := streams.(*streamServiceImpl).queue
	onQueue(t, queue, func() { streams.SetStreamList([]*model.StreamPayload{streamPayload(1, 2000)}, false) })

	raw := `{"type":"stream-chunk","stream_id":1,"chunk":{"id":9,"sender_id":7,"start":3000,"end":4000,"audio_url":"https://cdn.example/9.m4a"}}`
	require.NoError(t, push.Handle(context.Background(), []byte(raw)))

	onQueue(t, queue, func() {
		s := streams.GetStream(1)
		require.Len(t, s.Chunks(), 2)
		assert.Equal(t, int64(4000), s.LastInteraction())
	})
	assert.Empty(t, fb.callsNamed("get-stream"))
}

func TestPushRejectsMalformed(t *testing.T) {
	push, _ := newTestPushService(t, &fakeBackend{})
	assert.ErrorIs(t, push.Handle(context.Background(), []byte(`{`)), model.ErrMalformedPayload)
	assert.ErrorIs(t, push.Handle(context.Background(), []byte(`{"type":"stream-chunk","stream_id":1,"chunk":{"id":9}}`)), model.ErrMalformedPayload)
	assert.NoError(t, push.Handle(context.Background(), []byte(`{"type":"something-new"}`)))
}

func TestPushStatusAndRemoval(t *testing.T) {
	push, streams := newTestPushService(t, &fakeBackend{})
	queue := streams.(*streamServiceImpl).queue
	onQueue(t, queue, func() {
		streams.SetStreamList([]*model.StreamPayload{streamPayload(1, 2000), streamPayload(2, 3000)}, false)
	})

	raw := `{"type":"stream-status","stream_id":1,"status":{"account_id":7,"status":"listening","estimated_duration":30000}}`
	require.NoError(t, push.Handle(context.Background(), []byte(raw)))
	require.NoError(t, push.Handle(context.Background(), []byte(`{"type":"stream-removed","stream_id":2}`)))

	onQueue(t, queue, func() {
		assert.Equal(t, model.StatusListening, streams.GetStream(1).StatusOf(7, time.Now()))
		assert.Equal(t, []int64{1}, recentIDs(streams))
	})
}

func TestPushUpdateFetchesIncompleteUnknownStream(t *testing.T) {
	fb := &fakeBackend{}
	fb.handler = func(in backend.Intent) backend.Result {
		if in.Name == "get-stream" {
			return backend.Result{Code: 200, Data: map[string]any{"stream": payloadMap(t, streamPayload(3, 5000))}}
		}
		return backend.Result{Code: 200}
	}
	push, streams := newTestPushService(t, fb)

	require.NoError(t, push.Handle(context.Background(), []byte(`{"type":"stream-update","stream":{"id":3,"title":"Team"}}`)))
	require.Len(t, fb.callsNamed("get-stream"), 1)

	queue := streams.(*streamServiceImpl).queue
	onQueue(t, queue, func() { assert.Equal(t, []int64{3}, recentIDs(streams)) })

	require.NoError(t, push.Handle(context.Background(), []byte(`{"type":"stream-update","stream":{"id":3,"title":"Team"}}`)))
	require.Len(t, fb.callsNamed("get-stream"), 1)
	onQueue(t, queue, func() { assert.Equal(t, "Team", streams.GetStream(3).Title()) })
}

func TestPushChannel(t *testing.T) {
	assert.Equal(t, "push:account:12", PushChannel(12))
}
