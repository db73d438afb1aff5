package service

import (
	"Roger/internal/api/config"
	"Roger/internal/model"
	"Roger/internal/pkg/audio"
	"Roger/internal/pkg/backend"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/repository"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type audioHarness struct {
	q       *dispatch.Queue
	fb      *fakeBackend
	device  *fakeDevice
	files   *fakeFiles
	streams StreamService
	svc     *AudioService
	tempDir string

	states []AudioState
	routes []bool
	sent   []error
	stream *model.Stream
}

func newAudioHarness(t *testing.T) *audioHarness {
	t.Helper()
	h := &audioHarness{
		q:       newTestQueue(t),
		fb:      &fakeBackend{},
		device:  newFakeDevice(),
		files:   newFakeFiles(),
		tempDir: t.TempDir(),
	}
	dir := t.TempDir()
	locker := repository.NewLocalLocker()
	h.streams = NewStreamService(h.q, h.fb, newTestSession(t, "US"),
		repository.NewStreamCacheRepo(dir, locker), repository.NewPlayPositionRepo(dir, locker), nil, nil)
	h.svc = NewAudioService(h.q, h.device, h.streams, h.files, h.tempDir, config.AudioConfig{
		ReleaseDelayMs: 40,
		PollIntervalMs: 5,
	})

	p := &model.StreamPayload{
		ID: 5,
		Chunks: []model.ChunkPayload{
			chunkPayload(11, 1000, 5000, 7),
			chunkPayload(12, 6000, 9000, 7),
		},
		Others: []model.ParticipantPayload{{ID: 7}},
	}
	for _, c := range p.Chunks {
		h.files.markCached(c.AudioURL)
	}
	h.do(t, func(a *AudioService) {
		a.StateChanged.AddListener(func(AudioState) { h.states = append(h.states, a.State()) })
		a.RouteChanged.AddListener(func(loud bool) { h.routes = append(h.routes, loud) })
		a.ChunkSent.AddListener(func(err error) { h.sent = append(h.sent, err) })
		t.Cleanup(a.Start())
		h.stream = h.streams.UpsertFromPayload(p)
	})
	require.NotNil(t, h.stream)
	return h
}

func (h *audioHarness) do(t *testing.T, fn func(a *AudioService)) {
	t.Helper()
	onQueue(t, h.q, func() { fn(h.svc) })
}

func (h *audioHarness) state(t *testing.T) AudioState {
	t.Helper()
	var s AudioState
	h.do(t, func(a *AudioService) { s = a.State() })
	return s
}

func (h *audioHarness) finishCurrent(t *testing.T) {
	t.Helper()
	media := h.device.lastMedia()
	require.NotNil(t, media)
	media.finish()
	onQueue(t, h.q, func() {})
}

func (h *audioHarness) statuses() []string {
	out := []string{}
	for _, c := range h.fb.callsNamed("set-status") {
		out = append(out, c.Body["status"].(string))
	}
	return out
}

func TestAudioServicePlaysToCompletion(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		require.NoError(t, a.Play(h.stream))
		assert.Equal(t, AudioState{Kind: AudioPlaying, Ready: true}, a.State())
		assert.Same(t, h.stream, a.PlayingStream())
	})
	assert.True(t, h.device.isActive())

	h.finishCurrent(t)
	h.do(t, func(a *AudioService) { assert.Equal(t, int64(5000), h.stream.PlayedUntil()) })
	h.finishCurrent(t)

	h.do(t, func(a *AudioService) {
		assert.Equal(t, AudioIdle, a.State().Kind)
		assert.Nil(t, a.Player())
		assert.Equal(t, int64(9000), h.stream.PlayedUntil())
	})
	assert.Equal(t, []AudioState{
		{Kind: AudioIdle},
		{Kind: AudioPlaying},
		{Kind: AudioPlaying, Ready: true},
		{Kind: AudioIdle},
	}, h.states)

	require.Eventually(t, func() bool { return !h.device.isActive() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.statuses()) == 3 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"listening", "listening", "idle"}, h.statuses())
}

func TestAudioServiceReplaysLastChunkWhenNothingUnplayed(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		h.stream.SetPlayedUntil(9000)
		require.NoError(t, a.Play(h.stream))
		chunks := a.Player().Chunks()
		require.Len(t, chunks, 1)
		assert.Equal(t, int64(12), chunks[0].ID)
	})
}

func TestAudioServiceResumesFromSavedPosition(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		require.NoError(t, a.Play(h.stream))
		h.device.lastMedia().Seek(2 * time.Second)
		a.Stop()
		assert.Equal(t, AudioIdle, a.State().Kind)
	})
	pos, ok := h.streams.PlayPosition(5)
	require.True(t, ok)
	assert.Equal(t, int64(3000), pos)

	h.do(t, func(a *AudioService) {
		require.NoError(t, a.Play(h.stream))
		assert.Equal(t, 0, a.Player().Index())
		assert.Equal(t, 2*time.Second, a.Player().CurrentTime())
	})
}

func TestAudioServiceStopThenPlayKeepsPosition(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		require.NoError(t, a.Play(h.stream))
		h.device.lastMedia().Seek(2 * time.Second)
		a.Stop()
		require.NoError(t, a.Play(h.stream))
		assert.Equal(t, 0, a.Player().Index())
		assert.Equal(t, 2*time.Second, a.Player().CurrentTime())
	})
}

func TestAudioServiceDebouncesSessionRelease(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		require.NoError(t, a.Play(h.stream))
		a.Stop()
		require.NoError(t, a.Play(h.stream))
	})
	time.Sleep(80 * time.Millisecond)
	assert.True(t, h.device.isActive())
	h.device.mu.Lock()
	assert.Equal(t, 1, h.device.activations)
	h.device.mu.Unlock()
}

func TestAudioServiceSessionUnavailable(t *testing.T) {
	h := newAudioHarness(t)
	h.device.failSession = true
	h.do(t, func(a *AudioService) {
		require.ErrorIs(t, a.Play(h.stream), ErrSessionUnavailable)
		assert.Equal(t, AudioIdle, a.State().Kind)
		assert.Nil(t, a.Player())
	})
}

func TestAudioServiceRecordingResumesPlayback(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		require.NoError(t, a.Play(h.stream))
		require.NoError(t, a.StartRecording(h.stream))
		assert.Equal(t, AudioRecording, a.State().Kind)
		assert.Nil(t, a.Player())
		assert.ErrorIs(t, a.Play(h.stream), ErrBusy)
		assert.ErrorIs(t, a.StartRecording(h.stream), ErrBusy)

		require.NoError(t, a.StopRecording(false))
		assert.Equal(t, AudioState{Kind: AudioPlaying, Ready: true}, a.State())
	})

	h.device.mu.Lock()
	assert.Equal(t, []audio.Tone{audio.ToneStartRecording, audio.ToneStopRecording}, h.device.tones)
	h.device.mu.Unlock()

	require.Eventually(t, func() bool { return len(h.fb.callsNamed("send-chunk")) == 1 }, time.Second, 5*time.Millisecond)
	send := h.fb.callsNamed("send-chunk")[0]
	require.NotNil(t, send.File)
	assert.Equal(t, int64(3000), send.Body["duration"])

	require.Eventually(t, func() bool {
		var n int
		h.do(t, func(*AudioService) { n = len(h.sent) })
		return n == 1
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, h.sent[0])
	_, err := os.Stat(send.File.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestAudioServiceCancelRecording(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		require.NoError(t, a.StartRecording(h.stream))
		a.Stop()
		assert.Equal(t, AudioIdle, a.State().Kind)
	})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.fb.callsNamed("send-chunk"))
	h.device.mu.Lock()
	assert.Equal(t, audio.ToneCancel, h.device.tones[len(h.device.tones)-1])
	h.device.mu.Unlock()
}

func TestAudioServiceRecordPermissionDenied(t *testing.T) {
	h := newAudioHarness(t)
	h.device.denyMic = true
	h.do(t, func(a *AudioService) {
		assert.ErrorIs(t, a.StartRecording(h.stream), ErrPermissionDenied)
		assert.Equal(t, AudioIdle, a.State().Kind)
	})
}

func TestAudioServiceInterruption(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		require.NoError(t, a.Play(h.stream))
		a.HandleInterruption(true)
		assert.Equal(t, AudioIdle, a.State().Kind)
		a.HandleInterruption(false)
		assert.Equal(t, AudioPlaying, a.State().Kind)
		assert.Same(t, h.stream, a.PlayingStream())
	})
}

func TestAudioServiceInterruptionWhileRecording(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		require.NoError(t, a.Play(h.stream))
		require.NoError(t, a.StartRecording(h.stream))

		a.HandleInterruption(true)
		assert.Equal(t, AudioIdle, a.State().Kind)
		assert.Nil(t, a.Player())
		assert.Nil(t, a.PlayingStream())

		a.HandleInterruption(false)
		assert.Equal(t, AudioPlaying, a.State().Kind)
		assert.Same(t, h.stream, a.PlayingStream())
	})
	require.Eventually(t, func() bool { return len(h.fb.callsNamed("send-chunk")) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAudioServiceRoutePolicy(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		assert.True(t, a.UsingLoudspeaker())
		a.SetProximity(true)
		assert.False(t, a.UsingLoudspeaker())
		a.SetProximity(false)
		assert.True(t, a.UsingLoudspeaker())

		require.NoError(t, a.StartRecording(h.stream))
		assert.False(t, a.UsingLoudspeaker())
		on := true
		a.RequestLoudspeaker(&on)
		assert.True(t, a.UsingLoudspeaker())
		assert.Equal(t, audio.RouteLoudspeaker, h.device.currentRoute())
		a.RequestLoudspeaker(nil)
		assert.Equal(t, audio.RouteReceiver, h.device.currentRoute())
	})
	assert.Equal(t, []bool{false, true, false, true, false}, h.routes)

	h.device.mu.Lock()
	h.device.external = true
	h.device.mu.Unlock()
	h.do(t, func(a *AudioService) {
		a.HandleRouteChange()
		assert.False(t, a.UsingLoudspeaker())
		assert.Equal(t, audio.RouteExternal, h.device.currentRoute())
	})
}

func TestAudioServiceControlsWithoutPlayer(t *testing.T) {
	h := newAudioHarness(t)
	h.do(t, func(a *AudioService) {
		assert.ErrorIs(t, a.SkipNext(), ErrNothingToPlay)
		assert.ErrorIs(t, a.Rewind(0), ErrNothingToPlay)
		assert.ErrorIs(t, a.SetRate(0), ErrParamInvalid)
		assert.ErrorIs(t, a.SetRate(5), ErrParamInvalid)
		assert.NoError(t, a.SetRate(2))
		assert.Equal(t, 2.0, a.Rate())
	})
}

func TestAudioServiceFailedSendReported(t *testing.T) {
	h := newAudioHarness(t)
	h.fb.mu.Lock()
	h.fb.handler = func(in backend.Intent) backend.Result {
		if in.Name == "send-chunk" {
			return backend.Result{Code: 500, Err: &backend.StatusError{Code: 500}}
		}
		return backend.Result{Code: 200, Data: map[string]any{}}
	}
	h.fb.mu.Unlock()
	h.do(t, func(a *AudioService) {
		require.NoError(t, a.StartRecording(h.stream))
		require.NoError(t, a.StopRecording(false))
	})
	require.Eventually(t, func() bool {
		var n int
		h.do(t, func(*AudioService) { n = len(h.sent) })
		return n == 1
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, h.sent[0], ErrBackend)
}
