package service

import (
	"Roger/internal/model"
	"Roger/internal/pkg/backend"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/pkg/security"
	"Roger/internal/repository"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

const testSelfID = int64(1000)

type fakeBackend struct {
	mu      sync.Mutex
	calls   []backend.Intent
	handler func(in backend.Intent) backend.Result
}

func (f *fakeBackend) Perform(_ context.Context, in backend.Intent) backend.Result {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		return backend.Result{Code: 200, Data: map[string]any{}}
	}
	return handler(in)
}

func (f *fakeBackend) callsNamed(name string) []backend.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Intent, 0)
	for _, c := range f.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func newTestQueue(t *testing.T) *dispatch.Queue {
	t.Helper()
	q := dispatch.NewQueue(0)
	t.Cleanup(q.Close)
	return q
}

func onQueue(t *testing.T, q *dispatch.Queue, fn func()) {
	t.Helper()
	require.NoError(t, q.Sync(fn))
}

func newTestSession(t *testing.T, region string) *SessionService {
	t.Helper()
	s := NewSessionService(repository.NewSessionRepo(t.TempDir(), repository.NewLocalLocker()))
	token, err := security.GenerateToken(testSelfID, region, "test", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.SignIn(context.Background(), &model.Session{AccessToken: token}))
	return s
}

func chunkPayload(id, start, end, sender int64) model.ChunkPayload {
	return model.ChunkPayload{ID: id, SenderID: sender, Start: start, End: end, AudioURL: fmt.Sprintf("https://cdn.example/chunks/%d.m4a", id)}
}

// streamPayload 最近互动时间等于唯一分片的结束时间
func streamPayload(id, lastInteraction int64) *model.StreamPayload {
	return &model.StreamPayload{
		ID:     id,
		Chunks: []model.ChunkPayload{chunkPayload(id*100, lastInteraction-500, lastInteraction, 7)},
		Others: []model.ParticipantPayload{{ID: 7, DisplayName: "Ada"}},
	}
}

func payloadMap(t *testing.T, p *model.StreamPayload) map[string]any {
	t.Helper()
	m := map[string]any{}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}
