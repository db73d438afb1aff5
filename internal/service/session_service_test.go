package service

import (
	"Roger/internal/api/config"
	"Roger/internal/model"
	"Roger/internal/pkg/backend"
	"Roger/internal/pkg/security"
	"Roger/internal/repository"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInFillsClaims(t *testing.T) {
	repo := repository.NewSessionRepo(t.TempDir(), repository.NewLocalLocker())
	svc := NewSessionService(repo)

	var changes []*model.Session
	svc.SessionChanged.AddListener(func(old *model.Session) { changes = append(changes, old) })

	token, err := security.GenerateToken(42, "SE", "secret", time.Hour)
	require.NoError(t, err)
	require.NoError(t, svc.SignIn(context.Background(), &model.Session{AccessToken: token}))

	assert.Equal(t, int64(42), svc.AccountID())
	assert.Equal(t, "SE", svc.Region())
	assert.Equal(t, token, svc.Token())
	assert.False(t, svc.Expired(time.Now()))
	assert.True(t, svc.Expired(time.Now().Add(2*time.Hour)))
	require.Len(t, changes, 1)
	assert.Nil(t, changes[0])

	restored := NewSessionService(repo)
	require.NoError(t, restored.Load(context.Background()))
	assert.Equal(t, int64(42), restored.AccountID())
}

func TestSignInRejectsMissingToken(t *testing.T) {
	svc := NewSessionService(repository.NewSessionRepo(t.TempDir(), repository.NewLocalLocker()))
	assert.ErrorIs(t, svc.SignIn(context.Background(), &model.Session{}), ErrParamInvalid)
	assert.ErrorIs(t, svc.SignIn(context.Background(), &model.Session{AccessToken: "garbage"}), ErrParamInvalid)
	assert.Nil(t, svc.Current())
}

func TestUnauthorizedClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := newTestSession(t, "US")
	client := backend.NewClient(config.BackendConfig{BaseURL: srv.URL, Timeout: 5}, svc.Token)
	defer svc.BindClient(client)()

	cleared := make(chan *model.Session, 1)
	svc.SessionChanged.AddListener(func(old *model.Session) { cleared <- old })

	res := client.Perform(context.Background(), backend.SetStatus(1, "idle", 0, ""))
	assert.True(t, res.Unauthorized())

	select {
	case old := <-cleared:
		assert.Equal(t, testSelfID, old.AccountID)
	case <-time.After(time.Second):
		t.Fatal("session not cleared")
	}
	assert.Zero(t, svc.AccountID())
	assert.True(t, svc.Expired(time.Now()))

	svc.Clear(context.Background())
	assert.Len(t, cleared, 0)
}
