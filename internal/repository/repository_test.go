package repository

import (
	"Roger/internal/model"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewStreamCacheRepo(t.TempDir(), NewLocalLocker())

	empty, err := repo.Load(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, empty.Streams)

	title := "Team"
	cache := &StreamCache{
		Streams: []*model.StreamPayload{{ID: 5, Chunks: []model.ChunkPayload{}, Others: []model.ParticipantPayload{}, Title: &title}},
		Cursor:  "next",
	}
	require.NoError(t, repo.Save(ctx, 1, cache))

	loaded, err := repo.Load(ctx, 1)
	require.NoError(t, err)
	require.Len(t, loaded.Streams, 1)
	require.Equal(t, "Team", *loaded.Streams[0].Title)
	require.Equal(t, "next", loaded.Cursor)

	other, err := repo.Load(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, other.Streams)
}

func TestVersionMismatchWipesCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "streams_1.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"streams-v1","payload":{"streams":[{"id":1}]}}`), 0o600))

	repo := NewStreamCacheRepo(dir, NewLocalLocker())
	loaded, err := repo.Load(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, loaded.Streams)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestContactCache(t *testing.T) {
	ctx := context.Background()
	repo := NewContactCacheRepo(t.TempDir(), NewLocalLocker())

	index, err := repo.LoadAccounts(ctx)
	require.NoError(t, err)
	require.NotNil(t, index.Entries)
	require.True(t, index.RefreshedAt.IsZero())

	now := time.Now().UTC().Truncate(time.Second)
	index.RefreshedAt = now
	index.Entries["+14155550100"] = model.AccountEntry{Identifier: "+14155550100", AccountID: 9, Active: true}
	require.NoError(t, repo.SaveAccounts(ctx, index))

	contacts := []*model.ContactEntry{{ID: "c1", Name: "Ada", Identifiers: map[string]string{"+14155550100": "mobile"}}}
	require.NoError(t, repo.SaveContacts(ctx, contacts))

	loadedIndex, err := repo.LoadAccounts(ctx)
	require.NoError(t, err)
	require.True(t, now.Equal(loadedIndex.RefreshedAt))
	require.Equal(t, int64(9), loadedIndex.Entries["+14155550100"].AccountID)

	loadedContacts, err := repo.LoadContacts(ctx)
	require.NoError(t, err)
	require.Equal(t, contacts, loadedContacts)

	require.NoError(t, repo.Clear(ctx))
	loadedContacts, err = repo.LoadContacts(ctx)
	require.NoError(t, err)
	require.Empty(t, loadedContacts)
}

func TestPlayPositions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewPlayPositionRepo(dir, NewLocalLocker())
	repo.Set(3, 1500)
	repo.Set(4, 2500)
	require.True(t, repo.Delete(4))
	require.False(t, repo.Delete(4))

	ts, ok := repo.Get(3)
	require.True(t, ok)
	require.Equal(t, int64(1500), ts)
	require.NoError(t, repo.Flush(ctx))

	reloaded := NewPlayPositionRepo(dir, NewLocalLocker())
	require.NoError(t, reloaded.Load(ctx))
	ts, ok = reloaded.Get(3)
	require.True(t, ok)
	require.Equal(t, int64(1500), ts)
	_, ok = reloaded.Get(4)
	require.False(t, ok)
}

func TestPlayPositionsConcurrentFlushKeepsLatest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewPlayPositionRepo(dir, NewLocalLocker())

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		repo.Set(9, i*100)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Flush(ctx))
		}()
	}
	wg.Wait()
	require.NoError(t, repo.Flush(ctx))

	reloaded := NewPlayPositionRepo(dir, NewLocalLocker())
	require.NoError(t, reloaded.Load(ctx))
	ts, ok := reloaded.Get(9)
	require.True(t, ok)
	require.Equal(t, int64(5000), ts)
}

func TestSessionRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(t.TempDir(), NewLocalLocker())

	s, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, s)

	require.NoError(t, repo.Save(ctx, &model.Session{AccountID: 1, AccessToken: "t", Region: "GB"}))
	s, err = repo.Load(ctx)
	require.NoError(t, err)
	require.True(t, s.Valid())
	require.Equal(t, "GB", s.Region)

	require.NoError(t, repo.Clear(ctx))
	s, err = repo.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, s)
}
