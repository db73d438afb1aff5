package repository

import (
	"Roger/internal/model"
	"context"
	"path/filepath"
)

const sessionVersion = "session-v1"

type SessionRepo interface {
	Load(ctx context.Context) (*model.Session, error)
	Save(ctx context.Context, session *model.Session) error
	Clear(ctx context.Context) error
}

type sessionRepoImpl struct {
	path  string
	store blobStore
}

func NewSessionRepo(dir string, locker Locker) SessionRepo {
	return &sessionRepoImpl{
		path:  filepath.Join(dir, "session.json"),
		store: blobStore{locker: locker},
	}
}

// Load 未登录时返回 nil
func (r *sessionRepoImpl) Load(ctx context.Context) (*model.Session, error) {
	session := &model.Session{}
	found, err := r.store.read(ctx, r.path, sessionVersion, session)
	if err == ErrVersionMismatch {
		return nil, nil
	}
	if err != nil || !found {
		return nil, err
	}
	return session, nil
}

func (r *sessionRepoImpl) Save(ctx context.Context, session *model.Session) error {
	return r.store.write(ctx, r.path, sessionVersion, session)
}

func (r *sessionRepoImpl) Clear(ctx context.Context) error {
	return r.store.remove(ctx, r.path)
}
