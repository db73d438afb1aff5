package repository

import (
	"Roger/internal/model"
	"context"
	"path/filepath"
	"time"
)

const (
	contactCacheVersion = "contacts-v2"
	accountCacheVersion = "accounts-v3"
)

// AccountIndex 标识 -> 账号映射及上次全量刷新时间
type AccountIndex struct {
	RefreshedAt time.Time                     `json:"refreshed_at"`
	Entries     map[string]model.AccountEntry `json:"entries"`
}

// ContactCacheRepo 通讯录与账号索引缓存，存放在与其他进程共享的容器目录
type ContactCacheRepo interface {
	LoadContacts(ctx context.Context) ([]*model.ContactEntry, error)
	SaveContacts(ctx context.Context, contacts []*model.ContactEntry) error
	LoadAccounts(ctx context.Context) (*AccountIndex, error)
	SaveAccounts(ctx context.Context, index *AccountIndex) error
	Clear(ctx context.Context) error
}

type contactCacheRepoImpl struct {
	dir   string
	store blobStore
}

func NewContactCacheRepo(containerDir string, locker Locker) ContactCacheRepo {
	return &contactCacheRepoImpl{
		dir:   containerDir,
		store: blobStore{locker: locker},
	}
}

func (r *contactCacheRepoImpl) contactsPath() string {
	return filepath.Join(r.dir, "contacts.json")
}

func (r *contactCacheRepoImpl) accountsPath() string {
	return filepath.Join(r.dir, "accounts.json")
}

func (r *contactCacheRepoImpl) LoadContacts(ctx context.Context) ([]*model.ContactEntry, error) {
	var contacts []*model.ContactEntry
	if _, err := r.store.read(ctx, r.contactsPath(), contactCacheVersion, &contacts); err != nil {
		if err == ErrVersionMismatch {
			return nil, nil
		}
		return nil, err
	}
	return contacts, nil
}

func (r *contactCacheRepoImpl) SaveContacts(ctx context.Context, contacts []*model.ContactEntry) error {
	return r.store.write(ctx, r.contactsPath(), contactCacheVersion, contacts)
}

func (r *contactCacheRepoImpl) LoadAccounts(ctx context.Context) (*AccountIndex, error) {
	index := &AccountIndex{}
	if _, err := r.store.read(ctx, r.accountsPath(), accountCacheVersion, index); err != nil && err != ErrVersionMismatch {
		return &AccountIndex{Entries: map[string]model.AccountEntry{}}, err
	}
	if index.Entries == nil {
		index.Entries = map[string]model.AccountEntry{}
	}
	return index, nil
}

func (r *contactCacheRepoImpl) SaveAccounts(ctx context.Context, index *AccountIndex) error {
	return r.store.write(ctx, r.accountsPath(), accountCacheVersion, index)
}

// Clear 版本变化或退出登录时清空
func (r *contactCacheRepoImpl) Clear(ctx context.Context) error {
	if err := r.store.remove(ctx, r.contactsPath()); err != nil {
		return err
	}
	return r.store.remove(ctx, r.accountsPath())
}
