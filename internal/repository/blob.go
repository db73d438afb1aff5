package repository

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ErrVersionMismatch 缓存版本与当前版本不一致，调用方应整体丢弃
var ErrVersionMismatch = errors.New("cache version mismatch")

type versionedBlob struct {
	Version string          `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// blobStore 带版本号的 JSON 文件读写，写入先落临时文件再 rename
type blobStore struct {
	locker Locker
}

// read 文件不存在时返回 false；版本不符时删除文件并返回 ErrVersionMismatch
func (b *blobStore) read(ctx context.Context, path, version string, v any) (bool, error) {
	unlock, err := b.locker.Lock(ctx, filepath.Base(path))
	if err != nil {
		return false, errors.Wrap(err, "lock "+path)
	}
	defer unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "read "+path)
	}

	var blob versionedBlob
	if err := json.Unmarshal(data, &blob); err != nil || blob.Version != version {
		_ = os.Remove(path)
		return false, ErrVersionMismatch
	}
	if err := json.Unmarshal(blob.Payload, v); err != nil {
		_ = os.Remove(path)
		return false, errors.Wrap(err, "decode "+path)
	}
	return true, nil
}

func (b *blobStore) write(ctx context.Context, path, version string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode "+path)
	}
	data, err := json.Marshal(versionedBlob{Version: version, Payload: payload})
	if err != nil {
		return errors.Wrap(err, "encode "+path)
	}

	unlock, err := b.locker.Lock(ctx, filepath.Base(path))
	if err != nil {
		return errors.Wrap(err, "lock "+path)
	}
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir "+filepath.Dir(path))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write "+tmp)
	}
	return errors.Wrap(os.Rename(tmp, path), "rename "+path)
}

func (b *blobStore) remove(ctx context.Context, path string) error {
	unlock, err := b.locker.Lock(ctx, filepath.Base(path))
	if err != nil {
		return errors.Wrap(err, "lock "+path)
	}
	defer unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove "+path)
	}
	return nil
}
