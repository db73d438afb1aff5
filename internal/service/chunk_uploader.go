package service

import (
	"Roger/internal/pkg/consts"
	"Roger/internal/pkg/minio"
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// minioUploader 录音先上传到对象存储，发送时只携带地址
type minioUploader struct {
	accountID func() int64
}

// NewChunkUploader MinIO 未启用时返回 nil，录音以 multipart 直接发送
func NewChunkUploader(session *SessionService) ChunkUploader {
	if !minio.Enabled() {
		return nil
	}
	return &minioUploader{accountID: session.AccountID}
}

func (u *minioUploader) Upload(ctx context.Context, path string) (string, error) {
	objectName := fmt.Sprintf("%s%d/%s/%s", consts.ChunkObjectPrefix, u.accountID(), time.Now().Format("20060102"), filepath.Base(path))
	key, err := minio.UploadFile(ctx, objectName, path, consts.MimeTypeChunk)
	if err != nil {
		return "", err
	}
	return minio.GetPublicURL(key), nil
}
