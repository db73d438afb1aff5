package minio

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
)

// UploadFile 上传本地文件到 MinIO，返回对象名
func UploadFile(ctx context.Context, objectName string, filePath string, contentType string) (string, error) {
	if Client == nil {
		return "", fmt.Errorf("minio client is not initialized")
	}

	info, err := Client.FPutObject(ctx, Bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return info.Key, nil
}

// GetPublicURL 获取文件的公共访问URL
func GetPublicURL(objectName string) string {
	protocol := "http"
	if useSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, endpoint, Bucket, objectName)
}
