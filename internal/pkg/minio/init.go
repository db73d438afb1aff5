package minio

import (
	"Roger/internal/api/config"
	"context"
	"fmt"
	log "log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

var (
	// Client 全局 MinIO 客户端实例，未开启时为空
	Client *minio.Client
	// Bucket 录音分片上传桶
	Bucket string

	endpoint string
	useSSL   bool
)

// Init 初始化 MinIO 客户端
func Init(cfg config.MinIOConfig) error {
	if !cfg.Enable {
		return nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to connect to minio server: %w", err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	Client = client
	Bucket = cfg.Bucket
	endpoint = cfg.Endpoint
	useSSL = cfg.UseSSL
	return ensureBucketLifecycle(ctx)
}

// Enabled 是否已配置对象存储
func Enabled() bool {
	return Client != nil
}

// ensureBucketLifecycle 分片只需保留到后端转存完成，1 天后自动删除
func ensureBucketLifecycle(ctx context.Context) error {
	lcConfig, err := Client.GetBucketLifecycle(ctx, Bucket)
	if err != nil {
		lcConfig = lifecycle.NewConfiguration()
	}

	const targetDays = 1
	for _, rule := range lcConfig.Rules {
		if rule.Status == "Enabled" &&
			rule.Expiration.Days == targetDays &&
			rule.RuleFilter.Prefix == "" {
			log.Info("chunk bucket lifecycle already present", "ruleID", rule.ID)
			return nil
		}
	}

	lcConfig.Rules = append(lcConfig.Rules, lifecycle.Rule{
		ID:     "ChunkAutoDeleteRule",
		Status: "Enabled",
		Expiration: lifecycle.Expiration{
			Days: targetDays,
		},
	})
	if err = Client.SetBucketLifecycle(ctx, Bucket, lcConfig); err != nil {
		return fmt.Errorf("failed to set bucket lifecycle: %w", err)
	}
	log.Info("chunk bucket lifecycle installed", "days", targetDays)
	return nil
}
