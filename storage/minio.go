package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"FlowCash/config"
	"FlowCash/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore keeps track audio and cover art in one bucket, keyed by CID.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 连接 MinIO 并确保存储桶存在
func NewMinioStore(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("[Storage] bucket created", logger.String("bucket", cfg.MinioBucket))
	}

	logger.Info("[Storage] MinIO ready",
		logger.String("endpoint", cfg.MinioEndpoint), logger.String("bucket", cfg.MinioBucket))
	return &MinioStore{client: client, bucket: cfg.MinioBucket}, nil
}

// Put 以内容哈希为对象名上传，已存在时跳过
func (s *MinioStore) Put(ctx context.Context, kind ContentKind, data []byte, contentType string) (string, error) {
	hash, err := ContentHash(data)
	if err != nil {
		return "", err
	}
	name := objectName(kind, hash)

	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err == nil {
		logger.Debug("[Storage] object already stored", logger.String("object", name))
		return hash, nil
	} else if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return "", fmt.Errorf("failed to stat %s: %w", name, err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}

	logger.Info("[Storage] object uploaded",
		logger.String("object", name), logger.Int("size", len(data)))
	return hash, nil
}

// Check 上传、读取并删除一个测试对象，用于 minio 子命令
func (s *MinioStore) Check(ctx context.Context) error {
	data := []byte("FlowCash connection check " + time.Now().Format(time.RFC3339))
	hash, err := s.Put(ctx, "check", data, "text/plain")
	if err != nil {
		return err
	}
	name := objectName("check", hash)

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	var buf bytes.Buffer
	_, err = buf.ReadFrom(obj)
	obj.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	ok, err := VerifyContentHash(hash, buf.Bytes())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("content of %s does not match its hash", name)
	}
	return s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{})
}
