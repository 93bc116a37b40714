package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// ObjectInfo 已存储内容的信息，Hash 为对象名中的 CID
type ObjectInfo struct {
	Kind         ContentKind
	Hash         string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Add 累计一个对象
func (s *BucketStats) Add(obj ObjectInfo) {
	s.TotalObjects++
	s.TotalSize += obj.Size
	if obj.LastModified.After(s.LastModified) {
		s.LastModified = obj.LastModified
	}
}

// parseObjectName 是 objectName 的逆操作
func parseObjectName(key string) (ContentKind, string, bool) {
	kind, hash, ok := strings.Cut(key, "/")
	if !ok || hash == "" {
		return "", "", false
	}
	return ContentKind(kind), hash, true
}

// List 列出某类内容（kind 为空时列出全部）
func (s *MinioStore) List(ctx context.Context, kind ContentKind) ([]ObjectInfo, *BucketStats, error) {
	prefix := ""
	if kind != "" {
		prefix = string(kind) + "/"
	}

	stats := &BucketStats{}
	var objects []ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		k, hash, ok := parseObjectName(object.Key)
		if !ok {
			continue
		}
		info := ObjectInfo{
			Kind:         k,
			Hash:         hash,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		}
		stats.Add(info)
		objects = append(objects, info)
	}
	return objects, stats, nil
}

// FormatSize 以人类可读的单位输出字节数
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
