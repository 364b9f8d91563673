package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	ByCategory   map[string]CategoryStats
}

// CategoryStats 单个附件分类的统计
type CategoryStats struct {
	Objects int64
	Size    int64
}

// Categories returns the category names in sorted order.
func (s BucketStats) Categories() []string {
	names := make([]string, 0, len(s.ByCategory))
	for name := range s.ByCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CollectBucketStats 汇总对象列表，按首段路径（audio、consents）分类
func CollectBucketStats(objects []minio.ObjectInfo) BucketStats {
	stats := BucketStats{ByCategory: make(map[string]CategoryStats)}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
		category := categoryOf(obj.Key)
		c := stats.ByCategory[category]
		c.Objects++
		c.Size += obj.Size
		stats.ByCategory[category] = c
	}
	return stats
}

func categoryOf(key string) string {
	if i := strings.IndexByte(key, '/'); i > 0 {
		return key[:i]
	}
	return "(root)"
}

// Stats 获取存储桶中指定前缀的统计信息
func (s *MinioStore) Stats(ctx context.Context, prefix string) (BucketStats, error) {
	objects, err := s.Objects(ctx, prefix)
	if err != nil {
		return BucketStats{}, err
	}
	return CollectBucketStats(objects), nil
}

// DeletePrefix 递归删除前缀下的所有对象，返回删除数量
func (s *MinioStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if strings.Trim(prefix, "/") == "" {
		return 0, fmt.Errorf("refusing to delete the whole bucket")
	}
	objects, err := s.Objects(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(objects))
	for _, obj := range objects {
		objectsCh <- obj
	}
	close(objectsCh)

	for rmErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rmErr.Err != nil {
			return 0, fmt.Errorf("remove object %s: %w", rmErr.ObjectName, rmErr.Err)
		}
	}
	return len(objects), nil
}

// Bucket returns the bucket name.
func (s *MinioStore) Bucket() string { return s.bucket }

// OriginalName returns the sanitised client filename of a stored upload.
func OriginalName(relPath string) string {
	name := path.Base(relPath)
	if i := strings.Index(name, "__"); i >= 0 {
		return name[i+2:]
	}
	return name
}
