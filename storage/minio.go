package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"youbble/core/apperr"
	"youbble/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig MinIO 连接参数
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioStore keeps attachments as objects in a bucket. The object key is the
// same relative path LocalStore would return.
type MinioStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinioClient 创建 MinIO 客户端
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// NewMinioStore connects to MinIO and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created upload bucket", logger.String("bucket", cfg.Bucket))
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// Store uploads exactly size bytes and verifies the stored object size.
func (s *MinioStore) Store(ctx context.Context, r io.Reader, size int64, originalFilename, category string) (string, error) {
	if err := validCategory(category); err != nil {
		return "", apperr.Wrap(apperr.StorageWriteError, "invalid upload category", err)
	}
	if size <= 0 {
		return "", apperr.New(apperr.StorageWriteError, "refusing to store an empty upload")
	}

	name, err := uniqueName(s.now(), originalFilename)
	if err != nil {
		return "", apperr.Wrap(apperr.StorageWriteError, "generate upload name", err)
	}
	key := path.Join(category, name)

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: ContentType(key),
	})
	if err != nil {
		return "", apperr.Wrap(apperr.StorageWriteError, "upload object", err)
	}
	if info.Size != size {
		_ = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
		return "", apperr.Wrap(apperr.StorageWriteError, "upload object",
			fmt.Errorf("size mismatch: expected %d bytes, stored %d", size, info.Size))
	}

	logger.Debug("upload stored in minio",
		logger.String("bucket", s.bucket),
		logger.String("key", key),
		logger.Int64("size", info.Size))
	return key, nil
}

// Remove deletes an object. MinIO treats a missing key as success.
func (s *MinioStore) Remove(ctx context.Context, relPath string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, relPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", relPath, err)
	}
	return nil
}

// Objects returns every object under prefix.
func (s *MinioStore) Objects(ctx context.Context, prefix string) ([]minio.ObjectInfo, error) {
	return ListObjects(ctx, s.client, s.bucket, prefix)
}

// List returns the key of every stored attachment.
func (s *MinioStore) List(ctx context.Context) ([]string, error) {
	objects, err := s.Objects(ctx, "")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Open streams an object back, used by the /uploads/ route.
func (s *MinioStore) Open(ctx context.Context, relPath string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, relPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

// ListObjects 列出存储桶中指定前缀的对象
func ListObjects(ctx context.Context, client *minio.Client, bucket, prefix string) ([]minio.ObjectInfo, error) {
	var objects []minio.ObjectInfo
	for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// ContentType 根据附件路径推断内容类型
func ContentType(relPath string) string {
	switch strings.ToLower(path.Ext(relPath)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
