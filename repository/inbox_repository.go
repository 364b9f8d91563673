package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"youbble/logger"
	"youbble/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InboxRepository 存储艺人 demo 投递与合作请求
type InboxRepository interface {
	CreateDemo(ctx context.Context, demo model.DemoSubmission) (*model.DemoSubmission, error)
	CreateCollaboration(ctx context.Context, req model.CollaborationRequest) (*model.CollaborationRequest, error)
}

// jsonInboxRepository appends inbox records to JSON array files in dir.
type jsonInboxRepository struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewJSONInboxRepository stores demos.json and collaborations.json under dir.
func NewJSONInboxRepository(dir string) (InboxRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create inbox directory: %w", err)
	}
	return &jsonInboxRepository{dir: dir, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (r *jsonInboxRepository) CreateDemo(ctx context.Context, demo model.DemoSubmission) (*model.DemoSubmission, error) {
	demo.ID = uuid.New().String()
	demo.SubmittedAt = r.now()
	if err := appendJSONRecord(&r.mu, filepath.Join(r.dir, "demos.json"), demo); err != nil {
		return nil, err
	}
	logger.Info("demo submission stored", logger.String("id", demo.ID))
	return &demo, nil
}

func (r *jsonInboxRepository) CreateCollaboration(ctx context.Context, req model.CollaborationRequest) (*model.CollaborationRequest, error) {
	req.ID = uuid.New().String()
	req.SubmittedAt = r.now()
	if err := appendJSONRecord(&r.mu, filepath.Join(r.dir, "collaborations.json"), req); err != nil {
		return nil, err
	}
	logger.Info("collaboration request stored", logger.String("id", req.ID))
	return &req, nil
}

func appendJSONRecord[T any](mu *sync.Mutex, path string, record T) error {
	mu.Lock()
	defer mu.Unlock()

	list := make([]T, 0)
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read %s: %w", path, err)
	case len(raw) > 0:
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	list = append(list, record)

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// gormInboxRepository 使用 GORM 将投递写入 MySQL
type gormInboxRepository struct {
	db *gorm.DB
}

// InboxModels 需要自动迁移的收件箱模型
var InboxModels = []interface{}{&model.DemoSubmission{}, &model.CollaborationRequest{}}

// NewGormInboxRepository wraps gdb. The tables in InboxModels must exist.
func NewGormInboxRepository(gdb *gorm.DB) InboxRepository {
	return &gormInboxRepository{db: gdb}
}

func (r *gormInboxRepository) CreateDemo(ctx context.Context, demo model.DemoSubmission) (*model.DemoSubmission, error) {
	demo.ID = uuid.New().String()
	if err := r.db.WithContext(ctx).Create(&demo).Error; err != nil {
		return nil, fmt.Errorf("failed to create demo submission: %w", err)
	}
	return &demo, nil
}

func (r *gormInboxRepository) CreateCollaboration(ctx context.Context, req model.CollaborationRequest) (*model.CollaborationRequest, error) {
	req.ID = uuid.New().String()
	if err := r.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, fmt.Errorf("failed to create collaboration request: %w", err)
	}
	return &req, nil
}
