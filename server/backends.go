package server

import (
	"context"
	"fmt"
	"io"

	"youbble/config"
	"youbble/db"
	"youbble/logger"
	"youbble/repository"
	"youbble/storage"
)

// UploadBackend is an attachment store that can also read back and
// enumerate what it holds.
type UploadBackend interface {
	Store(ctx context.Context, r io.Reader, size int64, originalFilename, category string) (string, error)
	Remove(ctx context.Context, relPath string) error
	Open(ctx context.Context, relPath string) (io.ReadCloser, error)
	List(ctx context.Context) ([]string, error)
}

// OpenLedger 根据配置打开投稿台账
func OpenLedger(ctx context.Context, cfg *config.Config) (repository.EntryRepository, error) {
	switch cfg.LedgerBackend {
	case config.BackendSQLite:
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		ledger, err := repository.OpenSQLEntryRepository(ctx, conn, repository.DialectSQLite)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return ledger, nil
	case config.BackendMySQL:
		conn, err := db.ConnectDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		ledger, err := repository.OpenSQLEntryRepository(ctx, conn, repository.DialectMySQL)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return ledger, nil
	case config.BackendJSON, "":
		logger.Info("using JSON ledger", logger.String("path", cfg.LedgerFile))
		return repository.NewJSONEntryRepository(cfg.LedgerFile)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

// OpenUploads 根据配置打开附件存储
func OpenUploads(ctx context.Context, cfg *config.Config) (UploadBackend, error) {
	switch cfg.UploadBackend {
	case config.BackendMinio:
		store, err := storage.NewMinioStore(ctx, MinioConfig(cfg))
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendLocal, "":
		store, err := storage.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.UploadBackend)
	}
}

// MinioConfig extracts the MinIO connection settings from cfg.
func MinioConfig(cfg *config.Config) storage.MinioConfig {
	return storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Region:    cfg.MinioRegion,
		UseSSL:    cfg.MinioUseSSL,
	}
}

// OpenInbox 根据配置打开 demo / 合作请求收件箱，返回的 close 函数总是可以调用
func OpenInbox(cfg *config.Config) (repository.InboxRepository, func(), error) {
	switch cfg.InboxBackend {
	case config.BackendMySQL:
		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return nil, func() {}, err
		}
		if err := db.AutoMigrateModels(gdb, repository.InboxModels...); err != nil {
			db.CloseGormDB(gdb)
			return nil, func() {}, err
		}
		return repository.NewGormInboxRepository(gdb), func() { db.CloseGormDB(gdb) }, nil
	case config.BackendJSON, "":
		inbox, err := repository.NewJSONInboxRepository(cfg.DataDir)
		return inbox, func() {}, err
	default:
		return nil, func() {}, fmt.Errorf("unknown inbox backend %q", cfg.InboxBackend)
	}
}
