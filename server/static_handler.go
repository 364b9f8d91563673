package server

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"youbble/logger"
	"youbble/storage"
)

// objectOpener reads a stored attachment back by its relative path.
type objectOpener interface {
	Open(ctx context.Context, relPath string) (io.ReadCloser, error)
}

// StaticHandler 处理已上传附件的下载请求（本地磁盘或 MinIO）。
// 只公开 categories 中列出的分类，同意书等其余附件一律 404。
type StaticHandler struct {
	store      objectOpener
	prefix     string
	categories []string
}

// NewStaticHandler 创建 StaticHandler 实例，prefix 为路由前缀，如 /uploads/
func NewStaticHandler(store objectOpener, prefix string, categories ...string) *StaticHandler {
	return &StaticHandler{store: store, prefix: prefix, categories: categories}
}

func (h *StaticHandler) public(objectPath string) bool {
	for _, c := range h.categories {
		if strings.HasPrefix(objectPath, c+"/") {
			return true
		}
	}
	return false
}

// ServeHTTP 实现 http.Handler 接口
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(r.URL.Path, h.prefix)), "/")
	if objectPath == "" || !h.public(objectPath) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	object, err := h.store.Open(ctx, objectPath)
	if err != nil {
		logger.Debug("upload not found", logger.String("path", objectPath), logger.ErrorField(err))
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", storage.ContentType(objectPath))
	w.Header().Set("Cache-Control", "private, max-age=3600")

	if _, err := io.Copy(w, object); err != nil {
		logger.Error("Error serving upload", logger.String("path", objectPath), logger.ErrorField(err))
	}
}
