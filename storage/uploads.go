package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"youbble/core/apperr"
	"youbble/logger"
)

// Attachment categories, used as subdirectories (or key prefixes).
const (
	CategoryAudio    = "audio"
	CategoryConsents = "consents"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
var separators = regexp.MustCompile(`[/\\]+`)

// SafeName strips path separators from an untrusted filename and replaces
// everything outside [A-Za-z0-9._-] with an underscore.
func SafeName(original string) string {
	name := separators.ReplaceAllString(original, "_")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ".")
	if name == "" {
		return "upload.bin"
	}
	const maxLength = 120
	if len(name) > maxLength {
		name = name[len(name)-maxLength:]
	}
	return name
}

// uniqueName prefixes the sanitised name with a millisecond timestamp and a
// random token so two uploads of the same name never collide.
func uniqueName(now time.Time, original string) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d_%s__%s", now.UnixMilli(), hex.EncodeToString(b), SafeName(original)), nil
}

func validCategory(category string) error {
	if category == "" || category != SafeName(category) || strings.Contains(category, "..") {
		return fmt.Errorf("invalid upload category %q", category)
	}
	return nil
}

// LocalStore writes attachments under a root directory on local disk.
type LocalStore struct {
	root string
	now  func() time.Time
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create upload root %s: %w", root, err)
	}
	return &LocalStore{root: root, now: time.Now}, nil
}

// Root returns the directory relative paths are resolved against.
func (s *LocalStore) Root() string { return s.root }

// Store copies exactly size bytes from r into a new file under category and
// returns its slash-separated path relative to the root. A short or failed
// copy removes the partial file and fails with StorageWriteError.
func (s *LocalStore) Store(ctx context.Context, r io.Reader, size int64, originalFilename, category string) (string, error) {
	if err := validCategory(category); err != nil {
		return "", apperr.Wrap(apperr.StorageWriteError, "invalid upload category", err)
	}
	if size <= 0 {
		return "", apperr.New(apperr.StorageWriteError, "refusing to store an empty upload")
	}

	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", apperr.Wrap(apperr.StorageWriteError, "create upload directory", err)
	}

	name, err := uniqueName(s.now(), originalFilename)
	if err != nil {
		return "", apperr.Wrap(apperr.StorageWriteError, "generate upload name", err)
	}
	destPath := filepath.Join(dir, name)

	// O_EXCL: never overwrite another upload
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", apperr.Wrap(apperr.StorageWriteError, "create upload file", err)
	}

	written, copyErr := io.Copy(out, io.LimitReader(&ctxReader{ctx: ctx, r: r}, size+1))
	closeErr := out.Close()
	switch {
	case copyErr != nil:
		err = copyErr
	case closeErr != nil:
		err = closeErr
	case written != size:
		err = fmt.Errorf("size mismatch: expected %d bytes, wrote %d", size, written)
	}
	if err != nil {
		if rmErr := os.Remove(destPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warn("failed to remove partial upload",
				logger.String("path", destPath),
				logger.ErrorField(rmErr))
		}
		return "", apperr.Wrap(apperr.StorageWriteError, "write upload", err)
	}

	rel := path.Join(category, name)
	logger.Debug("upload stored",
		logger.String("path", rel),
		logger.Int64("size", written))
	return rel, nil
}

// Remove deletes a previously stored attachment. Missing files are not an error.
func (s *LocalStore) Remove(ctx context.Context, relPath string) error {
	full, err := s.Resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload %s: %w", relPath, err)
	}
	return nil
}

// Resolve maps a relative attachment path back to a file path under the
// root, rejecting anything that would escape it.
func (s *LocalStore) Resolve(relPath string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(relPath, `\`, "/"))
	if clean == "/" {
		return "", fmt.Errorf("invalid upload path %q", relPath)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Open reads a stored attachment back.
func (s *LocalStore) Open(ctx context.Context, relPath string) (io.ReadCloser, error) {
	full, err := s.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", relPath, err)
	}
	if info, err := f.Stat(); err != nil || info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open upload %s: not a file", relPath)
	}
	return f, nil
}

// List returns the relative paths of every stored attachment.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk upload root: %w", err)
	}
	return paths, nil
}

// ctxReader stops a copy once the request context is done, so a client that
// disconnects mid-upload leaves no committed file behind.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
