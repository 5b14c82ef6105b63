package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// metaSuffix names the JSON side file carrying an object's content type and
// metadata map. The payload itself is stored verbatim under the object key.
const metaSuffix = ".meta.json"

type fileMeta struct {
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FileStore persists objects onto the local filesystem. It is the default
// backend and suits single-node deployments where an object storage service
// is not available.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Get reads the object at key. Returns ErrNotFound when no payload exists.
// A missing or unreadable side file is tolerated: the object is returned
// with an empty metadata map so callers can fall back to recomputing
// provenance fields.
func (s *FileStore) Get(ctx context.Context, key string) (*Object, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: stat object: %w", err)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("storage: read object: %w", err)
	}

	obj := &Object{
		Data:         data,
		ContentType:  "application/octet-stream",
		Metadata:     map[string]string{},
		LastModified: info.ModTime().UTC(),
	}

	metaBytes, err := os.ReadFile(fullPath + metaSuffix)
	if err == nil {
		var meta fileMeta
		if err := json.Unmarshal(metaBytes, &meta); err == nil {
			if meta.ContentType != "" {
				obj.ContentType = meta.ContentType
			}
			if meta.Metadata != nil {
				obj.Metadata = meta.Metadata
			}
		}
	}

	return obj, nil
}

// Put writes the object payload and its metadata side file at key. The
// payload lands via rename from a temp file so concurrent readers never see
// a partial write.
func (s *FileStore) Put(ctx context.Context, key string, obj *Object) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	if obj == nil {
		return errors.New("storage: object is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}

	meta := fileMeta{ContentType: obj.ContentType, Metadata: obj.Metadata}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("storage: encode metadata: %w", err)
	}
	if err := os.WriteFile(fullPath+metaSuffix, metaBytes, 0o644); err != nil {
		return fmt.Errorf("storage: write metadata: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp.%d", fullPath, time.Now().UnixNano())
	if err := os.WriteFile(tmp, obj.Data, 0o644); err != nil {
		return fmt.Errorf("storage: write object: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("storage: finalize object: %w", err)
	}
	return nil
}

func (s *FileStore) resolve(key string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey)), nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
