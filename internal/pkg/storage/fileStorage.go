package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	MetaUploadedAt = "uploadedAt"
	MetaExpiresAt  = "expiresAt"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
)

// ObjectStorage is a minimal S3-like blob store.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Exists(ctx context.Context, key string) bool
	URL(key string) string
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type ObjectInfo struct {
	Key         string            `json:"key"`
	Size        int64             `json:"size"`
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Object is an open blob. Callers must close Body.
type Object struct {
	ObjectInfo
	Body io.ReadCloser
}

// fileStorage keeps blobs under <base>/objects and their headers as JSON
// sidecars under <base>/meta.
type fileStorage struct {
	basePath      string
	publicBaseURL string
}

func NewFileStorage(basePath, publicBaseURL string) ObjectStorage {
	return &fileStorage{
		basePath:      basePath,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (s *fileStorage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	objectPath, metaPath, err := s.paths(key)
	if err != nil {
		return err
	}

	// Создаем директорию если нужно
	if err := os.MkdirAll(filepath.Dir(objectPath), 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(metaPath), 0755); err != nil {
		return err
	}

	file, err := os.Create(objectPath)
	if err != nil {
		return err
	}
	size, err := io.Copy(file, data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(objectPath)
		return err
	}

	info := ObjectInfo{Key: key, Size: size, ContentType: opts.ContentType, Metadata: opts.Metadata}
	meta, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath, meta, 0644)
}

func (s *fileStorage) Get(ctx context.Context, key string) (*Object, error) {
	objectPath, metaPath, err := s.paths(key)
	if err != nil {
		return nil, err
	}

	info, err := readInfo(metaPath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(objectPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, err
	}

	return &Object{ObjectInfo: *info, Body: file}, nil
}

func (s *fileStorage) Delete(ctx context.Context, key string) error {
	objectPath, metaPath, err := s.paths(key)
	if err != nil {
		return err
	}

	if err := os.Remove(objectPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return err
	}
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *fileStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	metaRoot := filepath.Join(s.basePath, "meta")
	var infos []ObjectInfo

	err := filepath.WalkDir(metaRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(p, ".json") {
			return nil
		}

		info, err := readInfo(p)
		if err != nil {
			return nil
		}
		if strings.HasPrefix(info.Key, prefix) {
			infos = append(infos, *info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *fileStorage) Exists(ctx context.Context, key string) bool {
	objectPath, _, err := s.paths(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(objectPath)
	return !os.IsNotExist(err)
}

func (s *fileStorage) URL(key string) string {
	return s.publicBaseURL + "/objects/" + key
}

// PurgeExpired deletes every object whose expiresAt metadata lies before now.
func (s *fileStorage) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	infos, err := s.List(ctx, "")
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, info := range infos {
		expiresAt, err := time.Parse(time.RFC3339, info.Metadata[MetaExpiresAt])
		if err != nil || expiresAt.After(now) {
			continue
		}
		if err := s.Delete(ctx, info.Key); err != nil && !errors.Is(err, ErrObjectNotFound) {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

func (s *fileStorage) paths(key string) (string, string, error) {
	clean := path.Clean("/" + key)[1:]
	if key == "" || clean != key || strings.HasPrefix(clean, "..") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	objectPath := filepath.Join(s.basePath, "objects", filepath.FromSlash(clean))
	metaPath := filepath.Join(s.basePath, "meta", filepath.FromSlash(clean)+".json")
	return objectPath, metaPath, nil
}

func readInfo(metaPath string) (*ObjectInfo, error) {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}

	var info ObjectInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
