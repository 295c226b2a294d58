package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/storage"
)

func NewImageRepository(storage storage.ObjectStorage) ImageRepository {
	return &objectImageRepository{storage: storage, now: time.Now}
}

// SaveImage writes img under prefix/<date>/<uuid><ext> and returns the key.
// A zero ttl stores the object without an expiry.
func (r *objectImageRepository) SaveImage(ctx context.Context, prefix string, img entity.EncodedImage, ttl time.Duration) (string, error) {
	now := r.now().UTC()
	key := path.Join(prefix, now.Format("2006-01-02"), uuid.NewString()+img.Extension())

	meta := map[string]string{storage.MetaUploadedAt: now.Format(time.RFC3339)}
	if ttl > 0 {
		meta[storage.MetaExpiresAt] = now.Add(ttl).Format(time.RFC3339)
	}

	err := r.storage.Put(ctx, key, bytes.NewReader(img.Data), storage.PutOptions{
		ContentType: img.MIMEType,
		Metadata:    meta,
	})
	if err != nil {
		return "", fmt.Errorf("save image %s: %w", key, err)
	}
	return key, nil
}

func (r *objectImageRepository) LoadImage(ctx context.Context, key string) (entity.EncodedImage, error) {
	obj, err := r.storage.Get(ctx, key)
	if err != nil {
		return entity.EncodedImage{}, err
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return entity.EncodedImage{}, err
	}

	img := entity.NewEncodedImage(data)
	if obj.ContentType != "" {
		img.MIMEType = obj.ContentType
	}
	return img, nil
}

func (r *objectImageRepository) DeleteImage(ctx context.Context, key string) error {
	return r.storage.Delete(ctx, key)
}

func (r *objectImageRepository) ImageURL(key string) string {
	return r.storage.URL(key)
}

func (r *objectImageRepository) SaveJob(ctx context.Context, job *entity.OptimizationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return r.storage.Put(ctx, r.jobKey(job.ID), bytes.NewReader(data), storage.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{storage.MetaUploadedAt: r.now().UTC().Format(time.RFC3339)},
	})
}

func (r *objectImageRepository) FindJob(ctx context.Context, id string) (*entity.OptimizationJob, error) {
	obj, err := r.storage.Get(ctx, r.jobKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, entity.ErrJobNotFound
		}
		return nil, err
	}
	defer obj.Body.Close()

	var job entity.OptimizationJob
	decoder := json.NewDecoder(obj.Body)
	if err := decoder.Decode(&job); err != nil {
		return nil, err
	}

	return &job, nil
}

func (r *objectImageRepository) jobKey(id string) string {
	return path.Join(PrefixJobs, id+".json")
}
