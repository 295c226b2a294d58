package replicate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/database"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

const (
	UploadModeStorage = "storage"
	UploadModeFiles   = "files"
)

// UploadedInput is a publicly reachable copy of an input image. Cleanup
// removes it and is safe to call more than once.
type UploadedInput struct {
	URL     string
	Cleanup func(ctx context.Context)
}

type Uploader interface {
	Upload(ctx context.Context, img entity.EncodedImage) (*UploadedInput, error)
}

type storageUploader struct {
	repo   database.ImageRepository
	ttl    time.Duration
	logger logrus.FieldLogger
}

// NewStorageUploader places inputs in the object store under the
// replicate-input prefix with an expiry of ttl.
func NewStorageUploader(repo database.ImageRepository, ttl time.Duration, logger logrus.FieldLogger) Uploader {
	return &storageUploader{repo: repo, ttl: ttl, logger: logger}
}

func (u *storageUploader) Upload(ctx context.Context, img entity.EncodedImage) (*UploadedInput, error) {
	key, err := u.repo.SaveImage(ctx, database.PrefixReplicateInput, img, u.ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrUploadFailed, err)
	}

	return &UploadedInput{
		URL: u.repo.ImageURL(key),
		Cleanup: once(func(ctx context.Context) {
			if err := u.repo.DeleteImage(ctx, key); err != nil {
				u.logger.WithError(err).WithField("key", key).Warn("Failed to delete temporary input")
			}
		}),
	}, nil
}

type filesUploader struct {
	client *Client
	logger logrus.FieldLogger
}

// NewFilesUploader places inputs in the provider's own file store.
func NewFilesUploader(client *Client, logger logrus.FieldLogger) Uploader {
	return &filesUploader{client: client, logger: logger}
}

func (u *filesUploader) Upload(ctx context.Context, img entity.EncodedImage) (*UploadedInput, error) {
	id, url, err := u.client.UploadFile(ctx, img, uuid.NewString()+img.Extension())
	if err != nil {
		return nil, err
	}

	return &UploadedInput{
		URL: url,
		Cleanup: once(func(ctx context.Context) {
			if err := u.client.DeleteFile(ctx, id); err != nil {
				u.logger.WithError(err).WithField("file_id", id).Warn("Failed to delete uploaded file")
			}
		}),
	}, nil
}

func once(fn func(ctx context.Context)) func(ctx context.Context) {
	done := false
	return func(ctx context.Context) {
		if done {
			return
		}
		done = true
		fn(ctx)
	}
}
