package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wayfarer-tours/apiserver/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Avatars stores user profile photos in object storage, one object per
// user, keyed by user ID.
type Avatars struct {
	backend ObjectStorage
}

// NewAvatars constructs an Avatars store over the provided backend.
func NewAvatars(backend ObjectStorage) *Avatars {
	return &Avatars{backend: backend}
}

// New constructs an Avatars store with the backend selected by config.
func New(ctx context.Context, cfg config.StorageConfig) (*Avatars, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "minio":
		backend, err = NewMinioBackend(cfg.Minio)
	case "gcs":
		backend, err = NewGCSBackend(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewAvatars(backend), nil
}

// EnsureBucket ensures the configured bucket exists.
func (a *Avatars) EnsureBucket(ctx context.Context) error {
	return a.backend.EnsureBucket(ctx)
}

// Save uploads a user's avatar and returns its object key. A later upload
// for the same user and content type overwrites the previous object.
func (a *Avatars) Save(ctx context.Context, userID int, r io.Reader, size int64, contentType string) (string, error) {
	ext, err := extensionFor(contentType)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("avatars/%d%s", userID, ext)
	if err := a.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// Open returns a reader for the avatar stored under key.
func (a *Avatars) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.backend.Get(ctx, key)
}

// Remove deletes the avatar stored under key.
func (a *Avatars) Remove(ctx context.Context, key string) error {
	return a.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (a *Avatars) Bucket() string {
	return a.backend.Bucket()
}

func extensionFor(contentType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("unsupported avatar content type %q", contentType)
	}
}
