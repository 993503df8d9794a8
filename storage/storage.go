// Package storage keeps uploaded task attachments and notes, either on local
// disk under MEDIA_ROOT or in an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"task-manager/config"
)

// Upload prefixes.
const (
	PrefixAttachments = "task_attachments"
	PrefixTaskFiles   = "task_files"
	PrefixNotes       = "notes"
)

var ErrInvalidKey = errors.New("invalid storage key")

type Storage interface {
	Save(ctx context.Context, prefix, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CleanName keeps the base name of an uploaded file with unsafe characters
// replaced.
func CleanName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "file"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return base
}

// NewKey returns a unique object key under prefix.
func NewKey(prefix, filename string) string {
	return prefix + "/" + uuid.New().String() + "_" + CleanName(filename)
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	return nil
}

// New returns the backend selected by cfg.
func New(cfg config.Config) (Storage, error) {
	switch cfg.StorageBackend {
	case "", "local":
		return NewLocal(cfg.MediaRoot, cfg.MediaURL), nil
	case "s3":
		return NewS3(cfg.AWSRegion, cfg.AWSBucket, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
