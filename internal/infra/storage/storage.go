// Package storage persists uploaded documents and photos and returns stable URLs for them.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/infra/config"
)

// extensions maps every accepted content type to the extension used for stored objects.
var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Validate checks an upload against the accepted types and the size limit.
func Validate(contentType string, size, maxBytes int64) error {
	if _, ok := extensions[normalizeContentType(contentType)]; !ok {
		return domain.ErrUnsupportedFile
	}
	if size <= 0 {
		return domain.ErrFileRequired
	}
	if maxBytes > 0 && size > maxBytes {
		return domain.ErrFileTooLarge
	}
	return nil
}

// Extension returns the stored file extension for contentType, or "" when it is not accepted.
func Extension(contentType string) string {
	return extensions[normalizeContentType(contentType)]
}

func normalizeContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// New builds the object store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageSettings, logger *zap.Logger) (port.ObjectStore, error) {
	switch cfg.Driver {
	case "minio":
		store, err := NewMinioStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("Object storage initialized",
			zap.String("driver", "minio"),
			zap.String("endpoint", cfg.Endpoint),
			zap.String("bucket", cfg.Bucket),
		)
		return store, nil
	case "local", "":
		store, err := NewLocalStore(cfg.LocalDirectory, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Object storage initialized",
			zap.String("driver", "local"),
			zap.String("directory", cfg.LocalDirectory),
		)
		return store, nil
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.Driver)
	}
}

// cleanKey rejects keys that would escape the bucket or upload directory.
func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("storage: invalid object key %q", key)
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
