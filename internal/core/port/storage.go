package port

import (
	"context"
	"io"
)

// UploadedObject describes a file handed to object storage.
type UploadedObject struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ObjectStore stores a file and returns a stable retrieval URL.
type ObjectStore interface {
	Put(ctx context.Context, obj UploadedObject) (string, error)
}
