package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter stores archive files and token metadata documents. Paths are
// relative to the deployment's key prefix.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	// PutMultipart is for objects too large to buffer in one request.
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader fetches stored objects. A missing path is ErrNotFound.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// Archiver moves committed events older than a cutoff out of the event
// store and returns how many it removed.
type Archiver interface {
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}
