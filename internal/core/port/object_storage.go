package port

import (
	"context"
	"io"
	"time"
)

// ObjectStorage is the external storage collaborator used by the document,
// selfie and portfolio steps. The flow engine does not own it.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, keys []string) error
}
