package port

import (
	"context"
	"io"
	"time"
)

// UploadInput encapsulates the parameters needed to upload an object.
type UploadInput struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64
}

// UploadOutput contains the result of a successful upload.
type UploadOutput struct {
	Location string
	ETag     string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage abstracts object storage operations. Local filesystem and S3
// implementations share it; the local one ignores bucket.
type ObjectStorage interface {
	Upload(ctx context.Context, input UploadInput) (*UploadOutput, error)
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	// OpenRange streams the object starting at byte offset. A missing object
	// yields an error wrapping domain.ErrInputNotFound.
	OpenRange(ctx context.Context, bucket, key string, offset int64) (io.ReadCloser, error)
	// List returns the objects under prefix in ascending key order.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
