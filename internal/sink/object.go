package sink

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"

	"paperflow/internal/domain"
	"paperflow/internal/port"
)

// ObjectSink stores each batch as one object under its partition directory.
// The object name is derived from the encoded content, so delivering the
// same batch again overwrites the same object.
type ObjectSink struct {
	store  port.ObjectStorage
	bucket string
	prefix string
	enc    Encoder
}

// NewObjectSink creates an ObjectSink writing under bucket/prefix.
func NewObjectSink(store port.ObjectStorage, bucket, prefix string, enc Encoder) *ObjectSink {
	return &ObjectSink{store: store, bucket: bucket, prefix: prefix, enc: enc}
}

// Key returns the object key for an encoded batch.
func (s *ObjectSink) Key(key domain.PartitionKey, data []byte) string {
	sum := sha256.Sum256(data)
	name := "part-" + hex.EncodeToString(sum[:])[:16] + s.enc.Extension()
	return path.Join(s.prefix, key.String(), name)
}

func (s *ObjectSink) WriteBatch(ctx context.Context, key domain.PartitionKey, papers []*domain.CanonicalPaper) error {
	if len(papers) == 0 {
		return nil
	}
	data, err := s.enc.Encode(papers)
	if err != nil {
		return fmt.Errorf("encoding %s batch: %w", key, err)
	}
	_, err = s.store.Upload(ctx, port.UploadInput{
		Bucket:      s.bucket,
		Key:         s.Key(key, data),
		Body:        bytes.NewReader(data),
		ContentType: s.enc.ContentType(),
		Size:        int64(len(data)),
	})
	if err != nil {
		return fmt.Errorf("uploading %s batch: %w", key, err)
	}
	return nil
}
