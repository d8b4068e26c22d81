package storage

import (
	"context"
	"io"
)

// ObjectStorage is the object store surface used to publish exported archives.
type ObjectStorage interface {
	// PutObject uploads sizeBytes from reader under bucket/objectKey.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
