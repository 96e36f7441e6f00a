package storage

import (
	"context"
	"io"
)

// ObjectStore is a bucket/key store artifacts can be downloaded from.
type ObjectStore interface {
	DownloadObject(ctx context.Context, bucket, key string, dst io.WriterAt) (int64, error)
}

var _ ObjectStore = (*S3ObjectStore)(nil)
