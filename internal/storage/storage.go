package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

const ContentTypeParquet = "application/vnd.apache.parquet"

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// Reader is what the snapshot executor needs to load table exports.
type Reader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Writer is what the audit archiver needs to publish archive files.
type Writer interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

type ObjectStore interface {
	Reader
	Writer
}
