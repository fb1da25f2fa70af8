// Package storage stores book cover images in an object store.
package storage

import (
	"context"
	"io"
)

// Object is a stored cover image opened for reading.
type Object struct {
	io.ReadCloser
	ContentType string
}

// ObjectStorage defines the object operations shared by backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
}
