package core

import (
	"context"
	"io"
)

type (
	ObjectOptions struct {
		ContentType     string
		ContentEncoding string
		CacheControl    string
		Public          bool
		Gzip            bool // compress the content while uploading
	}

	// FileStorage is any object store files can be streamed to.
	FileStorage interface {
		// Put streams r to the object called name and returns its public URL.
		Put(ctx context.Context, name string, r io.Reader, opts ObjectOptions) (string, error)
		Delete(ctx context.Context, name string) error
	}
)
