package gcssvc

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/trezcool/prsonline/core"
)

// Storage is a core.FileStorage backed by a Google Cloud Storage bucket.
type Storage struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
}

var _ core.FileStorage = (*Storage)(nil)

func NewClient(ctx context.Context, conf *core.Config) (*storage.Client, error) {
	opts := make([]option.ClientOption, 0, 1)
	if conf.Storage.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conf.Storage.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}
	return client, nil
}

func NewStorage(client *storage.Client, conf *core.Config) *Storage {
	return &Storage{
		client:        client,
		bucket:        conf.Storage.Bucket,
		publicBaseURL: conf.Storage.PublicBaseURL,
	}
}

// PublicURL returns the public URL of the object called name.
func (s *Storage) PublicURL(name string) string {
	return PublicURL(s.publicBaseURL, s.bucket, name)
}

func PublicURL(baseURL, bucket, name string) string {
	return fmt.Sprintf("%s/%s/%s", baseURL, bucket, url.PathEscape(name))
}

func (s *Storage) Put(ctx context.Context, name string, r io.Reader, opts core.ObjectOptions) (string, error) {
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = opts.CacheControl
	w.ContentEncoding = opts.ContentEncoding
	if opts.Public {
		w.PredefinedACL = "publicRead"
	}

	if err := writeObject(w, r, opts.Gzip); err != nil {
		_ = w.Close()
		return "", errors.Wrapf(err, "writing object %s", name)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "closing object %s", name)
	}
	return s.PublicURL(name), nil
}

// writeObject copies r to w, gzipped if asked to. w.ContentEncoding is then set to gzip.
func writeObject(w *storage.Writer, r io.Reader, gz bool) error {
	if !gz {
		_, err := io.Copy(w, r)
		return err
	}
	w.ContentEncoding = "gzip"
	zw := gzip.NewWriter(w)
	if _, err := io.Copy(zw, r); err != nil {
		return err
	}
	return zw.Close()
}

func (s *Storage) Delete(ctx context.Context, name string) error {
	err := s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errors.Wrapf(err, "deleting object %s", name)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}
