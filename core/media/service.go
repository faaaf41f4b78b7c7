package media

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/user"
)

const cacheControl = "public, max-age=31536000"

var ErrNoFile = errors.New("no file uploaded")

// Upload is a file received in a GraphQL multipart request.
type Upload struct {
	Filename string
	MimeType string
	Encoding string
	Size     int64
	File     io.Reader
}

type Service struct {
	storage core.FileStorage
	users   *user.Service
	logger  core.Logger
}

func NewService(storage core.FileStorage, users *user.Service, logger core.Logger) *Service {
	return &Service{storage: storage, users: users, logger: logger}
}

// objectName returns a unique name for a profile picture.
func objectName() string {
	return uuid.NewString() + strconv.FormatInt(user.NowFunc().UnixMilli(), 10) + "-profile"
}

// contentEncoding returns the content encoding of an upload; multipart transfer encodings are not one.
func contentEncoding(enc string) string {
	enc = strings.ToLower(strings.TrimSpace(enc))
	switch enc {
	case "", "7bit", "8bit", "binary", "base64", "quoted-printable", "identity":
		return ""
	}
	return enc
}

// Upload streams a profile picture to the object storage and saves it as the picture of the user owning email.
// It returns the public URL of the picture.
func (svc *Service) Upload(ctx context.Context, file Upload, email string) (string, error) {
	if file.File == nil {
		return "", ErrNoFile
	}
	usr, err := svc.users.GetByEmail(ctx, email)
	if err != nil {
		return "", errors.Wrap(err, "finding user by email")
	}

	opts := core.ObjectOptions{
		ContentType:  file.MimeType,
		CacheControl: cacheControl,
		Public:       true,
		Gzip:         true,
	}
	// already encoded content is stored as is
	if enc := contentEncoding(file.Encoding); enc != "" {
		opts.ContentEncoding = enc
		opts.Gzip = false
	}

	name := objectName()
	url, err := svc.storage.Put(ctx, name, file.File, opts)
	if err != nil {
		return "", errors.Wrap(err, "uploading file")
	}

	if _, err := svc.users.SetPicture(ctx, usr, url); err != nil {
		if dErr := svc.storage.Delete(ctx, name); dErr != nil {
			svc.logger.Error(fmt.Sprintf("deleting orphan object %s: %v", name, dErr), dErr, usr)
		}
		return "", errors.Wrap(err, "saving profile picture")
	}
	return url, nil
}
