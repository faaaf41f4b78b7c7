package media_test

import (
	"context"
	"path"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prsonline/core/media"
	"github.com/trezcool/prsonline/core/user"
	testutil "github.com/trezcool/prsonline/tests"
)

func TestService_Upload(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "awe", "awe@test.cd", "secret", user.RoleUser)

	picture := func() media.Upload {
		return media.Upload{Filename: "me.png", MimeType: "image/png", File: strings.NewReader("png")}
	}

	t.Run("no file", func(t *testing.T) {
		_, err := env.Media.Upload(ctx, media.Upload{Filename: "me.png"}, usr.Email)
		assert.Equal(t, media.ErrNoFile, err)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := env.Media.Upload(ctx, picture(), "lol@test.cd")
		assert.True(t, errors.Is(err, user.ErrNotFound))
		assert.Empty(t, env.Storage.Objects())
	})

	t.Run("storage failure", func(t *testing.T) {
		env.Storage.FailPut = errors.New("bucket unavailable")
		defer func() { env.Storage.FailPut = nil }()

		_, err := env.Media.Upload(ctx, picture(), usr.Email)
		assert.EqualError(t, err, "uploading file: bucket unavailable")
	})

	t.Run("ok", func(t *testing.T) {
		url, err := env.Media.Upload(ctx, picture(), " AWE@test.cd")
		require.NoError(t, err)

		objects := env.Storage.Objects()
		require.Len(t, objects, 1)
		assert.True(t, strings.HasSuffix(objects[0], "-profile"))
		assert.Equal(t, "https://storage.googleapis.com/"+env.Conf.Storage.Bucket+"/"+objects[0], url)

		got, err := env.Users.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Info)
		assert.Equal(t, url, got.Info.Picture)
	})

	t.Run("replacing keeps the profile", func(t *testing.T) {
		_, err := env.UserRepo.UpsertProfile(ctx, user.Profile{UserID: usr.ID, FirstName: "Awe", Picture: "old"})
		require.NoError(t, err)

		url, err := env.Media.Upload(ctx, picture(), usr.Email)
		require.NoError(t, err)
		got, err := env.Users.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.Equal(t, url, got.Info.Picture)
		assert.Equal(t, "Awe", got.Info.FirstName)
	})
	t.Run("object options", func(t *testing.T) {
		tests := []struct {
			name         string
			encoding     string
			wantEncoding string
			wantGzip     bool
		}{
			{name: "no encoding", wantGzip: true},
			{name: "transfer encoding", encoding: "7bit", wantGzip: true},
			{name: "content encoding", encoding: " GZIP", wantEncoding: "gzip"},
			{name: "brotli", encoding: "br", wantEncoding: "br"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				up := picture()
				up.Encoding = tt.encoding
				url, err := env.Media.Upload(ctx, up, usr.Email)
				require.NoError(t, err)

				opts := env.Storage.Options(path.Base(url))
				assert.Equal(t, "image/png", opts.ContentType)
				assert.Equal(t, "public, max-age=31536000", opts.CacheControl)
				assert.True(t, opts.Public)
				assert.Equal(t, tt.wantEncoding, opts.ContentEncoding)
				assert.Equal(t, tt.wantGzip, opts.Gzip)
			})
		}
	})
}
