package country_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prsonline/core/country"
	inmemdb "github.com/trezcool/prsonline/storage/database/inmem"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewCountryRepository(inmemdb.Open())
	svc := country.NewService(repo)

	t.Run("catalog fallback", func(t *testing.T) {
		c, err := svc.GetByCode(ctx, " ca ")
		require.NoError(t, err)
		assert.Equal(t, "CA", c.Code)
		assert.Equal(t, "Canada", c.Name)
		assert.Zero(t, c.ID, "not stored")

		c, err = svc.GetByCode(ctx, "CAN")
		require.NoError(t, err)
		assert.Equal(t, "Canada", c.Name)
	})

	for _, code := range []string{"", "ZZ", "lol"} {
		_, err := svc.GetByCode(ctx, code)
		assert.Equal(t, country.ErrNotFound, err, code)
	}

	t.Run("seed", func(t *testing.T) {
		n, err := svc.Seed(ctx)
		require.NoError(t, err)
		assert.Greater(t, n, 200)

		again, err := svc.Seed(ctx)
		require.NoError(t, err)
		assert.Equal(t, n, again)

		countries, err := svc.List(ctx)
		require.NoError(t, err)
		assert.Len(t, countries, n, "seeding twice updates")
		assert.Equal(t, "AD", countries[0].Code)

		c, err := svc.GetByCode(ctx, "ca")
		require.NoError(t, err)
		assert.NotZero(t, c.ID)
	})
}
