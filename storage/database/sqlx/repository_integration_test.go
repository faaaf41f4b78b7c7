//go:build integration

package sqlxrepos_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/country"
	"github.com/trezcool/prsonline/core/notice"
	"github.com/trezcool/prsonline/core/user"
	"github.com/trezcool/prsonline/storage/database"
	sqlxrepos "github.com/trezcool/prsonline/storage/database/sqlx"
)

func setupPostgres(t *testing.T) *sqlx.DB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=prsonline",
			"POSTGRES_USER=prsonline",
			"POSTGRES_DB=prsonline_test",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	port, err := strconv.Atoi(resource.GetPort("5432/tcp"))
	require.NoError(t, err)

	conf := core.NewTestConfig()
	conf.Database.Port = port

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	db, err := database.Open(ctx, conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db.DB))
	return db
}

func TestRepositories(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		repo := sqlxrepos.NewUserRepository(db)
		now := time.Now().UTC().Truncate(time.Second)

		usr := user.User{Username: "jane", Email: "jane@prs.online", RoleID: user.RoleUser, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, usr.SetPassword("secret"))
		usr, err := repo.CreateUser(ctx, usr)
		require.NoError(t, err)
		assert.NotZero(t, usr.ID)
		assert.Nil(t, usr.Info)

		_, err = repo.CreateUser(ctx, user.User{Username: "jane2", Email: "jane@prs.online", PasswordHash: []byte("x"), RoleID: 2})
		assert.Equal(t, user.ErrEmailExists, err)
		_, err = repo.CreateUser(ctx, user.User{Username: "jane", Email: "other@prs.online", PasswordHash: []byte("x"), RoleID: 2})
		assert.Equal(t, user.ErrUsernameExists, err)

		_, err = repo.UpsertProfile(ctx, user.Profile{UserID: usr.ID, FirstName: "Jane", LastName: "Doe", Country: "CA", UpdatedAt: now})
		require.NoError(t, err)
		_, err = repo.UpsertProfile(ctx, user.Profile{UserID: 9999, UpdatedAt: now})
		assert.Equal(t, user.ErrNotFound, err)

		got, err := repo.GetUser(ctx, user.GetFilter{Email: "jane@prs.online"})
		require.NoError(t, err)
		require.NotNil(t, got.Info)
		assert.Equal(t, "Jane Doe", got.Info.FullName())
		assert.NoError(t, got.CheckPassword("secret"))

		found, err := repo.SearchUsers(ctx, user.NewSearchFilter("jane doe", 0))
		require.NoError(t, err)
		assert.Len(t, found, 1)
		found, err = repo.SearchUsers(ctx, user.NewSearchFilter("AN", user.RoleAdmin))
		require.NoError(t, err)
		assert.Empty(t, found)

		got.RefreshToken, got.RefreshExpires = "tok", now.Add(time.Hour)
		got.PasswordHash = nil
		_, err = repo.UpdateUser(ctx, got)
		require.NoError(t, err)
		got, err = repo.GetUser(ctx, user.GetFilter{RefreshToken: "tok"})
		require.NoError(t, err)
		assert.NoError(t, got.CheckPassword("secret"), "nil hash keeps the password")

		n, err := repo.DeleteUsersByEmail(ctx, "jane@prs.online")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("countries", func(t *testing.T) {
		svc := country.NewService(sqlxrepos.NewCountryRepository(db))
		n, err := svc.Seed(ctx)
		require.NoError(t, err)
		assert.Greater(t, n, 200)
		_, err = svc.Seed(ctx)
		require.NoError(t, err, "seeding is idempotent")

		c, err := svc.GetByCode(ctx, "ca")
		require.NoError(t, err)
		assert.Equal(t, "Canada", c.Name)
	})

	t.Run("notices", func(t *testing.T) {
		repo := sqlxrepos.NewNoticeRepository(db)
		firm, err := repo.CreateFirm(ctx, "Acme LLP")
		require.NoError(t, err)

		start := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
		var prIDs []int
		for i, num := range []string{"PR-2", "PR-1"} {
			pr, err := repo.CreatePracticeReview(ctx, notice.PracticeReview{
				PRNumber: num, StartDate: start.AddDate(0, 0, -i), ContactEmail: "cpa@acme.ca", Firm: firm,
			})
			require.NoError(t, err)
			prIDs = append(prIDs, pr.ID)
		}

		prs, err := repo.QueryPracticeReviews(ctx, notice.PracticeReviewFilter{From: start.AddDate(0, 0, -1), To: start, WithoutNotice: true})
		require.NoError(t, err)
		require.Len(t, prs, 2)
		assert.Equal(t, "PR-1", prs[0].PRNumber)

		created, err := repo.CreateNotices(ctx, prIDs)
		require.NoError(t, err)
		assert.Equal(t, 2, created)
		created, err = repo.CreateNotices(ctx, prIDs)
		require.NoError(t, err)
		assert.Zero(t, created)

		notices, err := repo.QueryNotices(ctx, notice.QueryFilter{Stage: notice.StageGenerate})
		require.NoError(t, err)
		require.Len(t, notices, 2)
		assert.Equal(t, "PR-1", notices[0].PracticeReview.PRNumber)
		assert.Equal(t, "Acme LLP", notices[0].PracticeReview.Firm.Name)

		none, err := repo.QueryNotices(ctx, notice.QueryFilter{IDs: []int{}})
		require.NoError(t, err)
		assert.Empty(t, none)

		id := notices[0].ID
		now := time.Now().UTC().Truncate(time.Second)
		saved, err := repo.UpdateNotices(ctx, []int{id}, func(n *notice.Notice) (bool, error) {
			n.IsGenerated, n.IsReleasedForApproval, n.GeneratedAt = true, true, now
			return true, nil
		})
		require.NoError(t, err)
		require.Len(t, saved, 1)

		approve, err := repo.QueryNotices(ctx, notice.QueryFilter{Stage: notice.StageApprove})
		require.NoError(t, err)
		require.Len(t, approve, 1)
		assert.True(t, approve[0].GeneratedAt.Equal(now))

		_, err = repo.UpdateNotices(ctx, []int{id}, func(n *notice.Notice) (bool, error) {
			n.IsApproved = true
			return false, notice.ErrWrongStage
		})
		assert.Equal(t, notice.ErrWrongStage, err)
		got, err := repo.GetNotice(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.IsApproved, "rolled back")

		_, err = repo.GetNotice(ctx, 9999)
		assert.Equal(t, notice.ErrNotFound, err)
	})
}
