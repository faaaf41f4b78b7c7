package user_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/user"
	testutil "github.com/trezcool/prsonline/tests"
)

// fieldError returns the first field error of err.
func fieldError(t *testing.T, err error) core.FieldError {
	t.Helper()
	vErr, ok := core.AsValidationError(err)
	require.True(t, ok, "want a validation error, got %v", err)
	require.NotEmpty(t, vErr.Fields)
	return vErr.Fields[0]
}

func TestService_Register(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateUser(t, env.UserRepo, "awe", "awe@test.cd", "secret", user.RoleUser)

	t.Run("invalid input", func(t *testing.T) {
		_, _, err := env.Users.Register(ctx, user.UsernamePasswordInput{Username: "ab@", Email: "lol", Password: "abc"})
		var vErrs validator.ValidationErrors
		require.ErrorAs(t, err, &vErrs)
		flds := core.TranslateValidationErrors(vErrs, env.Translator)
		assert.Equal(t, []core.FieldError{
			{Field: "username", Error: "cannot include an @"},
			{Field: "email", Error: "invalid email"},
			{Field: "password", Error: "length must be greater than 3"},
		}, flds)
	})

	tests := []struct {
		name      string
		in        user.UsernamePasswordInput
		wantField core.FieldError
	}{
		{
			name:      "email exists",
			in:        user.UsernamePasswordInput{Username: "jane", Email: " AWE@test.cd", Password: "secret"},
			wantField: core.FieldError{Field: "email", Error: user.ErrEmailExists.Error()},
		},
		{
			name:      "username exists",
			in:        user.UsernamePasswordInput{Username: "awe", Email: "jane@test.cd", Password: "secret"},
			wantField: core.FieldError{Field: "username", Error: user.ErrUsernameExists.Error()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.Users.Register(ctx, tt.in)
			assert.Equal(t, tt.wantField, fieldError(t, err))
		})
	}

	t.Run("ok", func(t *testing.T) {
		before := time.Now()
		usr, sess, err := env.Users.Register(ctx, user.UsernamePasswordInput{Username: " jane ", Email: "Jane@Test.cd", Password: "secret"})
		require.NoError(t, err)
		assert.Equal(t, "jane", usr.Username)
		assert.Equal(t, "jane@test.cd", usr.Email)
		assert.Equal(t, user.RoleUser, usr.RoleID)
		assert.Len(t, sess.RefreshToken, 255)
		assert.Equal(t, usr.RefreshToken, sess.RefreshToken)
		assert.WithinDuration(t, before.Add(env.Conf.Auth.NotRememberMeDuration), sess.Expires, time.Minute)
		assert.NoError(t, usr.CheckPassword("secret"))
	})
}

func TestService_Login(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateUser(t, env.UserRepo, "awe", "awe@test.cd", "secret", user.RoleUser)
	testutil.CreateUser(t, env.UserRepo, "boss", "boss@test.cd", "secret", user.RoleAdmin)

	tests := []struct {
		name      string
		in        user.LoginInput
		wantField *core.FieldError
		wantDur   time.Duration
	}{
		{
			name:      "unknown username",
			in:        user.LoginInput{UsernameOrEmail: "lol", Password: "secret"},
			wantField: &core.FieldError{Field: "usernameOrEmail", Error: "Username doesn't exist"},
		},
		{
			name:      "unknown email",
			in:        user.LoginInput{UsernameOrEmail: "lol@test.cd", Password: "secret"},
			wantField: &core.FieldError{Field: "usernameOrEmail", Error: "Username doesn't exist"},
		},
		{
			name:      "wrong role",
			in:        user.LoginInput{UsernameOrEmail: "boss", Password: "secret"},
			wantField: &core.FieldError{Field: "usernameOrEmail", Error: "Access denied."},
		},
		{
			name:      "incorrect password",
			in:        user.LoginInput{UsernameOrEmail: "awe", Password: "Secret"},
			wantField: &core.FieldError{Field: "password", Error: "Incorrect password"},
		},
		{
			name:    "with email",
			in:      user.LoginInput{UsernameOrEmail: " AWE@test.cd ", Password: "secret"},
			wantDur: env.Conf.Auth.NotRememberMeDuration,
		},
		{
			name:    "admin, remember me",
			in:      user.LoginInput{UsernameOrEmail: "boss", Password: "secret", RoleID: user.RoleAdmin, RememberMe: true},
			wantDur: env.Conf.Auth.RememberMeDuration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			usr, sess, err := env.Users.Login(ctx, tt.in)
			if tt.wantField != nil {
				assert.Equal(t, *tt.wantField, fieldError(t, err))
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, usr.ID)
			assert.WithinDuration(t, before.Add(tt.wantDur), sess.Expires, time.Minute)
		})
	}
}

func TestService_RefreshAndLogout(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	created := testutil.CreateUser(t, env.UserRepo, "awe", "awe@test.cd", "secret", user.RoleUser)

	_, sess, err := env.Users.Login(ctx, user.LoginInput{UsernameOrEmail: "awe", Password: "secret"})
	require.NoError(t, err)

	for _, token := range []string{"", "lol"} {
		_, err := env.Users.Refresh(ctx, token)
		assert.Equal(t, "Invalid Refresh Token", err.Error())
	}

	usr, err := env.Users.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, usr.ID)

	assert.Equal(t, user.ErrInvalidUser, env.Users.Logout(ctx, 0))
	assert.Equal(t, user.ErrInvalidUser, env.Users.Logout(ctx, 9999))
	require.NoError(t, env.Users.Logout(ctx, usr.ID))

	_, err = env.Users.Refresh(ctx, sess.RefreshToken)
	assert.Error(t, err, "logout revokes the refresh token")

	t.Run("expired", func(t *testing.T) {
		_, sess, err := env.Users.Login(ctx, user.LoginInput{UsernameOrEmail: "awe", Password: "secret"})
		require.NoError(t, err)

		user.NowFunc = func() time.Time { return time.Now().Add(env.Conf.Auth.NotRememberMeDuration + time.Hour) }
		defer func() { user.NowFunc = time.Now }()
		_, err = env.Users.Refresh(ctx, sess.RefreshToken)
		assert.Error(t, err)
	})
}

func TestService_ForgotAndChangePassword(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	created := testutil.CreateUser(t, env.UserRepo, "awe", "awe@test.cd", "secret", user.RoleUser)
	_, sess, err := env.Users.Login(ctx, user.LoginInput{UsernameOrEmail: "awe", Password: "secret"})
	require.NoError(t, err)

	sent, err := env.Users.ForgotPassword(ctx, "nobody@test.cd")
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, env.Mail.SentMessages())

	sent, err = env.Users.ForgotPassword(ctx, " AWE@test.cd")
	require.NoError(t, err)
	assert.True(t, sent)

	msgs := env.Mail.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "awe@test.cd", msgs[0].To[0].Address)
	keys := env.Redis.Keys()
	require.Len(t, keys, 1)
	token := strings.TrimPrefix(keys[0], user.ForgotPasswordPrefix)
	assert.Contains(t, msgs[0].TextContent, env.Conf.FrontendBaseURL+"/change-password/"+token)
	assert.Contains(t, msgs[0].TextContent, "3 days")

	t.Run("throttled", func(t *testing.T) {
		env.Mail.Reset()
		for i := 0; i < 3; i++ {
			sent, err := env.Users.ForgotPassword(ctx, "awe@test.cd")
			require.NoError(t, err)
			assert.True(t, sent)
		}
		assert.Len(t, env.Mail.SentMessages(), 2, "burst of 3 per address")
	})

	tests := []struct {
		name      string
		token     string
		pwd       string
		wantField core.FieldError
	}{
		{name: "short password", token: token, pwd: "abc", wantField: core.FieldError{Field: "newPassword", Error: "Length must be greater than 4"}},
		{name: "unknown token", token: "lol", pwd: "new-secret", wantField: core.FieldError{Field: "token", Error: "token expired"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Users.ChangePassword(ctx, tt.token, tt.pwd)
			assert.Equal(t, tt.wantField, fieldError(t, err))
		})
	}

	usr, err := env.Users.ChangePassword(ctx, token, "new-secret")
	require.NoError(t, err)
	assert.Equal(t, created.ID, usr.ID)
	assert.NoError(t, usr.CheckPassword("new-secret"))
	assert.False(t, env.Redis.Exists(keys[0]), "the token is consumed")

	_, err = env.Users.Refresh(ctx, sess.RefreshToken)
	assert.Error(t, err, "changing the password revokes the refresh token")

	t.Run("user deleted", func(t *testing.T) {
		require.NoError(t, env.Redis.Set(user.ForgotPasswordPrefix+"gone", "9999"))
		_, err := env.Users.ChangePassword(ctx, "gone", "new-secret")
		assert.Equal(t, core.FieldError{Field: "token", Error: "user no longer exists"}, fieldError(t, err))
	})
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "awe", "awe@test.cd", "secret", user.RoleUser)
	testutil.CreateUser(t, env.UserRepo, "jane", "jane@test.cd", "secret", user.RoleUser)

	str := func(s string) *string { return &s }

	t.Run("not found", func(t *testing.T) {
		_, err := env.Users.Update(ctx, 9999, user.UpdateUser{})
		assert.Equal(t, user.ErrNotFound, err)
	})
	t.Run("invalid role", func(t *testing.T) {
		_, err := env.Users.Update(ctx, usr.ID, user.UpdateUser{RoleID: core.IntPtr(7)})
		assert.Equal(t, core.FieldError{Field: "role_id", Error: "invalid role"}, fieldError(t, err))
	})
	t.Run("toggle role", func(t *testing.T) {
		updated, err := env.Users.Update(ctx, usr.ID, user.UpdateUser{RoleID: core.IntPtr(user.RoleUser), Email: str("ignored@test.cd")})
		require.NoError(t, err)
		assert.Equal(t, user.RoleAdmin, updated.RoleID)
		assert.Equal(t, "awe@test.cd", updated.Email)

		updated, err = env.Users.Update(ctx, usr.ID, user.UpdateUser{RoleID: core.IntPtr(user.RoleAdmin)})
		require.NoError(t, err)
		assert.Equal(t, user.RoleUser, updated.RoleID)
	})
	t.Run("username taken", func(t *testing.T) {
		_, err := env.Users.Update(ctx, usr.ID, user.UpdateUser{Username: str("jane")})
		assert.Equal(t, core.FieldError{Field: "username", Error: user.ErrUsernameExists.Error()}, fieldError(t, err))
	})
	t.Run("invalid email", func(t *testing.T) {
		_, err := env.Users.Update(ctx, usr.ID, user.UpdateUser{Email: str("lol")})
		var vErrs validator.ValidationErrors
		assert.ErrorAs(t, err, &vErrs)
	})
	t.Run("ok", func(t *testing.T) {
		updated, err := env.Users.Update(ctx, usr.ID, user.UpdateUser{Email: str(" AWE2@test.cd "), Username: str("awe")})
		require.NoError(t, err)
		assert.Equal(t, "awe2@test.cd", updated.Email)
		assert.Equal(t, "awe", updated.Username)
	})
}

func TestService_Search(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	people := []struct{ uname, first, last string }{
		{"jdoe", "John", "Doe"},
		{"jane", "Jane", "Doe"},
		{"janet", "Janet", "Smith"},
	}
	for _, p := range people {
		usr := testutil.CreateUser(t, env.UserRepo, p.uname, p.uname+"@test.cd", "secret", user.RoleUser)
		_, err := env.UserRepo.UpsertProfile(ctx, user.Profile{UserID: usr.ID, FirstName: p.first, LastName: p.last})
		require.NoError(t, err)
	}
	testutil.CreateUser(t, env.UserRepo, "janeadmin", "admin@test.cd", "secret", user.RoleAdmin)

	unames := func(users []user.User) []string {
		names := make([]string, 0, len(users))
		for _, u := range users {
			names = append(names, u.Username)
		}
		return names
	}

	tests := []struct {
		name string
		s    string
		want []string
	}{
		{name: "blank", s: "  ", want: []string{}},
		{name: "full name", s: "jane DOE", want: []string{"jane"}},
		{name: "partial, best match first", s: "jane", want: []string{"jane", "janet"}},
		{name: "last name", s: "doe", want: []string{"jdoe", "jane"}},
		{name: "no match", s: "zed", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := env.Users.Search(ctx, tt.s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, unames(users))
		})
	}
}

func TestService_GetByUsername(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "awe", "awe@test.cd", "secret", user.RoleUser)

	got, err := env.Users.GetByUsername(ctx, "awe")
	require.NoError(t, err)
	assert.Nil(t, got.Info)
	assert.Nil(t, got.Country)

	_, err = env.UserRepo.UpsertProfile(ctx, user.Profile{UserID: usr.ID, FirstName: "Awe", Country: "cd"})
	require.NoError(t, err)
	got, err = env.Users.GetByUsername(ctx, " awe ")
	require.NoError(t, err)
	require.NotNil(t, got.Country)
	assert.Equal(t, "CD", got.Country.Code)
	assert.NotEmpty(t, got.Country.Name)

	_, err = env.Users.GetByUsername(ctx, "lol")
	assert.Equal(t, user.ErrNotFound, err)

	me, err := env.Users.Me(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, me)
	me, err = env.Users.Me(ctx, usr.ID)
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, "Awe", me.Info.FirstName)
}

func TestService_SetPasswordAndDelete(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.CreateUser(t, env.UserRepo, "awe", "awe@test.cd", "secret", user.RoleUser)
	_, sess, err := env.Users.Login(ctx, user.LoginInput{UsernameOrEmail: "awe", Password: "secret"})
	require.NoError(t, err)

	usr, err := env.Users.GetByEmail(ctx, "AWE@test.cd")
	require.NoError(t, err)
	usr, err = env.Users.SetPassword(ctx, usr, "x")
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("x"), "the password policy is bypassed")
	_, err = env.Users.Refresh(ctx, sess.RefreshToken)
	assert.Error(t, err)

	ok, err := env.Users.DeleteByEmail(ctx, " awe@test.cd")
	require.NoError(t, err)
	assert.True(t, ok)
	users, err := env.Users.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}
