package gqlapi

import (
	"context"

	"github.com/graph-gophers/graphql-go"
	"github.com/pkg/errors"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/country"
	"github.com/trezcool/prsonline/core/user"
)

// Queries

func (r *Resolver) Me(ctx context.Context) (*userResolver, error) {
	id, _ := sessionFrom(ctx).UserID()
	usr, err := r.users.Me(ctx, id)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	if usr == nil {
		return nil, nil
	}
	return &userResolver{*usr}, nil
}

func (r *Resolver) SearchUser(ctx context.Context, args struct{ S string }) (*[]*userResolver, error) {
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}
	users, err := r.users.Search(ctx, args.S)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return userList(users), nil
}

func (r *Resolver) UserByID(ctx context.Context, args struct{ ID int32 }) (*userResolver, error) {
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}
	return r.optionalUser(ctx)(r.users.GetByID(ctx, int(args.ID)))
}

func (r *Resolver) UserByUsername(ctx context.Context, args struct{ Username string }) (*userResolver, error) {
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}
	return r.optionalUser(ctx)(r.users.GetByUsername(ctx, args.Username))
}

// optionalUser resolves a lookup result: an unknown user resolves to null.
func (r *Resolver) optionalUser(ctx context.Context) func(user.User, error) (*userResolver, error) {
	return func(usr user.User, err error) (*userResolver, error) {
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return nil, nil
			}
			return nil, r.fail(ctx, err)
		}
		return &userResolver{usr}, nil
	}
}

func (r *Resolver) UserList(ctx context.Context) (*[]*userResolver, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	users, err := r.users.List(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return userList(users), nil
}

// RefreshToken issues a new access token to the owner of the refresh token cookie.
func (r *Resolver) RefreshToken(ctx context.Context) (*userResponse, error) {
	usr, err := r.users.Refresh(ctx, sessionFrom(ctx).RefreshToken())
	if err != nil {
		return r.userError(ctx, err)
	}
	token, err := sessionFrom(ctx).AccessToken(usr)
	if err != nil {
		return nil, r.fail(ctx, errors.Wrap(err, "issuing access token"))
	}
	return &userResponse{usr: &usr, token: token}, nil
}

// Mutations

type registerArgs struct {
	Options struct {
		Username string
		Email    string
		Password string
	}
}

func (r *Resolver) Register(ctx context.Context, args registerArgs) (*userResponse, error) {
	usr, sess, err := r.users.Register(ctx, user.UsernamePasswordInput{
		Username: args.Options.Username,
		Email:    args.Options.Email,
		Password: args.Options.Password,
	})
	if err != nil {
		return r.userError(ctx, err)
	}
	return r.startSession(ctx, usr, sess)
}

type loginArgs struct {
	UsernameOrEmail string
	Password        string
	RoleID          *int32
	RememberMe      *bool
}

func (r *Resolver) Login(ctx context.Context, args loginArgs) (*userResponse, error) {
	in := user.LoginInput{UsernameOrEmail: args.UsernameOrEmail, Password: args.Password}
	if args.RoleID != nil {
		in.RoleID = int(*args.RoleID)
	}
	if args.RememberMe != nil {
		in.RememberMe = *args.RememberMe
	}
	usr, sess, err := r.users.Login(ctx, in)
	if err != nil {
		return r.userError(ctx, err)
	}
	return r.startSession(ctx, usr, sess)
}

func (r *Resolver) ForgotPassword(ctx context.Context, args struct{ Email string }) (bool, error) {
	ok, err := r.users.ForgotPassword(ctx, args.Email)
	if err != nil {
		return false, r.fail(ctx, err)
	}
	return ok, nil
}

func (r *Resolver) ChangePassword(ctx context.Context, args struct{ Token, NewPassword string }) (*userResponse, error) {
	usr, err := r.users.ChangePassword(ctx, args.Token, args.NewPassword)
	if err != nil {
		return r.userError(ctx, err)
	}
	return &userResponse{usr: &usr}, nil
}

func (r *Resolver) Logout(ctx context.Context) (bool, error) {
	id, _ := sessionFrom(ctx).UserID()
	if err := r.users.Logout(ctx, id); err != nil {
		return false, r.fail(ctx, err)
	}
	sessionFrom(ctx).ClearRefreshToken()
	return true, nil
}

func (r *Resolver) Delete(ctx context.Context, args struct{ Email string }) (bool, error) {
	if err := requireAdmin(ctx); err != nil {
		return false, err
	}
	ok, err := r.users.DeleteByEmail(ctx, args.Email)
	if err != nil {
		return false, r.fail(ctx, err)
	}
	return ok, nil
}

type updateUserArgs struct {
	ID       int32
	Email    *string
	Username *string
	RoleID   *int32
}

func (r *Resolver) UpdateUser(ctx context.Context, args updateUserArgs) (*userResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	uu := user.UpdateUser{Email: args.Email, Username: args.Username}
	if args.RoleID != nil {
		roleID := int(*args.RoleID)
		uu.RoleID = &roleID
	}
	usr, err := r.users.Update(ctx, int(args.ID), uu)
	if err != nil {
		return r.userError(ctx, err)
	}
	return &userResponse{usr: &usr}, nil
}

// startSession hands the refresh token to the client as a cookie and returns an access token.
func (r *Resolver) startSession(ctx context.Context, usr user.User, sess user.Session) (*userResponse, error) {
	s := sessionFrom(ctx)
	token, err := s.AccessToken(usr)
	if err != nil {
		return nil, r.fail(ctx, errors.Wrap(err, "issuing access token"))
	}
	s.SetRefreshToken(sess.RefreshToken, sess.Expires)
	return &userResponse{usr: &usr, token: token}, nil
}

// userError answers validation failures with a UserResponse listing them.
func (r *Resolver) userError(ctx context.Context, err error) (*userResponse, error) {
	if flds, ok := r.fieldErrors(err); ok {
		return &userResponse{errors: flds}, nil
	}
	return nil, r.fail(ctx, err)
}

// Types

type userResponse struct {
	errors []core.FieldError
	usr    *user.User
	token  string
}

func (res *userResponse) Errors() *[]*fieldErrorResolver {
	if len(res.errors) == 0 {
		return nil
	}
	flds := make([]*fieldErrorResolver, 0, len(res.errors))
	for _, fe := range res.errors {
		flds = append(flds, &fieldErrorResolver{fe})
	}
	return &flds
}

func (res *userResponse) User() *userResolver {
	if res.usr == nil {
		return nil
	}
	return &userResolver{*res.usr}
}

func (res *userResponse) Token() *string {
	return optString(res.token)
}

type fieldErrorResolver struct {
	fe core.FieldError
}

func (f *fieldErrorResolver) Field() string   { return f.fe.Field }
func (f *fieldErrorResolver) Message() string { return f.fe.Error }

type userResolver struct {
	usr user.User
}

func userList(users []user.User) *[]*userResolver {
	res := make([]*userResolver, 0, len(users))
	for _, usr := range users {
		res = append(res, &userResolver{usr})
	}
	return &res
}

func (u *userResolver) ID() int32               { return int32(u.usr.ID) }
func (u *userResolver) Username() string        { return u.usr.Username }
func (u *userResolver) Email() string           { return u.usr.Email }
func (u *userResolver) RoleID() int32           { return int32(u.usr.RoleID) }
func (u *userResolver) CreatedAt() graphql.Time { return graphql.Time{Time: u.usr.CreatedAt} }
func (u *userResolver) UpdatedAt() graphql.Time { return graphql.Time{Time: u.usr.UpdatedAt} }

func (u *userResolver) Info() *profileResolver {
	if u.usr.Info == nil {
		return nil
	}
	return &profileResolver{*u.usr.Info}
}

func (u *userResolver) Country() *countryResolver {
	if u.usr.Country == nil {
		return nil
	}
	return &countryResolver{*u.usr.Country}
}

type profileResolver struct {
	p user.Profile
}

func (p *profileResolver) FirstName() *string { return optString(p.p.FirstName) }
func (p *profileResolver) LastName() *string  { return optString(p.p.LastName) }
func (p *profileResolver) Picture() *string   { return optString(p.p.Picture) }
func (p *profileResolver) Country() *string   { return optString(p.p.Country) }
func (p *profileResolver) Bio() *string       { return optString(p.p.Bio) }

type countryResolver struct {
	c country.Country
}

func (c *countryResolver) ID() int32    { return int32(c.c.ID) }
func (c *countryResolver) Code() string { return c.c.Code }
func (c *countryResolver) Name() string { return c.c.Name }

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
