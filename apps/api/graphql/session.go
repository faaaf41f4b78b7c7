package gqlapi

import (
	"context"
	"time"

	"github.com/trezcool/prsonline/core/user"
)

// Session is the HTTP side of a GraphQL request: the authenticated caller and the refresh token cookie.
type Session interface {
	// UserID returns the ID of the caller authenticated by its access token.
	UserID() (int, bool)
	IsAdmin() bool
	// AccessToken issues a new access token for usr.
	AccessToken(usr user.User) (string, error)
	// RefreshToken returns the refresh token sent by the client, if any.
	RefreshToken() string
	SetRefreshToken(token string, expires time.Time)
	ClearRefreshToken()
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFrom(ctx context.Context) Session {
	if s, ok := ctx.Value(sessionKey{}).(Session); ok {
		return s
	}
	return anonymous{}
}

// anonymous is the session of requests executed outside of an HTTP handler.
type anonymous struct{}

func (anonymous) UserID() (int, bool)                   { return 0, false }
func (anonymous) IsAdmin() bool                         { return false }
func (anonymous) AccessToken(user.User) (string, error) { return "", errUnauthorized }
func (anonymous) RefreshToken() string                  { return "" }
func (anonymous) SetRefreshToken(string, time.Time)     {}
func (anonymous) ClearRefreshToken()                    {}
