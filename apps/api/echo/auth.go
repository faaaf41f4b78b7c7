package echoapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/user"
)

const (
	refreshCookieName = "refreshToken"
	contextClaimsKey  = "userClaims"
)

var errInvalidToken = errors.New("invalid token")

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	UserID   int    `json:"userId"`
	UserName string `json:"userName"`
	Role     int    `json:"role"`
	Email    string `json:"email"`
}

// authenticator issues and checks the access tokens and the signed refresh token cookie.
type authenticator struct {
	secret        []byte
	appName       string
	expiration    time.Duration
	cookieDomain  string
	secureCookies bool
}

func newAuthenticator(conf *core.Config) *authenticator {
	return &authenticator{
		secret:        []byte(conf.SecretKey),
		appName:       conf.AppName,
		expiration:    conf.Auth.JWTExpirationDelta,
		cookieDomain:  conf.Server.CookieDomain,
		secureCookies: conf.Server.SecureCookies,
	}
}

func (a *authenticator) claims(usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.appName,
			Subject:   strconv.Itoa(usr.ID),
			ExpiresAt: now.Add(a.expiration).Unix(),
			IssuedAt:  now.Unix(),
		},
		UserID:   usr.ID,
		UserName: usr.Username,
		Role:     usr.RoleID,
		Email:    usr.Email,
	}
}

// GenerateToken generates a signed JWT token string for usr.
func (a *authenticator) GenerateToken(usr user.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, a.claims(usr))
	ss, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *authenticator) ParseToken(tokenStr string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errInvalidToken
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

func (a *authenticator) mac(value string) string {
	h := hmac.New(sha256.New, a.secret)
	h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// sign appends the HMAC of value to it.
func (a *authenticator) sign(value string) string {
	return value + "." + a.mac(value)
}

// unsign returns the value of a signed string, if the signature matches.
func (a *authenticator) unsign(signed string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i < 0 {
		return "", false
	}
	value, sig := signed[:i], signed[i+1:]
	if !hmac.Equal([]byte(sig), []byte(a.mac(value))) {
		return "", false
	}
	return value, true
}

func (a *authenticator) refreshCookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		Domain:   a.cookieDomain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	return cookie
}

// session is the gqlapi.Session of an echo request.
type session struct {
	ctx  echo.Context
	auth *authenticator
}

func (s session) claims() (*Claims, bool) {
	claims, ok := s.ctx.Get(contextClaimsKey).(*Claims)
	return claims, ok
}

func (s session) UserID() (int, bool) {
	if claims, ok := s.claims(); ok && claims.UserID != 0 {
		return claims.UserID, true
	}
	return 0, false
}

func (s session) IsAdmin() bool {
	claims, ok := s.claims()
	return ok && claims.Role == user.RoleAdmin
}

func (s session) AccessToken(usr user.User) (string, error) {
	return s.auth.GenerateToken(usr)
}

func (s session) RefreshToken() string {
	cookie, err := s.ctx.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	token, ok := s.auth.unsign(cookie.Value)
	if !ok {
		return ""
	}
	return token
}

func (s session) SetRefreshToken(token string, expires time.Time) {
	s.ctx.SetCookie(s.auth.refreshCookie(s.auth.sign(token), expires))
}

func (s session) ClearRefreshToken() {
	s.ctx.SetCookie(s.auth.refreshCookie("", time.Unix(0, 0)))
}
