package user

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	refreshTokenLen      = 255
	refreshTokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// ForgotPasswordPrefix prefixes the password reset keys of the TokenStore.
	ForgotPasswordPrefix = "forgotPassword"
)

var NowFunc = time.Now // mockable

// newRefreshToken returns a random alphanumeric token of refreshTokenLen characters.
func newRefreshToken() (string, error) {
	max := big.NewInt(int64(len(refreshTokenAlphabet)))
	buf := make([]byte, refreshTokenLen)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = refreshTokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// newPasswordResetToken returns the token sent by email and its TokenStore key.
func newPasswordResetToken() (token, key string) {
	token = uuid.NewString()
	return token, passwordResetKey(token)
}

func passwordResetKey(token string) string {
	return ForgotPasswordPrefix + token
}
