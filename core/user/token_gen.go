package user

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"time"

	"github.com/pkg/errors"
)

const resetTokenBytes = 32

var (
	nowFunc              = time.Now   // mockable
	randReader io.Reader = rand.Reader // mockable
)

// makeToken returns a random 256-bit token, hex encoded.
func makeToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	return hex.EncodeToString(b), nil
}

// newPasswordReset issues a reset token for usr, valid for ttl.
func newPasswordReset(usr User, ttl time.Duration) (PasswordReset, error) {
	token, err := makeToken()
	if err != nil {
		return PasswordReset{}, err
	}
	return PasswordReset{
		Token:     token,
		UserID:    usr.ID,
		ExpiresAt: nowFunc().UTC().Add(ttl),
	}, nil
}
