package auth

import "errors"

var ErrInvalidToken = errors.New("invalid token")

// Authenticator issues and verifies the bearer tokens that identify a
// signed-in shopper. Accounts themselves live with the identity provider.
type Authenticator interface {
	GenerateToken(userID int64) (string, error)
	UserIDFromToken(token string) (int64, error)
}
