package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTAuthenticator struct {
	secret string
	aud    string
	iss    string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTAuthenticator(secret, aud, iss string) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret: secret,
		aud:    aud,
		iss:    iss,
		ttl:    3 * 24 * time.Hour,
		now:    time.Now,
	}
}

// GenerateToken signs an access token for userID. The API only verifies
// tokens; this is used by tooling and tests.
func (a *JWTAuthenticator) GenerateToken(userID int64) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"exp": now.Add(a.ttl).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"iss": a.iss,
		"aud": a.aud,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.secret))
}

func (a *JWTAuthenticator) validate(token string) (*jwt.Token, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(a.now),
	}
	if a.aud != "" {
		opts = append(opts, jwt.WithAudience(a.aud))
	}
	if a.iss != "" {
		opts = append(opts, jwt.WithIssuer(a.iss))
	}

	return jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.secret), nil
	}, opts...)
}

// UserIDFromToken verifies token and returns its subject as a user id.
// Numeric and string subjects are both accepted.
func (a *JWTAuthenticator) UserIDFromToken(token string) (int64, error) {
	t, err := a.validate(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	var id int64
	switch sub := claims["sub"].(type) {
	case string:
		id, err = strconv.ParseInt(sub, 10, 64)
	case float64:
		id, err = strconv.ParseInt(fmt.Sprintf("%.f", sub), 10, 64)
	default:
		return 0, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}
