package main

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/carts"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type identityKey string

const (
	identityCtx identityKey = "identity"

	sessionCookie    = "cart_session"
	sessionCookieTTL = 7 * 24 * time.Hour
)

func (app *application) BasicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// read the auth header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("authorization header is missing"))
				return
			}

			// parse it -> get the base64
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Basic" {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("authorization header is malformed"))
				return
			}

			// decode it
			decoded, err := base64.StdEncoding.DecodeString(parts[1])
			if err != nil {
				app.unauthorizedBasicErrorResponse(w, r, err)
				return
			}

			// check the credentials
			creds := strings.SplitN(string(decoded), ":", 2)
			basic := app.config.auth.basic
			if len(creds) != 2 || basic.user == "" ||
				subtle.ConstantTimeCompare([]byte(creds[0]), []byte(basic.user)) != 1 ||
				bcrypt.CompareHashAndPassword(basic.passHash, []byte(creds[1])) != nil {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("invalid credentials"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IdentityMiddleware resolves the cart owner: a bearer token names a user,
// otherwise the anonymous session cookie is used and minted when absent.
// A bearer token that fails verification is rejected rather than downgraded.
func (app *application) IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id carts.Identity

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				app.unauthorizedErrorResponse(w, r, fmt.Errorf("authorization header is malformed"))
				return
			}

			userID, err := app.authenticator.UserIDFromToken(parts[1])
			if err != nil {
				app.unauthorizedErrorResponse(w, r, err)
				return
			}
			id = carts.UserIdentity(userID)
		}

		// The session is kept alongside a user so claim can find the anonymous cart.
		sessionID := app.sessionID(w, r)
		if !id.IsUser() {
			id = carts.SessionIdentity(sessionID)
		}

		ctx := context.WithValue(r.Context(), identityCtx, requestIdentity{cart: id, sessionID: sessionID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (app *application) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   app.config.env == "production",
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (app *application) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !getIdentityFromContext(r).cart.IsUser() {
			app.unauthorizedErrorResponse(w, r, fmt.Errorf("sign in required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (app *application) RateLimiterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.config.rateLimiter.Enabled {
			// Anonymous sessions are free to mint, so they share their IP's budget.
			key := "ip:" + clientIP(r)
			if id := getIdentityFromContext(r).cart; id.IsUser() {
				key = id.Key()
			}
			if allow, retryAfter := app.rateLimiter.Allow(key); !allow {
				secs := int(math.Ceil(retryAfter.Seconds()))
				app.rateLimitExceededResponse(w, r, strconv.Itoa(secs))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type requestIdentity struct {
	cart      carts.Identity
	sessionID string
}

func getIdentityFromContext(r *http.Request) requestIdentity {
	id, _ := r.Context().Value(identityCtx).(requestIdentity)
	return id
}
