package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"parley/parley/config"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const UserIDKey contextKey = "user_id"

var errNoIdentity = errors.New("no identity")

// Identity binds the caller's user id to the request context. With a JWT
// secret configured the id comes from a signed token (query "token" or a
// Bearer header); otherwise it is the raw "userId" query parameter or
// X-User-Id header. When required is false a missing identity passes through
// with an empty id; a bad token is always rejected.
func Identity(cfg config.Config, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := identify(cfg, r)
			if err != nil && (required || !errors.Is(err, errNoIdentity)) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the id bound by Identity, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

func identify(cfg config.Config, r *http.Request) (string, error) {
	if cfg.JWTSecret == "" {
		id := r.URL.Query().Get("userId")
		if id == "" {
			id = r.Header.Get("X-User-Id")
		}
		if id == "" {
			return "", errNoIdentity
		}
		return id, nil
	}

	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		parts := strings.Split(r.Header.Get("Authorization"), " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			tokenStr = parts[1]
		}
	}
	if tokenStr == "" {
		return "", errNoIdentity
	}
	return ParseToken(cfg.JWTSecret, tokenStr)
}

// ParseToken validates an HS256 token and returns its user_id claim.
func ParseToken(secret, tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid user_id")
	}
	return userID, nil
}
