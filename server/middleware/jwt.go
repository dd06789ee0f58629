package middlewares

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mediadl/mediadl/server/config"
)

const TokenCookieName = "jwt-mediadl"

// Secret used to sign and verify session tokens.
func Secret() []byte {
	if s := config.Instance().Authentication.TokenSecret; s != "" {
		return []byte(s)
	}
	return []byte(os.Getenv("JWT_SECRET"))
}

// token looks in the X-Authentication header, then the session cookie and
// finally the query string, which is the only option for websockets.
func token(r *http.Request) string {
	if h := r.Header.Get("X-Authentication"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

func Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := token(r)
		if tokenString == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		t, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return Secret(), nil
		})
		if err != nil || !t.Valid {
			if errors.Is(err, jwt.ErrTokenExpired) {
				http.Error(w, "token expired", http.StatusUnauthorized)
				return
			}
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func ApplyAuthenticationByConfig(next http.Handler) http.Handler {
	if config.Instance().Authentication.RequireAuth {
		return Authenticated(next)
	}
	return next
}
