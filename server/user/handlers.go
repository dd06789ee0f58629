package user

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mediadl/mediadl/server/config"
	middlewares "github.com/mediadl/mediadl/server/middleware"
)

const sessionLifetime = 30 * 24 * time.Hour

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	auth := config.Instance().Authentication

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(auth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(auth.Password)) == 1
	if !userOK || !passOK {
		slog.Warn("failed login attempt", slog.String("username", req.Username))
		http.Error(w, "invalid username or password", http.StatusBadRequest)
		return
	}

	expiresAt := time.Now().Add(sessionLifetime)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": req.Username,
		"exp": expiresAt.Unix(),
	}).SignedString(middlewares.Secret())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middlewares.TokenCookieName,
		Value:    token,
		HttpOnly: true,
		Expires:  expiresAt,
		Path:     "/",
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middlewares.TokenCookieName,
		Value:    "",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Path:     "/",
	})
	w.WriteHeader(http.StatusNoContent)
}
