package user

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mediadl/mediadl/server/config"
	middlewares "github.com/mediadl/mediadl/server/middleware"
)

func TestLogin(t *testing.T) {
	auth := &config.Instance().Authentication
	auth.Username, auth.Password, auth.TokenSecret = "admin", "hunter2", "test-secret"
	t.Cleanup(func() { auth.Username, auth.Password, auth.TokenSecret = "", "", "" })

	w := httptest.NewRecorder()
	Login(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"admin","password":"wrong"}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong password accepted: %d", w.Code)
	}

	w = httptest.NewRecorder()
	Login(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"admin","password":"hunter2"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body)
	}

	var res map[string]string
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}

	// the issued token must pass the middleware
	protected := middlewares.Authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Authentication", "Bearer "+res["token"])
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("issued token rejected: %d", w.Code)
	}
}
