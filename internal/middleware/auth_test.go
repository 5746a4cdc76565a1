package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beside/server/internal/auth"
	"github.com/beside/server/internal/middleware"
	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/repo/repotest"
)

func setup(t *testing.T) (*auth.JWTService, *repotest.UserRepo, model.User, string) {
	t.Helper()
	jwt := auth.NewJWTService("test-secret-at-least-32-characters", time.Hour)
	users := repotest.NewUserRepo()

	u := model.User{
		Name:     "user",
		Gender:   model.GenderOther,
		Birthday: time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC),
		Email:    "u@example.com",
	}
	require.NoError(t, users.Create(context.Background(), &u))

	token, err := jwt.SignAccessToken(u.ID, u.Email)
	require.NoError(t, err)
	return jwt, users, u, token
}

func echoUser(t *testing.T, seen **model.User) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := middleware.GetUser(r.Context()); ok {
			*seen = u
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_validToken(t *testing.T) {
	jwt, users, u, token := setup(t)

	var seen *model.User
	handler := middleware.Auth(jwt, users)(echoUser(t, &seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, u.ID, seen.ID)
}

func TestAuth_rejections(t *testing.T) {
	jwt, users, _, token := setup(t)

	handler := middleware.Auth(jwt, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	cases := map[string]string{
		"no header":       "",
		"not bearer":      "Basic " + token,
		"empty token":     "Bearer ",
		"malformed token": "Bearer not.a.token",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.JSONEq(t, `{"success":false,"error":"unauthorized"}`, rec.Body.String(), name)
	}
}

func TestAuth_rejectsDeletedUser(t *testing.T) {
	jwt, _, _, token := setup(t)

	// Same valid token, but a repo that no longer has the user.
	handler := middleware.Auth(jwt, repotest.NewUserRepo())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuth(t *testing.T) {
	jwt, users, u, token := setup(t)

	var seen *model.User
	handler := middleware.OptionalAuth(jwt, users)(echoUser(t, &seen))

	// Anonymous requests pass through.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, seen)

	// Invalid tokens are ignored, not rejected.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, seen)

	// Valid tokens attach the user.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, u.ID, seen.ID)
}
