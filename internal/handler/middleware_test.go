package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicesession/backend/internal/model"
	"github.com/devicesession/backend/internal/service"
)

type fakeAuthenticator struct {
	user *model.AuthUser
	err  error
}

func (f fakeAuthenticator) Authenticate(context.Context, string) (*model.AuthUser, error) {
	return f.user, f.err
}

func newMiddlewareRouter(auth Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(auth, slog.New(slog.NewTextHandler(io.Discard, nil))), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetAuthUser(c).ID})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		auth   fakeAuthenticator
		header string
		want   int
	}{
		{name: "no header", auth: fakeAuthenticator{user: &model.AuthUser{ID: 1}}, want: http.StatusUnauthorized},
		{name: "basic auth", auth: fakeAuthenticator{user: &model.AuthUser{ID: 1}}, header: "Basic abc", want: http.StatusUnauthorized},
		{name: "empty bearer", auth: fakeAuthenticator{user: &model.AuthUser{ID: 1}}, header: "Bearer   ", want: http.StatusUnauthorized},
		{name: "expired", auth: fakeAuthenticator{err: service.ErrExpiredToken}, header: "Bearer t", want: http.StatusUnauthorized},
		{name: "user gone", auth: fakeAuthenticator{err: service.ErrUnauthorized}, header: "Bearer t", want: http.StatusUnauthorized},
		{name: "store down", auth: fakeAuthenticator{err: errors.New("db down")}, header: "Bearer t", want: http.StatusInternalServerError},
		{name: "ok", auth: fakeAuthenticator{user: &model.AuthUser{ID: 5}}, header: "Bearer t", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newMiddlewareRouter(tt.auth)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestGetAuthUserMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetAuthUser(c))

	c.Set(authUserKey, "not a user")
	assert.Nil(t, GetAuthUser(c))
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, "req-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get(requestIDHeader))
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/refresh", nil)
	req.Header.Set("Origin", "http://app.example")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "phone")

	w := s.do(t, http.MethodGet, "/ping", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "devicesession_sessions_issued_total 1")
}

func TestOpenAPIDoc(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/openapi.json", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Swagger string                    `json:"swagger"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "2.0", doc.Swagger)
	assert.Contains(t, doc.Paths, "/api/v1/auth/refresh")
	assert.Contains(t, doc.Paths["/api/v1/auth/active_sessions"], "get")
}
