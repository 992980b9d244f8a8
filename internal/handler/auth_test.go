package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicesession/backend/internal/db"
	"github.com/devicesession/backend/internal/metrics"
	"github.com/devicesession/backend/internal/model"
	"github.com/devicesession/backend/internal/service"
)

const (
	testUser     = "alice"
	testPassword = "alice-password"
)

var testFingerprint = map[string]string{"ua": "X", "ip": "1.2.3.4"}

type testServer struct {
	router *gin.Engine
	svc    *service.AuthService
	store  *db.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := db.NewMemory()
	m := metrics.New()
	codec, err := service.NewTokenCodec(service.TokenConfig{Secret: "handler-secret", Algorithm: "HS256"})
	require.NoError(t, err)
	manager := service.NewSessionManager(store, codec, service.SessionConfig{
		AccessTTL:           time.Minute,
		RefreshTTL:          time.Hour,
		RotateRefreshTokens: true,
	}, service.WithLogger(log), service.WithRecorder(m))

	schemes, err := service.NewPasswordSchemes([]string{"bcrypt"})
	require.NoError(t, err)
	verifier, err := service.NewPasswordVerifier[*model.User](store, service.ModelUserAdapter{}, schemes)
	require.NoError(t, err)

	svc := service.NewAuthService(manager, verifier, store, schemes)
	require.NoError(t, svc.EnsureAdmin(context.Background(), testUser, testPassword))

	router := NewRouter(svc, log, RouterConfig{
		AllowedOrigins: []string{"http://app.example"},
		Metrics:        m.Handler(),
	})
	return &testServer{router: router, svc: svc, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, device string) model.TokenResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{
		Username:    testUser,
		Password:    testPassword,
		DeviceName:  device,
		Fingerprint: testFingerprint,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Detail
}

func TestLoginHandler(t *testing.T) {
	s := newTestServer(t)

	tokens := s.login(t, "phone")
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "bearer", tokens.TokenType)

	tests := []struct {
		name string
		body any
	}{
		{name: "wrong password", body: model.LoginRequest{Username: testUser, Password: "nope"}},
		{name: "unknown user", body: model.LoginRequest{Username: "bob", Password: testPassword}},
		{name: "missing fields", body: `{"username":""}`},
		{name: "not json", body: `username=alice`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/auth/login", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decodeDetail(t, w))
		})
	}
}

func TestRefreshHandler(t *testing.T) {
	s := newTestServer(t)
	tokens := s.login(t, "phone")

	w := s.do(t, http.MethodPost, "/api/v1/auth/refresh", model.RefreshRequest{
		RefreshToken: tokens.RefreshToken,
		Fingerprint:  map[string]string{"ip": "1.2.3.4", "ua": "X"},
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rotated model.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rotated))
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	tests := []struct {
		name string
		req  model.RefreshRequest
	}{
		{name: "reused token", req: model.RefreshRequest{RefreshToken: tokens.RefreshToken, Fingerprint: testFingerprint}},
		{name: "other device", req: model.RefreshRequest{RefreshToken: rotated.RefreshToken, Fingerprint: map[string]string{"ua": "Y"}}},
		{name: "garbage", req: model.RefreshRequest{RefreshToken: "garbage", Fingerprint: testFingerprint}},
		{name: "access token", req: model.RefreshRequest{RefreshToken: rotated.AccessToken, Fingerprint: testFingerprint}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/auth/refresh", tt.req, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Invalid refresh token", decodeDetail(t, w))
		})
	}

	w = s.do(t, http.MethodPost, "/api/v1/auth/refresh", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutHandler(t *testing.T) {
	s := newTestServer(t)
	tokens := s.login(t, "phone")

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/auth/logout", model.RefreshTokenRequest{RefreshToken: tokens.RefreshToken}, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"logged_out"}`, w.Body.String())
	}

	w := s.do(t, http.MethodPost, "/api/v1/auth/logout", model.RefreshTokenRequest{RefreshToken: "unknown"}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/refresh", model.RefreshRequest{
		RefreshToken: tokens.RefreshToken, Fingerprint: testFingerprint,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)
	tokens := s.login(t, "phone")

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/auth/logout_all"},
		{http.MethodGet, "/api/v1/auth/active_sessions"},
		{http.MethodPost, "/api/v1/auth/revoke_other_session"},
	}
	for _, route := range routes {
		t.Run(route.path, func(t *testing.T) {
			w := s.do(t, route.method, route.path, nil, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			w = s.do(t, route.method, route.path, nil, "not-a-jwt")
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			w = s.do(t, route.method, route.path, nil, tokens.RefreshToken)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestActiveSessionsAndRevokeOthers(t *testing.T) {
	s := newTestServer(t)
	phone := s.login(t, "phone")
	laptop := s.login(t, "laptop")

	w := s.do(t, http.MethodGet, "/api/v1/auth/active_sessions", nil, phone.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	var listed model.ActiveSessionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Sessions, 2)
	assert.ElementsMatch(t, []string{"phone", "laptop"}, []string{listed.Sessions[0].DeviceName, listed.Sessions[1].DeviceName})

	w = s.do(t, http.MethodPost, "/api/v1/auth/revoke_other_session", model.RefreshTokenRequest{RefreshToken: phone.RefreshToken}, phone.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"revoked","revoked":1}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: laptop.RefreshToken, Fingerprint: testFingerprint}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: phone.RefreshToken, Fingerprint: testFingerprint}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/revoke_other_session", `{}`, phone.AccessToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutAllHandler(t *testing.T) {
	s := newTestServer(t)
	phone := s.login(t, "phone")
	laptop := s.login(t, "laptop")

	w := s.do(t, http.MethodPost, "/api/v1/auth/logout_all", nil, phone.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"logged_out","revoked":2}`, w.Body.String())

	for _, token := range []string{phone.RefreshToken, laptop.RefreshToken} {
		w := s.do(t, http.MethodPost, "/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: token, Fingerprint: testFingerprint}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/auth/active_sessions", nil, phone.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[]}`, w.Body.String())
}
