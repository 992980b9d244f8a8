package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/devicesession/backend/internal/config"
	"github.com/devicesession/backend/internal/db"
	"github.com/devicesession/backend/internal/model"
)

// SessionStore persists refresh token records. RotateRefreshToken must
// revoke oldID and insert next atomically, failing with db.ErrAlreadyRevoked
// when oldID is no longer active.
type SessionStore interface {
	InsertRefreshToken(ctx context.Context, rec model.RefreshToken) (*model.RefreshToken, error)
	GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error)
	ListActiveRefreshTokens(ctx context.Context, userID int64) ([]model.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id int64) error
	RevokeRefreshTokensExcept(ctx context.Context, userID int64, exceptToken string) (int64, error)
	RotateRefreshToken(ctx context.Context, oldID int64, next model.RefreshToken) (*model.RefreshToken, error)
}

// Recorder receives session lifecycle events.
type Recorder interface {
	SessionIssued()
	RefreshCompleted(result string)
	SessionsRevoked(reason string, n int)
}

type nopRecorder struct{}

func (nopRecorder) SessionIssued() {}
func (nopRecorder) RefreshCompleted(string) {}
func (nopRecorder) SessionsRevoked(string, int) {}

type SessionConfig struct {
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	RotateRefreshTokens bool
}

func NewSessionConfig(cfg config.AuthConfig) (SessionConfig, error) {
	accessTTL, err := time.ParseDuration(cfg.JWTAccessTTL)
	if err != nil || accessTTL <= 0 {
		return SessionConfig{}, fmt.Errorf("%w: invalid JWT_ACCESS_TTL", ErrMisconfigured)
	}

	refreshTTL, err := time.ParseDuration(cfg.JWTRefreshTTL)
	if err != nil || refreshTTL <= 0 {
		return SessionConfig{}, fmt.Errorf("%w: invalid JWT_REFRESH_TTL", ErrMisconfigured)
	}

	rotate := true
	if cfg.RotateRefreshTokens != "" {
		rotate, err = strconv.ParseBool(cfg.RotateRefreshTokens)
		if err != nil {
			return SessionConfig{}, fmt.Errorf("%w: invalid ROTATE_REFRESH_TOKENS", ErrMisconfigured)
		}
	}

	return SessionConfig{
		AccessTTL:           accessTTL,
		RefreshTTL:          refreshTTL,
		RotateRefreshTokens: rotate,
	}, nil
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type SessionOption func(*SessionManager)

func WithLogger(log *slog.Logger) SessionOption {
	return func(m *SessionManager) { m.log = log }
}

func WithRecorder(r Recorder) SessionOption {
	return func(m *SessionManager) { m.metrics = r }
}

// SessionManager issues, refreshes and revokes device sessions. All mutable
// state lives in the store.
type SessionManager struct {
	store   SessionStore
	codec   *TokenCodec
	cfg     SessionConfig
	log     *slog.Logger
	metrics Recorder
}

func NewSessionManager(store SessionStore, codec *TokenCodec, cfg SessionConfig, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		store:   store,
		codec:   codec,
		cfg:     cfg,
		log:     slog.Default(),
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SessionManager) encode(userID int64, typ TokenType, ttl time.Duration) (string, *TokenClaims, error) {
	claims := TokenClaims{Type: typ}
	claims.Subject = strconv.FormatInt(userID, 10)
	return m.codec.Encode(claims, ttl)
}

func (m *SessionManager) IssueSession(ctx context.Context, userID int64, deviceName string, fingerprint map[string]string) (*TokenPair, error) {
	access, _, err := m.encode(userID, AccessToken, m.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, claims, err := m.encode(userID, RefreshToken, m.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	_, err = m.store.InsertRefreshToken(ctx, model.RefreshToken{
		UserID:          userID,
		Token:           refresh,
		DeviceName:      deviceName,
		FingerprintHash: HashFingerprint(fingerprint),
		CreatedAt:       claims.IssuedAt.Time,
		ExpiresAt:       claims.ExpiresAt.Time,
	})
	if err != nil {
		return nil, storeError("insert refresh token", err)
	}

	m.metrics.SessionIssued()
	m.log.InfoContext(ctx, "session issued", "user_id", userID, "device", deviceName)
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshSession validates refreshToken against the store and the presented
// fingerprint, then issues a new access token and, when rotation is on,
// replaces the refresh token.
func (m *SessionManager) RefreshSession(ctx context.Context, refreshToken string, fingerprint map[string]string) (*TokenPair, error) {
	pair, rec, err := m.refresh(ctx, refreshToken, fingerprint)
	m.metrics.RefreshCompleted(ErrorKind(err))
	if err != nil {
		attrs := []any{"reason", ErrorKind(err)}
		if rec != nil {
			attrs = append(attrs, "user_id", rec.UserID, "session_id", rec.ID)
		}
		if errors.Is(err, ErrDeviceMismatch) || errors.Is(err, ErrRevoked) {
			m.log.WarnContext(ctx, "refresh rejected", attrs...)
		} else {
			m.log.InfoContext(ctx, "refresh rejected", attrs...)
		}
		return nil, err
	}
	return pair, nil
}

func (m *SessionManager) refresh(ctx context.Context, refreshToken string, fingerprint map[string]string) (*TokenPair, *model.RefreshToken, error) {
	claims, err := m.codec.Decode(refreshToken)
	if err != nil {
		return nil, nil, err
	}
	if claims.Type != RefreshToken {
		return nil, nil, fmt.Errorf("%w: not a refresh token", ErrInvalidToken)
	}

	rec, err := m.store.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, ErrTokenNotFound
		}
		return nil, nil, fmt.Errorf("load refresh token: %w", err)
	}
	if rec.Revoked {
		return nil, rec, ErrRevoked
	}
	if !m.codec.now().Before(rec.ExpiresAt) {
		return nil, rec, ErrExpiredToken
	}
	if subtle.ConstantTimeCompare([]byte(HashFingerprint(fingerprint)), []byte(rec.FingerprintHash)) != 1 {
		return nil, rec, ErrDeviceMismatch
	}

	access, _, err := m.encode(rec.UserID, AccessToken, m.cfg.AccessTTL)
	if err != nil {
		return nil, rec, err
	}
	if !m.cfg.RotateRefreshTokens {
		return &TokenPair{AccessToken: access, RefreshToken: refreshToken}, rec, nil
	}

	next, nextClaims, err := m.encode(rec.UserID, RefreshToken, m.cfg.RefreshTTL)
	if err != nil {
		return nil, rec, err
	}
	_, err = m.store.RotateRefreshToken(ctx, rec.ID, model.RefreshToken{
		UserID:          rec.UserID,
		Token:           next,
		DeviceName:      rec.DeviceName,
		FingerprintHash: rec.FingerprintHash,
		CreatedAt:       nextClaims.IssuedAt.Time,
		ExpiresAt:       nextClaims.ExpiresAt.Time,
	})
	if err != nil {
		if errors.Is(err, db.ErrAlreadyRevoked) {
			return nil, rec, ErrRevoked
		}
		return nil, rec, storeError("rotate refresh token", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: next}, rec, nil
}

// Logout revokes the session holding refreshToken. Unknown tokens are
// treated as already logged out.
func (m *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	rec, err := m.store.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load refresh token: %w", err)
	}
	if rec.Revoked {
		return nil
	}
	if err := m.store.RevokeRefreshToken(ctx, rec.ID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	m.metrics.SessionsRevoked("logout", 1)
	m.log.InfoContext(ctx, "session revoked", "user_id", rec.UserID, "session_id", rec.ID)
	return nil
}

func (m *SessionManager) LogoutAll(ctx context.Context, userID int64) (int, error) {
	active, err := m.store.ListActiveRefreshTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list refresh tokens: %w", err)
	}
	for _, rec := range active {
		if err := m.store.RevokeRefreshToken(ctx, rec.ID); err != nil {
			return 0, fmt.Errorf("revoke refresh token: %w", err)
		}
	}
	m.metrics.SessionsRevoked("logout_all", len(active))
	m.log.InfoContext(ctx, "all sessions revoked", "user_id", userID, "count", len(active))
	return len(active), nil
}

func (m *SessionManager) RevokeOtherSessions(ctx context.Context, userID int64, currentToken string) (int64, error) {
	n, err := m.store.RevokeRefreshTokensExcept(ctx, userID, currentToken)
	if err != nil {
		return 0, fmt.Errorf("revoke other sessions: %w", err)
	}
	m.metrics.SessionsRevoked("revoke_others", int(n))
	m.log.InfoContext(ctx, "other sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

// ListActiveSessions returns the unrevoked, unexpired sessions of userID,
// oldest first.
func (m *SessionManager) ListActiveSessions(ctx context.Context, userID int64) ([]model.ActiveSession, error) {
	records, err := m.store.ListActiveRefreshTokens(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}

	now := m.codec.now()
	sessions := make([]model.ActiveSession, 0, len(records))
	for _, rec := range records {
		if !now.Before(rec.ExpiresAt) {
			continue
		}
		sessions = append(sessions, model.ActiveSession{
			RefreshToken: rec.Token,
			DeviceName:   rec.DeviceName,
			CreatedAt:    rec.CreatedAt,
		})
	}
	return sessions, nil
}

// VerifyAccessToken returns the user id carried by a valid access token.
func (m *SessionManager) VerifyAccessToken(token string) (int64, error) {
	claims, err := m.codec.Decode(token)
	if err != nil {
		return 0, err
	}
	if claims.Type != AccessToken {
		return 0, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	return claims.UserID()
}

func storeError(op string, err error) error {
	if errors.Is(err, db.ErrConflict) {
		return fmt.Errorf("%w: %s: %v", ErrConflict, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
