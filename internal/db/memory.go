package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/devicesession/backend/internal/model"
)

// Memory is a process-local store with the same semantics as Postgres. It
// backs the service when no database is configured and is used in tests.
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	tokens  map[int64]*model.RefreshToken
	byToken map[string]int64

	nextUserID int64
	users      map[int64]*model.User
	byLogin    map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		tokens:  make(map[int64]*model.RefreshToken),
		byToken: make(map[string]int64),
		users:   make(map[int64]*model.User),
		byLogin: make(map[string]int64),
	}
}

func (m *Memory) InsertRefreshToken(ctx context.Context, rec model.RefreshToken) (*model.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(rec)
}

func (m *Memory) insertLocked(rec model.RefreshToken) (*model.RefreshToken, error) {
	if _, ok := m.byToken[rec.Token]; ok {
		return nil, ErrConflict
	}
	m.nextID++
	rec.ID = m.nextID
	rec.Revoked = false
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	stored := rec
	m.tokens[rec.ID] = &stored
	m.byToken[rec.Token] = rec.ID
	return &rec, nil
}

func (m *Memory) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	rec := *m.tokens[id]
	return &rec, nil
}

func (m *Memory) ListActiveRefreshTokens(ctx context.Context, userID int64) ([]model.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.RefreshToken
	for _, rec := range m.tokens {
		if rec.UserID == userID && !rec.Revoked {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) RevokeRefreshToken(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.tokens[id]; ok {
		rec.Revoked = true
	}
	return nil
}

func (m *Memory) RevokeRefreshTokensExcept(ctx context.Context, userID int64, exceptToken string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, rec := range m.tokens {
		if rec.UserID == userID && rec.Token != exceptToken && !rec.Revoked {
			rec.Revoked = true
			n++
		}
	}
	return n, nil
}

func (m *Memory) RotateRefreshToken(ctx context.Context, oldID int64, next model.RefreshToken) (*model.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.tokens[oldID]
	if !ok || old.Revoked {
		return nil, ErrAlreadyRevoked
	}
	rec, err := m.insertLocked(next)
	if err != nil {
		return nil, err
	}
	old.Revoked = true
	return rec, nil
}

func (m *Memory) CreateUser(ctx context.Context, loginID, passwordHash string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byLogin[loginID]; ok {
		return nil, ErrConflict
	}
	m.nextUserID++
	now := time.Now()
	user := model.User{
		ID:           m.nextUserID,
		LoginID:      loginID,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[user.ID] = &user
	m.byLogin[loginID] = user.ID
	out := user
	return &out, nil
}

func (m *Memory) GetUserByLoginID(ctx context.Context, loginID string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byLogin[loginID]
	if !ok {
		return nil, ErrNotFound
	}
	user := *m.users[id]
	return &user, nil
}

func (m *Memory) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *user
	return &out, nil
}
