package service

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devicesession/backend/internal/db"
)

const testSecret = "test-secret"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCodec(t *testing.T, clock *fakeClock) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(TokenConfig{Secret: testSecret, Algorithm: "HS256", Now: clock.Now})
	require.NoError(t, err)
	return codec
}

var testSessionConfig = SessionConfig{
	AccessTTL:           15 * time.Minute,
	RefreshTTL:          24 * time.Hour,
	RotateRefreshTokens: true,
}

type recordedEvents struct {
	mu      sync.Mutex
	issued  int
	refresh []string
	revoked map[string]int
}

func (r *recordedEvents) SessionIssued() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
}

func (r *recordedEvents) RefreshCompleted(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh = append(r.refresh, result)
}

func (r *recordedEvents) SessionsRevoked(reason string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = make(map[string]int)
	}
	r.revoked[reason] += n
}

type managerFixture struct {
	manager *SessionManager
	store   *db.Memory
	clock   *fakeClock
	events  *recordedEvents
}

func newManagerFixture(t *testing.T, rotate bool) *managerFixture {
	t.Helper()
	clock := newFakeClock()
	store := db.NewMemory()
	events := &recordedEvents{}
	cfg := testSessionConfig
	cfg.RotateRefreshTokens = rotate

	manager := NewSessionManager(store, newTestCodec(t, clock), cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRecorder(events),
	)
	return &managerFixture{manager: manager, store: store, clock: clock, events: events}
}
