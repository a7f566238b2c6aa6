package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/userauth/internal/db"
	"github.com/Skotchmaster/userauth/internal/events"
	"github.com/Skotchmaster/userauth/internal/repo"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	repo   *repo.GormRepo
	tokens *TokenService
	svc    *AuthService
	pub    *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := db.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	rp := repo.New(gdb)
	ts := &TokenService{
		Ledger:        rp,
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}
	pub := &recordingPublisher{}

	return &testEnv{
		repo:   rp,
		tokens: ts,
		pub:    pub,
		svc: &AuthService{
			Users:  rp,
			Tokens: ts,
			Events: pub,
		},
	}
}
