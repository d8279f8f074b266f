//go:build integration
// +build integration

package test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	tokengate "github.com/mkarimv/tokengate"
	"github.com/mkarimv/tokengate/password"
	"github.com/redis/go-redis/v9"
)

const (
	testUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	testPassword  = "1234"
)

type memProvider struct {
	mu     sync.RWMutex
	byID   map[int64]tokengate.UserRecord
	byName map[string]int64
	roles  map[int64][]string
}

func newMemProvider() *memProvider {
	return &memProvider{
		byID:   make(map[int64]tokengate.UserRecord),
		byName: make(map[string]int64),
		roles:  make(map[int64][]string),
	}
}

func (p *memProvider) put(u tokengate.UserRecord, roles []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[u.ID] = u
	p.byName[u.Username] = u.ID
	p.roles[u.ID] = roles
}

func (p *memProvider) setSerialNumber(userID int64, serial string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.byID[userID]
	u.SerialNumber = serial
	p.byID[userID] = u
}

func (p *memProvider) setActive(userID int64, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.byID[userID]
	u.IsActive = active
	p.byID[userID] = u
}

func (p *memProvider) lastActivity(userID int64) time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byID[userID].LastActivityAt
}

func (p *memProvider) GetUserByUsername(_ context.Context, username string) (tokengate.UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byName[username]
	if !ok {
		return tokengate.UserRecord{}, fmt.Errorf("user not found")
	}
	return p.byID[id], nil
}

func (p *memProvider) GetUserByID(_ context.Context, userID int64) (tokengate.UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.byID[userID]
	if !ok {
		return tokengate.UserRecord{}, fmt.Errorf("user not found")
	}
	return u, nil
}

func (p *memProvider) GetRolesForUser(_ context.Context, userID int64) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roles[userID], nil
}

func (p *memProvider) UpdateLastActivity(_ context.Context, userID int64, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return fmt.Errorf("user not found")
	}
	u.LastActivityAt = at
	p.byID[userID] = u
	return nil
}

func testConfig() tokengate.Config {
	cfg := tokengate.DefaultConfig()
	cfg.JWT.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	// Keep argon2 cheap for test throughput; Validate's floors still hold.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.SaltLength = 16
	cfg.Password.KeyLength = 16
	return cfg
}

func hashPassword(t testing.TB, cfg tokengate.Config, plain string) string {
	t.Helper()

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("hasher init failed: %v", err)
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	return hash
}

func seedUser(t testing.TB, provider *memProvider, cfg tokengate.Config) {
	t.Helper()

	provider.put(tokengate.UserRecord{
		ID:           1,
		Username:     "vahid",
		DisplayName:  "Vahid",
		PasswordHash: hashPassword(t, cfg, testPassword),
		IsActive:     true,
		SerialNumber: "serial-1",
	}, []string{"Admin", "User"})
}

func newTestEngine(t testing.TB, mutate func(*tokengate.Config)) (*tokengate.Engine, *memProvider, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	provider := newMemProvider()
	seedUser(t, provider, cfg)

	engine, err := tokengate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(provider).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}

	return engine, provider, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func requestContext() context.Context {
	ctx := tokengate.WithClientIP(context.Background(), "127.0.0.1")
	return tokengate.WithUserAgent(ctx, testUserAgent)
}
