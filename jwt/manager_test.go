package jwt

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func testManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()

	cfg := Config{
		Issuer:     "tokengate",
		Audience:   "tokengate-api",
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL:  2 * time.Minute,
		RefreshTTL: time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func testUser() UserInfo {
	return UserInfo{ID: 42, Username: "vahid", DisplayName: "Vahid", SerialNumber: "serial-1"}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short key", func(c *Config) { c.SigningKey = []byte("too-short") }},
		{"missing issuer", func(c *Config) { c.Issuer = "" }},
		{"zero access ttl", func(c *Config) { c.AccessTTL = 0 }},
		{"refresh not above access", func(c *Config) { c.RefreshTTL = c.AccessTTL }},
		{"negative leeway", func(c *Config) { c.Leeway = -time.Second }},
		{"excessive leeway", func(c *Config) { c.Leeway = 5 * time.Minute }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{
				Issuer:     "tokengate",
				SigningKey: []byte("0123456789abcdef0123456789abcdef"),
				AccessTTL:  2 * time.Minute,
				RefreshTTL: time.Hour,
			}
			tc.mutate(&cfg)
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected config rejection")
			}
		})
	}
}

func TestCreatePairRoundTrip(t *testing.T) {
	m := testManager(t, nil)

	pair, err := m.CreatePair(testUser(), []string{"Admin", "User"}, "dev-hash")
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}
	if pair.RefreshSerial == "" {
		t.Fatal("expected a refresh serial")
	}

	access, err := m.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if access.UserID != "42" || access.Username != "vahid" || access.SerialNumber != "serial-1" {
		t.Fatalf("unexpected access claims: %+v", access)
	}
	if access.DeviceHash != "dev-hash" {
		t.Fatalf("expected device hash in claims, got %q", access.DeviceHash)
	}
	if len(access.Roles) != 2 {
		t.Fatalf("expected 2 roles, got %v", access.Roles)
	}

	refresh, err := m.ParseRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh failed: %v", err)
	}
	if refresh.Serial != pair.RefreshSerial {
		t.Fatal("refresh serial claim does not match pair serial")
	}
	if refresh.DeviceHash != "dev-hash" {
		t.Fatalf("expected device hash in refresh claims, got %q", refresh.DeviceHash)
	}
}

func TestSerialsAreUniquePerIssuance(t *testing.T) {
	m := testManager(t, nil)

	first, err := m.CreatePair(testUser(), nil, "")
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}
	second, err := m.CreatePair(testUser(), nil, "")
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}
	if first.RefreshSerial == second.RefreshSerial {
		t.Fatal("expected fresh serial on every issuance")
	}
}

func TestParseRejectsExpiredAccessToken(t *testing.T) {
	m := testManager(t, nil)

	pair, err := m.createPairAt(testUser(), nil, "", time.Now().Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("createPairAt failed: %v", err)
	}

	if _, err := m.ParseAccess(pair.AccessToken); !errors.Is(err, jwtlib.ErrTokenExpired) {
		t.Fatalf("expected token expired, got %v", err)
	}
	// The refresh TTL is longer; the refresh token is still live.
	if _, err := m.ParseRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("expected live refresh token, got %v", err)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	m := testManager(t, nil)
	other := testManager(t, func(c *Config) {
		c.SigningKey = []byte("ffffffffffffffffffffffffffffffff")
	})

	pair, err := m.CreatePair(testUser(), nil, "")
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}

	if _, err := other.ParseAccess(pair.AccessToken); err == nil {
		t.Fatal("expected signature rejection")
	}
}

func TestParseRejectsWrongIssuerAndAudience(t *testing.T) {
	m := testManager(t, nil)

	issuerMismatch := testManager(t, func(c *Config) { c.Issuer = "someone-else" })
	audienceMismatch := testManager(t, func(c *Config) { c.Audience = "other-api" })

	pair, err := m.CreatePair(testUser(), nil, "")
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}

	if _, err := issuerMismatch.ParseAccess(pair.AccessToken); err == nil {
		t.Fatal("expected issuer rejection")
	}
	if _, err := audienceMismatch.ParseAccess(pair.AccessToken); err == nil {
		t.Fatal("expected audience rejection")
	}
}

func TestParseRejectsUnsignedToken(t *testing.T) {
	m := testManager(t, nil)

	claims := &AccessClaims{
		UserID:           "42",
		RegisteredClaims: m.registered("jti", time.Now(), time.Now().Add(time.Minute)),
	}
	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).
		SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token failed: %v", err)
	}

	if _, err := m.ParseAccess(unsigned); err == nil {
		t.Fatal("expected alg=none rejection")
	}
}

func TestRefreshSerialHelper(t *testing.T) {
	m := testManager(t, nil)

	pair, err := m.CreatePair(testUser(), nil, "")
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}

	if got := m.RefreshSerial(pair.RefreshToken); got != pair.RefreshSerial {
		t.Fatalf("expected serial %q, got %q", pair.RefreshSerial, got)
	}
	if got := m.RefreshSerial(""); got != "" {
		t.Fatalf("expected empty serial for empty token, got %q", got)
	}
	if got := m.RefreshSerial("not-a-jwt"); got != "" {
		t.Fatalf("expected empty serial for garbage token, got %q", got)
	}
	// An access token is the wrong kind; its srl claim (the user serial
	// number) must never leak out as a refresh serial.
	if got := m.RefreshSerial(pair.AccessToken); got != "" {
		t.Fatalf("expected empty serial for access token, got %q", got)
	}
}

func TestParseRejectsCrossTokenKind(t *testing.T) {
	m := testManager(t, nil)

	pair, err := m.CreatePair(testUser(), nil, "")
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}

	if _, err := m.ParseAccess(pair.RefreshToken); err == nil {
		t.Fatal("expected refresh token to be rejected as access token")
	}
	if _, err := m.ParseRefresh(pair.AccessToken); err == nil {
		t.Fatal("expected access token to be rejected as refresh token")
	}
}

func TestLeewayAcceptsRecentlyExpiredToken(t *testing.T) {
	strict := testManager(t, nil)
	lenient := testManager(t, func(c *Config) { c.Leeway = 90 * time.Second })

	pair, err := strict.createPairAt(testUser(), nil, "", time.Now().Add(-3*time.Minute))
	if err != nil {
		t.Fatalf("createPairAt failed: %v", err)
	}

	if _, err := strict.ParseAccess(pair.AccessToken); err == nil {
		t.Fatal("expected strict rejection of expired token")
	}
	if _, err := lenient.ParseAccess(pair.AccessToken); err != nil {
		t.Fatalf("expected leeway acceptance, got %v", err)
	}
}
