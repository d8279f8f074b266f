package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkarimv/tokengate/internal"
)

// Config holds signing parameters for the token issuer.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Manager signs and verifies access and refresh tokens.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// Both token kinds carry a typ discriminator so one kind can never be parsed
// as the other. Without it the srl claim is ambiguous: an access token's srl
// holds the user's serial number, a refresh token's srl holds the ledger
// lookup serial.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims is the fixed claim schema of an access token. The srl claim
// mirrors the user's serial number at issuance time; dvc carries the device
// fingerprint hash of the issuing request.
type AccessClaims struct {
	TokenType    string   `json:"typ"`
	UserID       string   `json:"uid"`
	Username     string   `json:"unm,omitempty"`
	DisplayName  string   `json:"dsp,omitempty"`
	Roles        []string `json:"rol,omitempty"`
	SerialNumber string   `json:"srl,omitempty"`
	DeviceHash   string   `json:"dvc,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the fixed claim schema of a refresh token. The srl claim
// is a fresh cryptographically secure serial; its SHA-256 hash is the ledger
// lookup key.
type RefreshClaims struct {
	TokenType  string `json:"typ"`
	Serial     string `json:"srl"`
	DeviceHash string `json:"dvc,omitempty"`
	jwt.RegisteredClaims
}

// UserInfo carries the user fields that end up inside access-token claims.
type UserInfo struct {
	ID           int64
	Username     string
	DisplayName  string
	SerialNumber string
}

// Pair is the result of one issuance: both signed tokens, the refresh token's
// raw serial (so the caller can hash it for ledger storage), the access-token
// expiry, and the issued access claims (handed to the anti-forgery hook).
type Pair struct {
	AccessToken      string
	RefreshToken     string
	RefreshSerial    string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Claims           *AccessClaims
}

// NewManager validates cfg and returns a ready [Manager].
//
// Refreshing only makes sense after the access token was issued and before it
// can no longer be renewed, so RefreshTTL must be strictly greater than
// AccessTTL; violations fail here, at startup, never at request time.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("signing key must be at least 256 bits")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access TTL must be > 0")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must be greater than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// CreatePair mints a signed access token and a signed refresh token for user.
func (m *Manager) CreatePair(user UserInfo, roles []string, deviceHash string) (*Pair, error) {
	return m.createPairAt(user, roles, deviceHash, time.Now())
}

func (m *Manager) createPairAt(user UserInfo, roles []string, deviceHash string, now time.Time) (*Pair, error) {
	accessJTI, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	refreshJTI, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	refreshSerial, err := internal.NewTokenSerial()
	if err != nil {
		return nil, err
	}

	accessExpiry := now.Add(m.config.AccessTTL)
	refreshExpiry := now.Add(m.config.RefreshTTL)

	accessClaims := &AccessClaims{
		TokenType:        tokenTypeAccess,
		UserID:           strconv.FormatInt(user.ID, 10),
		Username:         user.Username,
		DisplayName:      user.DisplayName,
		Roles:            roles,
		SerialNumber:     user.SerialNumber,
		DeviceHash:       deviceHash,
		RegisteredClaims: m.registered(accessJTI, now, accessExpiry),
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).
		SignedString(m.config.SigningKey)
	if err != nil {
		return nil, err
	}

	refreshClaims := &RefreshClaims{
		TokenType:        tokenTypeRefresh,
		Serial:           refreshSerial,
		DeviceHash:       deviceHash,
		RegisteredClaims: m.registered(refreshJTI, now, refreshExpiry),
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).
		SignedString(m.config.SigningKey)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshSerial:    refreshSerial,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
		Claims:           accessClaims,
	}, nil
}

// ParseAccess verifies signature, issuer, audience, expiry, and token type of
// an access token and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, errors.New("not an access token")
	}
	return claims, nil
}

// ParseRefresh verifies signature, issuer, audience, expiry, and token type of
// a refresh token and returns its claims.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, errors.New("not a refresh token")
	}
	return claims, nil
}

// RefreshSerial verifies a refresh token and extracts its serial claim.
// Any validation failure returns the empty string, never an error: this is a
// ledger lookup helper, and an unusable token is equivalent to a ledger miss.
func (m *Manager) RefreshSerial(refreshTokenValue string) string {
	if refreshTokenValue == "" {
		return ""
	}

	claims, err := m.ParseRefresh(refreshTokenValue)
	if err != nil {
		return ""
	}
	return claims.Serial
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithExpirationRequired(),
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.config.SigningKey, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

func (m *Manager) registered(jti string, now, expiry time.Time) jwt.RegisteredClaims {
	reg := jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
	}
	if m.config.Audience != "" {
		reg.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return reg
}
