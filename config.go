package tokengate

import (
	"errors"
	"time"
)

// Config defines a public type used by tokengate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT      JWTConfig
	Ledger   LedgerConfig
	Password PasswordConfig
	Device   DeviceConfig
	Activity ActivityConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by tokengate APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

/*
====================================
LEDGER CONFIG
====================================
*/

// LedgerConfig defines a public type used by tokengate APIs.
//
// LedgerConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LedgerConfig struct {
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by tokengate APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DeviceConfig controls device fingerprint binding. When enabled, issued
// tokens embed a hash of the parsed User-Agent and mismatching requests are
// rejected at validation and refresh time.
type DeviceConfig struct {
	Enabled          bool
	EnforceOnRefresh bool
}

// ActivityConfig controls the background last-activity touch performed after
// successful validations. TouchWindow bounds write amplification: at most one
// provider update per user per window.
type ActivityConfig struct {
	Enabled     bool
	TouchWindow time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by tokengate APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	EnableIPThrottle         bool
	EnableRefreshThrottle    bool
	MaxLoginAttempts         int
	LoginCooldownDuration    time.Duration
	MaxRefreshAttempts       int
	RefreshCooldownDuration  time.Duration
	RevokeOtherTokensOnLogin bool
}

// AuditConfig defines a public type used by tokengate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by tokengate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:     "tokengate",
			AccessTTL:  2 * time.Minute,
			RefreshTTL: 60 * time.Minute,
			Leeway:     0,
		},
		Ledger: LedgerConfig{
			RedisPrefix: "tg",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Device: DeviceConfig{
			Enabled:          true,
			EnforceOnRefresh: true,
		},
		Activity: ActivityConfig{
			Enabled:     true,
			TouchWindow: 2 * time.Minute,
		},
		Security: SecurityConfig{
			EnableIPThrottle:         true,
			EnableRefreshThrottle:    true,
			MaxLoginAttempts:         5,
			LoginCooldownDuration:    15 * time.Minute,
			MaxRefreshAttempts:       20,
			RefreshCooldownDuration:  1 * time.Minute,
			RevokeOtherTokensOnLogin: false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningKey = cloneBytes(cfg.JWT.SigningKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.Issuer == "" {
		return errors.New("JWT Issuer is required")
	}
	if len(c.JWT.SigningKey) < 32 {
		return errors.New("JWT SigningKey must be >= 256 bits")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	// A refresh token that outlives nothing is a misconfiguration: the
	// client could never renew before expiry. Reject at startup.
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be greater than AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Activity
	if c.Activity.Enabled && c.Activity.TouchWindow <= 0 {
		return errors.New("Activity TouchWindow must be > 0 when activity tracking is enabled")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("LoginCooldownDuration must be > 0")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("MaxRefreshAttempts must be > 0 when refresh throttle is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("RefreshCooldownDuration must be > 0 when refresh throttle is enabled")
		}
	}

	// Device
	if c.Device.EnforceOnRefresh && !c.Device.Enabled {
		return errors.New("Device EnforceOnRefresh requires Device Enabled")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}
