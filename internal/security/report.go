package security

import "time"

// PasswordReport summarizes the active argon2id parameters.
type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report is a point-in-time summary of the engine's security posture.
type Report struct {
	SigningAlgorithm             string
	AccessTTL                    time.Duration
	RefreshTTL                   time.Duration
	Argon2                       PasswordReport
	DeviceBindingEnabled         bool
	DeviceBindingEnforced        bool
	RefreshRotationEnabled       bool
	RefreshReuseDetectionEnabled bool
	SerialInvalidationEnabled    bool
	RevokeOtherTokensOnLogin     bool
	RateLimitingActive           bool
	ActivityTrackingActive       bool
	AuditActive                  bool
}

// ReportInput carries the configuration facts the report is derived from.
type ReportInput struct {
	SigningAlgorithm         string
	AccessTTL                time.Duration
	RefreshTTL               time.Duration
	Password                 PasswordReport
	DeviceBindingEnabled     bool
	DeviceBindingEnforced    bool
	RevokeOtherTokensOnLogin bool
	MaxLoginAttempts         int
	LoginCooldownDuration    time.Duration
	EnableRefreshThrottle    bool
	ActivityTouchEnabled     bool
	AuditEnabled             bool
}

// BuildReport derives a [Report] from configuration facts.
func BuildReport(input ReportInput) Report {
	rateLimiting := input.MaxLoginAttempts > 0 &&
		input.LoginCooldownDuration > 0

	return Report{
		SigningAlgorithm:      input.SigningAlgorithm,
		AccessTTL:             input.AccessTTL,
		RefreshTTL:            input.RefreshTTL,
		Argon2:                input.Password,
		DeviceBindingEnabled:  input.DeviceBindingEnabled,
		DeviceBindingEnforced: input.DeviceBindingEnabled && input.DeviceBindingEnforced,
		// Rotation, reuse detection, and serial invalidation are structural;
		// they cannot be configured off.
		RefreshRotationEnabled:       true,
		RefreshReuseDetectionEnabled: true,
		SerialInvalidationEnabled:    true,
		RevokeOtherTokensOnLogin:     input.RevokeOtherTokensOnLogin,
		RateLimitingActive:           rateLimiting || input.EnableRefreshThrottle,
		ActivityTrackingActive:       input.ActivityTouchEnabled,
		AuditActive:                  input.AuditEnabled,
	}
}
