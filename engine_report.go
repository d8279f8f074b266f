package tokengate

import (
	"github.com/mkarimv/tokengate/internal/security"
)

// SecurityReport defines a public type used by tokengate APIs.
//
// SecurityReport instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityReport = security.Report

// SecurityReport describes the securityreport operation and its observable behavior.
//
// SecurityReport does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SecurityReport() SecurityReport {
	cfg := e.config

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: "HS256",
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.JWT.RefreshTTL,
		Password: security.PasswordReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		DeviceBindingEnabled:     cfg.Device.Enabled,
		DeviceBindingEnforced:    cfg.Device.EnforceOnRefresh,
		RevokeOtherTokensOnLogin: cfg.Security.RevokeOtherTokensOnLogin,
		MaxLoginAttempts:         cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration:    cfg.Security.LoginCooldownDuration,
		EnableRefreshThrottle:    cfg.Security.EnableRefreshThrottle,
		ActivityTouchEnabled:     cfg.Activity.Enabled,
		AuditEnabled:             cfg.Audit.Enabled,
	})
}
