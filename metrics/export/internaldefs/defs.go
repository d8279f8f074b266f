package internaldefs

import (
	tokengate "github.com/mkarimv/tokengate"
)

// CounterDef defines a public type used by tokengate APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   tokengate.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by tokengate APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   tokengate.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the tokengate engine.
var CounterDefs = []CounterDef{
	{ID: tokengate.MetricLoginSuccess, Name: "tokengate_login_success_total", Help: "Successful login attempts."},
	{ID: tokengate.MetricLoginFailure, Name: "tokengate_login_failure_total", Help: "Failed login attempts."},
	{ID: tokengate.MetricLoginRateLimited, Name: "tokengate_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: tokengate.MetricRefreshSuccess, Name: "tokengate_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokengate.MetricRefreshFailure, Name: "tokengate_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: tokengate.MetricRefreshReuseDetected, Name: "tokengate_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: tokengate.MetricRefreshRateLimited, Name: "tokengate_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: tokengate.MetricValidateAccepted, Name: "tokengate_validate_accepted_total", Help: "Access tokens accepted by validation."},
	{ID: tokengate.MetricValidateRejected, Name: "tokengate_validate_rejected_total", Help: "Access tokens rejected by validation."},
	{ID: tokengate.MetricDeviceMismatch, Name: "tokengate_device_mismatch_total", Help: "Detected device fingerprint mismatches."},
	{ID: tokengate.MetricSerialMismatch, Name: "tokengate_serial_mismatch_total", Help: "Tokens rejected on serial-number mismatch."},
	{ID: tokengate.MetricLedgerMiss, Name: "tokengate_ledger_miss_total", Help: "Tokens absent from or unreadable in the ledger."},
	{ID: tokengate.MetricTokenIssued, Name: "tokengate_token_issued_total", Help: "Issued token pairs."},
	{ID: tokengate.MetricTokenRevoked, Name: "tokengate_token_revoked_total", Help: "Revocation operations."},
	{ID: tokengate.MetricLogout, Name: "tokengate_logout_total", Help: "Single-session logout operations."},
	{ID: tokengate.MetricLogoutAll, Name: "tokengate_logout_all_total", Help: "Logout-everywhere operations."},
	{ID: tokengate.MetricActivityTouch, Name: "tokengate_activity_touch_total", Help: "Last-activity timestamp updates."},
}

// HistogramDefs is an exported constant or variable used by the tokengate engine.
var HistogramDefs = []HistogramDef{
	{ID: tokengate.MetricValidateLatency, Name: "tokengate_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the tokengate engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the tokengate engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
