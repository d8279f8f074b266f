package tokengate

import (
	"context"
	"strconv"
	"time"

	"github.com/mkarimv/tokengate/device"
	"github.com/mkarimv/tokengate/internal"
)

// ValidationState defines a public type used by tokengate APIs.
//
// ValidationState instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ValidationState int

// Validation advances through these states in order; the first failed check
// terminates the walk and names the rejection.
const (
	// StateHasClaims is an exported constant or variable used by the tokengate engine.
	StateHasClaims ValidationState = iota
	// StateDeviceMatch is an exported constant or variable used by the tokengate engine.
	StateDeviceMatch
	// StateHasSerial is an exported constant or variable used by the tokengate engine.
	StateHasSerial
	// StateHasUserID is an exported constant or variable used by the tokengate engine.
	StateHasUserID
	// StateUserStillValid is an exported constant or variable used by the tokengate engine.
	StateUserStillValid
	// StateLedgerMembership is an exported constant or variable used by the tokengate engine.
	StateLedgerMembership
	// StateAccepted is an exported constant or variable used by the tokengate engine.
	StateAccepted
)

var validationStateNames = map[ValidationState]string{
	StateHasClaims:        "has_claims",
	StateDeviceMatch:      "device_match",
	StateHasSerial:        "has_serial",
	StateHasUserID:        "has_user_id",
	StateUserStillValid:   "user_still_valid",
	StateLedgerMembership: "ledger_membership",
	StateAccepted:         "accepted",
}

// String describes the string operation and its observable behavior.
func (s ValidationState) String() string {
	if name, ok := validationStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Validate checks an access token against every rejection surface a request
// can hit: signature and expiry, device binding, the serial-number snapshot
// embedded at signing time, and live ledger membership. A token that passes
// all of them belongs to a still-trusted session.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	result, state, err := e.validate(ctx, accessToken)
	if err != nil {
		e.metricInc(MetricValidateRejected)
		e.emitAudit(ctx, auditEventValidateRejected, false, auditUserID(result), "", err, func() map[string]string {
			return map[string]string{
				"state": state.String(),
			}
		})
		return nil, err
	}

	e.metricInc(MetricValidateAccepted)
	e.maybeTouchActivity(result.UserID)

	return result, nil
}

func (e *Engine) validate(ctx context.Context, accessToken string) (*AuthResult, ValidationState, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil && e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	// State: has_claims. The token must carry a verifiable signature and an
	// unexpired claim set before anything else is worth checking.
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, StateHasClaims, ErrTokenInvalid
	}

	// State: device_match. The fingerprint baked in at signing time must
	// match the fingerprint of the presenting client.
	if e.config.Device.Enabled && claims.DeviceHash != "" {
		current := device.FingerprintHash(userAgentFromContext(ctx))
		if !internal.DigestsEqual(claims.DeviceHash, current) {
			e.metricInc(MetricDeviceMismatch)
			return nil, StateDeviceMatch, ErrDeviceMismatch
		}
	}

	// State: has_serial.
	if claims.SerialNumber == "" {
		e.metricInc(MetricSerialMismatch)
		return nil, StateHasSerial, ErrSerialInvalid
	}

	// State: has_user_id. The uid claim is transported as a string; anything
	// that does not parse to a positive integer is not an identity.
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil || userID <= 0 {
		return nil, StateHasUserID, ErrTokenInvalid
	}

	result := &AuthResult{
		UserID:       userID,
		Username:     claims.Username,
		DisplayName:  claims.DisplayName,
		Roles:        claims.Roles,
		SerialNumber: claims.SerialNumber,
	}

	// State: user_still_valid. Comparing the claim snapshot against the
	// user's current serial number invalidates every token signed before a
	// serial rotation without touching the ledger.
	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return result, StateUserStillValid, ErrUserNotFound
	}
	if !internal.DigestsEqual(user.SerialNumber, claims.SerialNumber) {
		e.metricInc(MetricSerialMismatch)
		return result, StateUserStillValid, ErrSerialInvalid
	}
	if !user.IsActive {
		return result, StateUserStillValid, ErrUserInactive
	}

	// State: ledger_membership. A structurally perfect token is still dead
	// if its entry was revoked or rotated away.
	live, err := e.ledgerStore.IsAccessTokenValid(ctx, userID, internal.Sha256Hash(accessToken))
	if err != nil {
		e.metricInc(MetricLedgerMiss)
		return result, StateLedgerMembership, ErrLedgerUnavailable
	}
	if !live {
		e.metricInc(MetricLedgerMiss)
		return result, StateLedgerMembership, ErrTokenRevoked
	}

	return result, StateAccepted, nil
}

func auditUserID(result *AuthResult) int64 {
	if result == nil {
		return 0
	}
	return result.UserID
}
