package tokengate

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/mkarimv/tokengate/device"
	"github.com/mkarimv/tokengate/internal"
	internalaudit "github.com/mkarimv/tokengate/internal/audit"
	"github.com/mkarimv/tokengate/internal/rate"
	"github.com/mkarimv/tokengate/jwt"
	"github.com/mkarimv/tokengate/ledger"
	"github.com/mkarimv/tokengate/password"
)

// Engine defines a public type used by tokengate APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	ledgerStore  *ledger.Store
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
	userProvider UserProvider
	antiForgery  AntiForgeryHook

	activityMu sync.Mutex
	lastTouch  map[int64]time.Time
	touchWG    sync.WaitGroup
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.touchWG.Wait()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login verifies credentials and issues a fresh token pair. The refresh
// token starts a new rotation chain; its ledger entry has no source.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, username, passwd string) (*TokenPair, error) {
	ip := clientIPFromContext(ctx)
	if e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, username, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, 0, "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{
					"identifier": username,
				}
			})
			return nil, ErrLoginRateLimited
		}
	}

	if username == "" || passwd == "" {
		return nil, e.failLogin(ctx, username, ip, 0, "empty_credentials")
	}

	user, err := e.userProvider.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, e.failLogin(ctx, username, ip, 0, "user_not_found")
	}

	ok, err := e.passwordHash.Verify(passwd, user.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, username, ip, user.ID, "password_mismatch")
	}
	passwd = ""

	if !user.IsActive {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrUserInactive, func() map[string]string {
			return map[string]string{
				"identifier": username,
				"reason":     "user_inactive",
			}
		})
		return nil, ErrUserInactive
	}

	if e.config.Security.RevokeOtherTokensOnLogin {
		if _, err := e.ledgerStore.RevokeAllForUser(ctx, user.ID); err != nil {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
				return map[string]string{
					"identifier": username,
					"reason":     "revoke_existing_failed",
				}
			})
			return nil, errors.Join(ErrLedgerUnavailable, err)
		}
	}

	pair, serialHash, err := e.issuePair(ctx, user, "")
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{
				"identifier": username,
				"reason":     "issue_pair_failed",
			}
		})
		return nil, err
	}

	if e.rateLimiter != nil {
		// Limiter reset is best-effort and must not block a successful login.
		if err := e.rateLimiter.ResetLogin(ctx, username, ip); err != nil {
			log.Print("tokengate: login limiter reset failed")
		}
	}

	e.metricInc(MetricTokenIssued)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, serialHash, nil, func() map[string]string {
		return map[string]string{
			"identifier": username,
		}
	})

	return pair, nil
}

func (e *Engine) failLogin(ctx context.Context, username, ip string, userID int64, reason string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, username, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, userID, "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{
					"identifier": username,
				}
			})
			return ErrLoginRateLimited
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier": username,
			"reason":     reason,
		}
	})
	return ErrInvalidCredentials
}

// Refresh consumes a refresh token and issues the next pair in its chain.
// The spent serial is retired atomically; exactly one concurrent caller per
// serial succeeds. Presenting a serial that was already spent revokes every
// descendant of that serial and reports reuse.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, 0, "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{
				"reason": "parse_failed",
			}
		})
		return nil, ErrRefreshInvalid
	}
	serialHash := internal.Sha256Hash(claims.Serial)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, serialHash); err != nil {
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, 0, serialHash, ErrRefreshRateLimited, nil)
			return nil, ErrRefreshRateLimited
		}
	}

	if e.config.Device.EnforceOnRefresh && claims.DeviceHash != "" {
		current := device.FingerprintHash(userAgentFromContext(ctx))
		if !internal.DigestsEqual(claims.DeviceHash, current) {
			// A refresh token presented from the wrong device is burned, not
			// just rejected: the serial is revoked so it cannot be retried.
			if revokeErr := e.ledgerStore.RevokeSerial(ctx, serialHash); revokeErr != nil {
				log.Print("tokengate: serial revocation failed after device mismatch")
			}
			e.metricInc(MetricDeviceMismatch)
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventDeviceMismatch, false, 0, serialHash, ErrDeviceMismatch, nil)
			return nil, ErrDeviceMismatch
		}
	}

	entry, err := e.ledgerStore.Find(ctx, serialHash)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return nil, e.handleSpentSerial(ctx, serialHash)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, 0, serialHash, err, func() map[string]string {
			return map[string]string{
				"reason": "ledger_lookup_failed",
			}
		})
		return nil, errors.Join(ErrLedgerUnavailable, err)
	}

	user, err := e.userProvider.GetUserByID(ctx, entry.UserID)
	if err != nil {
		if revokeErr := e.ledgerStore.RevokeSerial(ctx, serialHash); revokeErr != nil {
			log.Print("tokengate: serial revocation failed after user lookup miss")
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, entry.UserID, serialHash, ErrUserNotFound, nil)
		return nil, ErrUserNotFound
	}
	if !user.IsActive {
		if _, revokeErr := e.ledgerStore.RevokeAllForUser(ctx, user.ID); revokeErr != nil {
			log.Print("tokengate: token revocation failed for inactive user")
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, serialHash, ErrUserInactive, nil)
		return nil, ErrUserInactive
	}

	// The chain root survives rotation: a token minted during refresh points
	// at the same source as its parent, or at the parent itself when the
	// parent was the login token.
	source := entry.SourceHash
	if source == "" {
		source = serialHash
	}

	pair, newSerialHash, err := e.rotatePair(ctx, user, serialHash, entry.AccessTokenHash, source)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			// Lost the rotation race: the winner already consumed the entry.
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, serialHash, ErrRefreshNotFound, func() map[string]string {
				return map[string]string{
					"reason": "rotation_lost",
				}
			})
			return nil, ErrRefreshNotFound
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, serialHash, err, func() map[string]string {
			return map[string]string{
				"reason": "rotate_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricTokenIssued)
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, newSerialHash, nil, nil)

	return pair, nil
}

func (e *Engine) handleSpentSerial(ctx context.Context, serialHash string) error {
	revoked, err := e.ledgerStore.RevokeFamily(ctx, serialHash)
	if err != nil {
		log.Print("tokengate: chain revocation failed after spent serial")
	}
	if revoked > 0 {
		// Live descendants prove this serial was once valid and already
		// rotated: this is replay, and the whole chain is now dead.
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricTokenRevoked)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, 0, serialHash, ErrRefreshReuse, func() map[string]string {
			return map[string]string{
				"revoked": strconv.Itoa(revoked),
			}
		})
		return ErrRefreshReuse
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, 0, serialHash, ErrRefreshNotFound, func() map[string]string {
		return map[string]string{
			"reason": "serial_not_found",
		}
	})
	return ErrRefreshNotFound
}

func (e *Engine) issuePair(ctx context.Context, user UserRecord, sourceHash string) (*TokenPair, string, error) {
	roles, err := e.userProvider.GetRolesForUser(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	var deviceHash string
	if e.config.Device.Enabled {
		deviceHash = device.FingerprintHash(userAgentFromContext(ctx))
	}

	minted, err := e.jwtManager.CreatePair(jwt.UserInfo{
		ID:           user.ID,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		SerialNumber: user.SerialNumber,
	}, roles, deviceHash)
	if err != nil {
		return nil, "", err
	}

	serialHash := internal.Sha256Hash(minted.RefreshSerial)
	entry := &ledger.Entry{
		UserID:           user.ID,
		AccessTokenHash:  internal.Sha256Hash(minted.AccessToken),
		SourceHash:       sourceHash,
		CreatedAt:        time.Now().Unix(),
		AccessExpiresAt:  minted.AccessExpiresAt.Unix(),
		RefreshExpiresAt: minted.RefreshExpiresAt.Unix(),
	}

	if err := e.ledgerStore.Save(ctx, serialHash, entry); err != nil {
		return nil, "", err
	}

	if e.antiForgery != nil {
		e.antiForgery.RegenerateCookies(user.ID, roles)
	}

	return &TokenPair{
		AccessToken:      minted.AccessToken,
		RefreshToken:     minted.RefreshToken,
		AccessExpiresAt:  minted.AccessExpiresAt,
		RefreshExpiresAt: minted.RefreshExpiresAt,
	}, serialHash, nil
}

func (e *Engine) rotatePair(
	ctx context.Context,
	user UserRecord,
	oldSerialHash, oldAccessHash, sourceHash string,
) (*TokenPair, string, error) {
	roles, err := e.userProvider.GetRolesForUser(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	var deviceHash string
	if e.config.Device.Enabled {
		deviceHash = device.FingerprintHash(userAgentFromContext(ctx))
	}

	minted, err := e.jwtManager.CreatePair(jwt.UserInfo{
		ID:           user.ID,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		SerialNumber: user.SerialNumber,
	}, roles, deviceHash)
	if err != nil {
		return nil, "", err
	}

	newSerialHash := internal.Sha256Hash(minted.RefreshSerial)
	entry := &ledger.Entry{
		UserID:           user.ID,
		AccessTokenHash:  internal.Sha256Hash(minted.AccessToken),
		SourceHash:       sourceHash,
		CreatedAt:        time.Now().Unix(),
		AccessExpiresAt:  minted.AccessExpiresAt.Unix(),
		RefreshExpiresAt: minted.RefreshExpiresAt.Unix(),
	}

	if err := e.ledgerStore.Rotate(ctx, oldSerialHash, oldAccessHash, newSerialHash, entry); err != nil {
		return nil, "", err
	}

	if e.antiForgery != nil {
		e.antiForgery.RegenerateCookies(user.ID, roles)
	}

	return &TokenPair{
		AccessToken:      minted.AccessToken,
		RefreshToken:     minted.RefreshToken,
		AccessExpiresAt:  minted.AccessExpiresAt,
		RefreshExpiresAt: minted.RefreshExpiresAt,
	}, newSerialHash, nil
}

// Logout revokes the presented refresh token together with its whole chain
// and clears anti-forgery cookies. Revocation is idempotent; logging out an
// already-dead token only clears cookies.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	defer func() {
		if e.antiForgery != nil {
			e.antiForgery.DeleteCookies()
		}
	}()

	serial := e.jwtManager.RefreshSerial(refreshToken)
	if serial == "" {
		e.emitAudit(ctx, auditEventLogout, false, 0, "", ErrRefreshInvalid, nil)
		return ErrRefreshInvalid
	}
	serialHash := internal.Sha256Hash(serial)

	root := serialHash
	entry, err := e.ledgerStore.Find(ctx, serialHash)
	if err == nil && entry.SourceHash != "" {
		root = entry.SourceHash
	}

	if _, err := e.ledgerStore.RevokeFamily(ctx, root); err != nil {
		e.emitAudit(ctx, auditEventLogout, false, 0, serialHash, err, nil)
		return errors.Join(ErrLedgerUnavailable, err)
	}
	if err := e.ledgerStore.RevokeSerial(ctx, serialHash); err != nil {
		e.emitAudit(ctx, auditEventLogout, false, 0, serialHash, err, nil)
		return errors.Join(ErrLedgerUnavailable, err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventLogout, true, 0, serialHash, nil, nil)

	return nil
}

// LogoutEverywhere revokes every outstanding token pair for a user and
// returns the number of revoked entries. Access tokens already in the wild
// die at their ledger-membership check.
//
// LogoutEverywhere may return an error when input validation, dependency calls, or security checks fail.
// LogoutEverywhere does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutEverywhere(ctx context.Context, userID int64) (int, error) {
	revoked, err := e.ledgerStore.RevokeAllForUser(ctx, userID)
	if err == nil {
		e.metricInc(MetricLogoutAll)
		if revoked > 0 {
			e.metricInc(MetricTokenRevoked)
		}
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, userID, "", err, func() map[string]string {
		return map[string]string{
			"revoked": strconv.Itoa(revoked),
		}
	})
	return revoked, err
}

// ActiveTokenCount returns the number of outstanding refresh serials for a user.
func (e *Engine) ActiveTokenCount(ctx context.Context, userID int64) (int, error) {
	return e.ledgerStore.ActiveTokenCount(ctx, userID)
}

// SweepExpired prunes stale ledger index memberships. Intended for a
// periodic maintenance job, not request paths.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	return e.ledgerStore.SweepExpired(ctx)
}

func (e *Engine) maybeTouchActivity(userID int64) {
	if !e.config.Activity.Enabled || e.userProvider == nil {
		return
	}

	now := time.Now()

	e.activityMu.Lock()
	if e.lastTouch == nil {
		e.lastTouch = make(map[int64]time.Time)
	}
	last, seen := e.lastTouch[userID]
	if seen && now.Sub(last) < e.config.Activity.TouchWindow {
		e.activityMu.Unlock()
		return
	}
	e.lastTouch[userID] = now
	e.activityMu.Unlock()

	e.touchWG.Add(1)
	go func() {
		defer e.touchWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.userProvider.UpdateLastActivity(ctx, userID, now); err != nil {
			log.Print("tokengate: last-activity update failed")
			return
		}
		e.metricInc(MetricActivityTouch)
	}()
}
