package refreshclient

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// DefaultSafetyMargin is an exported constant or variable used by the refreshclient engine.
// The refresh call fires this long before the access token expires.
const DefaultSafetyMargin = 3 * time.Second

const minRefreshDelay = 100 * time.Millisecond

var (
	// ErrNoStoredPair is an exported constant or variable used by the refreshclient engine.
	ErrNoStoredPair = errors.New("refreshclient: no stored token pair")
	// ErrSchedulerClosed is an exported constant or variable used by the refreshclient engine.
	ErrSchedulerClosed = errors.New("refreshclient: scheduler closed")
)

// RefreshFunc defines a public type used by refreshclient APIs.
//
// RefreshFunc exchanges the current refresh token for the next pair,
// typically by calling POST /api/account/refreshToken.
type RefreshFunc func(ctx context.Context, refreshToken string) (Pair, error)

// SchedulerConfig defines a public type used by refreshclient APIs.
//
// SchedulerConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SchedulerConfig struct {
	// InstanceID identifies this scheduler in the shared lock record. Each
	// client instance (tab, replica) must use a distinct ID.
	InstanceID string

	// Tokens persists the current pair; shared with sibling instances.
	Tokens TokenStore

	// Locks holds the ownership record sibling instances observe.
	Locks LockStore

	// Refresh performs the rotation call.
	Refresh RefreshFunc

	// Scope selects where rotated pairs are stored.
	Scope StorageScope

	// SafetyMargin overrides [DefaultSafetyMargin] when positive.
	SafetyMargin time.Duration

	// OnPair, when set, is called after every successful rotation.
	OnPair func(Pair)

	// OnError, when set, is called when a scheduled refresh fails.
	OnError func(error)
}

// Scheduler defines a public type used by refreshclient APIs.
//
// Scheduler instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Scheduler struct {
	cfg    SchedulerConfig
	margin time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	lockKey string
	closed  bool
}

// NewScheduler describes the newscheduler operation and its observable behavior.
//
// NewScheduler may return an error when input validation, dependency calls, or security checks fail.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.InstanceID == "" {
		return nil, errors.New("refreshclient: InstanceID is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("refreshclient: Tokens store is required")
	}
	if cfg.Scope == ScopePersistent && cfg.Locks == nil {
		return nil, errors.New("refreshclient: Locks store is required for persistent scope")
	}
	if cfg.Refresh == nil {
		return nil, errors.New("refreshclient: Refresh func is required")
	}

	margin := cfg.SafetyMargin
	if margin <= 0 {
		margin = DefaultSafetyMargin
	}

	return &Scheduler{cfg: cfg, margin: margin}, nil
}

// LockKeyForUser describes the lockkeyforuser operation and its observable behavior.
//
// The lock is scoped per user, not per pair: all instances refreshing tokens
// for the same user contend for one record.
func LockKeyForUser(userID int64) string {
	return "refresh-lock:" + strconv.FormatInt(userID, 10)
}

// Start stores the pair and schedules the first rotation for userID's chain.
// A fresh login always takes lock ownership, even from a live sibling: the
// pair being started is the newest chain, so whoever holds it must drive the
// rotations. Displaced siblings fall back to deferring at their next wake.
//
// Start may return an error when input validation, dependency calls, or security checks fail.
func (s *Scheduler) Start(ctx context.Context, userID int64, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}

	if err := s.cfg.Tokens.SavePair(pair, s.cfg.Scope); err != nil {
		return err
	}

	if s.cfg.Scope == ScopePersistent {
		s.lockKey = LockKeyForUser(userID)
	}
	s.scheduleLocked(ctx, pair.AccessExpiresAt, true)
	return nil
}

// Stop cancels the pending rotation and releases lock ownership so a sibling
// instance can take over. Intended for instance shutdown (tab unload);
// stored tokens survive.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Clear stops the scheduler, releases the lock, and wipes stored tokens.
// Intended for logout.
//
// Clear may return an error when input validation, dependency calls, or security checks fail.
func (s *Scheduler) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return s.cfg.Tokens.ClearPair()
}

// Close permanently shuts the scheduler down. A closed scheduler rejects
// further Start calls.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
}

// Owns reports whether this instance currently owns the refresh lock.
func (s *Scheduler) Owns() bool {
	s.mu.Lock()
	key := s.lockKey
	s.mu.Unlock()
	if key == "" {
		return false
	}

	state, ok, err := s.cfg.Locks.GetLock(key)
	if err != nil || !ok {
		return false
	}
	return state.IsStarted && state.OwnerID == s.cfg.InstanceID
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.lockKey == "" {
		return
	}

	state, ok, err := s.cfg.Locks.GetLock(s.lockKey)
	if err == nil && ok && state.OwnerID == s.cfg.InstanceID {
		_ = s.cfg.Locks.DeleteLock(s.lockKey)
	}
}

// scheduleLocked arms the timer for the next rotation. Callers hold s.mu.
// takeover forces lock ownership (login path); reschedules pass false and
// defer to a live sibling owner.
func (s *Scheduler) scheduleLocked(ctx context.Context, accessExpiresAt time.Time, takeover bool) {
	if s.timer != nil {
		s.timer.Stop()
	}

	owner := s.acquireLock(takeover)

	delay := time.Until(accessExpiresAt) - s.margin
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	if !owner {
		// Deferring instances wake slightly after the owner's slot to pick
		// up the rotated pair from storage, or claim the lock if the owner
		// is gone.
		delay += s.margin
	}

	s.timer = time.AfterFunc(delay, func() {
		s.fire(ctx)
	})
}

// acquireLock claims the shared lock. Without force, a different instance
// holding a started record wins; with force (fresh login) the record is
// overwritten last-writer-wins. Per-instance scope has no shared lock and
// every instance schedules as its own owner.
func (s *Scheduler) acquireLock(force bool) bool {
	if s.lockKey == "" {
		return true
	}

	if !force {
		state, ok, err := s.cfg.Locks.GetLock(s.lockKey)
		if err == nil && ok && state.IsStarted && state.OwnerID != s.cfg.InstanceID {
			return false
		}
	}

	claim := LockState{
		IsStarted:  true,
		OwnerID:    s.cfg.InstanceID,
		AcquiredAt: time.Now(),
	}
	if err := s.cfg.Locks.SetLock(s.lockKey, claim); err != nil {
		return false
	}
	return true
}

func (s *Scheduler) fire(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		s.Stop()
		return
	}

	pair, hasPair, err := s.cfg.Tokens.LoadPair()
	if err != nil || !hasPair {
		s.reportError(ErrNoStoredPair)
		s.Stop()
		return
	}

	if !s.acquireLock(false) {
		// Another instance still owns rotation; reschedule off whatever pair
		// it has stored by the time our next slot comes around.
		s.mu.Lock()
		if !s.closed {
			s.scheduleLocked(ctx, pair.AccessExpiresAt, false)
		}
		s.mu.Unlock()
		return
	}

	next, err := s.cfg.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		s.reportError(err)
		// A failed rotation usually means the chain is dead (revoked or
		// reused). Leave stored tokens alone so the application can decide
		// to clear and re-login.
		s.Stop()
		return
	}

	if err := s.cfg.Tokens.SavePair(next, s.cfg.Scope); err != nil {
		s.reportError(err)
		s.Stop()
		return
	}

	if s.cfg.OnPair != nil {
		s.cfg.OnPair(next)
	}

	s.mu.Lock()
	if !s.closed {
		s.scheduleLocked(ctx, next.AccessExpiresAt, false)
	}
	s.mu.Unlock()
}

func (s *Scheduler) reportError(err error) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}
