package refreshclient

import (
	"sync"
	"time"
)

// StorageScope defines a public type used by refreshclient APIs.
//
// StorageScope instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StorageScope int

const (
	// ScopePersistent is an exported constant or variable used by the refreshclient engine.
	// Tokens in persistent scope are visible to every client instance
	// sharing the store.
	ScopePersistent StorageScope = iota
	// ScopePerInstance is an exported constant or variable used by the refreshclient engine.
	// Tokens in per-instance scope die with the instance that saved them.
	ScopePerInstance
)

// Pair defines a public type used by refreshclient APIs.
//
// Pair instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenStore defines a public type used by refreshclient APIs.
type TokenStore interface {
	SavePair(pair Pair, scope StorageScope) error
	LoadPair() (Pair, bool, error)
	ClearPair() error
}

// LockState defines a public type used by refreshclient APIs.
//
// LockState instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockState struct {
	IsStarted  bool
	OwnerID    string
	AcquiredAt time.Time
}

// LockStore defines a public type used by refreshclient APIs.
type LockStore interface {
	GetLock(key string) (LockState, bool, error)
	SetLock(key string, state LockState) error
	DeleteLock(key string) error
}

// MemoryStore defines a public type used by refreshclient APIs.
//
// MemoryStore implements both [TokenStore] and [LockStore] in process memory.
// Instances sharing one MemoryStore observe each other's persistent-scope
// pairs the way browser tabs observe shared localStorage; per-instance pairs
// belong to whichever instance owns the store, so per-instance isolation
// means giving each instance its own MemoryStore.
type MemoryStore struct {
	mu    sync.RWMutex
	pairs map[StorageScope]Pair
	has   map[StorageScope]bool
	locks map[string]LockState
}

// NewMemoryStore describes the newmemorystore operation and its observable behavior.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pairs: make(map[StorageScope]Pair),
		has:   make(map[StorageScope]bool),
		locks: make(map[string]LockState),
	}
}

// SavePair describes the savepair operation and its observable behavior.
func (s *MemoryStore) SavePair(pair Pair, scope StorageScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[scope] = pair
	s.has[scope] = true
	return nil
}

// LoadPair describes the loadpair operation and its observable behavior.
// A per-instance pair shadows the persistent one, mirroring sessionStorage
// taking precedence over localStorage.
func (s *MemoryStore) LoadPair() (Pair, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.has[ScopePerInstance] {
		return s.pairs[ScopePerInstance], true, nil
	}
	if s.has[ScopePersistent] {
		return s.pairs[ScopePersistent], true, nil
	}
	return Pair{}, false, nil
}

// ClearPair describes the clearpair operation and its observable behavior.
func (s *MemoryStore) ClearPair() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = make(map[StorageScope]Pair)
	s.has = make(map[StorageScope]bool)
	return nil
}

// GetLock describes the getlock operation and its observable behavior.
func (s *MemoryStore) GetLock(key string) (LockState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.locks[key]
	return state, ok, nil
}

// SetLock describes the setlock operation and its observable behavior.
func (s *MemoryStore) SetLock(key string, state LockState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[key] = state
	return nil
}

// DeleteLock describes the deletelock operation and its observable behavior.
func (s *MemoryStore) DeleteLock(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}
