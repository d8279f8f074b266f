package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the token engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrEntryNotFound is returned when no ledger entry exists for a serial hash.
var ErrEntryNotFound = errors.New("ledger entry not found")

// ErrSerialConflict is returned when an entry already exists for the serial
// hash being written. Serials are 128-bit random values, so a conflict means
// a caller bug or an attempted replay, never a legitimate collision.
var ErrSerialConflict = errors.New("ledger serial conflict")

// ErrEntryCorrupt is returned when a stored entry blob fails to decode.
var ErrEntryCorrupt = errors.New("ledger entry corrupt")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusConflict int64 = 1
	rotateStatusRotated  int64 = 2
)

const storeEntryScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], "1", "PX", ARGV[4])
redis.call("SADD", KEYS[3], ARGV[2])
redis.call("PEXPIRE", KEYS[3], ARGV[3])
if ARGV[5] == "1" then
  redis.call("SADD", KEYS[4], ARGV[2])
  redis.call("PEXPIRE", KEYS[4], ARGV[3])
end
return 1
`

var storeEntryLua = redis.NewScript(storeEntryScript)

const rotateEntryScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 1
end
redis.call("DEL", KEYS[1])
redis.call("DEL", KEYS[3])
redis.call("SREM", KEYS[5], ARGV[2])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[4])
redis.call("SET", KEYS[4], "1", "PX", ARGV[5])
redis.call("SADD", KEYS[5], ARGV[3])
redis.call("PEXPIRE", KEYS[5], ARGV[4])
redis.call("SADD", KEYS[6], ARGV[3])
redis.call("PEXPIRE", KEYS[6], ARGV[4])
return 2
`

var rotateEntryLua = redis.NewScript(rotateEntryScript)

// Store is a Redis-backed token ledger that handles persistence, expiration,
// per-user indexing, and atomic single-winner refresh rotation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a ledger [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "tg"
	}
	return &Store{redis: redis, prefix: prefix}
}

func (s *Store) entryKey(serialHash string) string {
	return s.prefix + ":rt:" + serialHash
}

func (s *Store) accessKey(userID int64, accessTokenHash string) string {
	return s.prefix + ":at:" + strconv.FormatInt(userID, 10) + ":" + accessTokenHash
}

func (s *Store) userKey(userID int64) string {
	return s.prefix + ":user:" + strconv.FormatInt(userID, 10)
}

func (s *Store) sourceKey(sourceHash string) string {
	return s.prefix + ":src:" + sourceHash
}

// Save persists a new [Entry] under serialHash. The entry key carries the
// refresh TTL so Redis expires spent chains on its own; the paired access
// index key carries the shorter access TTL.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Save(ctx context.Context, serialHash string, e *Entry) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}

	now := time.Now()
	entryTTL := time.Unix(e.RefreshExpiresAt, 0).Sub(now)
	accessTTL := time.Unix(e.AccessExpiresAt, 0).Sub(now)
	if entryTTL <= 0 || accessTTL <= 0 {
		return errors.New("entry already expired")
	}

	hasSource := "0"
	sourceKey := s.sourceKey(serialHash)
	if e.SourceHash != "" {
		hasSource = "1"
		sourceKey = s.sourceKey(e.SourceHash)
	}

	result, err := storeEntryLua.Run(
		ctx,
		s.redis,
		[]string{s.entryKey(serialHash), s.accessKey(e.UserID, e.AccessTokenHash), s.userKey(e.UserID), sourceKey},
		data,
		serialHash,
		entryTTL.Milliseconds(),
		accessTTL.Milliseconds(),
		hasSource,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if result == 0 {
		return ErrSerialConflict
	}

	return nil
}

// Find retrieves an entry by refresh-serial hash. An expired entry is treated
// the same as a missing one.
//
//	Performance: 1 Redis GET.
func (s *Store) Find(ctx context.Context, serialHash string) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.entryKey(serialHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	e, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrEntryCorrupt, err)
	}
	if e.Expired(time.Now()) {
		return nil, ErrEntryNotFound
	}

	return e, nil
}

// Rotate atomically retires the entry under oldSerialHash and writes next
// under newSerialHash. Exactly one concurrent caller wins; the losers see
// [ErrEntryNotFound] because the winner already consumed the old entry.
// oldAccessHash is the access-token hash recorded in the retired entry, so
// its bearer index key is removed in the same script.
//
//	Performance: 1 Lua EVALSHA (atomic consume-and-replace).
func (s *Store) Rotate(ctx context.Context, oldSerialHash, oldAccessHash string, newSerialHash string, next *Entry) error {
	data, err := Encode(next)
	if err != nil {
		return err
	}

	now := time.Now()
	entryTTL := time.Unix(next.RefreshExpiresAt, 0).Sub(now)
	accessTTL := time.Unix(next.AccessExpiresAt, 0).Sub(now)
	if entryTTL <= 0 || accessTTL <= 0 {
		return errors.New("entry already expired")
	}

	result, err := rotateEntryLua.Run(
		ctx,
		s.redis,
		[]string{
			s.entryKey(oldSerialHash),
			s.entryKey(newSerialHash),
			s.accessKey(next.UserID, oldAccessHash),
			s.accessKey(next.UserID, next.AccessTokenHash),
			s.userKey(next.UserID),
			s.sourceKey(next.SourceHash),
		},
		data,
		oldSerialHash,
		newSerialHash,
		entryTTL.Milliseconds(),
		accessTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch result {
	case rotateStatusNotFound:
		return ErrEntryNotFound
	case rotateStatusConflict:
		return ErrSerialConflict
	case rotateStatusRotated:
		return nil
	default:
		return fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// IsAccessTokenValid reports whether an access token with the given hash was
// issued to the user and has not been revoked.
//
//	Performance: 1 Redis EXISTS.
func (s *Store) IsAccessTokenValid(ctx context.Context, userID int64, accessTokenHash string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.accessKey(userID, accessTokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// RevokeSerial removes the entry for one refresh serial along with its access
// index key. Missing entries are not an error; revocation is idempotent.
func (s *Store) RevokeSerial(ctx context.Context, serialHash string) error {
	data, err := s.redis.Get(ctx, s.entryKey(serialHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	e, err := Decode(data)
	if err != nil {
		return errors.Join(ErrEntryCorrupt, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.entryKey(serialHash))
		pipe.Del(ctx, s.accessKey(e.UserID, e.AccessTokenHash))
		pipe.SRem(ctx, s.userKey(e.UserID), serialHash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// RevokeFamily removes every entry whose source is sourceHash. This is the
// replay response: when a spent serial shows up again, the whole chain that
// grew from it is revoked in one sweep.
//
// ATOMICITY NOTE: This operation is NOT fully atomic. It reads the source
// set (SMembers), fetches the member blobs (pipeline GET), then deletes them
// (TxPipelined DEL). An entry rotated into the family between the read and
// delete phases will not be captured by this call; it expires naturally or is
// caught by the next RevokeFamily invocation.
func (s *Store) RevokeFamily(ctx context.Context, sourceHash string) (int, error) {
	sourceKey := s.sourceKey(sourceHash)

	serialHashes, err := s.redis.SMembers(ctx, sourceKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	entries, err := s.fetchEntries(ctx, serialHashes)
	if err != nil {
		return 0, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for serialHash, e := range entries {
			pipe.Del(ctx, s.entryKey(serialHash))
			pipe.Del(ctx, s.accessKey(e.UserID, e.AccessTokenHash))
			pipe.SRem(ctx, s.userKey(e.UserID), serialHash)
		}
		pipe.Del(ctx, sourceKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return len(entries), nil
}

// RevokeAllForUser removes every outstanding entry for a user. Used for
// logout-everywhere and for serial-number invalidation cleanup.
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	userKey := s.userKey(userID)

	serialHashes, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	entries, err := s.fetchEntries(ctx, serialHashes)
	if err != nil {
		return 0, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for serialHash, e := range entries {
			pipe.Del(ctx, s.entryKey(serialHash))
			pipe.Del(ctx, s.accessKey(e.UserID, e.AccessTokenHash))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return len(entries), nil
}

// ActiveTokenCount returns the number of tracked refresh serials for a user.
func (s *Store) ActiveTokenCount(ctx context.Context, userID int64) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// SweepExpired prunes index-set members whose entry keys have already been
// expired by Redis. Entry and access keys expire on their own; only the set
// memberships can go stale. This is an admin/maintenance O(n) operation and
// must not be used in request hot paths.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	removed := 0
	for _, pattern := range []string{s.prefix + ":user:*", s.prefix + ":src:*"} {
		n, err := s.sweepSets(ctx, pattern)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func (s *Store) sweepSets(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, setKey := range keys {
			members, err := s.redis.SMembers(ctx, setKey).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}

			for _, serialHash := range members {
				exists, err := s.redis.Exists(ctx, s.entryKey(serialHash)).Result()
				if err != nil {
					return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
				if exists == 0 {
					if err := s.redis.SRem(ctx, setKey, serialHash).Err(); err != nil {
						return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
					}
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) fetchEntries(ctx context.Context, serialHashes []string) (map[string]*Entry, error) {
	entries := make(map[string]*Entry, len(serialHashes))
	if len(serialHashes) == 0 {
		return entries, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(serialHashes))
	for i, serialHash := range serialHashes {
		cmds[i] = pipe.Get(ctx, s.entryKey(serialHash))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		e, decErr := Decode(data)
		if decErr != nil {
			return nil, errors.Join(ErrEntryCorrupt, decErr)
		}
		entries[serialHashes[i]] = e
	}

	return entries, nil
}
