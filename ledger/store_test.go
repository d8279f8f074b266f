package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLedgerStoreTest(t *testing.T) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "tg")
	return store, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testEntry(userID int64, accessHash, sourceHash string) *Entry {
	now := time.Now()
	return &Entry{
		UserID:           userID,
		AccessTokenHash:  accessHash,
		SourceHash:       sourceHash,
		CreatedAt:        now.Unix(),
		AccessExpiresAt:  now.Add(2 * time.Minute).Unix(),
		RefreshExpiresAt: now.Add(time.Hour).Unix(),
	}
}

func TestSaveAndFindRoundTrip(t *testing.T) {
	store, _, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	entry := testEntry(1, "access-1", "")
	if err := store.Save(ctx, "serial-1", entry); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Find(ctx, "serial-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.UserID != entry.UserID {
		t.Fatalf("expected user %d, got %d", entry.UserID, got.UserID)
	}
	if got.AccessTokenHash != entry.AccessTokenHash {
		t.Fatalf("expected access hash %q, got %q", entry.AccessTokenHash, got.AccessTokenHash)
	}
	if got.SourceHash != "" {
		t.Fatalf("expected empty source hash, got %q", got.SourceHash)
	}
}

func TestSaveRejectsDuplicateSerial(t *testing.T) {
	store, _, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, "serial-dup", testEntry(1, "access-1", "")); err != nil {
		t.Fatalf("first save: %v", err)
	}
	err := store.Save(ctx, "serial-dup", testEntry(1, "access-2", ""))
	if !errors.Is(err, ErrSerialConflict) {
		t.Fatalf("expected serial conflict, got %v", err)
	}
}

func TestFindMissingAndCorrupt(t *testing.T) {
	store, rdb, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	if _, err := store.Find(ctx, "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected not-found sentinel, got %v", err)
	}

	if err := rdb.Set(ctx, store.entryKey("corrupt"), []byte("bad"), time.Hour).Err(); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}
	if _, err := store.Find(ctx, "corrupt"); !errors.Is(err, ErrEntryCorrupt) {
		t.Fatalf("expected corrupt sentinel, got %v", err)
	}
}

func TestRotateConsumesOldEntry(t *testing.T) {
	store, _, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, "serial-a", testEntry(1, "access-a", "")); err != nil {
		t.Fatalf("save: %v", err)
	}

	next := testEntry(1, "access-b", "serial-a")
	if err := store.Rotate(ctx, "serial-a", "access-a", "serial-b", next); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if _, err := store.Find(ctx, "serial-a"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected old entry consumed, got %v", err)
	}
	got, err := store.Find(ctx, "serial-b")
	if err != nil {
		t.Fatalf("find rotated: %v", err)
	}
	if got.SourceHash != "serial-a" {
		t.Fatalf("expected source serial-a, got %q", got.SourceHash)
	}

	oldValid, err := store.IsAccessTokenValid(ctx, 1, "access-a")
	if err != nil {
		t.Fatalf("access check: %v", err)
	}
	if oldValid {
		t.Fatal("expected retired access token to be invalid")
	}
	newValid, err := store.IsAccessTokenValid(ctx, 1, "access-b")
	if err != nil {
		t.Fatalf("access check: %v", err)
	}
	if !newValid {
		t.Fatal("expected rotated access token to be valid")
	}
}

func TestRotateMissingEntry(t *testing.T) {
	store, _, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	err := store.Rotate(ctx, "never-existed", "access-x", "serial-y", testEntry(1, "access-y", "never-existed"))
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected not-found sentinel, got %v", err)
	}
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	store, _, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, "serial-race", testEntry(1, "access-race", "")); err != nil {
		t.Fatalf("save: %v", err)
	}

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := testEntry(1, "access-next", "serial-race")
			serial := "serial-next-" + string(rune('a'+i))
			if err := store.Rotate(ctx, "serial-race", "access-race", serial, next); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", wins)
	}
}

func TestRevokeSerialIdempotent(t *testing.T) {
	store, rdb, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, "serial-r", testEntry(7, "access-r", "")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.RevokeSerial(ctx, "serial-r"); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if err := store.RevokeSerial(ctx, "serial-r"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	if _, err := store.Find(ctx, "serial-r"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected entry gone, got %v", err)
	}
	valid, err := store.IsAccessTokenValid(ctx, 7, "access-r")
	if err != nil {
		t.Fatalf("access check: %v", err)
	}
	if valid {
		t.Fatal("expected access token revoked")
	}

	members, err := rdb.SMembers(ctx, store.userKey(7)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty user index, got %v", members)
	}
}

func TestRevokeFamilySweepsChain(t *testing.T) {
	store, _, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	// serial-root spawned two generations, each pointing at the same root.
	if err := store.Save(ctx, "serial-root", testEntry(3, "access-0", "")); err != nil {
		t.Fatalf("save root: %v", err)
	}
	if err := store.Rotate(ctx, "serial-root", "access-0", "serial-g1", testEntry(3, "access-1", "serial-root")); err != nil {
		t.Fatalf("rotate g1: %v", err)
	}
	if err := store.Rotate(ctx, "serial-g1", "access-1", "serial-g2", testEntry(3, "access-2", "serial-root")); err != nil {
		t.Fatalf("rotate g2: %v", err)
	}

	revoked, err := store.RevokeFamily(ctx, "serial-root")
	if err != nil {
		t.Fatalf("revoke family: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("expected 1 live descendant revoked, got %d", revoked)
	}

	if _, err := store.Find(ctx, "serial-g2"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected descendant revoked, got %v", err)
	}
	valid, err := store.IsAccessTokenValid(ctx, 3, "access-2")
	if err != nil {
		t.Fatalf("access check: %v", err)
	}
	if valid {
		t.Fatal("expected descendant access token revoked")
	}
}

func TestRevokeFamilyEmpty(t *testing.T) {
	store, _, done := newLedgerStoreTest(t)
	defer done()

	revoked, err := store.RevokeFamily(context.Background(), "no-such-chain")
	if err != nil {
		t.Fatalf("revoke empty family: %v", err)
	}
	if revoked != 0 {
		t.Fatalf("expected zero revocations, got %d", revoked)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	store, _, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, "serial-u1", testEntry(9, "access-u1", "")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "serial-u2", testEntry(9, "access-u2", "")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "serial-other", testEntry(10, "access-o", "")); err != nil {
		t.Fatalf("save: %v", err)
	}

	count, err := store.ActiveTokenCount(ctx, 9)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active serials, got %d", count)
	}

	revoked, err := store.RevokeAllForUser(ctx, 9)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("expected 2 revoked, got %d", revoked)
	}

	count, err = store.ActiveTokenCount(ctx, 9)
	if err != nil {
		t.Fatalf("count after revoke: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 active serials, got %d", count)
	}

	// Unrelated user untouched.
	if _, err := store.Find(ctx, "serial-other"); err != nil {
		t.Fatalf("expected unrelated entry to survive, got %v", err)
	}
}

func TestSweepExpiredPrunesStaleIndexMembers(t *testing.T) {
	store, rdb, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, "serial-s1", testEntry(5, "access-s1", "")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "serial-s2", testEntry(5, "access-s2", "")); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Simulate Redis expiring one entry key out from under the index set.
	if err := rdb.Del(ctx, store.entryKey("serial-s1")).Err(); err != nil {
		t.Fatalf("del: %v", err)
	}

	removed, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 stale member removed, got %d", removed)
	}

	count, err := store.ActiveTokenCount(ctx, 5)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 live serial after sweep, got %d", count)
	}
}

func TestEntryTTLFollowsRefreshExpiry(t *testing.T) {
	store, rdb, done := newLedgerStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, "serial-ttl", testEntry(2, "access-ttl", "")); err != nil {
		t.Fatalf("save: %v", err)
	}

	entryTTL := rdb.PTTL(ctx, store.entryKey("serial-ttl")).Val()
	accessTTL := rdb.PTTL(ctx, store.accessKey(2, "access-ttl")).Val()
	if entryTTL <= 0 || accessTTL <= 0 {
		t.Fatalf("expected positive TTLs, got entry=%v access=%v", entryTTL, accessTTL)
	}
	if accessTTL >= entryTTL {
		t.Fatalf("expected access TTL shorter than entry TTL, got entry=%v access=%v", entryTTL, accessTTL)
	}
}
