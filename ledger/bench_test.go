package ledger

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchStore(b *testing.B) *Store {
	b.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "tg")
}

func benchEntry(userID int64, accessHash, sourceHash string) *Entry {
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

func BenchmarkRotate(b *testing.B) {
	store := newBenchStore(b)
	ctx := context.Background()

	serial := "serial-0"
	access := "access-0"
	if err := store.Save(ctx, serial, benchEntry(1, access, "")); err != nil {
		b.Fatalf("seed save: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		nextSerial := "serial-" + strconv.Itoa(i+1)
		nextAccess := "access-" + strconv.Itoa(i+1)
		if err := store.Rotate(ctx, serial, access, nextSerial, benchEntry(1, nextAccess, serial)); err != nil {
			b.Fatalf("rotate %d: %v", i, err)
		}
		serial, access = nextSerial, nextAccess
	}
}

func BenchmarkLedgerLookup(b *testing.B) {
	store := newBenchStore(b)
	ctx := context.Background()

	if err := store.Save(ctx, "serial-0", benchEntry(1, "access-0", "")); err != nil {
		b.Fatalf("seed save: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		live, err := store.IsAccessTokenValid(ctx, 1, "access-0")
		if err != nil {
			b.Fatalf("lookup: %v", err)
		}
		if !live {
			b.Fatal("expected live access token")
		}
	}
}
