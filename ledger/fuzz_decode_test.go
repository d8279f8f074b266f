package ledger

import (
	"testing"
)

// FuzzEntryDecode exercises the binary entry decoder with arbitrary inputs.
// Goal: no panics, no unexpected nil dereferences, graceful error handling.
func FuzzEntryDecode(f *testing.F) {
	// Seed with a valid v1 encoded entry.
	entry := &Entry{
		UserID:           42,
		AccessTokenHash:  "sha256-access-hash",
		SourceHash:       "sha256-source-hash",
		CreatedAt:        1700000000,
		AccessExpiresAt:  1700000120,
		RefreshExpiresAt: 1700003600,
	}
	encoded, err := Encode(entry)
	if err == nil {
		f.Add(encoded)
	}

	// Empty and short inputs.
	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1})
	f.Add([]byte{255, 255, 255})

	// Truncated at various offsets.
	if len(encoded) > 10 {
		f.Add(encoded[:10])
	}
	if len(encoded) > 20 {
		f.Add(encoded[:20])
	}

	// Length byte that overruns the remaining data.
	f.Add([]byte{1, 0, 0, 0, 0, 0, 0, 0, 42, 200, 'x'})

	f.Fuzz(func(t *testing.T, data []byte) {
		// Must not panic. Errors are expected for malformed input.
		e, err := Decode(data)
		if err != nil {
			return
		}

		// If decode succeeded, re-encode should not panic either.
		_, _ = Encode(e)
	})
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	entry := &Entry{UserID: 1, CreatedAt: 1, AccessExpiresAt: 2, RefreshExpiresAt: 3}
	encoded, err := Encode(entry)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	encoded[0] = 99
	if _, err := Decode(encoded); err == nil {
		t.Fatal("expected version error, got nil")
	}
}

func TestEncodeRejectsOversizedHash(t *testing.T) {
	big := make([]byte, 300)
	for i := range big {
		big[i] = 'a'
	}

	if _, err := Encode(&Entry{AccessTokenHash: string(big)}); err == nil {
		t.Fatal("expected oversized access hash error, got nil")
	}
	if _, err := Encode(&Entry{SourceHash: string(big)}); err == nil {
		t.Fatal("expected oversized source hash error, got nil")
	}
}
