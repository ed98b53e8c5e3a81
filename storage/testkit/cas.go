package testkit

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

// Options relaxes checks that only hold for some backends.
type Options struct {
	// ForeignCIDs is set for backends that assign their own identifiers
	// (pinning services wrap files in dag-pb), so Put is not expected to
	// return the raw sha2-256 CID.
	ForeignCIDs bool
}

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	RunCASConformanceWith(t, newCAS, Options{})
}

func RunCASConformanceWith(t *testing.T, newCAS NewCAS, opts Options) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("hello, certificate store")

		id, err := cas.Put(ctx, want, "roundtrip.txt")
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !opts.ForeignCIDs {
			wantID, err := cidutil.CIDv1RawSHA256CID(want)
			if err != nil {
				t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
			}
			if id != wantID {
				t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
			}
		}

		got, err := cas.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(ctx, b, "a")
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(ctx, b, "b")
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}

		if cas.Has(ctx, id) {
			t.Fatalf("Has returned true for missing CID")
		}
		_, err = cas.Get(ctx, id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		got, err := cas.Put(ctx, b, "missing.txt")
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(ctx, got) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if cas.Has(ctx, undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})

	t.Run("CanceledContext", func(t *testing.T) {
		cas := newCAS(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := cas.Put(cctx, []byte("never"), "never"); err == nil {
			t.Fatalf("Put should fail on a canceled context")
		}
	})
}
