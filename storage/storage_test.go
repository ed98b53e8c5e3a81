package storage

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
)

// fakeCAS is a map-backed CAS whose reads can be forced to fail.
type fakeCAS struct {
	mu      sync.Mutex
	objects map[cid.Cid][]byte
	getErr  error
	putID   cid.Cid
	gets    int
}

func newFake() *fakeCAS { return &fakeCAS{objects: map[cid.Cid][]byte{}} }

func (f *fakeCAS) Put(_ context.Context, data []byte, _ string) (cid.Cid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.putID
	if !id.Defined() {
		var err error
		if id, err = cidutil.CIDv1RawSHA256CID(data); err != nil {
			return cid.Undef, err
		}
	}
	f.objects[id] = bytes.Clone(data)
	return id, nil
}

func (f *fakeCAS) Get(_ context.Context, id cid.Cid) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(b), nil
}

func (f *fakeCAS) Has(_ context.Context, id cid.Cid) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[id]
	return ok
}

func seed(t *testing.T, f *fakeCAS, data string) cid.Cid {
	t.Helper()
	id, err := f.Put(context.Background(), []byte(data), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	return id
}

func TestMultiCASFallsBackInOrder(t *testing.T) {
	primary, fallback := newFake(), newFake()
	primary.getErr = ErrGatewayTimeout
	id := seed(t, fallback, "hello")

	got, err := MultiCAS{Adapters: []CAS{primary, fallback}}.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
	if primary.gets != 1 || fallback.gets != 1 {
		t.Fatalf("expected one read per adapter, got %d and %d", primary.gets, fallback.gets)
	}
}

func TestMultiCASFinalError(t *testing.T) {
	id, _ := cidutil.CIDv1RawSHA256CID([]byte("missing"))

	_, err := MultiCAS{Adapters: []CAS{newFake(), newFake()}}.Get(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("all not-found: expected ErrNotFound, got %v", err)
	}

	down := newFake()
	down.getErr = ErrUnavailable
	_, err = MultiCAS{Adapters: []CAS{down, newFake()}}.Get(context.Background(), id)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected the infrastructure error to win over not-found, got %v", err)
	}
}

func TestMultiCASMaxAttempts(t *testing.T) {
	primary, fallback := newFake(), newFake()
	primary.getErr = ErrGatewayTimeout
	id := seed(t, fallback, "hello")

	_, err := MultiCAS{Adapters: []CAS{primary, fallback}, MaxAttempts: 1}.Get(context.Background(), id)
	if !errors.Is(err, ErrGatewayTimeout) {
		t.Fatalf("expected ErrGatewayTimeout, got %v", err)
	}
	if fallback.gets != 0 {
		t.Fatalf("fallback read %d times past the attempt bound", fallback.gets)
	}
	if (MultiCAS{Adapters: []CAS{primary, fallback}, MaxAttempts: 1}).Has(context.Background(), id) {
		t.Fatal("Has looked past the attempt bound")
	}
}

func TestMultiCASStopsOnCancel(t *testing.T) {
	a := newFake()
	id := seed(t, a, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := MultiCAS{Adapters: []CAS{a}}.Get(ctx, id)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if a.gets != 0 {
		t.Fatal("read attempted after cancellation")
	}
}

func TestMultiCASPutAndInvalid(t *testing.T) {
	a, b := newFake(), newFake()
	m := MultiCAS{Adapters: []CAS{a, b}}
	id, err := m.Put(context.Background(), []byte("doc"), "doc")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !a.Has(context.Background(), id) || b.Has(context.Background(), id) {
		t.Fatal("Put must write to the first adapter only")
	}
	if _, err := m.Get(context.Background(), cid.Undef); !errors.Is(err, ErrInvalidCID) {
		t.Fatalf("expected ErrInvalidCID, got %v", err)
	}
	if _, err := (MultiCAS{}).Put(context.Background(), nil, ""); err == nil {
		t.Fatal("expected error with no adapters")
	}
}

func TestReplicatingCASDetectsMismatch(t *testing.T) {
	a, b := newFake(), newFake()
	r := ReplicatingCAS{Backends: []NamedCAS{{Name: "a", CAS: a}, {Name: "b", CAS: b}}}
	id, all, err := r.PutAll(context.Background(), []byte("same"), "")
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if all["a"] != id || all["b"] != id {
		t.Fatalf("per-backend ids %v, want %s", all, id)
	}

	b.putID, _ = cidutil.CIDv1RawSHA256CID([]byte("other"))
	if _, err := r.Put(context.Background(), []byte("next"), ""); !errors.Is(err, ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestClientPublishAndFetch(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	c := NewClient(f, nil)

	id, err := c.PublishJSON(ctx, map[string]string{"url": "a<b>&c"}, "descriptor")
	if err != nil {
		t.Fatalf("PublishJSON: %v", err)
	}
	got, err := c.Fetch(ctx, id)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if want := `{"url":"a<b>&c"}`; string(got) != want {
		t.Fatalf("canonical bytes %q, want %q", got, want)
	}

	f.getErr = ErrGatewayTimeout
	if _, err := c.Fetch(ctx, id); !errors.IsKind(err, errors.KindGatewayTimeout) {
		t.Fatalf("expected GatewayTimeout kind, got %v", err)
	}
	if _, err := c.Fetch(ctx, cid.Undef); !errors.Is(err, ErrInvalidCID) {
		t.Fatalf("expected ErrInvalidCID, got %v", err)
	}
	var nilClient *Client
	if _, err := nilClient.PublishBlob(ctx, nil, ""); !errors.IsKind(err, errors.KindInternal) {
		t.Fatalf("expected Internal for a nil client, got %v", err)
	}
}
