package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/memcas"
)

// serve mounts a memcas behind a fake gateway. status overrides the response
// code when non-zero.
func serve(t *testing.T, mem *memcas.CAS, status *int) *CAS {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != nil && *status != 0 {
			w.WriteHeader(*status)
			return
		}
		id, err := cid.Decode(strings.TrimPrefix(r.URL.Path, "/ipfs/"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, err := mem.Get(r.Context(), id)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c
}

func TestGateway_GetAndHas(t *testing.T) {
	ctx := context.Background()
	mem := memcas.New()
	id, err := mem.Put(ctx, []byte("through the gateway"), "")
	require.NoError(t, err)

	c := serve(t, mem, nil)
	b, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "through the gateway", string(b))
	assert.True(t, c.Has(ctx, id))

	missing, _ := cidutil.CIDv1RawSHA256CID([]byte("nope"))
	_, err = c.Get(ctx, missing)
	assert.True(t, storage.IsNotFound(err))
	assert.False(t, c.Has(ctx, missing))
}

func TestGateway_DetectsTamperedRawObject(t *testing.T) {
	ctx := context.Background()
	mem := memcas.New()
	id, err := mem.Put(ctx, []byte("original"), "")
	require.NoError(t, err)
	mem.Replace(id, []byte("tampered"))

	_, err = serve(t, mem, nil).Get(ctx, id)
	assert.True(t, errors.Is(err, storage.ErrCIDMismatch), "got %v", err)
}

func TestGateway_StatusClassification(t *testing.T) {
	ctx := context.Background()
	id, _ := cidutil.CIDv1RawSHA256CID([]byte("x"))

	cases := []struct {
		status int
		kind   errors.Kind
	}{
		{http.StatusGatewayTimeout, errors.KindGatewayTimeout},
		{http.StatusTooManyRequests, errors.KindQuotaExceeded},
		{http.StatusBadGateway, errors.KindStoreUnavailable},
		{http.StatusInternalServerError, errors.KindStoreUnavailable},
		{http.StatusNotFound, errors.KindNotFound},
	}
	status := 0
	c := serve(t, memcas.New(), &status)
	for _, tc := range cases {
		status = tc.status
		_, err := c.Get(ctx, id)
		assert.Equal(t, tc.kind, errors.KindOf(err), "status %d", tc.status)
	}
}

func TestGateway_ClientTimeoutIsGatewayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, HTTPClient: srv.Client()})
	require.NoError(t, err)
	id, _ := cidutil.CIDv1RawSHA256CID([]byte("slow"))
	_, err = c.Get(context.Background(), id)
	assert.Equal(t, errors.KindGatewayTimeout, errors.KindOf(err), "got %v", err)
}

func TestGateway_FallbackAcrossGateways(t *testing.T) {
	ctx := context.Background()
	mem := memcas.New()
	id, err := mem.Put(ctx, []byte("fallback"), "")
	require.NoError(t, err)

	down := http.StatusBadGateway
	first := serve(t, memcas.New(), &down)
	second := serve(t, mem, nil)

	b, err := storage.MultiCAS{Adapters: []storage.CAS{first, second}}.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "fallback", string(b))

	_, err = storage.MultiCAS{Adapters: []storage.CAS{first, second}, MaxAttempts: 1}.Get(ctx, id)
	assert.True(t, errors.Retryable(err))
}

func TestGateway_ReadOnlyAndValidation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "ftp://example"})
	assert.Error(t, err)

	c, err := New(Options{BaseURL: "https://ipfs.io"})
	require.NoError(t, err)
	_, err = c.Put(context.Background(), []byte("x"), "")
	assert.True(t, errors.Is(err, storage.ErrReadOnly))
}
