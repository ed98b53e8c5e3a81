package pinata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/casregistry"
	"docanchor.dev/docanchor/storage/testkit"
)

// fakePinata stores uploads in memory and serves them at /ipfs/<cid>.
type fakePinata struct {
	objects map[string][]byte
	names   map[string]string
	status  int
	calls   atomic.Int32
}

func (f *fakePinata) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == pinFilePath:
		f.calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer test-jwt" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(file)
		id, _ := cidutil.CIDv1RawSHA256CID(b)
		_, dup := f.objects[id.String()]
		f.objects[id.String()] = b
		f.names[id.String()] = hdr.Filename
		_ = json.NewEncoder(w).Encode(PinResponse{IpfsHash: id.String(), PinSize: len(b), IsDuplicate: dup})
	case len(r.URL.Path) > len("/ipfs/"):
		b, ok := f.objects[r.URL.Path[len("/ipfs/"):]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(b)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFake(t *testing.T) (*fakePinata, *CAS) {
	t.Helper()
	f := &fakePinata{objects: map[string][]byte{}, names: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New(Options{JWT: "test-jwt", APIURL: srv.URL, GatewayURLs: []string{srv.URL}, HTTPClient: srv.Client(), Retries: -1})
	require.NoError(t, err)
	return f, c
}

func TestPinata_Conformance(t *testing.T) {
	testkit.RunCASConformanceWith(t, func(t *testing.T) storage.CAS {
		_, c := newFake(t)
		return c
	}, testkit.Options{ForeignCIDs: true})
}

func TestPinata_LabelBecomesFileName(t *testing.T) {
	f, c := newFake(t)
	id, err := c.Put(context.Background(), []byte("%PDF-1.7"), "diploma.pdf")
	require.NoError(t, err)
	assert.Equal(t, "diploma.pdf", f.names[id.String()])
}

func TestPinata_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   errors.Kind
	}{
		{http.StatusPaymentRequired, errors.KindQuotaExceeded},
		{http.StatusTooManyRequests, errors.KindQuotaExceeded},
		{http.StatusServiceUnavailable, errors.KindStoreUnavailable},
		{http.StatusGatewayTimeout, errors.KindGatewayTimeout},
	}
	for _, tc := range cases {
		f, c := newFake(t)
		f.status = tc.status
		_, err := c.Put(context.Background(), []byte("x"), "x")
		assert.Equal(t, tc.kind, errors.KindOf(err), "status %d: %v", tc.status, err)
	}
}

func TestPinata_RejectedCredentials(t *testing.T) {
	f := &fakePinata{objects: map[string][]byte{}, names: map[string]string{}}
	srv := httptest.NewServer(f)
	defer srv.Close()
	c, err := New(Options{JWT: "wrong", APIURL: srv.URL, GatewayURLs: []string{srv.URL}, HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = c.Put(context.Background(), []byte("x"), "x")
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestPinata_RequiresJWT(t *testing.T) {
	_, _, err := casregistry.OpenWithConfig("pinata", casregistry.UsageDaemon, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInput))
}

func TestPinata_ReadFallsBackToSecondGateway(t *testing.T) {
	f := &fakePinata{objects: map[string][]byte{}, names: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	var primaryHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	t.Cleanup(primary.Close)

	c, err := New(Options{JWT: "test-jwt", APIURL: srv.URL, GatewayURLs: []string{primary.URL, srv.URL}, HTTPClient: srv.Client(), Retries: -1})
	require.NoError(t, err)
	ctx := context.Background()
	id, err := c.Put(ctx, []byte("sealed diploma"), "diploma.pdf.enc")
	require.NoError(t, err)

	got, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed diploma"), got)
	assert.Equal(t, int32(1), primaryHits.Load())
	assert.True(t, c.Has(ctx, id))
}

func TestPinata_ReadStopsAfterAttemptBound(t *testing.T) {
	f := &fakePinata{objects: map[string][]byte{}, names: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	var hits atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	t.Cleanup(down.Close)

	c, err := New(Options{
		JWT:         "test-jwt",
		APIURL:      srv.URL,
		GatewayURLs: []string{down.URL, down.URL, srv.URL},
		HTTPClient:  srv.Client(),
		Retries:     -1,
	})
	require.NoError(t, err)
	id, err := c.Put(context.Background(), []byte("x"), "x")
	require.NoError(t, err)

	_, err = c.Get(context.Background(), id)
	assert.True(t, errors.IsKind(err, errors.KindGatewayTimeout), "got %v", err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestPinata_RegistryGatewayOptions(t *testing.T) {
	f := &fakePinata{objects: map[string][]byte{}, names: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(down.Close)

	cas, _, err := casregistry.OpenWithConfig("pinata", casregistry.UsageDaemon, casregistry.Config{
		"pinata-jwt":          "test-jwt",
		"pinata-api-url":      srv.URL,
		"pinata-gateway-urls": down.URL + ", " + srv.URL,
	})
	require.NoError(t, err)
	id, err := cas.Put(context.Background(), []byte("doc"), "doc")
	require.NoError(t, err)
	got, err := cas.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), got)

	_, _, err = casregistry.OpenWithConfig("pinata", casregistry.UsageDaemon, casregistry.Config{
		"pinata-jwt":              "test-jwt",
		"pinata-gateway-attempts": "two",
	})
	assert.True(t, errors.IsKind(err, errors.KindInput))
}

func TestPinata_DefaultGateways(t *testing.T) {
	r, err := newReader(Options{})
	require.NoError(t, err)
	assert.Len(t, r.Adapters, len(DefaultGatewayURLs))
	assert.Equal(t, DefaultGatewayAttempts, r.MaxAttempts)

	r, err = newReader(Options{GatewayURLs: []string{"https://a.example", "https://b.example", "https://c.example"}, GatewayAttempts: -1})
	require.NoError(t, err)
	assert.Zero(t, r.MaxAttempts)

	_, err = newReader(Options{GatewayURLs: []string{"ftp://nope"}})
	assert.True(t, errors.IsKind(err, errors.KindInput))
}
