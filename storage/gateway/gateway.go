// Package gateway reads content through an HTTP IPFS gateway
// (GET <base>/ipfs/<cid>). It is read-only.
package gateway

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/casregistry"
)

// DefaultMaxBytes caps a single fetched object.
const DefaultMaxBytes = 64 << 20

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "gateway",
		Description: "Read-only HTTP IPFS gateway",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: []casregistry.Option{
			{Key: "gateway-url", Usage: "Gateway base URL, e.g. https://ipfs.io (for --backend=gateway)"},
			{Key: "gateway-timeout", Usage: "Per-request timeout, e.g. 15s (for --backend=gateway)"},
		},
		Open: func(cfg casregistry.Config) (storage.CAS, func() error, error) {
			opts := Options{BaseURL: cfg.Get("gateway-url", "")}
			if s := cfg.Get("gateway-timeout", ""); s != "" {
				d, err := time.ParseDuration(s)
				if err != nil {
					return nil, nil, errors.Input("invalid gateway-timeout %q", s)
				}
				opts.Timeout = d
			}
			c, err := New(opts)
			return c, nil, err
		},
	})
}

type Options struct {
	BaseURL string
	// Timeout bounds each request; 0 means 30s.
	Timeout time.Duration
	// Retries on connection errors and 5xx. Zero leaves fallback to the
	// caller's gateway list.
	Retries  int
	MaxBytes int64
	// HTTPClient overrides the underlying transport client (tests).
	HTTPClient *http.Client
	Log        *zap.SugaredLogger
}

// CAS fetches objects from one gateway.
type CAS struct {
	base     string
	maxBytes int64
	http     *retryablehttp.Client
	log      *zap.SugaredLogger
}

var _ storage.CAS = (*CAS)(nil)

func New(opts Options) (*CAS, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.Input("gateway: base URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, errors.Input("gateway: base URL must be http(s): %q", base)
	}
	max := opts.MaxBytes
	if max <= 0 {
		max = DefaultMaxBytes
	}
	return &CAS{
		base:     base,
		maxBytes: max,
		http:     NewHTTPClient(opts.HTTPClient, opts.Timeout, opts.Retries),
		log:      logger.Or(opts.Log),
	}, nil
}

// NewHTTPClient builds the retrying client shared by the HTTP backends.
// Retries apply to connection failures and 5xx responses other than 501.
func NewHTTPClient(base *http.Client, timeout time.Duration, retries int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	if base != nil {
		c.HTTPClient = base
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c.HTTPClient.Timeout = timeout
	c.RetryMax = retries
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.Logger = nil
	// Hand the final response to the caller so status codes can be classified.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// URL returns the gateway address for id.
func (c *CAS) URL(id cid.Cid) string {
	return c.base + "/ipfs/" + id.String()
}

func (c *CAS) Put(context.Context, []byte, string) (cid.Cid, error) {
	return cid.Undef, storage.ErrReadOnly
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.URL(id), nil)
	if err != nil {
		return nil, errors.WrapKind(errors.KindInternal, "gateway: build request", err)
	}
	resp, err := Do(ctx, c.http, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := ClassifyStatus(resp); err != nil {
		c.log.Debugw("gateway fetch failed", "url", c.URL(id), "status", resp.StatusCode)
		return nil, err
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, ClassifyTransport(ctx, err)
	}
	if int64(len(b)) > c.maxBytes {
		return nil, errors.E(errors.KindStoreUnavailable, "gateway: object exceeds "+strconv.FormatInt(c.maxBytes, 10)+" bytes")
	}
	if cidutil.Verifiable(id) {
		got, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			return nil, err
		}
		if !got.Equals(id) {
			return nil, storage.ErrCIDMismatch
		}
	}
	return b, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, c.URL(id), nil)
	if err != nil {
		return false
	}
	resp, err := Do(ctx, c.http, req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Do sends req. When retries are exhausted on a status code the last
// response is returned without error so the status can be classified.
func Do(ctx context.Context, c *retryablehttp.Client, req *retryablehttp.Request) (*http.Response, error) {
	resp, err := c.Do(req)
	if resp != nil {
		return resp, nil
	}
	return nil, ClassifyTransport(ctx, err)
}

// ClassifyStatus maps a non-2xx response onto the storage error taxonomy.
func ClassifyStatus(resp *http.Response) error {
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return storage.ErrNotFound
	case code == http.StatusGatewayTimeout || code == http.StatusRequestTimeout:
		return storage.ErrGatewayTimeout
	case code == http.StatusPaymentRequired || code == http.StatusTooManyRequests:
		return storage.ErrQuotaExceeded
	case code == http.StatusBadRequest:
		return errors.WrapKind(errors.KindInput, "gateway: bad request", errors.Newf("%s", snippet(resp)))
	default:
		return errors.WrapKind(errors.KindStoreUnavailable, "gateway: status "+strconv.Itoa(code), errors.Newf("%s", snippet(resp)))
	}
}

// ClassifyTransport maps a transport failure. Client timeouts count as
// gateway timeouts; caller cancellation is passed through.
func ClassifyTransport(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return errors.WrapKind(errors.KindGatewayTimeout, "gateway: timeout", err)
	}
	return errors.WrapKind(errors.KindStoreUnavailable, "gateway: transport", err)
}

func snippet(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return strings.TrimSpace(string(b))
}
