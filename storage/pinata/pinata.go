// Package pinata pins content through the Pinata pinning API and reads it
// back through an ordered list of gateways.
package pinata

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/casregistry"
	"docanchor.dev/docanchor/storage/gateway"
)

const (
	DefaultAPIURL = "https://api.pinata.cloud"

	// DefaultGatewayAttempts is the primary gateway plus one fallback.
	DefaultGatewayAttempts = 2

	pinFilePath = "/pinning/pinFileToIPFS"
)

// DefaultGatewayURLs are tried in order for reads.
var DefaultGatewayURLs = []string{"https://gateway.pinata.cloud", "https://ipfs.io"}

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "pinata",
		Description: "Pinata pinning service (writes) with ordered gateway fallback (reads)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: []casregistry.Option{
			{Key: "pinata-jwt", Usage: "Pinata API JWT (for --backend=pinata)"},
			{Key: "pinata-api-url", Usage: "Pinata API base URL"},
			{Key: "pinata-gateway-urls", Usage: "Comma-separated gateways for reads, primary first"},
			{Key: "pinata-gateway-attempts", Usage: "Max gateways tried per read; 0 tries all (default 2)"},
			{Key: "pinata-rps", Usage: "Max pin requests per second; 0 disables limiting"},
		},
		Open: func(cfg casregistry.Config) (storage.CAS, func() error, error) {
			opts := Options{
				JWT:         cfg.Get("pinata-jwt", ""),
				APIURL:      cfg.Get("pinata-api-url", ""),
				GatewayURLs: splitList(cfg.Get("pinata-gateway-urls", "")),
			}
			if s := cfg.Get("pinata-gateway-attempts", ""); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n < 0 {
					return nil, nil, errors.Input("invalid pinata-gateway-attempts %q", s)
				}
				opts.GatewayAttempts = n
			}
			if s := cfg.Get("pinata-rps", ""); s != "" {
				rps, err := strconv.ParseFloat(s, 64)
				if err != nil || rps < 0 {
					return nil, nil, errors.Input("invalid pinata-rps %q", s)
				}
				opts.RequestsPerSecond = rps
			}
			c, err := New(opts)
			return c, nil, err
		},
	})
}

type Options struct {
	JWT    string
	APIURL string
	// GatewayURLs are read in order; empty means DefaultGatewayURLs.
	GatewayURLs []string
	// GatewayAttempts bounds how many gateways one read tries. 0 means
	// DefaultGatewayAttempts; negative tries every gateway.
	GatewayAttempts int
	// RequestsPerSecond throttles pin requests; 0 means unlimited.
	RequestsPerSecond float64
	// Retries for connection errors and 5xx on pin requests.
	Retries    int
	Timeout    time.Duration
	HTTPClient *http.Client
	Log        *zap.SugaredLogger
}

// PinResponse is the response from pinFileToIPFS.
type PinResponse struct {
	IpfsHash    string `json:"IpfsHash"`
	PinSize     int    `json:"PinSize"`
	Timestamp   string `json:"Timestamp"`
	IsDuplicate bool   `json:"isDuplicate"`
}

// CAS pins on Put and reads through the configured gateways. Identifiers are
// whatever Pinata assigns (CIDv1, usually dag-pb), so they are not
// recomputable locally.
type CAS struct {
	jwt     string
	api     string
	http    *retryablehttp.Client
	limiter *rate.Limiter
	reader  storage.MultiCAS
	log     *zap.SugaredLogger
}

var _ storage.CAS = (*CAS)(nil)

func New(opts Options) (*CAS, error) {
	if strings.TrimSpace(opts.JWT) == "" {
		return nil, errors.WithHint(
			errors.Input("pinata: jwt not configured"),
			"set DOCANCHOR_PINATA_JWT or storage.pinata.jwt in docanchor.toml",
		)
	}
	api := strings.TrimRight(opts.APIURL, "/")
	if api == "" {
		api = DefaultAPIURL
	}
	reader, err := newReader(opts)
	if err != nil {
		return nil, err
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	retries := opts.Retries
	if retries == 0 {
		retries = 2
	}
	return &CAS{
		jwt:     opts.JWT,
		api:     api,
		http:    gateway.NewHTTPClient(opts.HTTPClient, opts.Timeout, retries),
		limiter: limiter,
		reader:  reader,
		log:     logger.Or(opts.Log),
	}, nil
}

func newReader(opts Options) (storage.MultiCAS, error) {
	urls := opts.GatewayURLs
	if len(urls) == 0 {
		urls = DefaultGatewayURLs
	}
	adapters := make([]storage.CAS, 0, len(urls))
	for _, u := range urls {
		g, err := gateway.New(gateway.Options{BaseURL: u, Timeout: opts.Timeout, HTTPClient: opts.HTTPClient, Log: opts.Log})
		if err != nil {
			return storage.MultiCAS{}, errors.Wrapf(err, "pinata: gateway %q", u)
		}
		adapters = append(adapters, g)
	}
	attempts := opts.GatewayAttempts
	switch {
	case attempts == 0:
		attempts = DefaultGatewayAttempts
	case attempts < 0:
		attempts = 0
	}
	return storage.MultiCAS{Adapters: adapters, MaxAttempts: attempts}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *CAS) Put(ctx context.Context, data []byte, label string) (cid.Cid, error) {
	resp, err := c.Pin(ctx, data, label)
	if err != nil {
		return cid.Undef, err
	}
	id, err := cid.Decode(resp.IpfsHash)
	if err != nil {
		return cid.Undef, errors.WrapKind(errors.KindStoreUnavailable, "pinata: unexpected IpfsHash "+resp.IpfsHash, err)
	}
	return id, nil
}

// Pin uploads data as a file named label.
func (c *CAS) Pin(ctx context.Context, data []byte, label string) (*PinResponse, error) {
	if label == "" {
		label = "blob"
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "pinata: rate limiter")
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", label)
	if err != nil {
		return nil, errors.Wrap(err, "pinata: create multipart file field")
	}
	if _, err := part.Write(data); err != nil {
		return nil, errors.Wrap(err, "pinata: write multipart content")
	}
	meta, _ := json.Marshal(map[string]any{"name": label})
	_ = mw.WriteField("pinataMetadata", string(meta))
	popts, _ := json.Marshal(map[string]any{"cidVersion": 1})
	_ = mw.WriteField("pinataOptions", string(popts))
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "pinata: close multipart writer")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.api+pinFilePath, body.Bytes())
	if err != nil {
		return nil, errors.WrapKind(errors.KindInternal, "pinata: build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := gateway.Do(ctx, c.http, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.WithHint(
			errors.E(errors.KindStoreUnavailable, "pinata: credentials rejected ("+strconv.Itoa(resp.StatusCode)+")"),
			"check the configured Pinata JWT",
		)
	}
	if err := gateway.ClassifyStatus(resp); err != nil {
		c.log.Warnw("pin failed", "label", label, "status", resp.StatusCode)
		return nil, err
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, gateway.ClassifyTransport(ctx, err)
	}
	var pr PinResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, errors.WrapKind(errors.KindStoreUnavailable, "pinata: parse response", err)
	}
	c.log.Debugw("pinned", "label", label, "cid", pr.IpfsHash, "size", pr.PinSize, "duplicate", pr.IsDuplicate)
	return &pr, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return c.reader.Get(ctx, id)
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	return c.reader.Has(ctx, id)
}
