package storage

import (
	"context"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"docanchor.dev/docanchor/canonjson"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/logger"
)

// Client is the content store as seen by the orchestrators: publish bytes or
// JSON documents, fetch by identifier. Content is public once published and
// there is no delete.
type Client struct {
	cas CAS
	log *zap.SugaredLogger
}

// NewClient wraps cas. A nil logger uses the global logger.
func NewClient(cas CAS, log *zap.SugaredLogger) *Client {
	return &Client{cas: cas, log: logger.Or(log)}
}

// CAS returns the underlying store.
func (c *Client) CAS() CAS { return c.cas }

// PublishBlob stores arbitrary bytes and returns the store-assigned identifier.
func (c *Client) PublishBlob(ctx context.Context, data []byte, label string) (cid.Cid, error) {
	if c == nil || c.cas == nil {
		return cid.Undef, errors.E(errors.KindInternal, "storage: client has no backend")
	}
	id, err := c.cas.Put(ctx, data, label)
	if err != nil {
		c.log.Warnw("publish failed", "label", label, "size", len(data), "error", err)
		return cid.Undef, errors.Wrapf(err, "publish %q", label)
	}
	c.log.Debugw("published", "label", label, "size", len(data), "cid", id.String())
	return id, nil
}

// PublishJSON canonically encodes doc and publishes the bytes.
func (c *Client) PublishJSON(ctx context.Context, doc any, label string) (cid.Cid, error) {
	b, err := canonjson.Marshal(doc)
	if err != nil {
		return cid.Undef, errors.WrapKind(errors.KindInternal, "encode "+label, err)
	}
	return c.PublishBlob(ctx, b, label)
}

// Fetch resolves id through the configured read path (see MultiCAS for the
// gateway fallback policy).
func (c *Client) Fetch(ctx context.Context, id cid.Cid) ([]byte, error) {
	if c == nil || c.cas == nil {
		return nil, errors.E(errors.KindInternal, "storage: client has no backend")
	}
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	b, err := c.cas.Get(ctx, id)
	if err != nil {
		c.log.Debugw("fetch failed", "cid", id.String(), "error", err)
		return nil, errors.Wrapf(err, "fetch %s", id)
	}
	return b, nil
}
