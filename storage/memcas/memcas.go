// Package memcas is an in-memory CAS used by tests and the dev server.
package memcas

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "memory",
		Description: "In-process CAS (contents are lost on exit)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Open: func(casregistry.Config) (storage.CAS, func() error, error) {
			return New(), nil, nil
		},
	})
}

// CAS keeps objects in a map keyed by raw sha2-256 CIDv1.
type CAS struct {
	mu      sync.RWMutex
	objects map[cid.Cid][]byte
	labels  map[cid.Cid]string
	puts    int
}

var _ storage.CAS = (*CAS)(nil)

func New() *CAS {
	return &CAS{
		objects: make(map[cid.Cid][]byte),
		labels:  make(map[cid.Cid]string),
	}
}

func (c *CAS) Put(ctx context.Context, data []byte, label string) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if _, ok := c.objects[id]; !ok {
		c.objects[id] = append([]byte(nil), data...)
		c.labels[id] = label
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	c.mu.RLock()
	b, ok := c.objects[id]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (c *CAS) Has(_ context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.objects[id]
	return ok
}

// Puts counts every Put call, including ones that stored nothing new.
func (c *CAS) Puts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.puts
}

// Len is the number of distinct objects held.
func (c *CAS) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

// Label returns the label given on the first Put of id.
func (c *CAS) Label(id cid.Cid) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.labels[id]
}

// Replace overwrites the stored bytes for id without re-addressing them.
// Tests use it to simulate a gateway serving tampered content.
func (c *CAS) Replace(id cid.Cid, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[id] = append([]byte(nil), data...)
}
