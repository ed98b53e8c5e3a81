package ipfs

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repository via the ipfs CLI",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: []casregistry.Option{
			{Key: "ipfs-bin", Usage: "Path to the ipfs binary (for --backend=ipfs)"},
			{Key: "ipfs-path", Usage: "IPFS_PATH for the Kubo repo (for --backend=ipfs)"},
			{Key: "ipfs-pin", Usage: "Pin blocks on put: true|false (for --backend=ipfs)"},
		},
		Open: func(cfg casregistry.Config) (storage.CAS, func() error, error) {
			opts := Options{Bin: cfg.Get("ipfs-bin", ""), Pin: cfg.Bool("ipfs-pin", true)}
			if p := cfg.Get("ipfs-path", ""); p != "" {
				opts.Env = append(os.Environ(), "IPFS_PATH="+p)
			}
			return New(opts), nil, nil
		},
	})
}

// CAS is a content-addressable store backed by the local Kubo "ipfs" CLI.
//
// It operates on the local IPFS repo and does not need a running daemon.
// Blocks are stored raw with sha2-256 so identifiers match
// cidutil.CIDv1RawSHA256CID, and every read is checked against the requested CID.
type CAS struct {
	bin string
	env []string
	pin bool
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
	// Pin keeps blocks out of the repo garbage collector.
	Pin bool
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env, pin: opts.Pin}
}

func (c *CAS) Put(ctx context.Context, data []byte, _ string) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}

	args := []string{
		"block", "put",
		"--quiet",
		"--cid-codec=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
	}
	if c.pin {
		args = append(args, "--pin=true")
	}
	out, err := c.run(ctx, data, append(args, "/dev/stdin")...)
	if err != nil {
		return cid.Undef, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, errors.WrapKind(errors.KindStoreUnavailable, "ipfs: unexpected block put output", err)
	}
	if !got.Equals(id) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	out, err := c.run(ctx, nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	if cidutil.Verifiable(id) {
		got, herr := cidutil.CIDv1RawSHA256CID(out)
		if herr != nil {
			return nil, herr
		}
		if !got.Equals(id) {
			return nil, storage.ErrCIDMismatch
		}
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.run(ctx, nil, "block", "stat", id.String())
	return err == nil
}

func (c *CAS) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, errors.WrapKind(errors.KindStoreUnavailable, "ipfs", err)
		}
		return nil, errors.E(errors.KindStoreUnavailable, "ipfs: "+s)
	}
	return nil, errors.WrapKind(errors.KindStoreUnavailable, "ipfs: exec", err)
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block not found")
}
