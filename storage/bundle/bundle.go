// Package bundle packs content-store objects into a deterministic TAR so a
// certificate (blob plus descriptor) can be verified offline or re-published
// into another store.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"docanchor.dev/docanchor/canonjson"
	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const (
	blockPrefix = "blocks/"
	indexName   = "index.json"
)

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to CIDs,
	// e.g. "document" and "descriptor".
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes a deterministic TAR bundle containing the objects for ids.
//
// Entry order is lexicographic and TAR headers are normalized. Only raw
// sha2-256 CIDs are accepted since every exported object is re-verified
// against its identifier.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() || !cidutil.Verifiable(id) {
			return errors.Wrapf(storage.ErrInvalidCID, "bundle: %s", id)
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	if err := export(ctx, tw, cas, uniq, names, opts); err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

func export(ctx context.Context, tw *tar.Writer, cas storage.CAS, uniq map[string]cid.Cid, names []string, opts ExportOptions) error {
	blocks := make([]indexBlock, 0, len(names))
	for _, s := range names {
		id := uniq[s]
		b, err := cas.Get(ctx, id)
		if err != nil {
			return err
		}
		got, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			return err
		}
		if !got.Equals(id) {
			return storage.ErrCIDMismatch
		}
		if err := writeFile(tw, blockPrefix+s, b); err != nil {
			return err
		}
		blocks = append(blocks, indexBlock{CID: s, Size: len(b)})
	}

	if !opts.IncludeIndex {
		return nil
	}
	idx := indexJSON{
		Version:   FormatVersion,
		CIDCodec:  "raw",
		Multihash: "sha2-256",
		Blocks:    blocks,
	}
	keys := make([]string, 0, len(opts.Labels))
	for k := range opts.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" {
			return errors.New("bundle: empty label key")
		}
		v := opts.Labels[k]
		if !v.Defined() {
			return storage.ErrInvalidCID
		}
		idx.Labels = append(idx.Labels, indexLabel{Name: k, CID: v.String()})
	}
	b, err := canonjson.Marshal(idx)
	if err != nil {
		return err
	}
	return writeFile(tw, indexName, append(b, '\n'))
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// Manifest describes what an import stored.
type Manifest struct {
	Blocks []cid.Cid
	Labels map[string]cid.Cid
}

// Import reads a bundle from r and stores all blocks into cas.
//
// Default behavior is fail-closed: unknown entries cause an error.
func Import(ctx context.Context, r io.Reader, cas storage.CAS) (Manifest, error) {
	return ImportWithOptions(ctx, r, cas, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and stores all blocks into cas.
//
// Each block's bytes must match both its entry name and the CID the store returns.
func ImportWithOptions(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (Manifest, error) {
	var m Manifest
	if cas == nil {
		return m, errors.New("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return m, nil
		}
		if err != nil {
			return m, errors.Wrap(err, "bundle: read")
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return m, errors.Input("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return m, errors.Input("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexName {
			labels, err := readLabels(tr)
			if err != nil {
				return m, err
			}
			m.Labels = labels
			continue
		}

		if !strings.HasPrefix(name, blockPrefix) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return m, errors.Input("bundle: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, blockPrefix))
		if derr != nil || !id.Defined() {
			return m, storage.ErrInvalidCID
		}
		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return m, errors.Wrap(rerr, "bundle: read block")
		}
		got, herr := cidutil.CIDv1RawSHA256CID(payload)
		if herr != nil {
			return m, herr
		}
		if !got.Equals(id) {
			return m, storage.ErrCIDMismatch
		}

		key := id.String()
		if _, ok := seen[key]; ok {
			return m, errors.Input("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		putID, perr := cas.Put(ctx, payload, key)
		if perr != nil {
			return m, perr
		}
		if !putID.Equals(id) {
			return m, storage.ErrCIDMismatch
		}
		m.Blocks = append(m.Blocks, id)
	}
}

func readLabels(r io.Reader) (map[string]cid.Cid, error) {
	var idx indexJSON
	if err := jsonDecode(r, &idx); err != nil {
		return nil, errors.WrapKind(errors.KindInput, "bundle: index.json", err)
	}
	if len(idx.Labels) == 0 {
		return nil, nil
	}
	out := make(map[string]cid.Cid, len(idx.Labels))
	for _, l := range idx.Labels {
		id, err := cid.Decode(l.CID)
		if err != nil {
			return nil, errors.WrapKind(errors.KindInput, "bundle: label "+l.Name, err)
		}
		out[l.Name] = id
	}
	return out, nil
}

type indexJSON struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Blocks    []indexBlock `json:"blocks"`
	Labels    []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrap(err, "bundle: write header")
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return errors.Wrap(err, "bundle: write entry")
}

// cleanTarPath rejects absolute, empty and dot-segment paths.
func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
