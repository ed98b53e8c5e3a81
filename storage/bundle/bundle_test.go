package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/bundle"
	"docanchor.dev/docanchor/storage/localfs"
	"docanchor.dev/docanchor/storage/memcas"
)

func TestBundle_ExportIsDeterministic(t *testing.T) {
	ctx := context.Background()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	id1, err := cas.Put(ctx, []byte("hello"), "a")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := cas.Put(ctx, []byte("world"), "b")
	if err != nil {
		t.Fatal(err)
	}

	opts := bundle.ExportOptions{IncludeIndex: true, Labels: map[string]cid.Cid{"document": id1, "descriptor": id2}}
	var outA bytes.Buffer
	if err := bundle.Export(ctx, &outA, cas, []cid.Cid{id2, id1}, opts); err != nil {
		t.Fatal(err)
	}
	var outB bytes.Buffer
	if err := bundle.Export(ctx, &outB, cas, []cid.Cid{id1, id2, id1}, opts); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := memcas.New()

	payload := []byte("payload")
	id, err := src.Put(ctx, payload, "doc.pdf")
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	opts := bundle.ExportOptions{IncludeIndex: true, Labels: map[string]cid.Cid{"document": id}}
	if err := bundle.Export(ctx, &buf, src, []cid.Cid{id}, opts); err != nil {
		t.Fatal(err)
	}

	dst, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m, err := bundle.Import(ctx, bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Blocks) != 1 || !m.Blocks[0].Equals(id) {
		t.Fatalf("manifest blocks = %v", m.Blocks)
	}
	if !m.Labels["document"].Equals(id) {
		t.Fatalf("manifest labels = %v", m.Labels)
	}

	got, err := dst.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	good := []byte("good")
	otherCID, err := cidutil.CIDv1RawSHA256CID([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}

	// Name says otherCID but the bytes are "good".
	bundleBytes := makeDeterministicTar(t, "blocks/"+otherCID.String(), good)

	_, err = bundle.Import(context.Background(), bytes.NewReader(bundleBytes), memcas.New())
	if !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestBundle_ImportRejectsUnknownAndTraversal(t *testing.T) {
	ctx := context.Background()

	unknown := makeDeterministicTar(t, "notes.txt", []byte("hi"))
	if _, err := bundle.Import(ctx, bytes.NewReader(unknown), memcas.New()); err == nil {
		t.Fatalf("expected unknown entry to fail")
	}
	if _, err := bundle.ImportWithOptions(ctx, bytes.NewReader(unknown), memcas.New(), bundle.ImportOptions{IgnoreUnknown: true}); err != nil {
		t.Fatalf("IgnoreUnknown: %v", err)
	}

	traversal := makeDeterministicTar(t, "blocks/../../etc/passwd", []byte("x"))
	if _, err := bundle.Import(ctx, bytes.NewReader(traversal), memcas.New()); !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
