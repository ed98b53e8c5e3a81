// Package cidutil holds the CID conventions shared by every storage backend.
package cidutil

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// URIScheme prefixes content identifiers in descriptors ("ipfs://<cid>").
const URIScheme = "ipfs://"

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
//
// Local backends (memory, localfs, kubo, grpc) assign this CID. Remote pinning
// services assign their own (typically dag-pb); callers must treat CIDs as opaque.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Verifiable reports whether bytes fetched for id can be checked locally,
// i.e. id is a raw-codec sha2-256 CID.
func Verifiable(id cid.Cid) bool {
	if !id.Defined() || id.Type() != cid.Raw {
		return false
	}
	return id.Prefix().MhType == multihash.SHA2_256
}

// URI renders id as "ipfs://<cid>".
func URI(id cid.Cid) string {
	return URIScheme + id.String()
}

// Parse accepts a bare CID, "ipfs://<cid>", "ipfs://ipfs/<cid>", "/ipfs/<cid>"
// or a gateway URL containing "/ipfs/<cid>". Any path after the CID is ignored.
func Parse(ref string) (cid.Cid, error) {
	s := strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(s, URIScheme):
		s = strings.TrimPrefix(s, URIScheme)
		s = strings.TrimPrefix(s, "ipfs/")
	case strings.Contains(s, "/ipfs/"):
		s = s[strings.Index(s, "/ipfs/")+len("/ipfs/"):]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return cid.Undef, fmt.Errorf("cidutil: empty content reference %q", ref)
	}
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: invalid content reference %q: %w", ref, err)
	}
	return id, nil
}
