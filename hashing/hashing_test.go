package hashing

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docanchor.dev/docanchor/errors"
)

func TestSumKnownVectors(t *testing.T) {
	// SHA-256("") and SHA-256("abc")
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Sum(nil).Hex())
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Sum([]byte("abc")).Hex())
}

func TestSumDeterministic(t *testing.T) {
	b := []byte("hello-cert")
	assert.Equal(t, Sum(b), Sum(append([]byte(nil), b...)))
	assert.NotEqual(t, Sum(b), Sum([]byte("hello-cert!")))
}

func TestPrefixedFormat(t *testing.T) {
	p := Sum([]byte("hello-cert")).Prefixed()
	require.Len(t, p, 66)
	assert.True(t, strings.HasPrefix(p, "0x"))
	assert.Equal(t, strings.ToLower(p), p)
}

func TestKeyForIsKeccakOfHexString(t *testing.T) {
	// Keccak-256("") is the well-known EVM empty hash; KeyForHex must match it.
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", KeyForHex("").Hex())

	d := Sum([]byte("hello-cert"))
	assert.Equal(t, KeyForHex(d.Hex()), KeyFor(d))
	assert.Equal(t, KeyFor(d), d.Key())
	// Upper-case hex is a different ledger key; only lowercase is canonical.
	assert.NotEqual(t, KeyFor(d), KeyForHex(strings.ToUpper(d.Hex())))
	assert.NotEqual(t, KeyFor(d), KeyForHex(d.Prefixed()))
}

func TestKeyForDistinctInputs(t *testing.T) {
	assert.NotEqual(t, KeyFor(Sum([]byte("a"))), KeyFor(Sum([]byte("b"))))
}

func TestParseDigest(t *testing.T) {
	d := Sum([]byte("x"))

	for _, in := range []string{d.Hex(), d.Prefixed(), strings.ToUpper(d.Hex()), "  " + d.Prefixed() + "\n"} {
		got, err := ParseDigest(in)
		require.NoError(t, err, in)
		assert.Equal(t, d, got)
	}

	_, err := ParseDigest("0x1234")
	assert.True(t, errors.IsKind(err, errors.KindInput))

	_, err = ParseDigest(strings.Repeat("zz", Size))
	assert.True(t, errors.IsKind(err, errors.KindInput))
}

func TestEqual(t *testing.T) {
	a := Sum([]byte("a"))
	b := a
	assert.True(t, Equal(a, b))
	b[0] ^= 1
	assert.False(t, Equal(a, b))
}

func TestLedgerKeyString(t *testing.T) {
	k := KeyForHex("abc")
	assert.Equal(t, "0x"+hex.EncodeToString(k[:]), k.String())
}
