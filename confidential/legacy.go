package confidential

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
	"docanchor.dev/docanchor/keys"
	"docanchor.dev/docanchor/logger"
)

// Files sealed by the first wallet frontend are base64 text in the OpenSSL
// "Salted__" layout: AES-256-CBC with key and IV from EVP_BytesToKey(MD5, one
// round) over a passphrase. They are only ever read, never written.
const (
	legacyMagic     = "Salted__"
	legacyB64Prefix = "U2FsdGVkX1" // base64("Salted__") without its ragged tail
	legacySaltSize  = 8
)

// IsLegacy reports whether b looks like a legacy passphrase-sealed file.
func IsLegacy(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(b), []byte(legacyB64Prefix))
}

// DecryptLegacy opens a legacy sealed file with passphrase. Any failure is a
// DecryptionFailed error and no plaintext is returned.
func DecryptLegacy(blob []byte, passphrase string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(blob)))
	if err != nil {
		return nil, errors.WrapKind(errors.KindDecryptionFailed, "legacy: not base64", err)
	}
	if len(raw) < len(legacyMagic)+legacySaltSize+aes.BlockSize || string(raw[:len(legacyMagic)]) != legacyMagic {
		return nil, errors.E(errors.KindDecryptionFailed, "legacy: missing salt header")
	}
	salt := raw[len(legacyMagic) : len(legacyMagic)+legacySaltSize]
	ct := raw[len(legacyMagic)+legacySaltSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.E(errors.KindDecryptionFailed, "legacy: ciphertext is not block aligned")
	}

	key, iv := evpBytesToKey([]byte(passphrase), salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.WrapKind(errors.KindInternal, "legacy: aes", err)
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	n := int(plain[len(plain)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, errors.E(errors.KindDecryptionFailed, "legacy: wrong key or corrupted file")
	}
	for _, p := range plain[len(plain)-n:] {
		if int(p) != n {
			return nil, errors.E(errors.KindDecryptionFailed, "legacy: wrong key or corrupted file")
		}
	}
	return plain[:len(plain)-n], nil
}

// evpBytesToKey is OpenSSL's EVP_BytesToKey with MD5 and a single iteration.
func evpBytesToKey(pass, salt []byte, keyLen, ivLen int) ([]byte, []byte) {
	var out, prev []byte
	for len(out) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(pass)
		h.Write(salt)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:keyLen], out[keyLen : keyLen+ivLen]
}

// OpenLegacy decrypts a legacy sealed file with the passphrase the signer's
// challenge signature yields, then checks the plaintext against expected.
func (p Pipeline) OpenLegacy(ctx context.Context, s keys.Signer, blob []byte, expected hashing.Digest) ([]byte, error) {
	pass, err := keys.LegacyPassphrase(ctx, s)
	if err != nil {
		return nil, err
	}
	plain, err := DecryptLegacy(blob, pass)
	if err != nil {
		return nil, err
	}
	if !VerifyIntegrity(plain, expected) {
		return nil, errors.WithHint(
			errors.Ef(errors.KindIntegrityMismatch, "decrypted content does not match registered hash %s", expected.Prefixed()),
			"the stored file differs from the one that was registered")
	}
	logger.Or(p.Log).Debugw("opened legacy sealed file", "plain_bytes", len(plain))
	return plain, nil
}
