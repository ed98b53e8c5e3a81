package confidential

import (
	"context"

	"go.uber.org/zap"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
	"docanchor.dev/docanchor/keys"
	"docanchor.dev/docanchor/logger"
)

// Pipeline combines signature-derived keys with the envelope.
type Pipeline struct {
	Derivation keys.Derivation
	Suite      Suite
	Log        *zap.SugaredLogger
}

// Seal derives the signer's content key and encrypts plain under it.
func (p Pipeline) Seal(ctx context.Context, s keys.Signer, plain []byte) ([]byte, error) {
	key, err := keys.DeriveKeyWith(ctx, s, p.Derivation)
	if err != nil {
		return nil, err
	}
	blob, err := EncryptWith(plain, key, Options{Suite: p.Suite})
	if err != nil {
		return nil, err
	}
	logger.Or(p.Log).Debugw("sealed content", "suite", p.suite(), "plain_bytes", len(plain), "sealed_bytes", len(blob))
	return blob, nil
}

// Open decrypts blob with the signer's content key and checks the result
// against expected. Plaintext is only returned when both steps succeed.
func (p Pipeline) Open(ctx context.Context, s keys.Signer, blob []byte, expected hashing.Digest) ([]byte, error) {
	key, err := keys.DeriveKeyWith(ctx, s, p.Derivation)
	if err != nil {
		return nil, err
	}
	plain, err := Decrypt(blob, key)
	if err != nil {
		return nil, err
	}
	if !VerifyIntegrity(plain, expected) {
		return nil, errors.WithHint(
			errors.Ef(errors.KindIntegrityMismatch, "decrypted content does not match registered hash %s", expected.Prefixed()),
			"the stored file differs from the one that was registered")
	}
	return plain, nil
}

func (p Pipeline) suite() Suite {
	if p.Suite == 0 {
		return SuiteAES256GCM
	}
	return p.Suite
}
