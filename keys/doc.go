// Package keys derives content-encryption keys from wallet signatures and
// manages the local seeds the CLI signs with.
//
// Stable:
//   - ChallengeMessage, DeriveKey and the Signer interface. The derived key is
//     a pure function of the signer's identity; changing the challenge or the
//     default derivation makes every previously encrypted certificate
//     unreadable.
//
// Experimental:
//   - KeyStore, the filesystem-backed seed store used by certctl. It is a
//     local-first convenience and may change in minor releases.
package keys
