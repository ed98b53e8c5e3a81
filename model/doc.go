// Package model defines the JSON shapes of the HTTP API and of certctl's
// --json output.
//
// Field names of the mint and verify responses match what existing wallet
// frontends already read (txHash, tokenURI, verified, currentOwner,
// isYourCert). Change them only with a version bump.
package model
