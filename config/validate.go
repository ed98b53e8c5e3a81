package config

import (
	"github.com/ethereum/go-ethereum/common"

	"docanchor.dev/docanchor/compliance"
	"docanchor.dev/docanchor/confidential"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/keys"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.Input("server.addr cannot be empty")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.Input("server.max_upload_bytes must be > 0, got %d", c.Server.MaxUploadBytes)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return errors.Input("server timeouts must be >= 0")
	}

	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerEVM:
		if c.Ledger.RPCURL == "" {
			return errors.Input("ledger.rpc_url is required for the evm backend")
		}
		if !common.IsHexAddress(c.Ledger.Contract) {
			return errors.Input("ledger.contract must be a hex address, got %q", c.Ledger.Contract)
		}
		if c.Ledger.ChainID < 0 {
			return errors.Input("ledger.chain_id must be >= 0, got %d", c.Ledger.ChainID)
		}
	default:
		return errors.Input("unknown ledger.backend %q (want %q or %q)", c.Ledger.Backend, LedgerMemory, LedgerEVM)
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return errors.Input("journal.path cannot be empty when the journal is enabled")
	}
	if _, err := keys.ParseDerivation(c.Keys.Derivation); err != nil {
		return errors.Wrap(err, "keys.derivation")
	}
	if _, err := confidential.ParseSuite(c.Keys.Suite); err != nil {
		return errors.Wrap(err, "keys.suite")
	}
	if _, err := compliance.ParseMode(c.Verify.Mode); err != nil {
		return errors.Wrap(err, "verify.mode")
	}
	if c.Issuance.PublishRetries < 0 {
		return errors.Input("issuance.publish_retries must be >= 0, got %d", c.Issuance.PublishRetries)
	}
	return errors.Wrap(c.Storage.Validate(), "storage")
}
