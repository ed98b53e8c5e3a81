// Package config loads docanchor settings from TOML files and DOCANCHOR_*
// environment variables via viper.
package config

import (
	"time"

	"docanchor.dev/docanchor/compliance"
	"docanchor.dev/docanchor/confidential"
	"docanchor.dev/docanchor/keys"
	"docanchor.dev/docanchor/storage/casconfig"
)

// Ledger backends.
const (
	LedgerMemory = "memory"
	LedgerEVM    = "evm"
)

type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Log      LogConfig        `mapstructure:"log"`
	Storage  casconfig.Config `mapstructure:"storage"`
	Ledger   LedgerConfig     `mapstructure:"ledger"`
	Journal  JournalConfig    `mapstructure:"journal"`
	Keys     KeysConfig       `mapstructure:"keys"`
	Verify   VerifyConfig     `mapstructure:"verify"`
	Issuance IssuanceConfig   `mapstructure:"issuance"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

// LedgerConfig selects the registry backend. The evm backend needs an RPC
// endpoint and contract address; PrivateKey enables writes.
type LedgerConfig struct {
	Backend    string `mapstructure:"backend"`
	RPCURL     string `mapstructure:"rpc_url"`
	Contract   string `mapstructure:"contract"`
	PrivateKey string `mapstructure:"private_key"`
	ChainID    int64  `mapstructure:"chain_id"`
	LegacyMint bool   `mapstructure:"legacy_mint"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type KeysConfig struct {
	Derivation string `mapstructure:"derivation"`
	Suite      string `mapstructure:"suite"`
	StoreDir   string `mapstructure:"store_dir"`
}

type VerifyConfig struct {
	Mode string `mapstructure:"mode"`
}

type IssuanceConfig struct {
	PublishRetries int `mapstructure:"publish_retries"`
}

// Derivation returns the parsed key derivation. Call Validate first.
func (c *Config) Derivation() keys.Derivation {
	d, _ := keys.ParseDerivation(c.Keys.Derivation)
	return d
}

// Suite returns the parsed cipher suite. Call Validate first.
func (c *Config) Suite() confidential.Suite {
	s, _ := confidential.ParseSuite(c.Keys.Suite)
	return s
}

// Mode returns the parsed verification mode. Call Validate first.
func (c *Config) Mode() compliance.Mode {
	m, _ := compliance.ParseMode(c.Verify.Mode)
	return m
}
