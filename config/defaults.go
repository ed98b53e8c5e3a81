package config

import (
	"time"

	"github.com/spf13/viper"
)

const DefaultAddr = ":8080"

// SetDefaults configures default values for every option.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.max_upload_bytes", 32<<20)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute) // registration waits for finality
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("storage.write_policy", "first")
	v.SetDefault("storage.read_attempts", 2) // primary gateway plus one fallback

	v.SetDefault("ledger.backend", LedgerMemory)
	v.SetDefault("ledger.rpc_url", "")
	v.SetDefault("ledger.contract", "")
	v.SetDefault("ledger.private_key", "")
	v.SetDefault("ledger.chain_id", 0)
	v.SetDefault("ledger.legacy_mint", false)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", "docanchor.db")

	v.SetDefault("keys.derivation", "sha256")
	v.SetDefault("keys.suite", "aes-256-gcm")
	v.SetDefault("keys.store_dir", "")

	v.SetDefault("verify.mode", "permissive")

	v.SetDefault("issuance.publish_retries", 1)

	v.SetDefault("pinata.jwt", "")
}

// BindSensitiveEnvVars binds secrets to explicit variable names so they never
// need to live in a config file.
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("ledger.private_key", "DOCANCHOR_LEDGER_PRIVATE_KEY")
	_ = v.BindEnv("pinata.jwt", "DOCANCHOR_PINATA_JWT", "PINATA_JWT")
}
