// Package app assembles the certificate services from configuration. certd
// and certctl share it so both binaries see the same store, ledger and
// journal for the same config file.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"docanchor.dev/docanchor/confidential"
	"docanchor.dev/docanchor/config"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/issuance"
	"docanchor.dev/docanchor/journal"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/registry"
	"docanchor.dev/docanchor/registry/evm"
	"docanchor.dev/docanchor/registry/memledger"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/casregistry"
	"docanchor.dev/docanchor/verification"

	_ "docanchor.dev/docanchor/storage/gateway"
	_ "docanchor.dev/docanchor/storage/grpccas"
	_ "docanchor.dev/docanchor/storage/ipfs"
	_ "docanchor.dev/docanchor/storage/localfs"
	_ "docanchor.dev/docanchor/storage/memcas"
	_ "docanchor.dev/docanchor/storage/pinata"
)

// App holds the wired services. Journal is nil when disabled.
type App struct {
	Config   *config.Config
	Log      *zap.SugaredLogger
	CAS      storage.CAS
	Store    *storage.Client
	Ledger   *registry.Serialized
	Journal  *journal.Journal
	Issuer   *issuance.Orchestrator
	Verifier *verification.Verifier

	closers []func() error
}

// Open wires every service named by cfg. usage selects which CAS backends
// the calling binary accepts.
func Open(ctx context.Context, cfg *config.Config, usage casregistry.Usage, log *zap.SugaredLogger) (*App, error) {
	log = logger.Or(log)
	a := &App{Config: cfg, Log: log}

	cas, closeCAS, err := cfg.Storage.Open(usage, "")
	if err != nil {
		return nil, errors.Wrap(err, "open content store")
	}
	a.onClose(closeCAS)
	a.CAS = cas
	a.Store = storage.NewClient(cas, log.Named("storage"))

	ledger, err := openLedger(ctx, cfg.Ledger, log.Named("ledger"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if c, ok := ledger.(interface{ Close() }); ok {
		a.onClose(func() error { c.Close(); return nil })
	}
	a.Ledger = registry.NewSerialized(ledger)

	if cfg.Journal.Enabled {
		db, err := journal.OpenWithMigrations(cfg.Journal.Path, log.Named("journal"))
		if err != nil {
			_ = a.Close()
			return nil, errors.Wrap(err, "open journal")
		}
		a.onClose(db.Close)
		a.Journal = journal.New(db, log.Named("journal"))
	}

	icfg := issuance.Config{
		Store:          a.Store,
		Ledger:         a.Ledger,
		Pipeline:       a.Pipeline(),
		PublishRetries: cfg.Issuance.PublishRetries,
		Log:            log.Named("issuance"),
	}
	if a.Journal != nil {
		icfg.Journal = a.Journal
	}
	a.Issuer = issuance.New(icfg)
	a.Verifier = verification.New(verification.Config{
		Store:    a.Store,
		Ledger:   a.Ledger,
		Mode:     cfg.Mode(),
		Pipeline: a.Pipeline(),
		Log:      log.Named("verification"),
	})

	log.Infow("services ready",
		"backends", len(cfg.Storage.Backends),
		"ledger", cfg.Ledger.Backend,
		"journal", a.Journal != nil,
		"mode", cfg.Mode().String(),
	)
	return a, nil
}

// Pipeline is the confidentiality pipeline configured under [keys].
func (a *App) Pipeline() confidential.Pipeline {
	return confidential.Pipeline{
		Derivation: a.Config.Derivation(),
		Suite:      a.Config.Suite(),
		Log:        a.Log.Named("confidential"),
	}
}

// Mutator returns the owner-side ledger operations.
func (a *App) Mutator() registry.Mutator { return a.Ledger }

func (a *App) onClose(fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, fn)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func openLedger(ctx context.Context, cfg config.LedgerConfig, log *zap.SugaredLogger) (registry.Client, error) {
	switch cfg.Backend {
	case config.LedgerEVM:
		opts := evm.Options{
			RPCURL:        cfg.RPCURL,
			Contract:      common.HexToAddress(cfg.Contract),
			PrivateKeyHex: cfg.PrivateKey,
			LegacyMint:    cfg.LegacyMint,
			Log:           log,
		}
		if cfg.ChainID > 0 {
			opts.ChainID = big.NewInt(cfg.ChainID)
		}
		c, err := evm.Dial(ctx, opts)
		if err != nil {
			return nil, errors.Wrap(err, "open ledger")
		}
		return c, nil
	default:
		log.Warnw("using the in-memory ledger; registrations are lost on exit")
		return memledger.New(), nil
	}
}
