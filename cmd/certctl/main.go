// Command certctl issues, verifies and inspects certificates from the
// command line, using the same configuration as certd.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"docanchor.dev/docanchor/config"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/internal/app"
	"docanchor.dev/docanchor/keys"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/model"
	"docanchor.dev/docanchor/storage/casregistry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns 0 on success, 2 for usage and input errors, 1 otherwise.
func run(args []string, out, errOut io.Writer) int {
	g := &globals{}
	cmd := newRootCmd(g)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	if g.jsonOut {
		ce := model.FromError(err)
		if ce.Code == model.ErrInternal {
			ce.Message = err.Error()
		}
		_ = json.NewEncoder(errOut).Encode(model.ErrorResponse{Error: ce})
	} else {
		fmt.Fprintln(errOut, "certctl:", err)
		for _, h := range errors.GetAllHints(err) {
			fmt.Fprintln(errOut, "hint:", h)
		}
	}
	if g.usageErr || errors.IsKind(err, errors.KindInput) {
		return 2
	}
	return 1
}

type globals struct {
	configPath string
	keysDir    string
	jsonOut    bool
	usageErr   bool

	cfg *config.Config
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:   "certctl",
		Short: "Issue and verify document-backed ledger certificates",
		Long: `certctl issues, verifies and inspects certificates.

Examples:
  certctl hash diploma.pdf
  certctl issue diploma.pdf --to 0xRecipient --title "BSc" --student-name Alice
  certctl issue contract.pdf --variant joint --to 0xA --co-owner 0xB --title Lease --encrypt --key issuer
  certctl verify diploma.pdf --claimant 0xRecipient
  certctl unlock 12 --key issuer --out contract.pdf
  certctl key init --name issuer
  certctl bundle export --out cert.tar <fileCID> <descriptorCID>

With the default in-memory ledger, registrations last only for one
invocation; configure [ledger] backend = "evm" for persistent use.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		g.usageErr = true
		return err
	})
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "config file (default: ./docanchor.toml or ~/.docanchor/docanchor.toml)")
	pf.StringVar(&g.keysDir, "keys-dir", "", "key store directory (default: keys.store_dir or ~/.docanchor/keys)")
	pf.BoolVar(&g.jsonOut, "json", false, "JSON output")

	root.AddCommand(
		newHashCmd(g),
		newIssueCmd(g),
		newVerifyCmd(g),
		newUnlockCmd(g),
		newKeyCmd(g),
		newCASCmd(g),
		newBundleCmd(g),
		newTokenCmd(g),
		newHistoryCmd(g),
	)
	return root
}

func (g *globals) config() (*config.Config, error) {
	if g.cfg != nil {
		return g.cfg, nil
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
		return nil, errors.WrapKind(errors.KindInput, "log.level", err)
	}
	g.cfg = cfg
	return cfg, nil
}

// open wires the services; callers must Close the result.
func (g *globals) open(ctx context.Context) (*app.App, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, casregistry.UsageCLI, logger.Logger.Named("certctl"))
}

func (g *globals) keyStore() (*keys.KeyStore, error) {
	dir := g.keysDir
	if dir == "" {
		cfg, err := g.config()
		if err != nil {
			return nil, err
		}
		dir = cfg.Keys.StoreDir
	}
	return keys.OpenKeyStore(dir)
}

func (g *globals) print(w io.Writer, v any, text func(io.Writer)) error {
	if g.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// signerFlags select a signing key for encryption and unlocking.
type signerFlags struct {
	key     string
	role    string
	seedHex string
	keyFile string
	scheme  string
}

func (s *signerFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.key, "key", "", "key store identifier")
	f.StringVar(&s.role, "role", "", "derived role under --key")
	f.StringVar(&s.seedHex, "seed", "", "inline 32-byte seed as 64 hex characters")
	f.StringVar(&s.keyFile, "key-file", "", "path to a seed file")
	f.StringVar(&s.scheme, "scheme", string(keys.SchemeEVM), "signature scheme: evm, ed25519 or dilithium3")
}

func (s *signerFlags) set() bool {
	return s.key != "" || s.seedHex != "" || s.keyFile != ""
}

func (s *signerFlags) signer(g *globals) (keys.Signer, error) {
	ks, err := g.keyStore()
	if err != nil {
		return nil, err
	}
	seed, err := ks.LoadSeed(s.seedHex, s.key, s.role, s.keyFile)
	if err != nil {
		return nil, err
	}
	return keys.SignerFromSeed(seed, keys.Scheme(s.scheme))
}
