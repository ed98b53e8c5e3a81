// Command certd serves the certificate HTTP API.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docanchor.dev/docanchor/config"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/internal/app"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/server"
	"docanchor.dev/docanchor/storage/casregistry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(errOut, "certd:", err)
		if errors.IsKind(err, errors.KindInput) {
			return 2
		}
		return 1
	}
	return 0
}

type options struct {
	configPath string
	addr       string
	checkOnly  bool
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "certd",
		Short: "Serve the certificate issuance and verification API",
		Long: `certd serves the HTTP API used by wallet frontends:

  POST /api/mint                    issue a certificate (multipart certificateFile)
  POST /api/verify                  verify a file (multipart verifyFile, claimerAddress)
  POST /api/unlock                  view a certificate, decrypting with a wallet signature
  GET  /api/challenge               message the wallet signs to derive its content key
  GET  /api/tokens/{id}             ledger view of one token
  GET  /api/owners/{address}/tokens tokens held by an address
  GET  /api/history/{address}       issuance journal for a recipient

Configuration is read from docanchor.toml (or --config) and DOCANCHOR_* variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), o, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&o.configPath, "config", "c", "", "config file (default: ./docanchor.toml or ~/.docanchor/docanchor.toml)")
	cmd.Flags().StringVar(&o.addr, "addr", "", "listen address, overrides server.addr")
	cmd.Flags().BoolVar(&o.checkOnly, "check", false, "validate configuration, wire services and exit")
	return cmd
}

func serve(parent context.Context, o options, out io.Writer) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
		return errors.WrapKind(errors.KindInput, "log.level", err)
	}
	defer logger.Sync()
	log := logger.Logger.Named("certd")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, casregistry.UsageDaemon, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if o.checkOnly {
		fmt.Fprintln(out, "configuration ok")
		return nil
	}

	scfg := server.Config{
		Issuer:         a.Issuer,
		Verifier:       a.Verifier,
		Derivation:     cfg.Derivation(),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Log:            log.Named("http"),
	}
	if a.Journal != nil {
		scfg.History = a.Journal
	}

	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.Server.Addr)
	}
	hs := &http.Server{
		Handler:      server.New(scfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("listening", "addr", lis.Addr().String())
		if err := hs.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Infow("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		return hs.Shutdown(sctx)
	})
	return g.Wait()
}
