// Command casgrpcd serves a content store over gRPC so several certd
// instances can share one backend.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/storage/casregistry"
	"docanchor.dev/docanchor/storage/grpccas"

	_ "docanchor.dev/docanchor/storage/ipfs"
	_ "docanchor.dev/docanchor/storage/localfs"
	_ "docanchor.dev/docanchor/storage/memcas"
	_ "docanchor.dev/docanchor/storage/pinata"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := pflag.NewFlagSet("casgrpcd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	logJSON := fs.Bool("log-json", false, "JSON log output")
	logLevel := fs.String("log-level", "info", "log level")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}
	if err := logger.Initialize(*logJSON, *logLevel); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer logger.Sync()
	log := logger.Logger.Named("casgrpcd")

	cas, closeFn, err := casregistry.OpenWithConfig(*backend, casregistry.UsageDaemon, casregistry.FlagConfig(fs, *backend))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas, Log: log})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Infow("stopping")
		s.GracefulStop()
	}()

	log.Infow("listening", "addr", lis.Addr().String(), "backend", *backend)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}
