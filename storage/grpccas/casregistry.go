package grpccas

import (
	"strconv"
	"strings"
	"time"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client (talks to a casgrpcd daemon)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options: []casregistry.Option{
			{Key: "grpc-target", Usage: "gRPC target host:port (for --backend=grpc)"},
			{Key: "grpc-timeout", Usage: "Per-RPC timeout, e.g. 10s (for --backend=grpc)"},
			{Key: "grpc-max-msg-bytes", Usage: "Max gRPC message size in bytes (send+recv); empty uses grpc defaults"},
		},
		Open: func(cfg casregistry.Config) (storage.CAS, func() error, error) {
			target := strings.TrimSpace(cfg.Get("grpc-target", ""))
			if target == "" {
				return nil, nil, errors.Input("missing --grpc-target")
			}
			var opts DialOptions
			if s := cfg.Get("grpc-max-msg-bytes", ""); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n < 0 {
					return nil, nil, errors.Input("invalid grpc-max-msg-bytes %q", s)
				}
				opts.MaxMsgBytes = n
			}
			client, err := Dial(target, opts)
			if err != nil {
				return nil, nil, err
			}
			if s := cfg.Get("grpc-timeout", ""); s != "" {
				d, err := time.ParseDuration(s)
				if err != nil {
					_ = client.Close()
					return nil, nil, errors.Input("invalid grpc-timeout %q", s)
				}
				client.Timeout = d
			}
			return client, client.Close, nil
		},
	})
}
