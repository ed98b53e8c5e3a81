package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage/bundle"
)

func newCASCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cas",
		Short: "Read and write the configured content store",
	}

	var label string
	put := &cobra.Command{
		Use:   "put <file>",
		Short: "Store a file and print its CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readInput(args[0])
			if err != nil {
				return err
			}
			if label == "" && args[0] != "-" {
				label = filepath.Base(args[0])
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			id, err := a.Store.PublishBlob(cmd.Context(), b, label)
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), map[string]string{"cid": id.String(), "uri": cidutil.URI(id)}, func(w io.Writer) {
				fmt.Fprintln(w, id.String())
			})
		},
	}
	put.Flags().StringVar(&label, "label", "", "store label (default: file name)")

	var outPath string
	get := &cobra.Command{
		Use:   "get <cid|ipfs://cid>",
		Short: "Fetch an object and write it to --out or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cidutil.Parse(args[0])
			if err != nil {
				return err
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			b, err := a.Store.Fetch(cmd.Context(), id)
			if err != nil {
				return err
			}
			if outPath != "" {
				return errors.Wrapf(os.WriteFile(outPath, b, 0o600), "write %s", outPath)
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	get.Flags().StringVarP(&outPath, "out", "o", "", "output file")

	cmd.AddCommand(put, get)
	return cmd
}

func newBundleCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Export and import offline archives of stored objects",
	}

	var (
		outPath string
		labels  map[string]string
		noIndex bool
	)
	export := &cobra.Command{
		Use:   "export <cid>...",
		Short: "Write a deterministic TAR bundle of the given objects",
		Long: `Writes the objects (typically a certificate's file and descriptor) to a TAR
archive. Only raw sha2-256 CIDs are accepted; every object is re-verified
against its CID on export and import.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return errors.Input("--out is required")
			}
			ids := make([]cid.Cid, 0, len(args))
			for _, a := range args {
				id, err := cidutil.Parse(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			opts := bundle.ExportOptions{IncludeIndex: !noIndex, Labels: map[string]cid.Cid{}}
			for name, ref := range labels {
				id, err := cidutil.Parse(ref)
				if err != nil {
					return errors.Wrapf(err, "label %s", name)
				}
				opts.Labels[name] = id
			}

			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			var buf bytes.Buffer
			if err := bundle.Export(cmd.Context(), &buf, a.CAS, ids, opts); err != nil {
				return err
			}
			if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
				return errors.Wrapf(err, "write %s", outPath)
			}
			return g.print(cmd.OutOrStdout(), map[string]any{"path": outPath, "objects": len(ids)}, func(w io.Writer) {
				fmt.Fprintf(w, "wrote %s (%d objects)\n", outPath, len(ids))
			})
		},
	}
	export.Flags().StringVarP(&outPath, "out", "o", "", "bundle path")
	export.Flags().StringToStringVar(&labels, "label", nil, "name=cid label recorded in index.json (repeatable)")
	export.Flags().BoolVar(&noIndex, "no-index", false, "omit index.json")

	var ignoreUnknown bool
	imp := &cobra.Command{
		Use:   "import <bundle.tar>",
		Short: "Store every object of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.WrapKind(errors.KindInput, "open bundle", err)
			}
			defer f.Close()
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			m, err := bundle.ImportWithOptions(cmd.Context(), f, a.CAS, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
			if err != nil {
				return err
			}
			out := struct {
				Blocks []string          `json:"blocks"`
				Labels map[string]string `json:"labels,omitempty"`
			}{Labels: map[string]string{}}
			for _, b := range m.Blocks {
				out.Blocks = append(out.Blocks, b.String())
			}
			for k, v := range m.Labels {
				out.Labels[k] = v.String()
			}
			return g.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				for _, b := range out.Blocks {
					fmt.Fprintln(w, b)
				}
				names := make([]string, 0, len(out.Labels))
				for k := range out.Labels {
					names = append(names, k)
				}
				sort.Strings(names)
				for _, k := range names {
					fmt.Fprintf(w, "%s\t%s\n", k, out.Labels[k])
				}
			})
		},
	}
	imp.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "skip unrecognized archive entries")

	cmd.AddCommand(export, imp)
	return cmd
}
