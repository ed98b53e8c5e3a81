package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/keys"
)

func newKeyCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage signing seeds in the local key store",
		Long: `Seeds are 32 bytes stored with 0600 permissions under the key store
directory. One seed backs an EVM address, an Ed25519 key and a Dilithium3 key.`,
	}
	cmd.AddCommand(newKeyInitCmd(g), newKeyDeriveCmd(g), newKeyListCmd(g), newKeyAddressCmd(g))
	return cmd
}

func printIdentity(g *globals, w io.Writer, id keys.Identity) error {
	return g.print(w, id, func(w io.Writer) {
		fmt.Fprintf(w, "evm      %s\ned25519  %s\npath     %s\n", id.EVMAddress, id.Ed25519, id.Path)
	})
}

func newKeyInitCmd(g *globals) *cobra.Command {
	var (
		name    string
		seedHex string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a root seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			var seed []byte
			if seedHex != "" {
				seed, err = keys.ParseSeedHex(seedHex)
			} else {
				seed, err = keys.GenerateSeed(nil)
			}
			if err != nil {
				return err
			}
			id, err := ks.InitializeRootKey(name, seed, force)
			if err != nil {
				return err
			}
			return printIdentity(g, cmd.OutOrStdout(), id)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key identifier")
	cmd.Flags().StringVar(&seedHex, "seed", "", "import this 64-hex-character seed instead of generating one")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing seed")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newKeyDeriveCmd(g *globals) *cobra.Command {
	var (
		from  string
		role  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a role seed from a root seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			id, err := ks.DeriveRole(from, role, force)
			if err != nil {
				return err
			}
			return printIdentity(g, cmd.OutOrStdout(), id)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "root key identifier")
	cmd.Flags().StringVar(&role, "role", "", "role name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing role seed")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newKeyListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored keys and their roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			entries, err := ks.ListKeys()
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []keys.KeyEntry{}
			}
			return g.print(cmd.OutOrStdout(), entries, func(w io.Writer) {
				for _, e := range entries {
					if len(e.Roles) == 0 {
						fmt.Fprintln(w, e.Identifier)
						continue
					}
					fmt.Fprintf(w, "%s\t%s\n", e.Identifier, strings.Join(e.Roles, ","))
				}
			})
		},
	}
}

func newKeyAddressCmd(g *globals) *cobra.Command {
	var (
		name   string
		role   string
		scheme string
	)
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the address of a stored key for one signature scheme",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := g.keyStore()
			if err != nil {
				return err
			}
			s, err := ks.SignerFor(name, role, keys.Scheme(scheme))
			if err != nil {
				return err
			}
			addr, err := s.Address(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "address")
			}
			return g.print(cmd.OutOrStdout(), map[string]string{"scheme": scheme, "address": addr}, func(w io.Writer) {
				fmt.Fprintln(w, addr)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key identifier")
	cmd.Flags().StringVar(&role, "role", "", "derived role")
	cmd.Flags().StringVar(&scheme, "scheme", string(keys.SchemeEVM), "evm, ed25519 or dilithium3")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
