package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/journal"
	"docanchor.dev/docanchor/model"
	"docanchor.dev/docanchor/registry"
)

func newTokenCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and manage registered tokens",
	}

	show := &cobra.Command{
		Use:   "show <token-id>",
		Short: "Print a token's owner, details and descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := registry.ParseTokenID(args[0])
			if err != nil {
				return err
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			t, err := a.Verifier.Token(cmd.Context(), id)
			if err != nil {
				return err
			}
			resp := model.Token(t)
			return g.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				fmt.Fprintf(w, "token      %s\nowner      %s\nuri        %s\nvariant    %s\nredeemed   %t\n",
					resp.TokenID, resp.Owner, resp.TokenURI, resp.Details.Label, resp.Details.Redeemed)
				if resp.Descriptor != nil {
					fmt.Fprintf(w, "name       %s\n", resp.Descriptor.Name)
				}
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <owner-address>",
		Short: "List the tokens held by an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := descriptor.ParseAddress(args[0])
			if err != nil {
				return err
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			held, err := a.Verifier.Portfolio(cmd.Context(), owner)
			if err != nil {
				return err
			}
			resp := model.PortfolioResponse{Owner: owner.Hex(), Tokens: make([]model.TokenResponse, 0, len(held))}
			for _, t := range held {
				resp.Tokens = append(resp.Tokens, model.Token(t))
			}
			return g.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				for _, t := range resp.Tokens {
					fmt.Fprintf(w, "%s\t%s\t%s\n", t.TokenID, t.Details.Label, t.TokenURI)
				}
			})
		},
	}

	var from, to string
	transfer := &cobra.Command{
		Use:   "transfer <token-id>",
		Short: "Transfer a token; the ledger key must be allowed to move it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromAddr, err := descriptor.ParseAddress(from)
			if err != nil {
				return errors.Wrap(err, "--from")
			}
			toAddr, err := descriptor.ParseAddress(to)
			if err != nil {
				return errors.Wrap(err, "--to")
			}
			return g.mutate(cmd, args[0], func(m registry.Mutator, id registry.TokenID) (string, error) {
				return m.Transfer(cmd.Context(), fromAddr, toAddr, id)
			})
		},
	}
	transfer.Flags().StringVar(&from, "from", "", "current owner")
	transfer.Flags().StringVar(&to, "to", "", "new owner")

	burn := &cobra.Command{
		Use:   "burn <token-id>",
		Short: "Destroy a token; its file will no longer verify",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.mutate(cmd, args[0], func(m registry.Mutator, id registry.TokenID) (string, error) {
				return m.Burn(cmd.Context(), id)
			})
		},
	}

	redeem := &cobra.Command{
		Use:   "redeem <token-id>",
		Short: "Mark a voucher as redeemed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.mutate(cmd, args[0], func(m registry.Mutator, id registry.TokenID) (string, error) {
				return m.Redeem(cmd.Context(), id)
			})
		},
	}

	cmd.AddCommand(show, list, transfer, burn, redeem)
	return cmd
}

func (g *globals) mutate(cmd *cobra.Command, arg string, op func(registry.Mutator, registry.TokenID) (string, error)) error {
	id, err := registry.ParseTokenID(arg)
	if err != nil {
		return err
	}
	a, err := g.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	tx, err := op(a.Mutator(), id)
	if err != nil {
		return err
	}
	resp := model.TxResponse{Success: true, TokenID: id.String(), TxHash: tx}
	return g.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
		fmt.Fprintln(w, tx)
	})
}

func newHistoryCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <recipient-address>",
		Short: "List journaled issuance attempts for a recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := descriptor.ParseAddress(args[0])
			if err != nil {
				return err
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Journal == nil {
				return errors.WithHint(errors.E(errors.KindNotFound, "issuance history is not recorded"),
					"set [journal] enabled = true")
			}
			entries, err := a.Journal.ListByRecipient(cmd.Context(), addr.Hex(), limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []journal.Entry{}
			}
			resp := model.HistoryResponse{Address: addr.Hex(), Entries: entries}
			return g.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", e.CreatedAt.Format(time.RFC3339), e.AttemptID, e.Status, e.Stage, e.TokenID)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries; 0 for all")
	return cmd
}
