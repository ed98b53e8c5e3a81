package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
	"docanchor.dev/docanchor/issuance"
	"docanchor.dev/docanchor/keys"
	"docanchor.dev/docanchor/model"
	"docanchor.dev/docanchor/registry"
)

type hashOutput struct {
	Digest    string `json:"digest"`
	LedgerKey string `json:"ledgerKey"`
	CID       string `json:"cid"`
}

func newHashCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file>",
		Short: "Print a file's certificate hash, ledger key and raw CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readInput(args[0])
			if err != nil {
				return err
			}
			d := hashing.Sum(b)
			o := hashOutput{Digest: d.Prefixed(), LedgerKey: d.Key().String(), CID: cidutil.CIDv1RawSHA256(b)}
			return g.print(cmd.OutOrStdout(), o, func(w io.Writer) {
				fmt.Fprintf(w, "digest     %s\nledger-key %s\ncid        %s\n", o.Digest, o.LedgerKey, o.CID)
			})
		},
	}
}

type variantFlags struct {
	kind         string
	studentName  string
	program      string
	issuer       string
	issuedDate   string
	primaryOwner string
	coOwner      string
	signedDate   string
	issuerName   string
	value        uint64
	currency     string
	redeemable   bool
}

func (v *variantFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&v.kind, "variant", "standard", "standard, joint or voucher")
	f.StringVar(&v.studentName, "student-name", "", "standard: recipient name")
	f.StringVar(&v.program, "program", "", "standard: program or course")
	f.StringVar(&v.issuer, "issuer", "", "standard: issuing institution")
	f.StringVar(&v.issuedDate, "issued-date", "", "standard: issue date")
	f.StringVar(&v.primaryOwner, "primary-owner", "", "joint: primary owner name")
	f.StringVar(&v.coOwner, "co-owner", "", "joint: co-owner 0x address")
	f.StringVar(&v.signedDate, "signed-date", "", "joint: signing date")
	f.StringVar(&v.issuerName, "issuer-name", "", "voucher: issuer name")
	f.Uint64Var(&v.value, "value", 0, "voucher: value")
	f.StringVar(&v.currency, "currency", "", "voucher: currency")
	f.BoolVar(&v.redeemable, "redeemable", true, "voucher: can be redeemed")
}

func (v *variantFlags) build(f *pflag.FlagSet) (descriptor.Variant, error) {
	code, err := descriptor.ParseKind(v.kind)
	if err != nil {
		return nil, err
	}
	switch code {
	case descriptor.CodeJointOwnership:
		co, err := descriptor.ParseAddress(v.coOwner)
		if err != nil {
			return nil, errors.WithHint(err, "pass --co-owner 0x...")
		}
		return descriptor.JointOwnership{PrimaryOwner: v.primaryOwner, CoOwner: co, SignedDate: v.signedDate}, nil
	case descriptor.CodeVoucher:
		if !f.Changed("value") {
			return nil, errors.WithHint(errors.Input("voucher requires a value"), "pass --value")
		}
		return descriptor.Voucher{IssuerName: v.issuerName, Value: v.value, Currency: v.currency, Redeemable: v.redeemable}, nil
	default:
		return descriptor.Standard{StudentName: v.studentName, Program: v.program, Issuer: v.issuer, IssuedDate: v.issuedDate}, nil
	}
}

func newIssueCmd(g *globals) *cobra.Command {
	var (
		to      string
		fields  descriptor.Fields
		encrypt bool
		vf      variantFlags
		sf      signerFlags
	)
	cmd := &cobra.Command{
		Use:   "issue <file>",
		Short: "Publish a file and register it as a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(args[0])
			if err != nil {
				return err
			}
			variant, err := vf.build(cmd.Flags())
			if err != nil {
				return err
			}
			req := issuance.Request{
				Content:      content,
				FileName:     filepath.Base(args[0]),
				Recipient:    to,
				Variant:      variant,
				Fields:       fields,
				Confidential: encrypt,
			}
			if encrypt || sf.set() {
				if req.Signer, err = sf.signer(g); err != nil {
					return err
				}
			}

			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Issuer.Issue(cmd.Context(), req)
			if err != nil {
				return err
			}
			resp := model.Mint(res)
			return g.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				fmt.Fprintf(w, "token      %s\ntx         %s\nuri        %s\nfile       %s\nencrypted  %t\ndigest     %s\n",
					resp.TokenID, resp.TxHash, resp.TokenURI, resp.FileCID, resp.Encrypted, resp.CertificateHash)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&to, "to", "", "recipient 0x address")
	f.StringVar(&fields.Title, "title", "", "certificate title")
	f.StringVar(&fields.Label, "label", "", "display label (default: the variant's name field)")
	f.StringVar(&fields.Description, "description", "", "description")
	f.StringVar(&fields.ExternalURL, "external-url", "", "external URL")
	f.StringVar(&fields.IssuerAddress, "issuer-address", "", "issuer address recorded in the descriptor")
	f.BoolVar(&encrypt, "encrypt", false, "seal the file with the signer's content key")
	vf.register(cmd)
	sf.register(cmd)
	return cmd
}

func newVerifyCmd(g *globals) *cobra.Command {
	var claimant string
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check whether a file is a registered certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(args[0])
			if err != nil {
				return err
			}
			var claim *common.Address
			if claimant != "" {
				addr, err := descriptor.ParseAddress(claimant)
				if err != nil {
					return err
				}
				claim = &addr
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.Verifier.Verify(cmd.Context(), content, claim)
			if err != nil {
				return err
			}
			resp := model.Verify(res)
			return g.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				fmt.Fprintf(w, "verified   %t\ndigest     %s\n", resp.Verified, resp.CertificateHash)
				if !resp.Verified {
					return
				}
				fmt.Fprintf(w, "token      %s\nowner      %s\n", resp.TokenID, resp.CurrentOwner)
				if resp.IsYourCert != nil {
					fmt.Fprintf(w, "claimant   %t\n", *resp.IsYourCert)
				}
				if resp.Details != nil {
					fmt.Fprintf(w, "variant    %s\n", resp.Details.Label)
				}
				for _, warn := range resp.Warnings {
					fmt.Fprintf(w, "warning    %s\n", warn)
				}
			})
		},
	}
	cmd.Flags().StringVar(&claimant, "claimant", "", "address claiming ownership")
	return cmd
}

func newUnlockCmd(g *globals) *cobra.Command {
	var (
		outPath string
		sf      signerFlags
	)
	cmd := &cobra.Command{
		Use:   "unlock <token-id>",
		Short: "Fetch a certificate's file, decrypting it when sealed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := registry.ParseTokenID(args[0])
			if err != nil {
				return err
			}
			if outPath == "" && !g.jsonOut {
				return errors.WithHint(errors.Input("refusing to write binary content to the terminal"), "pass --out <file> or --json")
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			var signer keys.Signer
			if sf.set() {
				if signer, err = sf.signer(g); err != nil {
					return err
				}
			}
			u, err := a.Verifier.Unlock(cmd.Context(), id, signer)
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := os.WriteFile(outPath, u.Content, 0o600); err != nil {
					return errors.Wrapf(err, "write %s", outPath)
				}
			}
			resp := model.Unlock(u, "")
			if outPath != "" {
				resp.Content = nil
			}
			return g.print(cmd.OutOrStdout(), resp, func(w io.Writer) {
				fmt.Fprintf(w, "token      %s\nencrypted  %t\nwrote      %s (%d bytes)\n", resp.TokenID, resp.Encrypted, outPath, len(u.Content))
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the file here")
	sf.register(cmd)
	return cmd
}

// readInput reads a file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return b, errors.Wrap(err, "read stdin")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Input("file %s does not exist", path)
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return b, nil
}
