// Package evm talks to the certificate contract on an EVM chain through
// go-ethereum.
package evm

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/registry"
)

// Backend is the chain connection; *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

type Options struct {
	RPCURL   string
	Contract common.Address
	// PrivateKeyHex signs transactions. Without it the client is read-only.
	PrivateKeyHex string
	// ChainID is fetched from the node when nil.
	ChainID *big.Int
	// LegacyMint targets contracts whose mintCertificate takes only
	// (to, uri, hash); such contracts can only register Standard certificates.
	LegacyMint bool
	Log        *zap.SugaredLogger
}

// Client implements registry.Client, registry.Mutator and registry.Enumerator.
// Callers sharing one signing key should wrap it in registry.Serialized.
type Client struct {
	backend  Backend
	contract *bind.BoundContract
	legacy   *bind.BoundContract
	abi      abi.ABI
	from     common.Address
	auth     *bind.TransactOpts
	log      *zap.SugaredLogger
	closeFn  func()
}

var (
	_ registry.Client     = (*Client)(nil)
	_ registry.Mutator    = (*Client)(nil)
	_ registry.Enumerator = (*Client)(nil)
)

// Dial connects to opts.RPCURL.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.RPCURL == "" {
		return nil, errors.Input("evm: rpc url is required")
	}
	ec, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, errors.WrapKind(errors.KindInternal, "evm: dial "+opts.RPCURL, err)
	}
	c, err := New(ctx, ec, opts)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closeFn = ec.Close
	return c, nil
}

// New binds the contract on an existing backend.
func New(ctx context.Context, backend Backend, opts Options) (*Client, error) {
	if opts.Contract == (common.Address{}) {
		return nil, errors.Input("evm: contract address is required")
	}
	parsed, err := abi.JSON(strings.NewReader(CertificateABI))
	if err != nil {
		return nil, errors.WrapKind(errors.KindInternal, "evm: parse abi", err)
	}
	c := &Client{
		backend:  backend,
		abi:      parsed,
		contract: bind.NewBoundContract(opts.Contract, parsed, backend, backend, backend),
		log:      logger.Or(opts.Log),
	}
	if opts.LegacyMint {
		legacyABI, err := abi.JSON(strings.NewReader(LegacyMintABI))
		if err != nil {
			return nil, errors.WrapKind(errors.KindInternal, "evm: parse legacy abi", err)
		}
		c.legacy = bind.NewBoundContract(opts.Contract, legacyABI, backend, backend, backend)
	}
	if opts.PrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKeyHex, "0x"))
		if err != nil {
			return nil, errors.Input("evm: malformed private key")
		}
		if err := c.setSigner(ctx, key, opts.ChainID); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) setSigner(ctx context.Context, key *ecdsa.PrivateKey, chainID *big.Int) error {
	if chainID == nil {
		id, err := c.backend.ChainID(ctx)
		if err != nil {
			return errors.WrapKind(errors.KindInternal, "evm: chain id", err)
		}
		chainID = id
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return errors.WrapKind(errors.KindInternal, "evm: transactor", err)
	}
	c.auth = auth
	c.from = auth.From
	return nil
}

// From is the signing account, zero for a read-only client.
func (c *Client) From() common.Address { return c.from }

func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) LookupByHash(ctx context.Context, key hashing.LedgerKey) (registry.TokenID, error) {
	out, err := c.call(ctx, "hashToTokenId", [32]byte(key))
	if err != nil {
		return registry.NoToken, classifyCall("hashToTokenId", err)
	}
	return toTokenID(out[0])
}

func (c *Client) LookupOwner(ctx context.Context, id registry.TokenID) (common.Address, error) {
	if id == registry.NoToken {
		return common.Address{}, registry.UnknownID(id)
	}
	out, err := c.call(ctx, "ownerOf", tokenArg(id))
	if err != nil {
		return common.Address{}, unknownOnRevert(id, classifyCall("ownerOf", err))
	}
	return out[0].(common.Address), nil
}

func (c *Client) LookupURI(ctx context.Context, id registry.TokenID) (string, error) {
	if id == registry.NoToken {
		return "", registry.UnknownID(id)
	}
	out, err := c.call(ctx, "tokenURI", tokenArg(id))
	if err != nil {
		return "", unknownOnRevert(id, classifyCall("tokenURI", err))
	}
	return out[0].(string), nil
}

func (c *Client) LookupDetails(ctx context.Context, id registry.TokenID) (registry.Details, error) {
	if id == registry.NoToken {
		return registry.Details{}, registry.UnknownID(id)
	}
	out, err := c.call(ctx, "tokenDetails", tokenArg(id))
	if err != nil {
		err = classifyCall("tokenDetails", err)
		if errors.IsKind(err, errors.KindLedgerRevert) || errors.Is(err, bind.ErrNoCode) {
			return registry.Details{}, errors.Wrap(registry.ErrDetailsUnsupported, err.Error())
		}
		return registry.Details{}, err
	}
	value := out[2].(*big.Int)
	if !value.IsUint64() {
		return registry.Details{}, errors.Ef(errors.KindInternal, "evm: token %d value %s overflows uint64", id, value)
	}
	return registry.Details{
		Code:     descriptor.Code(out[0].(uint8)),
		CoOwner:  out[1].(common.Address),
		Value:    value.Uint64(),
		Redeemed: out[3].(bool),
	}, nil
}

func (c *Client) TokensOf(ctx context.Context, owner common.Address) ([]registry.TokenID, error) {
	out, err := c.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, classifyCall("balanceOf", err)
	}
	n := out[0].(*big.Int)
	if !n.IsInt64() {
		return nil, errors.E(errors.KindInternal, "evm: balance overflows")
	}
	ids := make([]registry.TokenID, 0, n.Int64())
	for i := int64(0); i < n.Int64(); i++ {
		out, err := c.call(ctx, "tokenOfOwnerByIndex", owner, big.NewInt(i))
		if err != nil {
			return nil, classifyCall("tokenOfOwnerByIndex", err)
		}
		id, err := toTokenID(out[0])
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) Register(ctx context.Context, r registry.Registration) (registry.Receipt, error) {
	if c.auth == nil {
		return registry.Receipt{}, errors.E(errors.KindInternal, "evm: client has no signing key")
	}
	value := new(big.Int).SetUint64(r.Extras.Value)

	var (
		tx  *types.Transaction
		err error
	)
	if c.legacy != nil {
		if r.Code != descriptor.CodeStandard {
			return registry.Receipt{}, errors.Input("evm: legacy contract only registers standard certificates")
		}
		tx, err = c.legacy.Transact(c.opts(ctx), "mintCertificate", r.To, r.URI, r.HashHex)
	} else {
		tx, err = c.contract.Transact(c.opts(ctx), "mintCertificate",
			r.To, r.URI, r.HashHex, uint8(r.Code), r.Extras.CoOwner, value)
	}
	if err != nil {
		return registry.Receipt{}, c.submitError(ctx, r, err)
	}
	c.log.Infow("registration submitted", "tx", tx.Hash().Hex(), "to", r.To.Hex(), "hash", r.HashHex)

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return registry.Receipt{}, errors.Wrapf(err, "evm: wait for %s", tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		// A competing registration may have landed between estimate and
		// inclusion; the hash index tells.
		if existing, lerr := c.LookupByHash(ctx, r.Key()); lerr == nil && existing != registry.NoToken {
			return registry.Receipt{}, errors.WithStack(&errors.AlreadyRegisteredError{ExistingID: uint64(existing), DigestHex: r.HashHex})
		}
		return registry.Receipt{}, errors.Ef(errors.KindLedgerRevert, "transaction %s reverted", tx.Hash().Hex())
	}

	id := c.mintedID(receipt, r.To)
	if id == registry.NoToken {
		if id, err = c.LookupByHash(ctx, r.Key()); err != nil {
			return registry.Receipt{}, err
		}
	}
	return registry.Receipt{ID: id, TxRef: tx.Hash().Hex()}, nil
}

func (c *Client) submitError(ctx context.Context, r registry.Registration, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	reason, ok := RevertReason(err)
	if !ok {
		return errors.WrapKind(errors.KindLedgerRevert, "evm: submit registration", err)
	}
	var existing registry.TokenID
	if registry.IsDuplicateReason(reason) {
		existing, _ = c.LookupByHash(ctx, r.Key())
	}
	return registry.ClassifyRevert(reason, r.HashHex, existing)
}

// mintedID reads the token id from the ERC-721 Transfer(0, to, id) log.
func (c *Client) mintedID(receipt *types.Receipt, to common.Address) registry.TokenID {
	ev, ok := c.abi.Events["Transfer"]
	if !ok {
		return registry.NoToken
	}
	for _, lg := range receipt.Logs {
		if len(lg.Topics) != 4 || lg.Topics[0] != ev.ID {
			continue
		}
		if common.BytesToAddress(lg.Topics[1].Bytes()) != (common.Address{}) ||
			common.BytesToAddress(lg.Topics[2].Bytes()) != to {
			continue
		}
		n := new(big.Int).SetBytes(lg.Topics[3].Bytes())
		if n.IsUint64() {
			return registry.TokenID(n.Uint64())
		}
	}
	return registry.NoToken
}

func (c *Client) Transfer(ctx context.Context, from, to common.Address, id registry.TokenID) (string, error) {
	return c.transact(ctx, "safeTransferFrom", from, to, tokenArg(id))
}

func (c *Client) Burn(ctx context.Context, id registry.TokenID) (string, error) {
	return c.transact(ctx, "burn", tokenArg(id))
}

func (c *Client) Redeem(ctx context.Context, id registry.TokenID) (string, error) {
	return c.transact(ctx, "redeem", tokenArg(id))
}

func (c *Client) transact(ctx context.Context, method string, args ...any) (string, error) {
	if c.auth == nil {
		return "", errors.E(errors.KindInternal, "evm: client has no signing key")
	}
	tx, err := c.contract.Transact(c.opts(ctx), method, args...)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}
		if reason, ok := RevertReason(err); ok {
			return "", errors.E(errors.KindLedgerRevert, reason)
		}
		return "", errors.WrapKind(errors.KindLedgerRevert, "evm: "+method, err)
	}
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return "", errors.Wrapf(err, "evm: wait for %s", tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", errors.Ef(errors.KindLedgerRevert, "%s transaction %s reverted", method, tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

func (c *Client) opts(ctx context.Context) *bind.TransactOpts {
	o := *c.auth
	o.Context = ctx
	return &o
}

func tokenArg(id registry.TokenID) *big.Int { return new(big.Int).SetUint64(uint64(id)) }

func toTokenID(v any) (registry.TokenID, error) {
	n, ok := v.(*big.Int)
	if !ok || n.Sign() < 0 || !n.IsUint64() {
		return registry.NoToken, errors.Ef(errors.KindInternal, "evm: unexpected token id %v", v)
	}
	return registry.TokenID(n.Uint64()), nil
}

// RevertReason extracts the revert reason from a node error.
func RevertReason(err error) (string, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if b, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(b); uerr == nil {
					return reason, true
				}
			}
		}
	}
	msg := err.Error()
	i := strings.Index(msg, "execution reverted")
	if i < 0 {
		return "", false
	}
	reason := strings.TrimPrefix(msg[i:], "execution reverted")
	return strings.TrimLeft(reason, ": "), true
}

func classifyCall(method string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, bind.ErrNoCode) {
		return errors.WrapKind(errors.KindLedgerRevert, "evm: no contract code", err)
	}
	if reason, ok := RevertReason(err); ok {
		return errors.E(errors.KindLedgerRevert, reason)
	}
	return errors.WrapKind(errors.KindInternal, "evm: "+method, err)
}

func unknownOnRevert(id registry.TokenID, err error) error {
	if errors.IsKind(err, errors.KindLedgerRevert) {
		return registry.UnknownID(id)
	}
	return err
}
