// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package eth

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultGasPrice is used when the network cannot suggest a gas price.
var DefaultGasPrice = new(big.Int).SetUint64(20 * GweiFactor)

// NetworkOracle provides the fee and nonce estimates needed to build
// transactions. *ethclient.Client satisfies NetworkOracle.
type NetworkOracle interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Builder builds unsigned legacy transactions.
type Builder struct {
	oracle  NetworkOracle
	chainID *big.Int
	net     dex.Network
	log     dex.Logger
}

// NewBuilder is the constructor for a *Builder.
func NewBuilder(oracle NetworkOracle, chainID *big.Int, net dex.Network, logger dex.Logger) *Builder {
	return &Builder{
		oracle:  oracle,
		chainID: chainID,
		net:     net,
		log:     logger,
	}
}

func (b *Builder) gasPrice(ctx context.Context) *big.Int {
	gp, err := b.oracle.SuggestGasPrice(ctx)
	if err != nil || gp == nil || gp.Sign() <= 0 {
		b.log.Warnf("Gas price unavailable, using default %s wei: %v", DefaultGasPrice, err)
		return new(big.Int).Set(DefaultGasPrice)
	}
	return gp
}

// nonce chains from prev when it was built for the same sender. Otherwise
// the network's pending nonce is used. A nil return means the nonce is
// unknown.
func (b *Builder) nonce(ctx context.Context, from common.Address, prev *asset.UnsignedTx) *uint64 {
	if prev != nil && prev.Account != nil && prev.Account.Nonce != nil && strings.EqualFold(prev.From, from.Hex()) {
		n := *prev.Account.Nonce + 1
		return &n
	}
	n, err := b.oracle.PendingNonceAt(ctx, from)
	if err != nil {
		b.log.Errorf("Error fetching pending nonce for %s: %v", from, err)
		return nil
	}
	return &n
}

// fallbackGas is the gas used when estimation fails.
func fallbackGas(a *dex.Asset) uint64 {
	if a.IsToken() {
		if a.Token.Gas.Transfer > 0 {
			return a.Token.Gas.Transfer
		}
		return DefaultTransferGas
	}
	return DefaultSendGas
}

// Build creates an unsigned transaction paying out from the address. Token
// transfers call the contract with zero value. The returned transaction has
// passed required-field validation.
func (b *Builder) Build(ctx context.Context, from common.Address, a *dex.Asset, out *asset.Output, prev *asset.UnsignedTx) (*asset.UnsignedTx, error) {
	if !common.IsHexAddress(out.Address) {
		return nil, fmt.Errorf("invalid recipient address %q", out.Address)
	}
	if out.Amount == nil || out.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %v", out.Amount)
	}
	recipient := common.HexToAddress(out.Address)

	acctTx := &asset.AccountTx{
		ChainID:  b.chainID,
		GasPrice: b.gasPrice(ctx),
		Nonce:    b.nonce(ctx, from, prev),
	}
	if a.IsToken() {
		contract := a.Token.ContractAddress(b.net)
		if contract == "" {
			return nil, dex.NewError(asset.ErrUnsupportedAsset, fmt.Sprintf("%s has no contract on %s", a.Symbol, b.net))
		}
		data, err := transferData(recipient, out.Amount)
		if err != nil {
			return nil, fmt.Errorf("error encoding transfer: %w", err)
		}
		acctTx.To = common.HexToAddress(contract).Hex()
		acctTx.Value = new(big.Int)
		acctTx.Data = data
	} else {
		acctTx.To = recipient.Hex()
		acctTx.Value = new(big.Int).Set(out.Amount)
	}

	to := common.HexToAddress(acctTx.To)
	gas, err := b.oracle.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &to,
		GasPrice: acctTx.GasPrice,
		Value:    acctTx.Value,
		Data:     acctTx.Data,
	})
	if err != nil || gas == 0 {
		gas = fallbackGas(a)
		b.log.Debugf("Gas estimate unavailable for %s send, using %d: %v", a.Symbol, gas, err)
	}
	acctTx.Gas = gas

	utx := &asset.UnsignedTx{
		Symbol:    a.Symbol,
		From:      from.Hex(),
		Outputs:   []*asset.Output{{Address: recipient.Hex(), Amount: new(big.Int).Set(out.Amount)}},
		FeeSymbol: a.FeeSymbol(),
		Account:   acctTx,
	}
	if err := ValidateRequired(utx); err != nil {
		return nil, err
	}
	utx.Fee = new(big.Int).Mul(acctTx.GasPrice, new(big.Int).SetUint64(acctTx.Gas))
	if utx.Payload, err = types.NewTx(legacyTx(acctTx)).MarshalBinary(); err != nil {
		return nil, fmt.Errorf("error encoding transaction: %w", err)
	}
	return utx, nil
}

func legacyTx(t *asset.AccountTx) *types.LegacyTx {
	to := common.HexToAddress(t.To)
	return &types.LegacyTx{
		Nonce:    *t.Nonce,
		GasPrice: t.GasPrice,
		Gas:      t.Gas,
		To:       &to,
		Value:    t.Value,
		Data:     t.Data,
	}
}

// ValidateRequired checks that every field needed for signing is set.
func ValidateRequired(utx *asset.UnsignedTx) error {
	t := utx.Account
	if t == nil {
		return dex.NewError(asset.ErrMissingTxField, "not an account-model transaction")
	}
	var missing []string
	if utx.From == "" {
		missing = append(missing, "from")
	}
	if t.To == "" {
		missing = append(missing, "to")
	}
	if t.Value == nil {
		missing = append(missing, "value")
	}
	if t.ChainID == nil {
		missing = append(missing, "chainId")
	}
	if t.GasPrice == nil {
		missing = append(missing, "gasPrice")
	}
	if t.Gas == 0 {
		missing = append(missing, "gas")
	}
	if t.Nonce == nil {
		missing = append(missing, "nonce")
	}
	if len(missing) > 0 {
		return dex.NewError(asset.ErrMissingTxField, strings.Join(missing, ", "))
	}
	return nil
}
