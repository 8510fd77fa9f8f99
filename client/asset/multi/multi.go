// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package multi provides a wallet that spans several chains, e.g. a
// hardware device holding both BTC and ETH keys. Every call is dispatched to
// the member wallet supporting the asset.
package multi

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex"
)

// WalletType is the wallets file type of a multi-chain wallet.
const WalletType = "multi"

// Wallet is an asset.Aggregator.
type Wallet struct {
	id      string
	label   string
	members []asset.Wallet
	log     dex.Logger

	signedMtx sync.Mutex
	signedBy  map[string]asset.Wallet
}

var _ asset.Aggregator = (*Wallet)(nil)

// New creates a multi-chain wallet. Members are consulted in order, so the
// first member supporting an asset handles it.
func New(id, label string, logger dex.Logger, members ...asset.Wallet) (*Wallet, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("multi wallet %s has no members", id)
	}
	for _, m := range members {
		if m == nil {
			return nil, fmt.Errorf("multi wallet %s has a nil member", id)
		}
	}
	return &Wallet{
		id:       id,
		label:    label,
		members:  members,
		log:      logger,
		signedBy: make(map[string]asset.Wallet),
	}, nil
}

func (w *Wallet) ID() string         { return w.id }
func (w *Wallet) Label() string      { return w.label }
func (w *Wallet) Model() asset.Model { return asset.ModelMulti }

// Resolve is the member wallet for the asset.
func (w *Wallet) Resolve(symbol string) (asset.Wallet, error) {
	for _, m := range w.members {
		if m.Supports(symbol) {
			return m, nil
		}
	}
	return nil, dex.NewError(asset.ErrUnsupportedAsset, fmt.Sprintf("%s wallet %q", symbol, w.label))
}

// Members returns the member wallets.
func (w *Wallet) Members() []asset.Wallet {
	return w.members
}

func (w *Wallet) Supports(symbol string) bool {
	_, err := w.Resolve(symbol)
	return err == nil
}

func (w *Wallet) Address(symbol string) (string, error) {
	m, err := w.Resolve(symbol)
	if err != nil {
		return "", err
	}
	return m.Address(symbol)
}

func (w *Wallet) Balance(ctx context.Context, symbol string) (*big.Int, error) {
	m, err := w.Resolve(symbol)
	if err != nil {
		return nil, err
	}
	return m.Balance(ctx, symbol)
}

func (w *Wallet) FeeSymbol(symbol string) string {
	m, err := w.Resolve(symbol)
	if err != nil {
		return symbol
	}
	return m.FeeSymbol(symbol)
}

func (w *Wallet) EstimateFee(ctx context.Context, symbol string, amount *big.Int) (*big.Int, error) {
	m, err := w.Resolve(symbol)
	if err != nil {
		return nil, err
	}
	return m.EstimateFee(ctx, symbol, amount)
}

func (w *Wallet) BuildTransaction(ctx context.Context, req *asset.TxRequest) (*asset.UnsignedTx, error) {
	m, err := w.Resolve(req.Symbol)
	if err != nil {
		return nil, err
	}
	return m.BuildTransaction(ctx, req)
}

func (w *Wallet) SupportsAggregateTx(symbol string) bool {
	m, err := w.Resolve(symbol)
	if err != nil {
		return false
	}
	return m.SupportsAggregateTx(symbol)
}

// RequiresPassword is true if any member requires a password.
func (w *Wallet) RequiresPassword() bool {
	for _, m := range w.members {
		if m.RequiresPassword() {
			return true
		}
	}
	return false
}

// Sign signs with the member wallet of the transaction's asset, and
// remembers that member for the broadcast.
func (w *Wallet) Sign(ctx context.Context, tx *asset.UnsignedTx, creds *asset.Credentials) ([]byte, error) {
	m, err := w.Resolve(tx.Symbol)
	if err != nil {
		return nil, err
	}
	signed, err := m.Sign(ctx, tx, creds)
	if err != nil {
		return nil, err
	}
	w.signedMtx.Lock()
	w.signedBy[string(signed)] = m
	w.signedMtx.Unlock()
	return signed, nil
}

// Cancel cancels signing on every member.
func (w *Wallet) Cancel() {
	for _, m := range w.members {
		m.Cancel()
	}
}

// Send broadcasts through the member that signed the transaction.
func (w *Wallet) Send(ctx context.Context, signedTx []byte) (string, error) {
	w.signedMtx.Lock()
	m, found := w.signedBy[string(signedTx)]
	w.signedMtx.Unlock()
	if !found {
		return "", errors.New("transaction was not signed by this wallet")
	}
	hash, err := m.Send(ctx, signedTx)
	if err != nil {
		return "", err
	}
	w.signedMtx.Lock()
	delete(w.signedBy, string(signedTx))
	w.signedMtx.Unlock()
	w.log.Debugf("Multi wallet %s sent %s through %s", w.id, hash, m.ID())
	return hash, nil
}
