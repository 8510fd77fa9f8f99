// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex"
	"decred.org/multiswap/dex/calc"
	"github.com/btcsuite/btcd/chaincfg"
)

// Symbol is the ticker of the only asset a btc wallet sends.
const Symbol = "BTC"

// AccountDiscoverer scans an extended public key for its UTXOs and change
// addresses. onUpdate, if non-nil, receives partial results during a long
// scan.
type AccountDiscoverer interface {
	DiscoverAccount(ctx context.Context, descriptor string, net dex.Network, onUpdate func(*asset.UTXOAccount)) (*asset.UTXOAccount, error)
}

// FeeRater provides fee rate estimates in sat/vB.
type FeeRater interface {
	FeeRate(ctx context.Context) (uint64, error)
}

// Config is the configuration of a UTXO wallet.
type Config struct {
	ID               string
	Label            string
	Net              dex.Network
	Descriptor       string
	Segwit           bool
	DustThreshold    uint64
	FallbackFeeRate  uint64
	RequiresPassword bool
	Discoverer       AccountDiscoverer
	FeeRater         FeeRater
	Signer           asset.Signer
	Broadcaster      asset.Broadcaster
	// Receipts is optional.
	Receipts asset.ReceiptFetcher
}

// Wallet is a UTXO-model wallet for an extended-key account whose keys
// are held by an external signer.
type Wallet struct {
	cfg    *Config
	params *chaincfg.Params
	log    dex.Logger

	acctMtx sync.RWMutex
	acct    *asset.UTXOAccount
}

var (
	_ asset.Wallet         = (*Wallet)(nil)
	_ asset.ReceiptFetcher = (*Wallet)(nil)
)

// NetParams returns the chain parameters for the network.
func NetParams(net dex.Network) (*chaincfg.Params, error) {
	switch net {
	case dex.Mainnet:
		return &chaincfg.MainNetParams, nil
	case dex.Testnet:
		return &chaincfg.TestNet3Params, nil
	case dex.Regtest:
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown network %d", net)
}

// NewWallet is the constructor for a *Wallet.
func NewWallet(cfg *Config, logger dex.Logger) (*Wallet, error) {
	params, err := NetParams(cfg.Net)
	if err != nil {
		return nil, err
	}
	if cfg.Discoverer == nil || cfg.Signer == nil || cfg.Broadcaster == nil {
		return nil, fmt.Errorf("wallet %s: discoverer, signer and broadcaster are required", cfg.ID)
	}
	if cfg.DustThreshold == 0 {
		cfg.DustThreshold = calc.DefaultDustThreshold
	}
	return &Wallet{
		cfg:    cfg,
		params: params,
		log:    logger,
	}, nil
}

func (w *Wallet) ID() string             { return w.cfg.ID }
func (w *Wallet) Label() string          { return w.cfg.Label }
func (w *Wallet) Model() asset.Model     { return asset.ModelUTXO }
func (w *Wallet) RequiresPassword() bool { return w.cfg.RequiresPassword }

// Supports is true only for BTC.
func (w *Wallet) Supports(symbol string) bool {
	return symbol == Symbol
}

// FeeSymbol is BTC.
func (w *Wallet) FeeSymbol(string) string {
	return Symbol
}

// SupportsAggregateTx is true. A single transaction can pay any number of
// deposit addresses.
func (w *Wallet) SupportsAggregateTx(symbol string) bool {
	return w.Supports(symbol)
}

func (w *Wallet) checkSymbol(symbol string) error {
	if !w.Supports(symbol) {
		return dex.NewError(asset.ErrUnsupportedAsset, fmt.Sprintf("%s wallet %q", symbol, w.cfg.Label))
	}
	return nil
}

// refreshAccount runs discovery and caches the result.
func (w *Wallet) refreshAccount(ctx context.Context) (*asset.UTXOAccount, error) {
	acct, err := w.cfg.Discoverer.DiscoverAccount(ctx, w.cfg.Descriptor, w.cfg.Net, func(partial *asset.UTXOAccount) {
		w.log.Tracef("Wallet %s: discovered %d UTXOs so far", w.cfg.ID, len(partial.UTXOs))
	})
	if err != nil {
		return nil, fmt.Errorf("account discovery failed: %w", err)
	}
	w.acctMtx.Lock()
	w.acct = acct
	w.acctMtx.Unlock()
	w.log.Debugf("Wallet %s: account has %d UTXOs, balance %d", w.cfg.ID, len(acct.UTXOs), acct.Balance())
	return acct, nil
}

// account returns the cached account, discovering it if necessary.
func (w *Wallet) account(ctx context.Context) (*asset.UTXOAccount, error) {
	w.acctMtx.RLock()
	acct := w.acct
	w.acctMtx.RUnlock()
	if acct != nil {
		return acct, nil
	}
	return w.refreshAccount(ctx)
}

// Address is the account's first external address.
func (w *Wallet) Address(symbol string) (string, error) {
	if err := w.checkSymbol(symbol); err != nil {
		return "", err
	}
	w.acctMtx.RLock()
	defer w.acctMtx.RUnlock()
	if w.acct == nil || w.acct.Address == "" {
		return "", fmt.Errorf("wallet %s: account not yet discovered", w.cfg.ID)
	}
	return w.acct.Address, nil
}

// Balance rediscovers the account and sums its UTXOs.
func (w *Wallet) Balance(ctx context.Context, symbol string) (*big.Int, error) {
	if err := w.checkSymbol(symbol); err != nil {
		return nil, err
	}
	acct, err := w.refreshAccount(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(acct.Balance()), nil
}

func (w *Wallet) feeRate(ctx context.Context) uint64 {
	if w.cfg.FeeRater != nil {
		r, err := w.cfg.FeeRater.FeeRate(ctx)
		if err == nil && r > 0 {
			return r
		}
		w.log.Warnf("Wallet %s: fee rate unavailable, using fallback %d sat/vB: %v", w.cfg.ID, w.cfg.FallbackFeeRate, err)
	}
	return w.cfg.FallbackFeeRate
}

func toSatoshi(v *big.Int) (uint64, error) {
	if v == nil || v.Sign() <= 0 || !v.IsUint64() {
		return 0, fmt.Errorf("invalid amount %v", v)
	}
	return v.Uint64(), nil
}

// EstimateFee is the fee for a one-output send of amount. If the account
// cannot fund the send, the fee for a one-input transaction is returned and
// the shortfall is left to the caller's balance check.
func (w *Wallet) EstimateFee(ctx context.Context, symbol string, amount *big.Int) (*big.Int, error) {
	if err := w.checkSymbol(symbol); err != nil {
		return nil, err
	}
	v, err := toSatoshi(amount)
	if err != nil {
		return nil, err
	}
	acct, err := w.account(ctx)
	if err != nil {
		return nil, err
	}
	rate := w.feeRate(ctx)
	sel, err := SelectInputsAndFee(acct, []*Payment{{Value: v}}, rate, w.cfg.Segwit, w.cfg.DustThreshold)
	if err != nil {
		return new(big.Int).SetUint64(calc.TxFee(1, 2, rate, w.cfg.Segwit)), nil
	}
	return new(big.Int).SetUint64(sel.Fee), nil
}

// BuildTransaction selects inputs for the outputs and returns the PSBT. The
// inputs of req.Previous are excluded from selection.
func (w *Wallet) BuildTransaction(ctx context.Context, req *asset.TxRequest) (*asset.UnsignedTx, error) {
	if err := w.checkSymbol(req.Symbol); err != nil {
		return nil, err
	}
	payments := make([]*Payment, 0, len(req.Outputs))
	for _, o := range req.Outputs {
		v, err := toSatoshi(o.Amount)
		if err != nil {
			return nil, fmt.Errorf("output to %s: %w", o.Address, err)
		}
		payments = append(payments, &Payment{Address: o.Address, Value: v})
	}
	acct, err := w.refreshAccount(ctx)
	if err != nil {
		return nil, err
	}
	if req.Previous != nil && req.Previous.UTXO != nil {
		acct = excludeSpent(acct, req.Previous.UTXO.Inputs)
	}
	sel, err := SelectInputsAndFee(acct, payments, w.feeRate(ctx), w.cfg.Segwit, w.cfg.DustThreshold)
	if err != nil {
		return nil, err
	}
	payload, err := BuildPSBT(sel, w.params, w.cfg.Segwit)
	if err != nil {
		return nil, err
	}
	outputs := make([]*asset.Output, 0, len(sel.Outputs))
	for _, p := range sel.Outputs {
		outputs = append(outputs, &asset.Output{Address: p.Address, Amount: new(big.Int).SetUint64(p.Value)})
	}
	w.log.Debugf("Wallet %s: built tx with %d inputs, %d outputs, fee %d, change %d",
		w.cfg.ID, len(sel.Inputs), len(outputs), sel.Fee, sel.Change)
	return &asset.UnsignedTx{
		Symbol:    Symbol,
		From:      acct.Address,
		Outputs:   outputs,
		Fee:       new(big.Int).SetUint64(sel.Fee),
		FeeSymbol: Symbol,
		Payload:   payload,
		UTXO: &asset.UTXOTx{
			Inputs:        sel.Inputs,
			Change:        sel.Change,
			ChangeAddress: sel.ChangeAddress,
			ChangePath:    sel.ChangePath,
			Segwit:        w.cfg.Segwit,
		},
	}, nil
}

func excludeSpent(acct *asset.UTXOAccount, spent []*asset.UTXO) *asset.UTXOAccount {
	type outpoint struct {
		hash string
		vout uint32
	}
	used := make(map[outpoint]bool, len(spent))
	for _, u := range spent {
		used[outpoint{u.TxHash, u.Vout}] = true
	}
	cp := *acct
	cp.UTXOs = make([]*asset.UTXO, 0, len(acct.UTXOs))
	for _, u := range acct.UTXOs {
		if !used[outpoint{u.TxHash, u.Vout}] {
			cp.UTXOs = append(cp.UTXOs, u)
		}
	}
	// The previous transaction consumed a change address.
	cp.ChangeIndex++
	return &cp
}

// Sign signs the PSBT with the configured signer.
func (w *Wallet) Sign(ctx context.Context, tx *asset.UnsignedTx, creds *asset.Credentials) ([]byte, error) {
	if err := w.checkSymbol(tx.Symbol); err != nil {
		return nil, err
	}
	if w.cfg.RequiresPassword && (creds == nil || creds.Password == "") {
		return nil, asset.ErrNoCredentials
	}
	return w.cfg.Signer.Sign(ctx, tx, creds)
}

// Cancel aborts an in-flight signing request.
func (w *Wallet) Cancel() {
	w.cfg.Signer.Cancel()
}

// Send broadcasts the signed transaction.
func (w *Wallet) Send(ctx context.Context, signedTx []byte) (string, error) {
	return w.cfg.Broadcaster.Send(ctx, signedTx)
}

// Receipt reports the confirmations of a sent transaction.
func (w *Wallet) Receipt(ctx context.Context, txHash string) (*asset.Receipt, error) {
	if w.cfg.Receipts == nil {
		return nil, dex.NewError(asset.ErrNoReceipts, "wallet "+w.cfg.ID)
	}
	return w.cfg.Receipts.Receipt(ctx, txHash)
}
