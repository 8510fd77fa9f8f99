// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client is the node API used by the wallet. *ethclient.Client satisfies
// Client.
type Client interface {
	NetworkOracle
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config is the configuration of an account-model wallet.
type Config struct {
	ID               string
	Label            string
	Net              dex.Network
	Address          common.Address
	ChainID          *big.Int
	Assets           []*dex.Asset
	RequiresPassword bool
	Client           Client
	Signer           asset.Signer
}

// Wallet is an account-model wallet for ETH and its tokens. Each swap gets
// its own transaction, so nonces are chained by the caller through
// TxRequest.Previous.
type Wallet struct {
	cfg     *Config
	builder *Builder
	assets  map[string]*dex.Asset
	log     dex.Logger
}

var (
	_ asset.Wallet         = (*Wallet)(nil)
	_ asset.ReceiptFetcher = (*Wallet)(nil)
)

// NewWallet is the constructor for a *Wallet.
func NewWallet(cfg *Config, logger dex.Logger) (*Wallet, error) {
	if cfg.Client == nil || cfg.Signer == nil {
		return nil, fmt.Errorf("wallet %s: client and signer are required", cfg.ID)
	}
	if cfg.ChainID == nil {
		return nil, fmt.Errorf("wallet %s: no chain ID", cfg.ID)
	}
	assets := make(map[string]*dex.Asset, len(cfg.Assets))
	for _, a := range cfg.Assets {
		assets[a.Symbol] = a
	}
	if _, found := assets[Symbol]; !found {
		assets[Symbol] = ethAsset
	}
	return &Wallet{
		cfg:     cfg,
		builder: NewBuilder(cfg.Client, cfg.ChainID, cfg.Net, logger),
		assets:  assets,
		log:     logger,
	}, nil
}

func (w *Wallet) ID() string             { return w.cfg.ID }
func (w *Wallet) Label() string          { return w.cfg.Label }
func (w *Wallet) Model() asset.Model     { return asset.ModelAccount }
func (w *Wallet) RequiresPassword() bool { return w.cfg.RequiresPassword }

// Supports is true for ETH and configured tokens with a contract on the
// wallet's network.
func (w *Wallet) Supports(symbol string) bool {
	_, err := w.asset(symbol)
	return err == nil
}

func (w *Wallet) asset(symbol string) (*dex.Asset, error) {
	a, found := w.assets[symbol]
	if !found || (a.IsToken() && a.Token.ContractAddress(w.cfg.Net) == "") {
		return nil, dex.NewError(asset.ErrUnsupportedAsset, fmt.Sprintf("%s wallet %q", symbol, w.cfg.Label))
	}
	return a, nil
}

// FeeSymbol is ETH for every supported asset.
func (w *Wallet) FeeSymbol(symbol string) string {
	if a, found := w.assets[symbol]; found {
		return a.FeeSymbol()
	}
	return Symbol
}

// SupportsAggregateTx is false.
func (w *Wallet) SupportsAggregateTx(string) bool {
	return false
}

// Address is the account address for every asset.
func (w *Wallet) Address(symbol string) (string, error) {
	if _, err := w.asset(symbol); err != nil {
		return "", err
	}
	return w.cfg.Address.Hex(), nil
}

// Balance is the native balance, or the token balance from the contract.
func (w *Wallet) Balance(ctx context.Context, symbol string) (*big.Int, error) {
	a, err := w.asset(symbol)
	if err != nil {
		return nil, err
	}
	if !a.IsToken() {
		return w.cfg.Client.BalanceAt(ctx, w.cfg.Address, nil)
	}
	data, err := balanceOfData(w.cfg.Address)
	if err != nil {
		return nil, err
	}
	contract := common.HexToAddress(a.Token.ContractAddress(w.cfg.Net))
	res, err := w.cfg.Client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf error for %s: %w", symbol, err)
	}
	return unpackBalance(res)
}

// EstimateFee is the suggested gas price times the fallback gas of the
// asset.
func (w *Wallet) EstimateFee(ctx context.Context, symbol string, _ *big.Int) (*big.Int, error) {
	a, err := w.asset(symbol)
	if err != nil {
		return nil, err
	}
	gp := w.builder.gasPrice(ctx)
	return gp.Mul(gp, new(big.Int).SetUint64(fallbackGas(a))), nil
}

// BuildTransaction builds the single-output transaction, chaining the
// nonce from req.Previous.
func (w *Wallet) BuildTransaction(ctx context.Context, req *asset.TxRequest) (*asset.UnsignedTx, error) {
	a, err := w.asset(req.Symbol)
	if err != nil {
		return nil, err
	}
	if len(req.Outputs) != 1 {
		return nil, fmt.Errorf("account-model transactions have exactly one output, requested %d", len(req.Outputs))
	}
	utx, err := w.builder.Build(ctx, w.cfg.Address, a, req.Outputs[0], req.Previous)
	if err != nil {
		return nil, err
	}
	w.log.Debugf("Wallet %s: built %s tx nonce %d, gas %d @ %s", w.cfg.ID, a.Symbol,
		*utx.Account.Nonce, utx.Account.Gas, utx.Account.GasPrice)
	return utx, nil
}

// Sign validates the transaction and passes it to the signer.
func (w *Wallet) Sign(ctx context.Context, tx *asset.UnsignedTx, creds *asset.Credentials) ([]byte, error) {
	if _, err := w.asset(tx.Symbol); err != nil {
		return nil, err
	}
	if err := ValidateRequired(tx); err != nil {
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
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(signedTx); err != nil {
		return "", fmt.Errorf("error decoding signed transaction: %w", err)
	}
	if err := w.cfg.Client.SendTransaction(ctx, tx); err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// Receipt returns nil without error while the transaction is unmined.
func (w *Wallet) Receipt(ctx context.Context, txHash string) (*asset.Receipt, error) {
	r, err := w.cfg.Client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	tip, err := w.cfg.Client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	var confs uint32
	if r.BlockNumber != nil && tip >= r.BlockNumber.Uint64() {
		confs = uint32(tip - r.BlockNumber.Uint64() + 1)
	}
	return &asset.Receipt{
		Confirmations: confs,
		BlockHeight:   r.BlockNumber.Int64(),
		Failed:        r.Status == types.ReceiptStatusFailed,
	}, nil
}
