// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package asset

import (
	"context"
	"math/big"

	"decred.org/multiswap/dex"
)

const (
	ErrUnsupportedAsset  = dex.ErrorKind("unsupported asset")
	ErrInsufficientFunds = dex.ErrorKind("insufficient funds")
	ErrDust              = dex.ErrorKind("output value below dust threshold")
	ErrMissingTxField    = dex.ErrorKind("missing required transaction field")
	ErrNoCredentials     = dex.ErrorKind("wallet password required")
	ErrUserRejected      = dex.ErrorKind("rejected by user")
	ErrSignerCanceled    = dex.ErrorKind("signing canceled")
	ErrNoReceipts        = dex.ErrorKind("receipts unavailable")
)

// Model is the capability tag of a wallet variant.
type Model uint8

const (
	ModelUTXO Model = iota + 1
	ModelAccount
	// ModelMulti is a wallet that aggregates per-chain wallets, e.g. a
	// browser extension exposing both BTC and ETH accounts.
	ModelMulti
)

// String returns the string representation of a Model.
func (m Model) String() string {
	switch m {
	case ModelUTXO:
		return "utxo"
	case ModelAccount:
		return "account"
	case ModelMulti:
		return "multi"
	}
	return "unknown"
}

// WalletInfo is auxiliary information about a wallet type.
type WalletInfo struct {
	// Name is the display name for the wallet type.
	Name  string `json:"name"`
	Model Model  `json:"model"`
	// ConfigOpts are the settings read from the wallets file section.
	ConfigOpts []*ConfigOption `json:"configopts"`
}

// ConfigOption is a wallet configuration option.
type ConfigOption struct {
	Key          string `json:"key"`
	DisplayName  string `json:"displayname"`
	Description  string `json:"description"`
	DefaultValue string `json:"default"`
	Required     bool   `json:"required"`
	NoEcho       bool   `json:"noecho"`
}

// WalletConfig is passed to the wallet constructor.
type WalletConfig struct {
	// ID uniquely identifies the wallet. Swaps reference their funding and
	// receiving wallets by ID.
	ID string
	// Label is the user-facing wallet name used in error messages.
	Label string
	// Settings is the key-value store of wallet parameters.
	Settings map[string]string
}

// Output is a payment to an address.
type Output struct {
	Address string   `json:"address"`
	Amount  *big.Int `json:"amount"`
}

// Credentials unlock a password-protected wallet for signing.
type Credentials struct {
	Password string
}

// TxRequest is the input to BuildTransaction.
type TxRequest struct {
	Symbol  string
	Outputs []*Output
	// Previous is the prior transaction built for the same address in the
	// same batch. Account-model builders chain the nonce from it.
	Previous *UnsignedTx
}

// UTXO is a spendable output known to the account discovery service.
type UTXO struct {
	TxHash        string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Value         uint64 `json:"value"`
	Confirmations uint32 `json:"confirmations"`
	Address       string `json:"address"`
	AddressPath   string `json:"path"`
}

// ChangeAddress is an unused internal-branch address.
type ChangeAddress struct {
	Address string `json:"address"`
	Path    string `json:"path"`
}

// UTXOAccount is a snapshot of an extended-key account.
type UTXOAccount struct {
	// Address is the account's first external address. It identifies the
	// account to the rest of the application.
	Address         string           `json:"address"`
	UTXOs           []*UTXO          `json:"utxos"`
	ChangeAddresses []*ChangeAddress `json:"changeAddresses"`
	ChangeIndex     int              `json:"changeIndex"`
	LastBlockHeight int64            `json:"lastBlockHeight"`
}

// Balance is the sum of the account's UTXO values.
func (a *UTXOAccount) Balance() uint64 {
	var v uint64
	for _, u := range a.UTXOs {
		v += u.Value
	}
	return v
}

// UTXOTx is the UTXO-model part of an unsigned transaction.
type UTXOTx struct {
	Inputs        []*UTXO `json:"inputs"`
	Change        uint64  `json:"change"`
	ChangeAddress string  `json:"changeAddress,omitempty"`
	ChangePath    string  `json:"changePath,omitempty"`
	Segwit        bool    `json:"segwit"`
}

// AccountTx is the account-model part of an unsigned transaction. Nil
// pointers are fields the builder could not fill.
type AccountTx struct {
	Nonce    *uint64  `json:"nonce"`
	GasPrice *big.Int `json:"gasPrice"`
	Gas      uint64   `json:"gas"`
	ChainID  *big.Int `json:"chainId"`
	To       string   `json:"to"`
	Value    *big.Int `json:"value"`
	Data     []byte   `json:"data,omitempty"`
}

// UnsignedTx is a built transaction ready to be signed.
type UnsignedTx struct {
	Symbol    string    `json:"symbol"`
	From      string    `json:"from"`
	Outputs   []*Output `json:"outputs"`
	Fee       *big.Int  `json:"fee"`
	FeeSymbol string    `json:"feeSymbol"`
	// Payload is the serialized unsigned transaction in the form the signer
	// consumes: a PSBT for UTXO chains, an RLP-encoded legacy transaction for
	// account-model chains.
	Payload []byte     `json:"payload"`
	UTXO    *UTXOTx    `json:"utxo,omitempty"`
	Account *AccountTx `json:"account,omitempty"`
}

// Amount is the sum of the output amounts.
func (tx *UnsignedTx) Amount() *big.Int {
	sum := new(big.Int)
	for _, o := range tx.Outputs {
		sum.Add(sum, o.Amount)
	}
	return sum
}

// Receipt is confirmation info for a broadcast transaction.
type Receipt struct {
	Confirmations uint32 `json:"confirmations"`
	BlockHeight   int64  `json:"blockHeight"`
	// Failed is set when the transaction was mined but reverted.
	Failed bool `json:"failed"`
}

// Signer signs unsigned transactions. Cancel aborts an in-flight device
// interaction.
type Signer interface {
	Sign(ctx context.Context, tx *UnsignedTx, creds *Credentials) ([]byte, error)
	Cancel()
}

// Broadcaster submits signed transactions to the network.
type Broadcaster interface {
	Send(ctx context.Context, signedTx []byte) (txHash string, err error)
}

// ReceiptFetcher is implemented by wallets that can report confirmations of
// sent transactions. ErrNoReceipts means the wallet has no receipt source
// and will never report one.
type ReceiptFetcher interface {
	Receipt(ctx context.Context, txHash string) (*Receipt, error)
}

// Wallet is the fixed operation set of every wallet variant.
type Wallet interface {
	Signer
	Broadcaster
	ID() string
	Label() string
	Model() Model
	// Supports is true if the wallet can send the asset.
	Supports(symbol string) bool
	// Address is the sending address for the asset.
	Address(symbol string) (string, error)
	// Balance is the currently known balance in atomic units.
	Balance(ctx context.Context, symbol string) (*big.Int, error)
	// FeeSymbol is the asset that pays the network fee for sends of symbol.
	FeeSymbol(symbol string) string
	// EstimateFee estimates the fee for a single send of amount.
	EstimateFee(ctx context.Context, symbol string, amount *big.Int) (*big.Int, error)
	BuildTransaction(ctx context.Context, req *TxRequest) (*UnsignedTx, error)
	// SupportsAggregateTx is true if one transaction can pay several swaps.
	SupportsAggregateTx(symbol string) bool
	RequiresPassword() bool
}

// Aggregator is a ModelMulti wallet.
type Aggregator interface {
	Wallet
	// Resolve returns the underlying wallet that handles the asset.
	Resolve(symbol string) (Wallet, error)
}
