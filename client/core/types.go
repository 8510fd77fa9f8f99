// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"math/big"
	"time"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/client/exchange"
	"github.com/shopspring/decimal"
)

// Error types recorded on a Swap.
const (
	ErrorTypeReceipt = "receipt"
	ErrorTypeSend    = "send"
	ErrorTypeBlocked = "blocked"
	ErrorTypeQuote   = "quote"
	ErrorTypeOrder   = "order"
	ErrorTypeBuild   = "build"
)

// NewSwap is a user's request for one exchange.
type NewSwap struct {
	SendWalletID    string          `json:"sendWalletId"`
	SendSymbol      string          `json:"sendSymbol"`
	SendUnits       decimal.Decimal `json:"sendUnits"`
	ReceiveWalletID string          `json:"receiveWalletId,omitempty"`
	ReceiveSymbol   string          `json:"receiveSymbol"`
	ReceiveAddress  string          `json:"receiveAddress"`
}

// Draft is the amount and estimated fee of a swap's deposit, computed before
// any transaction is built.
type Draft struct {
	Amount    *big.Int `json:"amount"`
	Fee       *big.Int `json:"fee"`
	FeeSymbol string   `json:"feeSymbol"`
}

// Swap is one asset-to-asset exchange. SendUnits are in the smallest
// denomination of the send asset.
type Swap struct {
	ID              string           `json:"id"`
	SendWalletID    string           `json:"sendWalletId"`
	SendSymbol      string           `json:"sendSymbol"`
	SendUnits       decimal.Decimal  `json:"sendUnits"`
	ReceiveWalletID string           `json:"receiveWalletId,omitempty"`
	ReceiveSymbol   string           `json:"receiveSymbol"`
	ReceiveAddress  string           `json:"receiveAddress"`
	Rate            *decimal.Decimal `json:"rate,omitempty"`
	RateLockedUntil time.Time        `json:"rateLockedUntil"`
	Order           *exchange.Order  `json:"order,omitempty"`
	Draft           *Draft           `json:"draft,omitempty"`
	TxID            string           `json:"txId,omitempty"`
	Error           string           `json:"error,omitempty"`
	ErrorType       string           `json:"errorType,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

func (s *Swap) copy() *Swap {
	c := *s
	if s.Order != nil {
		ord := *s.Order
		c.Order = &ord
	}
	return &c
}

// rateLocked is true while the quoted rate may not change.
func (s *Swap) rateLocked(now time.Time) bool {
	return s.Rate != nil && now.Before(s.RateLockedUntil)
}

func (s *Swap) setError(errType string, err error) {
	s.Error = err.Error()
	s.ErrorType = errType
}

func (s *Swap) clearError() {
	s.Error = ""
	s.ErrorType = ""
}

// Phase is the progress of one stage of a swundle's lifecycle.
type Phase struct {
	Started bool   `json:"started,omitempty"`
	Success bool   `json:"success,omitempty"`
	Failed  bool   `json:"failed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Swundle is a bundle of swaps initialized, signed and sent together. The
// order of Swaps is the order of nonce assignment and broadcast.
type Swundle struct {
	ID          string    `json:"id"`
	CreatedDate time.Time `json:"createdDate"`
	Swaps       []string  `json:"swaps"`
	Dismissed   bool      `json:"dismissed,omitempty"`
	Init        Phase     `json:"init"`
	Sign        Phase     `json:"sign"`
	Send        Phase     `json:"send"`
}

func (s *Swundle) copy() *Swundle {
	c := *s
	c.Swaps = append([]string(nil), s.Swaps...)
	return &c
}

// Transaction funds one swap, or several swaps from the same wallet and asset
// when aggregated. Unsigned holds the model-specific fields, e.g. the inputs
// and change of a UTXO transaction, or the nonce and gas of an account
// transaction.
type Transaction struct {
	ID           string            `json:"id"`
	WalletID     string            `json:"walletId"`
	Symbol       string            `json:"symbol"`
	Model        asset.Model       `json:"model"`
	Unsigned     *asset.UnsignedTx `json:"unsigned,omitempty"`
	SignedTxData []byte            `json:"signedTxData,omitempty"`
	Hash         string            `json:"hash,omitempty"`
	Signing      bool              `json:"signing,omitempty"`
	Signed       bool              `json:"signed,omitempty"`
	SigningError string            `json:"signingError,omitempty"`
	Sending      bool              `json:"sending,omitempty"`
	Sent         bool              `json:"sent,omitempty"`
	SendingError string            `json:"sendingError,omitempty"`
	Receipt      *asset.Receipt    `json:"receipt,omitempty"`
}

func (tx *Transaction) copy() *Transaction {
	c := *tx
	if tx.Receipt != nil {
		r := *tx.Receipt
		c.Receipt = &r
	}
	return &c
}

// Outputs are the payments of the transaction.
func (tx *Transaction) Outputs() []*asset.Output {
	if tx.Unsigned == nil {
		return nil
	}
	return tx.Unsigned.Outputs
}

// Fee is the network fee of the transaction.
func (tx *Transaction) Fee() *big.Int {
	if tx.Unsigned == nil || tx.Unsigned.Fee == nil {
		return new(big.Int)
	}
	return tx.Unsigned.Fee
}

// Nonce is the account nonce, or nil for UTXO transactions.
func (tx *Transaction) Nonce() *uint64 {
	if tx.Unsigned == nil || tx.Unsigned.Account == nil {
		return nil
	}
	return tx.Unsigned.Account.Nonce
}

// chained is true for transactions whose broadcast order matters.
func (tx *Transaction) chained() bool {
	return tx.Model == asset.ModelAccount
}

// SendOptions modify SendSwundle.
type SendOptions struct {
	// ContinueOnError continues broadcasting transactions of other wallets
	// after a failure. Transactions chained to the failed one are still
	// blocked.
	ContinueOnError bool
}

// CredentialsFunc supplies the credentials for a wallet, e.g. by prompting the
// user for a password.
type CredentialsFunc func(walletID, label string) (*asset.Credentials, error)

// WalletState is basic information about a configured wallet.
type WalletState struct {
	ID       string      `json:"id"`
	Label    string      `json:"label"`
	Model    asset.Model `json:"model"`
	Password bool        `json:"password"`
}
