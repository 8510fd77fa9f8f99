// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the exchange provider's status of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderComplete  OrderStatus = "complete"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
)

// Final is true for statuses that will not change.
func (s OrderStatus) Final() bool {
	return s == OrderComplete || s == OrderFailed || s == OrderCancelled
}

// Order is an exchange order. The user deposits DepositAmount of the send
// asset to Deposit, and the provider pays out to the receive address.
type Order struct {
	ID            string          `json:"id"`
	Deposit       string          `json:"deposit"`
	DepositAmount decimal.Decimal `json:"depositAmount"`
	Rate          decimal.Decimal `json:"rate"`
	Status        OrderStatus     `json:"status"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	// Receipt is the payout transaction hash, once known.
	Receipt string `json:"receipt,omitempty"`
}

// MarketInfo is the provider's current terms for a pair. Limits are in the
// smallest denomination of the send asset. Rate is receive atoms per send
// atom.
type MarketInfo struct {
	Pair        string          `json:"pair"`
	Rate        decimal.Decimal `json:"rate"`
	Min         decimal.Decimal `json:"min"`
	Max         decimal.Decimal `json:"max"`
	MinerFee    decimal.Decimal `json:"minerFee"`
	LockedUntil time.Time       `json:"lockedUntil"`
}

// OrderRequest is a new order.
type OrderRequest struct {
	SendSymbol     string          `json:"depositCoin"`
	ReceiveSymbol  string          `json:"settleCoin"`
	ReceiveAddress string          `json:"settleAddress"`
	SendUnits      decimal.Decimal `json:"depositAmount"`
}

// OrderService is the exchange provider.
type OrderService interface {
	MarketInfo(ctx context.Context, pair string) (*MarketInfo, error)
	PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	OrderStatus(ctx context.Context, orderID string) (*Order, error)
}

// Pair is the market name for the assets, e.g. btc_eth.
func Pair(sendSymbol, receiveSymbol string) string {
	return strings.ToLower(sendSymbol) + "_" + strings.ToLower(receiveSymbol)
}
