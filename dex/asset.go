// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Network flags passed to asset backends to signify which network to use.
type Network uint8

const (
	Mainnet Network = iota
	Testnet
	Regtest
)

// Simnet is an alias of Regtest.
const Simnet = Regtest

// String returns the string representation of a Network.
func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Simnet:
		return "simnet"
	}
	return ""
}

// NetFromString returns the Network for the given network name.
func NetFromString(net string) (Network, error) {
	switch strings.ToLower(net) {
	case "mainnet":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	case "regtest", "regnet", "simnet":
		return Simnet, nil
	}
	return 255, fmt.Errorf("unknown network %s", net)
}

// UnitInfo conveys information about the units and available denominations
// for an asset.
type UnitInfo struct {
	// AtomicUnit is the name associated with the asset's integral unit of
	// measure, e.g. satoshis, atoms, gwei.
	AtomicUnit string `json:"atomicUnit"`
	// Conventional is the conventionally-used denomination.
	Conventional Denomination `json:"conventional"`
}

// Denomination is a unit and its conversion factor.
type Denomination struct {
	Unit             string `json:"unit"`
	ConversionFactor uint64 `json:"conversionFactor"`
}

// ConventionalString converts the quantity in atomic units to the
// conventional unit, displayed with full precision and no thousands
// delimiters.
func (ui *UnitInfo) ConventionalString(v *big.Int) string {
	c := ui.Conventional.ConversionFactor
	if c <= 1 {
		return v.String()
	}
	prec := int32(math.Round(math.Log10(float64(c))))
	return decimal.NewFromBigInt(v, -prec).StringFixed(prec)
}

// Asset is the metadata needed to move an asset. Symbols are upper-case
// tickers, e.g. BTC, ETH, USDC.
type Asset struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	UnitInfo UnitInfo `json:"unitInfo"`
	// Token is non-nil for assets that live in a contract on a parent chain.
	Token *Token `json:"token,omitempty"`
}

// IsToken is true if the asset is a contract token.
func (a *Asset) IsToken() bool {
	return a.Token != nil
}

// FeeSymbol is the symbol of the asset that pays fees for transfers of this
// asset.
func (a *Asset) FeeSymbol() string {
	if a.Token != nil {
		return a.Token.ParentSymbol
	}
	return a.Symbol
}
