// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package eth

import (
	"fmt"
	"strings"

	"decred.org/multiswap/dex"
	"github.com/ethereum/go-ethereum/common"
)

// Symbol is the ticker of the parent asset.
const Symbol = "ETH"

const (
	// DefaultSendGas is the gas of a plain value transfer.
	DefaultSendGas = 21_000
	// DefaultTransferGas is the fallback gas for a token transfer.
	DefaultTransferGas = 65_000
)

var (
	// GweiFactor is the number of wei in one gwei.
	GweiFactor uint64 = 1e9

	ethAsset = &dex.Asset{
		Symbol: Symbol,
		Name:   "Ethereum",
		UnitInfo: dex.UnitInfo{
			AtomicUnit: "wei",
			Conventional: dex.Denomination{
				Unit:             "ETH",
				ConversionFactor: 1e18,
			},
		},
	}

	usdcAsset = &dex.Asset{
		Symbol: "USDC",
		Name:   "USD Coin",
		UnitInfo: dex.UnitInfo{
			AtomicUnit: "microUSD",
			Conventional: dex.Denomination{
				Unit:             "USDC",
				ConversionFactor: 1e6,
			},
		},
		Token: &dex.Token{
			ParentSymbol: Symbol,
			Gas:          dex.Gases{Send: DefaultSendGas, Transfer: DefaultTransferGas},
			NetAddresses: map[dex.Network]string{
				dex.Mainnet: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				dex.Testnet: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
			},
		},
	}

	usdtAsset = &dex.Asset{
		Symbol: "USDT",
		Name:   "Tether",
		UnitInfo: dex.UnitInfo{
			AtomicUnit: "microUSD",
			Conventional: dex.Denomination{
				Unit:             "USDT",
				ConversionFactor: 1e6,
			},
		},
		Token: &dex.Token{
			ParentSymbol: Symbol,
			Gas:          dex.Gases{Send: DefaultSendGas, Transfer: DefaultTransferGas},
			NetAddresses: map[dex.Network]string{
				dex.Mainnet: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
			},
		},
	}
)

// KnownAssets are the assets every ETH wallet supports.
func KnownAssets() []*dex.Asset {
	return []*dex.Asset{ethAsset, usdcAsset, usdtAsset}
}

// ParseTokens parses a comma-separated list of SYMBOL=contract pairs into
// token assets on the network, e.g. "DAI=0x6B17...,LINK=0x5149...".
func ParseTokens(s string, net dex.Network) ([]*dex.Asset, error) {
	var tokens []*dex.Asset
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		sym, addr, found := strings.Cut(pair, "=")
		if !found || sym == "" {
			return nil, fmt.Errorf("malformed token %q", pair)
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("token %s: invalid contract address %q", sym, addr)
		}
		tokens = append(tokens, &dex.Asset{
			Symbol: strings.ToUpper(sym),
			Name:   strings.ToUpper(sym),
			Token: &dex.Token{
				ParentSymbol: Symbol,
				Gas:          dex.Gases{Send: DefaultSendGas, Transfer: DefaultTransferGas},
				NetAddresses: map[dex.Network]string{net: addr},
			},
		})
	}
	return tokens, nil
}
