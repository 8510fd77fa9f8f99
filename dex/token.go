// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

// Gases is the gas required for the transfers this module builds.
// NOTE: For ERC20 tokens, the implementation can cause the gas to vary, or the
// implementation itself can change with a proxy delegate. The gas should be
// estimated directly (with EstimateGas) wherever possible, and these values
// used only as a fallback.
type Gases struct {
	// Send is the gas needed for a plain value transfer of the parent asset.
	Send uint64 `json:"send"`
	// Transfer is the amount of gas needed to transfer tokens.
	Transfer uint64 `json:"transfer"`
}

// Token is a generic representation of a token-type asset.
type Token struct {
	// ParentSymbol is the symbol of the token's parent asset, which pays fees.
	ParentSymbol string `json:"parentSymbol"`
	// Gas is the Gases for the token.
	Gas Gases `json:"gas"`
	// NetAddresses is a mapping of contract addresses for each network
	// available.
	NetAddresses map[Network]string `json:"netAddrs"`
}

// ContractAddress is the token contract on the network, or the empty string
// if the token is not deployed there.
func (t *Token) ContractAddress(net Network) string {
	return t.NetAddresses[net]
}
