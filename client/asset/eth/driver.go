// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

// WalletType is the wallets file type of an ETH wallet.
const WalletType = "eth"

var (
	addressOpt = &asset.ConfigOption{
		Key:         "address",
		DisplayName: "Address",
		Description: "Account address",
		Required:    true,
	}
	rpcOpt = &asset.ConfigOption{
		Key:         "rpcurl",
		DisplayName: "RPC URL",
		Description: "JSON-RPC endpoint of an Ethereum node or provider",
		Required:    true,
	}
	chainIDOpt = &asset.ConfigOption{
		Key:         "chainid",
		DisplayName: "Chain ID",
		Description: "Defaults to the chain ID of the network",
	}
	keystoreOpt = &asset.ConfigOption{
		Key:         "keystoredir",
		DisplayName: "Keystore directory",
		Description: "go-ethereum keystore holding the account key. Signing prompts for the passphrase.",
	}
	tokensOpt = &asset.ConfigOption{
		Key:         "tokens",
		DisplayName: "Extra tokens",
		Description: "Comma-separated SYMBOL=contract pairs",
	}

	walletInfo = &asset.WalletInfo{
		Name:       "Ethereum",
		Model:      asset.ModelAccount,
		ConfigOpts: []*asset.ConfigOption{addressOpt, rpcOpt, chainIDOpt, keystoreOpt, tokensOpt},
	}
)

func init() {
	asset.Register(WalletType, &Driver{})
}

// Driver implements asset.Driver.
type Driver struct{}

// Info returns basic information about the wallet type.
func (d *Driver) Info() *asset.WalletInfo {
	return walletInfo
}

// ChainID is the chain ID of the network.
func ChainID(net dex.Network) (*big.Int, error) {
	switch net {
	case dex.Mainnet:
		return params.MainnetChainConfig.ChainID, nil
	case dex.Testnet:
		return params.SepoliaChainConfig.ChainID, nil
	case dex.Simnet:
		return big.NewInt(1337), nil
	}
	return nil, fmt.Errorf("unknown network %d", net)
}

// Open opens an ETH wallet from the wallets file settings.
func (d *Driver) Open(cfg *asset.WalletConfig, logger dex.Logger, net dex.Network) (asset.Wallet, error) {
	addrStr := asset.Setting(cfg, addressOpt)
	if !common.IsHexAddress(addrStr) {
		return nil, fmt.Errorf("invalid address %q", addrStr)
	}
	addr := common.HexToAddress(addrStr)

	chainID, err := ChainID(net)
	if err != nil {
		return nil, err
	}
	if s := asset.Setting(cfg, chainIDOpt); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s setting: %w", chainIDOpt.Key, err)
		}
		chainID = new(big.Int).SetUint64(id)
	}

	tokens, err := ParseTokens(asset.Setting(cfg, tokensOpt), net)
	if err != nil {
		return nil, err
	}

	ec, err := ethclient.Dial(asset.Setting(cfg, rpcOpt))
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", asset.Setting(cfg, rpcOpt), err)
	}

	var signer asset.Signer = noSigner{}
	var requiresPassword bool
	if dir := asset.Setting(cfg, keystoreOpt); dir != "" {
		ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
		if signer, err = NewKeystoreSigner(ks, addr, chainID); err != nil {
			return nil, err
		}
		requiresPassword = true
	}

	return NewWallet(&Config{
		ID:               cfg.ID,
		Label:            cfg.Label,
		Net:              net,
		Address:          addr,
		ChainID:          chainID,
		Assets:           append(KnownAssets(), tokens...),
		RequiresPassword: requiresPassword,
		Client:           ec,
		Signer:           signer,
	}, logger)
}

// noSigner is the signer of watch-only wallets.
type noSigner struct{}

func (noSigner) Sign(context.Context, *asset.UnsignedTx, *asset.Credentials) ([]byte, error) {
	return nil, errors.New("wallet has no signing key")
}

func (noSigner) Cancel() {}
