// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/client/discovery"
	"decred.org/multiswap/dex"
)

// WalletType is the wallets file type of an extended-key BTC wallet.
const WalletType = "btc"

var (
	descriptorOpt = &asset.ConfigOption{
		Key:         "descriptor",
		DisplayName: "Account descriptor",
		Description: "Extended public key of the account",
		Required:    true,
	}
	discoveryOpt = &asset.ConfigOption{
		Key:         "discoveryurl",
		DisplayName: "Discovery service",
		Description: "Websocket URL of the account discovery service",
		Required:    true,
	}
	blockbookOpt = &asset.ConfigOption{
		Key:         "blockbookurl",
		DisplayName: "Blockbook URL",
		Description: "Indexer used for broadcasting, receipts and fee rates",
		Required:    true,
	}
	segwitOpt = &asset.ConfigOption{
		Key:          "segwit",
		DisplayName:  "Segwit",
		Description:  "The account uses P2WPKH addresses",
		DefaultValue: "true",
	}
	feeRateOpt = &asset.ConfigOption{
		Key:          "fallbackfeerate",
		DisplayName:  "Fallback fee rate",
		Description:  "Fee rate in sat/vB used when the indexer has no estimate",
		DefaultValue: "10",
	}
	wifOpt = &asset.ConfigOption{
		Key:         "wif",
		DisplayName: "Private key",
		Description: "WIF-encoded key for a single-key account. Without it, signing is unavailable.",
		NoEcho:      true,
	}

	walletInfo = &asset.WalletInfo{
		Name:       "Bitcoin",
		Model:      asset.ModelUTXO,
		ConfigOpts: []*asset.ConfigOption{descriptorOpt, discoveryOpt, blockbookOpt, segwitOpt, feeRateOpt, wifOpt},
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

// Open opens a BTC wallet from the wallets file settings.
func (d *Driver) Open(cfg *asset.WalletConfig, logger dex.Logger, net dex.Network) (asset.Wallet, error) {
	segwit, err := strconv.ParseBool(asset.Setting(cfg, segwitOpt))
	if err != nil {
		return nil, fmt.Errorf("bad %s setting: %w", segwitOpt.Key, err)
	}
	feeRate, err := strconv.ParseUint(asset.Setting(cfg, feeRateOpt), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad %s setting: %w", feeRateOpt.Key, err)
	}
	params, err := NetParams(net)
	if err != nil {
		return nil, err
	}
	var signer asset.Signer = noSigner{}
	if wif := asset.Setting(cfg, wifOpt); wif != "" {
		keys, err := WIFKeySource(wif)
		if err != nil {
			return nil, err
		}
		signer = NewKeySigner(params, keys)
	}
	bb := newBlockbook(asset.Setting(cfg, blockbookOpt))
	return NewWallet(&Config{
		ID:              cfg.ID,
		Label:           cfg.Label,
		Net:             net,
		Descriptor:      asset.Setting(cfg, descriptorOpt),
		Segwit:          segwit,
		FallbackFeeRate: feeRate,
		Discoverer:      discovery.NewClient(asset.Setting(cfg, discoveryOpt)),
		FeeRater:        bb,
		Signer:          signer,
		Broadcaster:     bb,
		Receipts:        bb,
	}, logger)
}

// noSigner is the signer of watch-only wallets.
type noSigner struct{}

func (noSigner) Sign(context.Context, *asset.UnsignedTx, *asset.Credentials) ([]byte, error) {
	return nil, errors.New("wallet has no signing key")
}

func (noSigner) Cancel() {}
