// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package app

import (
	"fmt"
	"strings"

	"decred.org/multiswap/client/asset"
	_ "decred.org/multiswap/client/asset/btc" // register btc wallets
	"decred.org/multiswap/client/asset/multi"
	"decred.org/multiswap/dex"
	"decred.org/multiswap/dex/config"
)

// membersKey lists the wallet IDs combined by a multi wallet.
const membersKey = "members"

// LoggerFunc returns the logger for a wallet.
type LoggerFunc func(walletType, walletID string) dex.Logger

// OpenWallets opens the wallets described by the wallets file. A wallet of
// type multi combines the wallets named by its comma-separated members
// setting, e.g. the BTC and ETH keys of one hardware device. Members of a
// multi wallet are not returned on their own.
func OpenWallets(cfgPathOrData any, net dex.Network, logger LoggerFunc) ([]asset.Wallet, error) {
	entries, err := config.LoadWallets(cfgPathOrData)
	if err != nil {
		return nil, fmt.Errorf("error loading wallets file: %w", err)
	}

	opened := make(map[string]asset.Wallet, len(entries))
	for _, e := range entries {
		if e.Type == multi.WalletType {
			continue
		}
		w, err := asset.OpenWallet(e.Type, &asset.WalletConfig{
			ID:       e.ID,
			Label:    e.Label,
			Settings: e.Settings,
		}, logger(e.Type, e.ID), net)
		if err != nil {
			return nil, fmt.Errorf("error opening wallet %q: %w", e.ID, err)
		}
		opened[e.ID] = w
	}

	claimed := make(map[string]string)
	wallets := make([]asset.Wallet, 0, len(entries))
	for _, e := range entries {
		if e.Type != multi.WalletType {
			continue
		}
		var members []asset.Wallet
		for _, id := range strings.Split(e.Settings[membersKey], ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			m, found := opened[id]
			if !found {
				return nil, fmt.Errorf("multi wallet %q: unknown member %q", e.ID, id)
			}
			if owner, dup := claimed[id]; dup {
				return nil, fmt.Errorf("multi wallet %q: member %q already belongs to %q", e.ID, id, owner)
			}
			claimed[id] = e.ID
			members = append(members, m)
		}
		w, err := multi.New(e.ID, e.Label, logger(e.Type, e.ID), members...)
		if err != nil {
			return nil, err
		}
		opened[e.ID] = w
	}

	// File order.
	for _, e := range entries {
		if _, isMember := claimed[e.ID]; isMember {
			continue
		}
		wallets = append(wallets, opened[e.ID])
	}
	return wallets, nil
}

// WalletLogger returns a LoggerFunc creating subsystem loggers named by
// wallet type, e.g. BTC[ledger].
func WalletLogger(lm *dex.LoggerMaker) LoggerFunc {
	return func(walletType, walletID string) dex.Logger {
		return lm.SubLogger(strings.ToUpper(walletType), walletID)
	}
}
