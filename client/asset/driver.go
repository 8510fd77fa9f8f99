// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package asset

import (
	"fmt"
	"sort"
	"sync"

	"decred.org/multiswap/dex"
)

var (
	driversMtx sync.RWMutex
	drivers    = make(map[string]Driver)
)

// Driver opens wallets of a type.
type Driver interface {
	Open(cfg *WalletConfig, logger dex.Logger, net dex.Network) (Wallet, error)
	Info() *WalletInfo
}

// Register should be called by the init function of a wallet package.
func Register(walletType string, driver Driver) {
	driversMtx.Lock()
	defer driversMtx.Unlock()

	if driver == nil {
		panic("asset: Register driver is nil")
	}
	if _, dup := drivers[walletType]; dup {
		panic(fmt.Sprint("asset: Register called twice for wallet type ", walletType))
	}
	drivers[walletType] = driver
}

// OpenWallet sets up a wallet of the registered type.
func OpenWallet(walletType string, cfg *WalletConfig, logger dex.Logger, net dex.Network) (Wallet, error) {
	driversMtx.RLock()
	drv, ok := drivers[walletType]
	driversMtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("asset: unknown wallet type %q", walletType)
	}
	for _, opt := range drv.Info().ConfigOpts {
		if !opt.Required {
			continue
		}
		if _, found := cfg.Settings[opt.Key]; !found {
			return nil, fmt.Errorf("%s wallet %q: missing required setting %q", walletType, cfg.ID, opt.Key)
		}
	}
	return drv.Open(cfg, logger, net)
}

// WalletTypes lists the registered wallet types.
func WalletTypes() []string {
	driversMtx.RLock()
	defer driversMtx.RUnlock()
	types := make([]string, 0, len(drivers))
	for t := range drivers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Setting returns the wallet setting, or the option's default value.
func Setting(cfg *WalletConfig, opt *ConfigOption) string {
	if v, found := cfg.Settings[opt.Key]; found {
		return v
	}
	return opt.DefaultValue
}
