// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package config

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/ini.v1"
)

const (
	typeKey  = "type"
	labelKey = "label"
)

// WalletEntry is one wallet section of a wallets file, e.g.
//
//	[ledger-btc]
//	type = btc
//	label = Ledger Bitcoin
//	descriptor = wpkh([d34db33f/84h/0h/0h]xpub6.../0/*)
//	blockbookurl = https://btc1.trezor.io
type WalletEntry struct {
	ID       string
	Type     string
	Label    string
	Settings map[string]string
}

// LoadWallets parses the wallets file at the provided path, or the provided
// []byte data. Every named section is a wallet, and entries are returned in
// file order. Keys outside of a section are an error.
func LoadWallets(cfgPathOrData any) ([]*WalletEntry, error) {
	// Descriptor checksums follow a #, so inline comments are not stripped.
	cfgFile, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, cfgPathOrData)
	if err != nil {
		return nil, err
	}
	var entries []*WalletEntry
	for _, section := range cfgFile.Sections() {
		if section.Name() == ini.DefaultSection {
			if len(section.Keys()) > 0 {
				return nil, fmt.Errorf("wallet settings outside of a wallet section: %v", section.KeyStrings())
			}
			continue
		}
		e := &WalletEntry{
			ID:       section.Name(),
			Label:    section.Name(),
			Settings: make(map[string]string),
		}
		for _, key := range section.Keys() {
			switch key.Name() {
			case typeKey:
				e.Type = key.String()
			case labelKey:
				e.Label = key.String()
			default:
				e.Settings[key.Name()] = key.String()
			}
		}
		if e.Type == "" {
			return nil, fmt.Errorf("wallet %q has no type", e.ID)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WalletsINIData is the wallets file encoding of the entries.
func WalletsINIData(entries []*WalletEntry) ([]byte, error) {
	cfgFile := ini.Empty()
	for _, e := range entries {
		section, err := cfgFile.NewSection(e.ID)
		if err != nil {
			return nil, err
		}
		if _, err := section.NewKey(typeKey, e.Type); err != nil {
			return nil, err
		}
		if _, err := section.NewKey(labelKey, e.Label); err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(e.Settings))
		for k := range e.Settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := section.NewKey(k, e.Settings[k]); err != nil {
				return nil, err
			}
		}
	}
	var b bytes.Buffer
	if _, err := cfgFile.WriteTo(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
