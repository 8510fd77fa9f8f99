// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"decred.org/multiswap/client/db"
	"decred.org/multiswap/dex/utils"
)

// indexKey is the key of the list of storage keys in use.
const indexKey = "index"

// storageKey is the key of the swap's state. Swaps are stored with the
// address of their send wallet. The persist and state mutexes must be held.
func (c *Core) storageKey(swap *Swap) string {
	if k, found := c.persistKeys[swap.ID]; found {
		return k
	}
	k := "wallet:" + swap.SendWalletID
	if addr := c.walletAddress(swap.SendWalletID, swap.SendSymbol); addr != "" {
		k = addr
	}
	c.persistKeys[swap.ID] = k
	return k
}

// persist writes the state of every storage key. Keys without swaps are
// written empty so that removed swaps are not loaded again.
func (c *Core) persist() {
	if c.db == nil {
		return
	}
	c.persistMtx.Lock()
	defer c.persistMtx.Unlock()

	blobs := make(map[string][]byte)
	c.stateMtx.RLock()
	byKey := make(map[string]map[string]bool)
	for _, swap := range c.state.Swaps {
		k := c.storageKey(swap)
		if byKey[k] == nil {
			byKey[k] = make(map[string]bool)
		}
		byKey[k][swap.ID] = true
	}
	for id := range c.persistKeys {
		if c.state.Swaps[id] == nil {
			delete(c.persistKeys, id)
		}
	}
	for k := range c.knownKeys {
		if byKey[k] == nil {
			byKey[k] = nil
		}
	}
	var encErr error
	for k, ids := range byKey {
		b, err := json.Marshal(c.exportSwaps(func(swap *Swap) bool { return ids[swap.ID] }))
		if err != nil {
			encErr = err
			break
		}
		blobs[k] = b
	}
	c.stateMtx.RUnlock()
	if encErr != nil {
		log.Errorf("Error encoding swap state: %v", encErr)
		return
	}

	for k, b := range blobs {
		if err := c.db.Set(k, b); err != nil {
			log.Errorf("Error storing swap state for %s: %v", k, err)
			continue
		}
		c.knownKeys[k] = true
	}
	b, _ := json.Marshal(utils.SortedKeys(c.knownKeys))
	if err := c.db.Set(indexKey, b); err != nil {
		log.Errorf("Error storing swap state index: %v", err)
	}
}

// LoadState restores the persisted state of every storage key. It should be
// called once, before Run.
func (c *Core) LoadState() error {
	if c.db == nil {
		return nil
	}
	b, err := c.db.Get(indexKey)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return codedError(dbErr, fmt.Errorf("error reading swap state index: %w", err))
	}
	var keys []string
	if err := json.Unmarshal(b, &keys); err != nil {
		return codedError(dbErr, fmt.Errorf("error decoding swap state index: %w", err))
	}

	merged := &restored{
		txs:      make(map[string]*Transaction),
		swundles: make(map[string]*Swundle),
	}
	for _, k := range keys {
		c.persistMtx.Lock()
		c.knownKeys[k] = true
		c.persistMtx.Unlock()
		b, err := c.db.Get(k)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return codedError(dbErr, fmt.Errorf("error reading swap state for %s: %w", k, err))
		}
		r, err := decodeV2(b)
		if err != nil {
			return codedError(dbErr, fmt.Errorf("error decoding swap state for %s: %w", k, err))
		}
		merged.swaps = append(merged.swaps, r.swaps...)
		for id, tx := range r.txs {
			merged.txs[id] = tx
		}
		for id, sw := range r.swundles {
			merged.swundles[id] = sw
		}
	}
	if len(merged.swaps) == 0 {
		return nil
	}
	if err := merged.validate(); err != nil {
		return codedError(dbErr, fmt.Errorf("invalid stored swap state: %w", err))
	}
	c.applyRestored(merged)
	return nil
}
