// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/client/exchange"
	"github.com/shopspring/decimal"
)

// exportV2 is the serialized swap state. Swaps are stored in order.
type exportV2 struct {
	Swaps    []*Swap                 `json:"swaps"`
	Txs      map[string]*Transaction `json:"txs"`
	Swundles map[string]*Swundle     `json:"swundles,omitempty"`
}

// stateV2 is the serialized swap state as read. Swaps may be a list or a map
// keyed by swap ID, and swundles may be absent.
type stateV2 struct {
	Swaps    json.RawMessage         `json:"swaps"`
	Txs      map[string]*Transaction `json:"txs"`
	Swundles map[string]*Swundle     `json:"swundles"`
}

// v1Group is a send wallet and asset with the swaps funded by it. Each entry
// describes the receive side of one swap.
type v1Group struct {
	WalletID string     `json:"walletId"`
	Symbol   string     `json:"symbol"`
	List     []*v1Entry `json:"list"`
}

type v1Entry struct {
	ID       string           `json:"id"`
	WalletID string           `json:"walletId"`
	Symbol   string           `json:"symbol"`
	Address  string           `json:"address"`
	Unit     decimal.Decimal  `json:"unit"`
	Fee      *decimal.Decimal `json:"fee"`
	Order    *exchange.Order  `json:"order"`
	Rate     *decimal.Decimal `json:"rate"`
	TxHash   string           `json:"txHash"`
}

// restored is decoded state ready to be applied. Swaps are in order.
type restored struct {
	swaps    []*Swap
	txs      map[string]*Transaction
	swundles map[string]*Swundle
}

// RestoreSwundles loads serialized swap state, either the current format, a
// JSON object of swaps, transactions and swundles, or the legacy format, a
// JSON array of send groups. Swaps that are not part of a restored swundle
// are bundled into a new one. Nothing is applied if the data is invalid.
// Polling resumes for the most recent swundle that is not dismissed. The IDs
// of the restored swundles are returned.
func (c *Core) RestoreSwundles(_ context.Context, data []byte) ([]string, error) {
	r, err := c.decodeState(data)
	if err != nil {
		return nil, codedError(restoreErr, err)
	}
	return c.applyRestored(r), nil
}

func (c *Core) decodeState(data []byte) (*restored, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrValidation)
	}
	var r *restored
	var err error
	switch data[0] {
	case '{':
		r, err = decodeV2(data)
	case '[':
		r, err = c.decodeV1(data)
	default:
		return nil, fmt.Errorf("%w: unrecognized state format", ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return r, nil
}

func decodeV2(data []byte) (*restored, error) {
	var s stateV2
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	r := &restored{
		txs:      s.Txs,
		swundles: s.Swundles,
	}
	if r.txs == nil {
		r.txs = make(map[string]*Transaction)
	}
	if r.swundles == nil {
		r.swundles = make(map[string]*Swundle)
	}
	swapsData := bytes.TrimSpace(s.Swaps)
	switch {
	case len(swapsData) == 0 || bytes.Equal(swapsData, []byte("null")):
	case swapsData[0] == '[':
		if err := json.Unmarshal(swapsData, &r.swaps); err != nil {
			return nil, fmt.Errorf("%w: swaps: %w", ErrValidation, err)
		}
	case swapsData[0] == '{':
		var m map[string]*Swap
		if err := json.Unmarshal(swapsData, &m); err != nil {
			return nil, fmt.Errorf("%w: swaps: %w", ErrValidation, err)
		}
		for id, swap := range m {
			if swap != nil && swap.ID == "" {
				swap.ID = id
			}
			r.swaps = append(r.swaps, swap)
		}
		sortedSwaps(r.swaps)
	default:
		return nil, fmt.Errorf("%w: swaps must be a list or map", ErrValidation)
	}
	for id, tx := range r.txs {
		if tx != nil && tx.ID == "" {
			tx.ID = id
		}
	}
	for id, sw := range r.swundles {
		if sw != nil && sw.ID == "" {
			sw.ID = id
		}
	}
	return r, nil
}

// decodeV1 expands every entry of every send group into a swap. Entries
// sharing a transaction hash share a transaction. Entries with the same
// receive asset in one group are all restored.
func (c *Core) decodeV1(data []byte) (*restored, error) {
	var groups []*v1Group
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	r := &restored{
		txs:      make(map[string]*Transaction),
		swundles: make(map[string]*Swundle),
	}
	now := c.now()
	txByHash := make(map[string]*Transaction)
	for i, g := range groups {
		if g == nil || g.WalletID == "" || g.Symbol == "" {
			return nil, fmt.Errorf("%w: send group %d has no wallet or asset", ErrValidation, i)
		}
		for j, e := range g.List {
			if e == nil {
				return nil, fmt.Errorf("%w: send group %d entry %d is empty", ErrValidation, i, j)
			}
			id := e.ID
			if id == "" {
				id = c.newID()
			}
			swap := &Swap{
				ID:              id,
				SendWalletID:    g.WalletID,
				SendSymbol:      g.Symbol,
				SendUnits:       e.Unit,
				ReceiveWalletID: e.WalletID,
				ReceiveSymbol:   e.Symbol,
				ReceiveAddress:  e.Address,
				Rate:            e.Rate,
				Order:           e.Order,
				CreatedAt:       now,
			}
			if e.Order != nil && !e.Order.CreatedAt.IsZero() {
				swap.CreatedAt = e.Order.CreatedAt
			}
			if swap.ReceiveAddress == "" {
				swap.ReceiveAddress = c.walletAddress(e.WalletID, e.Symbol)
			}
			if e.Unit.IsInteger() && e.Unit.IsPositive() {
				swap.Draft = &Draft{Amount: e.Unit.BigInt(), Fee: new(big.Int), FeeSymbol: g.Symbol}
				if e.Fee != nil {
					swap.Draft.Fee = e.Fee.BigInt()
				}
			}
			if e.TxHash != "" {
				tx := txByHash[e.TxHash]
				if tx == nil {
					tx = &Transaction{
						ID:       c.newID(),
						WalletID: g.WalletID,
						Symbol:   g.Symbol,
						Model:    c.walletModel(g.WalletID, g.Symbol),
						Unsigned: &asset.UnsignedTx{Symbol: g.Symbol, Fee: new(big.Int), FeeSymbol: g.Symbol},
						Hash:     e.TxHash,
						Signed:   true,
						Sent:     true,
					}
					txByHash[e.TxHash] = tx
					r.txs[tx.ID] = tx
				}
				if swap.Draft != nil {
					deposit := ""
					if e.Order != nil {
						deposit = e.Order.Deposit
					}
					tx.Unsigned.Outputs = append(tx.Unsigned.Outputs, &asset.Output{Address: deposit, Amount: swap.Draft.Amount})
					tx.Unsigned.Fee.Add(tx.Unsigned.Fee, swap.Draft.Fee)
				}
				swap.TxID = tx.ID
			}
			r.swaps = append(r.swaps, swap)
		}
	}
	return r, nil
}

func (c *Core) walletAddress(walletID, symbol string) string {
	w, found := c.wallets[walletID]
	if !found || !w.Supports(symbol) {
		return ""
	}
	addr, err := w.Address(symbol)
	if err != nil {
		return ""
	}
	return addr
}

func (c *Core) walletModel(walletID, symbol string) asset.Model {
	w, found := c.wallets[walletID]
	if !found {
		return asset.ModelUTXO
	}
	member, err := memberWallet(w, symbol)
	if err != nil {
		return asset.ModelUTXO
	}
	return member.Model()
}

func (r *restored) validate() error {
	if len(r.swaps) == 0 && len(r.swundles) == 0 {
		return errors.New("no swaps")
	}
	ids := make(map[string]bool, len(r.swaps))
	for i, swap := range r.swaps {
		if swap == nil || swap.ID == "" {
			return fmt.Errorf("swap %d has no ID", i)
		}
		if ids[swap.ID] {
			return fmt.Errorf("duplicate swap %s", swap.ID)
		}
		ids[swap.ID] = true
		if swap.SendWalletID == "" || swap.SendSymbol == "" || swap.ReceiveSymbol == "" {
			return fmt.Errorf("swap %s is missing a wallet or asset", swap.ID)
		}
		if !swap.SendUnits.IsPositive() {
			return fmt.Errorf("swap %s has non-positive send units %s", swap.ID, swap.SendUnits)
		}
		if swap.TxID != "" && r.txs[swap.TxID] == nil {
			return fmt.Errorf("swap %s references unknown transaction %s", swap.ID, swap.TxID)
		}
	}
	for id, tx := range r.txs {
		if tx == nil {
			return fmt.Errorf("transaction %s is empty", id)
		}
		if tx.ID != id {
			return fmt.Errorf("transaction %s stored as %s", tx.ID, id)
		}
	}
	for id, sw := range r.swundles {
		if sw == nil || len(sw.Swaps) == 0 {
			return fmt.Errorf("swundle %s has no swaps", id)
		}
		if sw.ID != id {
			return fmt.Errorf("swundle %s stored as %s", sw.ID, id)
		}
		for _, swapID := range sw.Swaps {
			if !ids[swapID] {
				return fmt.Errorf("swundle %s references unknown swap %s", id, swapID)
			}
		}
	}
	return nil
}

// applyRestored adds the restored swundles to the state. Swaps without a
// swundle are bundled into a new one dated by their earliest order.
func (c *Core) applyRestored(r *restored) []string {
	owned := make(map[string]bool)
	for _, sw := range r.swundles {
		for _, id := range sw.Swaps {
			owned[id] = true
		}
	}
	c.stateMtx.RLock()
	var orphans []*Swap
	for _, swap := range r.swaps {
		if !owned[swap.ID] && c.state.owner(swap.ID) == nil {
			orphans = append(orphans, swap)
		}
	}
	c.stateMtx.RUnlock()

	swundles := make([]*Swundle, 0, len(r.swundles)+1)
	for _, sw := range r.swundles {
		swundles = append(swundles, sw)
	}
	if len(orphans) > 0 {
		created := c.now()
		for _, swap := range orphans {
			if swap.Order != nil && !swap.Order.CreatedAt.IsZero() && swap.Order.CreatedAt.Before(created) {
				created = swap.Order.CreatedAt
			}
		}
		sw := &Swundle{ID: c.newID(), CreatedDate: created}
		for _, swap := range orphans {
			sw.Swaps = append(sw.Swaps, swap.ID)
		}
		swundles = append(swundles, sw)
	}
	sort.Slice(swundles, func(i, j int) bool {
		if swundles[i].CreatedDate.Equal(swundles[j].CreatedDate) {
			return swundles[i].ID < swundles[j].ID
		}
		return swundles[i].CreatedDate.Before(swundles[j].CreatedDate)
	})

	swapsByID := make(map[string]*Swap, len(r.swaps))
	for _, swap := range r.swaps {
		swapsByID[swap.ID] = swap
	}
	ids := make([]string, 0, len(swundles))
	for _, sw := range swundles {
		c.stopPolling(sw.ID)
		e := &Event{Type: SwundleAdded, SwundleID: sw.ID, Swundle: sw}
		for _, id := range sw.Swaps {
			swap := swapsByID[id]
			e.Swaps = append(e.Swaps, swap)
			if tx := r.txs[swap.TxID]; tx != nil {
				e.Txs = append(e.Txs, tx)
			}
		}
		c.dispatch(e)
		ids = append(ids, sw.ID)
	}
	log.Infof("Restored %d swaps in %d swundles", len(r.swaps), len(swundles))

	c.stateMtx.RLock()
	latest := c.state.latestSwundle()
	c.stateMtx.RUnlock()
	if latest != nil {
		c.resumePolling(latest.ID)
	}
	return ids
}

// ExportState serializes every swap, transaction and swundle in the format
// read by RestoreSwundles.
func (c *Core) ExportState() ([]byte, error) {
	c.stateMtx.RLock()
	defer c.stateMtx.RUnlock()
	return json.Marshal(c.exportSwaps(nil))
}

// exportSwaps is the state of the swaps accepted by include, with their
// transactions and swundles. A nil include accepts every swap. The state
// mutex must be held.
func (c *Core) exportSwaps(include func(*Swap) bool) *exportV2 {
	out := &exportV2{
		Swaps:    make([]*Swap, 0),
		Txs:      make(map[string]*Transaction),
		Swundles: make(map[string]*Swundle),
	}
	for _, sw := range c.state.sortedSwundles() {
		for _, swap := range c.state.swundleSwaps(sw) {
			if include != nil && !include(swap) {
				continue
			}
			out.Swaps = append(out.Swaps, swap)
			out.Swundles[sw.ID] = sw
			if tx := c.state.Txs[swap.TxID]; tx != nil {
				out.Txs[tx.ID] = tx
			}
		}
	}
	return out
}
