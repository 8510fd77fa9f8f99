// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/client/exchange"
	"golang.org/x/sync/errgroup"
)

// CreateSwundle creates a swap for each request and bundles them, then
// initializes the swundle. Initialization failures are recorded on the
// swundle and its swaps, not returned. The order of the requests is the
// order of nonce assignment and broadcast.
func (c *Core) CreateSwundle(ctx context.Context, newSwaps []*NewSwap) (*SwundleInfo, error) {
	if len(newSwaps) == 0 {
		return nil, newError(validationErr, "%w: no swaps", ErrValidation)
	}
	now := c.now()
	swaps := make([]*Swap, 0, len(newSwaps))
	for i, ns := range newSwaps {
		if err := c.validateNewSwap(ns); err != nil {
			return nil, newError(validationErr, "%w: swap %d: %w", ErrValidation, i, err)
		}
		swap := &Swap{
			ID:              c.newID(),
			SendWalletID:    ns.SendWalletID,
			SendSymbol:      ns.SendSymbol,
			SendUnits:       ns.SendUnits,
			ReceiveWalletID: ns.ReceiveWalletID,
			ReceiveSymbol:   ns.ReceiveSymbol,
			ReceiveAddress:  ns.ReceiveAddress,
			CreatedAt:       now,
		}
		if swap.ReceiveWalletID == "" {
			swap.ReceiveWalletID = c.receiveWalletFor(swap.ReceiveSymbol, swap.ReceiveAddress)
		}
		swaps = append(swaps, swap)
	}
	sw := &Swundle{
		ID:          c.newID(),
		CreatedDate: now,
		Swaps:       make([]string, 0, len(swaps)),
	}
	for _, swap := range swaps {
		sw.Swaps = append(sw.Swaps, swap.ID)
	}
	c.dispatch(&Event{Type: SwundleAdded, SwundleID: sw.ID, Swundle: sw, Swaps: swaps})
	log.Infof("Created swundle %s with %d swaps", sw.ID, len(swaps))

	if err := c.InitSwundle(ctx, sw.ID); err != nil {
		return nil, err
	}
	return c.Swundle(sw.ID)
}

func (c *Core) validateNewSwap(ns *NewSwap) error {
	if ns == nil {
		return errors.New("nil swap")
	}
	if !ns.SendUnits.IsPositive() {
		return fmt.Errorf("send units must be positive, got %s", ns.SendUnits)
	}
	if !ns.SendUnits.IsInteger() {
		return fmt.Errorf("send units must be a whole number of atoms, got %s", ns.SendUnits)
	}
	w, err := c.wallet(ns.SendWalletID)
	if err != nil {
		return err
	}
	if !w.Supports(ns.SendSymbol) {
		return fmt.Errorf("wallet %q cannot send %s", w.Label(), ns.SendSymbol)
	}
	if ns.ReceiveSymbol == "" || ns.ReceiveAddress == "" {
		return errors.New("no receive asset or address")
	}
	if strings.EqualFold(ns.SendSymbol, ns.ReceiveSymbol) {
		return fmt.Errorf("cannot swap %s for itself", ns.SendSymbol)
	}
	if ns.ReceiveWalletID != "" {
		if _, err := c.wallet(ns.ReceiveWalletID); err != nil {
			return err
		}
	}
	return nil
}

// InitSwundle quotes, funds-checks, orders and builds the transactions of
// the swundle's swaps. Only an unknown or busy swundle is an error. Other
// failures are recorded: per-swap failures on the swap, and swundle-wide
// failures such as a balance shortfall on the swundle's Init phase.
// InitSwundle may be called again to retry swaps that failed before their
// transaction was built.
func (c *Core) InitSwundle(ctx context.Context, id string) error {
	_, swaps, txs, err := c.swundle(id)
	if err != nil {
		return err
	}
	done, err := c.beginOp(id)
	if err != nil {
		return err
	}
	defer done()

	c.dispatch(phaseEvent(InitStarted, id, nil))
	if err := c.initSwundle(ctx, swaps, txs); err != nil {
		log.Errorf("Failed to initialize swundle %s: %v", id, err)
		c.dispatch(phaseEvent(InitFailed, id, err))
		return nil
	}
	c.dispatch(phaseEvent(InitSuccess, id, nil))
	log.Debugf("Initialized swundle %s", id)
	return nil
}

// needsInit is true for swaps without a transaction that have not failed, or
// that failed at a stage that can be retried.
func needsInit(swap *Swap) bool {
	if swap.TxID != "" {
		return false
	}
	switch swap.ErrorType {
	case "", ErrorTypeQuote, ErrorTypeOrder, ErrorTypeBuild:
	default:
		return false
	}
	if swap.Order != nil && (swap.Order.Status.Final() || swap.Order.Error != "") {
		return false
	}
	return true
}

func (c *Core) initSwundle(ctx context.Context, swaps []*Swap, txs map[string]*Transaction) error {
	pending := make([]*Swap, 0, len(swaps))
	for _, swap := range swaps {
		if needsInit(swap) {
			swap.clearError()
			pending = append(pending, swap)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	// Quotes are independent, but every draft must be in before the balance
	// check.
	var g errgroup.Group
	for _, swap := range pending {
		g.Go(func() error {
			if err := c.quote(ctx, swap); err != nil {
				log.Warnf("Swap %s not quoted: %v", swap.ID, err)
				swap.setError(ErrorTypeQuote, err)
			}
			return nil
		})
	}
	g.Wait()
	c.dispatch(swapsEvent(pending...))

	if err := c.checkBalances(ctx, swaps, txs); err != nil {
		return err
	}

	c.placeOrders(ctx, pending)
	c.dispatch(swapsEvent(pending...))

	newTxs := c.buildTransactions(ctx, pending, txs)
	c.dispatch(&Event{Type: TxUpdated, Swaps: pending, Txs: newTxs})
	return nil
}

// quote refreshes the swap's rate and limits, and drafts its deposit. A
// locked rate is kept.
func (c *Core) quote(ctx context.Context, swap *Swap) error {
	w, err := c.wallet(swap.SendWalletID)
	if err != nil {
		return err
	}
	pair := exchange.Pair(swap.SendSymbol, swap.ReceiveSymbol)
	mi, err := c.exchange.MarketInfo(ctx, pair)
	if err != nil {
		return fmt.Errorf("%w: %s market info: %w", ErrQuote, pair, err)
	}
	if !swap.rateLocked(c.now()) {
		rate := mi.Rate
		swap.Rate = &rate
		swap.RateLockedUntil = mi.LockedUntil
	}
	units := swap.SendUnits
	if units.LessThan(mi.Min) {
		return fmt.Errorf("%w: %s %s is below the minimum of %s", ErrQuote, units, swap.SendSymbol, mi.Min)
	}
	if mi.Max.IsPositive() && units.GreaterThan(mi.Max) {
		return fmt.Errorf("%w: %s %s is above the maximum of %s", ErrQuote, units, swap.SendSymbol, mi.Max)
	}
	if !units.Mul(*swap.Rate).Sub(mi.MinerFee).IsPositive() {
		return fmt.Errorf("%w: %s %s does not cover the %s miner fee", ErrQuote, units, swap.SendSymbol, swap.ReceiveSymbol)
	}
	if swap.Order != nil && units.LessThan(swap.Order.DepositAmount) {
		return fmt.Errorf("%w: order %s requires a deposit of %s", ErrQuote, swap.Order.ID, swap.Order.DepositAmount)
	}

	amt := units.BigInt()
	fee, err := w.EstimateFee(ctx, swap.SendSymbol, amt)
	if err != nil {
		return fmt.Errorf("error estimating %s fee: %w", swap.SendSymbol, err)
	}
	swap.Draft = &Draft{
		Amount:    amt,
		Fee:       fee,
		FeeSymbol: w.FeeSymbol(swap.SendSymbol),
	}
	return nil
}

type walletAsset struct {
	walletID string
	symbol   string
}

// checkBalances sums the amounts and fees of every unsent swap of the
// swundle whose order is not final, per wallet and asset, and compares the
// totals to the wallet balances. Swaps drawing on the same wallet are funded
// jointly, so a per-swap check would not do.
func (c *Core) checkBalances(ctx context.Context, swaps []*Swap, txs map[string]*Transaction) error {
	var keys []walletAsset
	needs := make(map[walletAsset]*big.Int)
	add := func(k walletAsset, v *big.Int) {
		if v == nil {
			return
		}
		if needs[k] == nil {
			keys = append(keys, k)
			needs[k] = new(big.Int)
		}
		needs[k].Add(needs[k], v)
	}
	for _, swap := range swaps {
		if swap.Draft == nil || swap.Error != "" {
			continue
		}
		if swap.Order != nil && swap.Order.Status.Final() {
			continue
		}
		if tx := txs[swap.TxID]; tx != nil && tx.Sent {
			continue
		}
		add(walletAsset{swap.SendWalletID, swap.SendSymbol}, swap.Draft.Amount)
		add(walletAsset{swap.SendWalletID, swap.Draft.FeeSymbol}, swap.Draft.Fee)
	}
	for _, k := range keys {
		w, err := c.wallet(k.walletID)
		if err != nil {
			return err
		}
		bal, err := w.Balance(ctx, k.symbol)
		if err != nil {
			return newError(walletErr, "error getting %s balance of wallet %q: %w", k.symbol, w.Label(), err)
		}
		if bal.Cmp(needs[k]) < 0 {
			return newError(balanceErr, "%w: wallet %q has %s %s, swaps require %s",
				ErrInsufficientFunds, w.Label(), bal, k.symbol, needs[k])
		}
	}
	return nil
}

// placeOrders places an order for every quoted swap without one. Orders are
// placed one at a time.
func (c *Core) placeOrders(ctx context.Context, swaps []*Swap) {
	for _, swap := range swaps {
		if swap.Error != "" || swap.Order != nil {
			continue
		}
		if swap.ReceiveWalletID == "" {
			swap.ReceiveWalletID = c.receiveWalletFor(swap.ReceiveSymbol, swap.ReceiveAddress)
		}
		ord, err := c.exchange.PlaceOrder(ctx, &exchange.OrderRequest{
			SendSymbol:     swap.SendSymbol,
			ReceiveSymbol:  swap.ReceiveSymbol,
			ReceiveAddress: swap.ReceiveAddress,
			SendUnits:      swap.SendUnits,
		})
		if err != nil {
			log.Errorf("Error placing order for swap %s: %v", swap.ID, err)
			swap.setError(ErrorTypeOrder, err)
			continue
		}
		swap.Order = ord
		if swap.SendUnits.LessThan(ord.DepositAmount) {
			swap.setError(ErrorTypeOrder, fmt.Errorf("%w: order %s requires a deposit of %s, more than %s",
				ErrQuote, ord.ID, ord.DepositAmount, swap.SendUnits))
			continue
		}
		if ord.Deposit == "" {
			swap.setError(ErrorTypeOrder, fmt.Errorf("order %s has no deposit address", ord.ID))
			continue
		}
		log.Infof("Placed order %s for swap %s: deposit %s %s to %s",
			ord.ID, swap.ID, swap.SendUnits, swap.SendSymbol, ord.Deposit)
	}
}

// buildTransactions builds the deposit transactions of the ordered swaps.
// Swaps are grouped by wallet and asset. A group whose wallet can pay
// several outputs at once gets a single transaction, built when its first
// swap is reached. Other transactions are built in swap order, each chained
// to the previous one built for the same wallet. The chain of each wallet
// starts after the highest nonce of its unsent transactions in existing.
func (c *Core) buildTransactions(ctx context.Context, swaps []*Swap, existing map[string]*Transaction) []*Transaction {
	groups := make(map[walletAsset][]*Swap)
	for _, swap := range swaps {
		if swap.Error != "" || swap.Order == nil || swap.Draft == nil {
			continue
		}
		k := walletAsset{swap.SendWalletID, swap.SendSymbol}
		groups[k] = append(groups[k], swap)
	}

	var txs []*Transaction
	newTx := func(w, member asset.Wallet, symbol string, utx *asset.UnsignedTx, paid []*Swap) *Transaction {
		tx := &Transaction{
			ID:       c.newID(),
			WalletID: w.ID(),
			Symbol:   symbol,
			Model:    member.Model(),
			Unsigned: utx,
		}
		for _, swap := range paid {
			swap.TxID = tx.ID
		}
		txs = append(txs, tx)
		return tx
	}

	built := make(map[walletAsset]bool)
	previous := make(map[string]*asset.UnsignedTx)
	for _, tx := range existing {
		nonce := tx.Nonce()
		if tx.Sent || !tx.chained() || nonce == nil {
			continue
		}
		if prev := previous[tx.WalletID]; prev == nil || *prev.Account.Nonce < *nonce {
			previous[tx.WalletID] = tx.Unsigned
		}
	}
	for _, swap := range swaps {
		k := walletAsset{swap.SendWalletID, swap.SendSymbol}
		group := groups[k]
		if len(group) == 0 || built[k] {
			continue
		}
		w, err := c.wallet(k.walletID)
		if err != nil {
			setErrors(group, ErrorTypeBuild, err)
			built[k] = true
			continue
		}
		member, err := memberWallet(w, k.symbol)
		if err != nil {
			setErrors(group, ErrorTypeBuild, err)
			built[k] = true
			continue
		}

		if w.SupportsAggregateTx(k.symbol) {
			built[k] = true
			outputs := make([]*asset.Output, 0, len(group))
			for _, s := range group {
				outputs = append(outputs, &asset.Output{Address: s.Order.Deposit, Amount: s.Draft.Amount})
			}
			utx, err := w.BuildTransaction(ctx, &asset.TxRequest{Symbol: k.symbol, Outputs: outputs})
			if err != nil {
				log.Errorf("Error building %s transaction for wallet %q: %v", k.symbol, w.Label(), err)
				setErrors(group, ErrorTypeBuild, err)
				continue
			}
			tx := newTx(w, member, k.symbol, utx, group)
			log.Infof("Built %s transaction %s paying %d swaps", k.symbol, tx.ID, len(group))
			continue
		}

		if swap.Error != "" || swap.Order == nil || swap.Draft == nil {
			continue
		}
		utx, err := w.BuildTransaction(ctx, &asset.TxRequest{
			Symbol:   k.symbol,
			Outputs:  []*asset.Output{{Address: swap.Order.Deposit, Amount: swap.Draft.Amount}},
			Previous: previous[k.walletID],
		})
		if err != nil {
			log.Errorf("Error building %s transaction for swap %s: %v", k.symbol, swap.ID, err)
			swap.setError(ErrorTypeBuild, err)
			continue
		}
		previous[k.walletID] = utx
		tx := newTx(w, member, k.symbol, utx, []*Swap{swap})
		if nonce := tx.Nonce(); nonce != nil {
			log.Debugf("Built %s transaction %s for swap %s with nonce %d", k.symbol, tx.ID, swap.ID, *nonce)
		}
	}
	return txs
}

func setErrors(swaps []*Swap, errType string, err error) {
	for _, swap := range swaps {
		swap.setError(errType, err)
	}
}
