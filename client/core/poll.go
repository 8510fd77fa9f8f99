// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"errors"
	"time"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex/wait"
)

// trackPoll queues the waiter and records its cancel handle with the
// swundle.
func (c *Core) trackPoll(swundleID string, w *wait.Waiter) {
	cancel, err := c.pollQueue.Wait(w)
	if err != nil {
		log.Errorf("Error queueing poll for swundle %s: %v", swundleID, err)
		return
	}
	c.pollMtx.Lock()
	c.polls[swundleID] = append(c.polls[swundleID], cancel)
	c.pollMtx.Unlock()
}

// stopPolling cancels every poll of the swundle. A check in progress is
// allowed to finish.
func (c *Core) stopPolling(swundleID string) {
	c.pollMtx.Lock()
	cancels := c.polls[swundleID]
	delete(c.polls, swundleID)
	c.pollMtx.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		log.Debugf("Stopped %d polls for swundle %s", len(cancels), swundleID)
	}
}

// PollCount is the number of active polls of the swundle.
func (c *Core) PollCount(swundleID string) int {
	c.pollMtx.Lock()
	defer c.pollMtx.Unlock()
	return len(c.polls[swundleID])
}

func (c *Core) storedSwap(id string) *Swap {
	c.stateMtx.RLock()
	defer c.stateMtx.RUnlock()
	if swap := c.state.Swaps[id]; swap != nil {
		return swap.copy()
	}
	return nil
}

func (c *Core) storedTx(id string) *Transaction {
	c.stateMtx.RLock()
	defer c.stateMtx.RUnlock()
	if tx := c.state.Txs[id]; tx != nil {
		return tx.copy()
	}
	return nil
}

// pollOrder checks the swap's order status until it is final.
func (c *Core) pollOrder(swundleID, swapID string) {
	c.trackPoll(swundleID, &wait.Waiter{
		Expiration: time.Now().Add(pollExpiration),
		TryFunc: func() wait.TryDirective {
			swap := c.storedSwap(swapID)
			if swap == nil || swap.Order == nil || swap.Order.Status.Final() {
				return wait.DontTryAgain
			}
			ord, err := c.exchange.OrderStatus(c.ctx, swap.Order.ID)
			if err != nil {
				log.Errorf("Error checking order %s: %v", swap.Order.ID, err)
				return wait.TryAgain
			}
			if ord.Status != swap.Order.Status || ord.Error != swap.Order.Error || ord.Receipt != swap.Order.Receipt {
				swap.Order = ord
				c.dispatch(swapsEvent(swap))
				log.Infof("Order %s of swap %s is %s", ord.ID, swapID, ord.Status)
			}
			if ord.Status.Final() {
				return wait.DontTryAgain
			}
			return wait.TryAgain
		},
		ExpireFunc: func() {
			log.Warnf("Stopped checking order of swap %s after %s", swapID, pollExpiration)
		},
	})
}

// pollReceipt checks for the transaction's receipt until it is mined. A
// reverted transaction fails its swaps.
func (c *Core) pollReceipt(swundleID, txID string) {
	c.trackPoll(swundleID, &wait.Waiter{
		Expiration: time.Now().Add(pollExpiration),
		TryFunc: func() wait.TryDirective {
			tx := c.storedTx(txID)
			if tx == nil || !tx.Sent || tx.Receipt != nil {
				return wait.DontTryAgain
			}
			w, err := c.wallet(tx.WalletID)
			if err != nil {
				return wait.DontTryAgain
			}
			member, err := memberWallet(w, tx.Symbol)
			if err != nil {
				return wait.DontTryAgain
			}
			rf, is := member.(asset.ReceiptFetcher)
			if !is {
				return wait.DontTryAgain
			}
			r, err := rf.Receipt(c.ctx, tx.Hash)
			if errors.Is(err, asset.ErrNoReceipts) {
				log.Debugf("Not polling %s transaction %s: %v", tx.Symbol, tx.Hash, err)
				return wait.DontTryAgain
			}
			if err != nil {
				log.Errorf("Error checking receipt of %s transaction %s: %v", tx.Symbol, tx.Hash, err)
				return wait.TryAgain
			}
			if r == nil {
				return wait.TryAgain
			}
			tx.Receipt = r
			e := txEvent(tx)
			if r.Failed {
				c.stateMtx.RLock()
				for _, swap := range c.state.Swaps {
					if swap.TxID == txID {
						failed := swap.copy()
						failed.setError(ErrorTypeReceipt, errors.New("transaction "+tx.Hash+" failed"))
						e.Swaps = append(e.Swaps, failed)
					}
				}
				c.stateMtx.RUnlock()
				log.Errorf("%s transaction %s failed", tx.Symbol, tx.Hash)
			}
			c.dispatch(e)
			return wait.DontTryAgain
		},
	})
}

// resumePolling polls the unresolved orders and unmined transactions of the
// swundle.
func (c *Core) resumePolling(swundleID string) {
	_, swaps, txs, err := c.swundle(swundleID)
	if err != nil {
		return
	}
	for _, tx := range txs {
		if tx.Sent && tx.Receipt == nil && tx.Hash != "" {
			c.pollReceipt(swundleID, tx.ID)
		}
	}
	for _, swap := range swaps {
		if swap.Order != nil && !swap.Order.Status.Final() && swap.Error == "" {
			if tx := txs[swap.TxID]; tx != nil && tx.Sent {
				c.pollOrder(swundleID, swap.ID)
			}
		}
	}
	log.Debugf("Resumed %d polls for swundle %s", c.PollCount(swundleID), swundleID)
}
