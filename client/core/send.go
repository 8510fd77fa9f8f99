// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"context"
	"fmt"

	"decred.org/multiswap/dex"
	"decred.org/multiswap/dex/utils"
)

// SendSwundle broadcasts the swundle's signed transactions one at a time, in
// swap order. All unsent transactions must be signed. When a broadcast
// fails, later transactions from the same account are not sent, and their
// swaps are marked as blocked. Transactions of other wallets are only sent
// if opts.ContinueOnError is set. The first failure is returned. Sent
// transactions are skipped, so a failed SendSwundle can be retried.
func (c *Core) SendSwundle(ctx context.Context, id string, opts *SendOptions) error {
	_, swaps, txs, err := c.swundle(id)
	if err != nil {
		return err
	}
	done, err := c.beginOp(id)
	if err != nil {
		return err
	}
	defer done()
	if opts == nil {
		opts = new(SendOptions)
	}

	c.dispatch(phaseEvent(SendStarted, id, nil))
	if err := c.sendTxs(ctx, id, swaps, swundleTxs(swaps, txs), opts); err != nil {
		log.Errorf("Failed to send swundle %s: %v", id, err)
		c.dispatch(phaseEvent(SendFailed, id, err))
		return err
	}
	c.dispatch(phaseEvent(SendSuccess, id, nil))
	return nil
}

// accountKey identifies the sending account of a transaction.
func accountKey(tx *Transaction) string {
	if tx.Unsigned != nil {
		return tx.WalletID + ":" + tx.Unsigned.From
	}
	return tx.WalletID
}

func (c *Core) sendTxs(ctx context.Context, swundleID string, swaps []*Swap, txs []*Transaction, opts *SendOptions) error {
	unsent := utils.Filter(txs, func(tx *Transaction) bool { return !tx.Sent })
	if len(unsent) == 0 {
		return newError(validationErr, "%w: no transactions to send", ErrValidation)
	}
	for _, tx := range unsent {
		if !tx.Signed {
			return newError(validationErr, "%w: %s transaction %s is not signed", ErrValidation, tx.Symbol, tx.ID)
		}
	}

	var firstErr error
	failed := make(map[string]*Transaction) // account key -> failed chained tx
	for _, tx := range unsent {
		paid := txSwaps(swaps, tx.ID)
		if prior := failed[accountKey(tx)]; prior != nil && tx.chained() {
			err := dex.NewError(ErrBlockedByNonce, fmt.Sprintf("transaction %s", prior.ID))
			setErrors(paid, ErrorTypeBlocked, err)
			c.dispatch(swapsEvent(paid...))
			log.Warnf("Not sending %s transaction %s: %v", tx.Symbol, tx.ID, err)
			continue
		}
		if firstErr != nil && !opts.ContinueOnError {
			continue
		}

		w, err := c.wallet(tx.WalletID)
		if err != nil {
			return err
		}
		sender, err := memberWallet(w, tx.Symbol)
		if err != nil {
			return codedError(walletErr, err)
		}

		for _, swap := range paid {
			if swap.ErrorType == ErrorTypeSend || swap.ErrorType == ErrorTypeBlocked {
				swap.clearError()
			}
		}
		tx.Sending = true
		tx.SendingError = ""
		c.dispatch(&Event{Type: TxUpdated, Swaps: paid, Txs: []*Transaction{tx}})

		hash, err := sender.Send(ctx, tx.SignedTxData)
		if err != nil {
			tx.Sending = false
			tx.SendingError = err.Error()
			setErrors(paid, ErrorTypeSend, err)
			c.dispatch(&Event{Type: TxUpdated, Swaps: paid, Txs: []*Transaction{tx}})
			log.Errorf("Error sending %s transaction %s with wallet %q: %v", tx.Symbol, tx.ID, w.Label(), err)
			if tx.chained() {
				failed[accountKey(tx)] = tx
			}
			if firstErr == nil {
				firstErr = codedError(sendErr, fmt.Errorf("%w: wallet %q: %w", ErrSend, w.Label(), err))
			}
			continue
		}
		tx.Sending = false
		tx.Sent = true
		tx.Hash = hash
		c.dispatch(txEvent(tx))
		log.Infof("Sent %s transaction %s (%s)", tx.Symbol, tx.ID, hash)

		c.pollReceipt(swundleID, tx.ID)
		for _, swap := range paid {
			c.pollOrder(swundleID, swap.ID)
		}
	}
	return firstErr
}
