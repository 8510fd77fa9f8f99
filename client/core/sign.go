// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"decred.org/multiswap/client/asset"
)

// swundleTxs are the distinct transactions of the swaps, in swap order,
// except that the transactions of one account are in nonce order. A swap
// built by a retried init holds a later nonce than the swaps after it.
// Swaps with an error from before their transaction was built have none.
func swundleTxs(swaps []*Swap, txs map[string]*Transaction) []*Transaction {
	seen := make(map[string]bool)
	ordered := make([]*Transaction, 0, len(txs))
	accounts := make(map[string][]int) // account key -> indices in ordered
	for _, swap := range swaps {
		tx := txs[swap.TxID]
		if tx == nil || seen[tx.ID] {
			continue
		}
		seen[tx.ID] = true
		if tx.chained() && tx.Nonce() != nil {
			k := accountKey(tx)
			accounts[k] = append(accounts[k], len(ordered))
		}
		ordered = append(ordered, tx)
	}
	for _, idxs := range accounts {
		chain := make([]*Transaction, len(idxs))
		for j, i := range idxs {
			chain[j] = ordered[i]
		}
		sort.SliceStable(chain, func(a, b int) bool {
			return *chain[a].Nonce() < *chain[b].Nonce()
		})
		for j, i := range idxs {
			ordered[i] = chain[j]
		}
	}
	return ordered
}

// txSwaps are the swaps paid by the transaction.
func txSwaps(swaps []*Swap, txID string) []*Swap {
	var paid []*Swap
	for _, swap := range swaps {
		if swap.TxID == txID {
			paid = append(paid, swap)
		}
	}
	return paid
}

// SignSwundle signs the swundle's transactions one at a time, in swap order.
// Aggregate transactions are signed once. getCreds is called at most once
// per password-protected wallet, unless the wallet rejects the credentials.
// Transactions that are already signed are skipped, so a failed SignSwundle
// can be retried.
func (c *Core) SignSwundle(ctx context.Context, id string, getCreds CredentialsFunc) error {
	_, swaps, txs, err := c.swundle(id)
	if err != nil {
		return err
	}
	done, err := c.beginOp(id)
	if err != nil {
		return err
	}
	defer done()

	c.dispatch(phaseEvent(SignStarted, id, nil))
	if err := c.signTxs(ctx, swundleTxs(swaps, txs), getCreds); err != nil {
		log.Errorf("Failed to sign swundle %s: %v", id, err)
		c.dispatch(phaseEvent(SignFailed, id, err))
		return err
	}
	c.dispatch(phaseEvent(SignSuccess, id, nil))
	return nil
}

func (c *Core) signTxs(ctx context.Context, txs []*Transaction, getCreds CredentialsFunc) error {
	if len(txs) == 0 {
		return newError(validationErr, "%w: no transactions to sign", ErrValidation)
	}
	creds := make(map[string]*asset.Credentials)
	for _, tx := range txs {
		if tx.Signed || tx.Sent {
			continue
		}
		w, err := c.wallet(tx.WalletID)
		if err != nil {
			return err
		}
		signer, err := memberWallet(w, tx.Symbol)
		if err != nil {
			return codedError(walletErr, err)
		}
		cred := creds[w.ID()]
		if cred == nil && w.RequiresPassword() && getCreds != nil {
			cred, err = getCreds(w.ID(), w.Label())
			if err != nil {
				return c.signFailed(tx, w, err)
			}
			creds[w.ID()] = cred
		}

		tx.Signing = true
		tx.SigningError = ""
		c.dispatch(txEvent(tx))

		signed, err := signer.Sign(ctx, tx.Unsigned, cred)
		if err != nil {
			if errors.Is(err, asset.ErrNoCredentials) {
				delete(creds, w.ID())
			}
			return c.signFailed(tx, w, err)
		}
		tx.Signing = false
		tx.Signed = true
		tx.SignedTxData = signed
		c.dispatch(txEvent(tx))
		log.Debugf("Signed %s transaction %s with wallet %q", tx.Symbol, tx.ID, w.Label())
	}
	return nil
}

func (c *Core) signFailed(tx *Transaction, w asset.Wallet, err error) error {
	tx.Signing = false
	tx.SigningError = err.Error()
	c.dispatch(txEvent(tx))
	return codedError(signErr, fmt.Errorf("%w: wallet %q: %w", ErrSigning, w.Label(), err))
}
