// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"fmt"
	"sort"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex"
	"decred.org/multiswap/dex/calc"
	"decred.org/multiswap/dex/utils"
)

// MatureConfs is the number of confirmations at which a UTXO is preferred
// for spending.
const MatureConfs = 6

// Payment is a desired transaction output in satoshis.
type Payment struct {
	Address string
	Value   uint64
}

// Selection is the result of SelectInputsAndFee. ChangeAddress and
// ChangePath are empty when there is no change output.
type Selection struct {
	Inputs        []*asset.UTXO
	Outputs       []*Payment
	Fee           uint64
	Change        uint64
	ChangeAddress string
	ChangePath    string
}

// InputTotal is the sum of the selected input values.
func (s *Selection) InputTotal() uint64 {
	var sum uint64
	for _, u := range s.Inputs {
		sum += u.Value
	}
	return sum
}

// OutputTotal is the sum of the payment values, not including change.
func (s *Selection) OutputTotal() uint64 {
	return sumPayments(s.Outputs)
}

func sumPayments(ps []*Payment) uint64 {
	var sum uint64
	for _, p := range ps {
		sum += p.Value
	}
	return sum
}

// orderUTXOs returns the spending order. Mature outputs come first in
// ascending value, followed by immature outputs in descending
// confirmations. The input slice is not modified.
func orderUTXOs(utxos []*asset.UTXO) []*asset.UTXO {
	mature := make([]*asset.UTXO, 0, len(utxos))
	immature := make([]*asset.UTXO, 0)
	for _, u := range utxos {
		if u.Confirmations >= MatureConfs {
			mature = append(mature, u)
		} else {
			immature = append(immature, u)
		}
	}
	sort.SliceStable(mature, func(i, j int) bool { return mature[i].Value < mature[j].Value })
	sort.SliceStable(immature, func(i, j int) bool { return immature[i].Confirmations > immature[j].Confirmations })
	return append(mature, immature...)
}

// SelectInputsAndFee picks inputs from the account to fund the payments at
// feeRate (sat/vB). The fee is always computed for a transaction with a
// change output. When the account cannot cover the payments plus fee and the
// payments spend the entire account balance, the fee is taken from the first
// payment instead. Change at or below dustThreshold is added to the fee.
func SelectInputsAndFee(acct *asset.UTXOAccount, payments []*Payment, feeRate uint64, segwit bool, dustThreshold uint64) (*Selection, error) {
	if len(payments) == 0 {
		return nil, fmt.Errorf("no outputs requested")
	}
	outputs := make([]*Payment, len(payments))
	for i, p := range payments {
		if p.Value == 0 {
			return nil, fmt.Errorf("zero-value output to %s", p.Address)
		}
		cp := *p
		outputs[i] = &cp
	}
	outTotal := sumPayments(outputs)

	ordered := orderUTXOs(acct.UTXOs)
	var inputs []*asset.UTXO
	var inTotal, fee uint64
	enough := false
	for _, u := range ordered {
		inputs = append(inputs, u)
		inTotal += u.Value
		fee = calc.TxFee(len(inputs), len(outputs)+1, feeRate, segwit)
		if inTotal >= outTotal+fee {
			enough = true
			break
		}
	}

	if !enough {
		if len(ordered) == 0 || outTotal != inTotal {
			return nil, dex.NewError(asset.ErrInsufficientFunds, fmt.Sprintf("need %d + fees, have %d in %d outputs",
				outTotal, inTotal, len(ordered)))
		}
		// Spending everything. The fee comes out of the first payment.
		first := outputs[0]
		if utils.SafeSub(first.Value, fee) <= dustThreshold {
			return nil, dex.NewError(asset.ErrDust, fmt.Sprintf("output to %s cannot pay fee %d and stay above %d",
				first.Address, fee, dustThreshold))
		}
		first.Value -= fee
		return &Selection{
			Inputs:  inputs,
			Outputs: outputs,
			Fee:     fee,
		}, nil
	}

	sel := &Selection{
		Inputs:  inputs,
		Outputs: outputs,
		Fee:     fee,
	}
	change := inTotal - outTotal - fee
	if change <= dustThreshold {
		sel.Fee += change
		return sel, nil
	}
	if acct.ChangeIndex < 0 || acct.ChangeIndex >= len(acct.ChangeAddresses) {
		return nil, fmt.Errorf("no change address at index %d", acct.ChangeIndex)
	}
	ca := acct.ChangeAddresses[acct.ChangeIndex]
	sel.Change = change
	sel.ChangeAddress = ca.Address
	sel.ChangePath = ca.Path
	return sel, nil
}
