// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex/dexnet"
	"github.com/shopspring/decimal"
)

// blockbook is a client for the REST API of a Blockbook indexer. It
// broadcasts transactions, reports confirmations and estimates fee rates.
type blockbook struct {
	url string
}

var (
	_ asset.Broadcaster    = (*blockbook)(nil)
	_ asset.ReceiptFetcher = (*blockbook)(nil)
)

func newBlockbook(url string) *blockbook {
	return &blockbook{url: strings.TrimRight(url, "/")}
}

type blockbookError struct {
	Error string `json:"error"`
}

func (bb *blockbook) get(ctx context.Context, path string, thing any) error {
	var errResp blockbookError
	if err := dexnet.Get(ctx, bb.url+path, thing, dexnet.WithErrorParsing(&errResp)); err != nil {
		if errResp.Error != "" {
			return fmt.Errorf("%w: %s", err, errResp.Error)
		}
		return err
	}
	return nil
}

// Send broadcasts the serialized transaction.
func (bb *blockbook) Send(ctx context.Context, signedTx []byte) (string, error) {
	msgTx, err := deserializeMsgTx(signedTx)
	if err != nil {
		return "", fmt.Errorf("error decoding signed transaction: %w", err)
	}
	var resp struct {
		Result string `json:"result"`
	}
	if err := bb.get(ctx, "/api/v2/sendtx/"+hex.EncodeToString(signedTx), &resp); err != nil {
		return "", err
	}
	txid := msgTx.TxHash().String()
	if resp.Result != "" && resp.Result != txid {
		return "", fmt.Errorf("indexer reported txid %s for transaction %s", resp.Result, txid)
	}
	return txid, nil
}

// Receipt fetches confirmation info for the transaction.
func (bb *blockbook) Receipt(ctx context.Context, txHash string) (*asset.Receipt, error) {
	var resp struct {
		Confirmations uint32 `json:"confirmations"`
		BlockHeight   int64  `json:"blockHeight"`
	}
	if err := bb.get(ctx, "/api/v2/tx/"+txHash, &resp); err != nil {
		return nil, err
	}
	return &asset.Receipt{
		Confirmations: resp.Confirmations,
		BlockHeight:   resp.BlockHeight,
	}, nil
}

// FeeRate is the network's fee rate estimate for confirmation within two
// blocks, in sat/vB.
func (bb *blockbook) FeeRate(ctx context.Context) (uint64, error) {
	var resp struct {
		Result string `json:"result"`
	}
	if err := bb.get(ctx, "/api/v2/estimatefee/2", &resp); err != nil {
		return 0, err
	}
	// BTC/kvB
	btcPerKB, err := decimal.NewFromString(resp.Result)
	if err != nil {
		return 0, fmt.Errorf("error parsing fee rate %q: %w", resp.Result, err)
	}
	satPerVB := btcPerKB.Shift(8).Div(decimal.NewFromInt(1000)).Ceil()
	if !satPerVB.IsPositive() {
		return 0, fmt.Errorf("non-positive fee rate %s", resp.Result)
	}
	return uint64(satPerVB.IntPart()), nil
}
