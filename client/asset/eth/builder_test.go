// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package eth

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	tFrom      = common.HexToAddress("0x2b84C791b79Ee37De042AD2ffF1A253c3ce9bc27")
	tRecipient = common.HexToAddress("0x8d83B207674bfd53B418a6E47DA148F5bFeCc652")
	tChainID   = big.NewInt(1)
	tLogger    = dex.StdOutLogger("TEST", dex.DefaultLogLevel)
)

type tOracle struct {
	gasPrice    *big.Int
	gasPriceErr error
	gas         uint64
	gasErr      error
	nonce       uint64
	nonceErr    error
	nonceCalls  int
	lastCall    ethereum.CallMsg
}

func (o *tOracle) SuggestGasPrice(context.Context) (*big.Int, error) {
	return o.gasPrice, o.gasPriceErr
}

func (o *tOracle) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	o.lastCall = msg
	return o.gas, o.gasErr
}

func (o *tOracle) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	o.nonceCalls++
	return o.nonce, o.nonceErr
}

func newTOracle() *tOracle {
	return &tOracle{
		gasPrice: big.NewInt(30e9),
		gas:      50_000,
		nonce:    7,
	}
}

func TestBuildNative(t *testing.T) {
	o := newTOracle()
	b := NewBuilder(o, tChainID, dex.Mainnet, tLogger)
	utx, err := b.Build(context.Background(), tFrom, ethAsset, &asset.Output{Address: tRecipient.Hex(), Amount: big.NewInt(1e18)}, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	tx := utx.Account
	if tx.To != tRecipient.Hex() {
		t.Fatalf("wrong to %s", tx.To)
	}
	if tx.Value.Cmp(big.NewInt(1e18)) != 0 {
		t.Fatalf("wrong value %s", tx.Value)
	}
	if len(tx.Data) != 0 {
		t.Fatalf("native send has data")
	}
	if *tx.Nonce != 7 || tx.Gas != 50_000 || tx.GasPrice.Cmp(o.gasPrice) != 0 {
		t.Fatalf("wrong nonce/gas/gasPrice %d/%d/%s", *tx.Nonce, tx.Gas, tx.GasPrice)
	}
	if utx.Fee.Cmp(new(big.Int).Mul(o.gasPrice, big.NewInt(50_000))) != 0 {
		t.Fatalf("wrong fee %s", utx.Fee)
	}
	if utx.FeeSymbol != Symbol {
		t.Fatalf("wrong fee symbol %s", utx.FeeSymbol)
	}

	// The payload decodes to the same transaction.
	decoded := new(types.Transaction)
	if err := decoded.UnmarshalBinary(utx.Payload); err != nil {
		t.Fatalf("error decoding payload: %v", err)
	}
	if decoded.Nonce() != 7 || *decoded.To() != tRecipient || decoded.Value().Cmp(big.NewInt(1e18)) != 0 {
		t.Fatalf("payload mismatch")
	}
}

func TestBuildToken(t *testing.T) {
	o := newTOracle()
	b := NewBuilder(o, tChainID, dex.Mainnet, tLogger)
	amt := big.NewInt(250_000_000)
	utx, err := b.Build(context.Background(), tFrom, usdcAsset, &asset.Output{Address: tRecipient.Hex(), Amount: amt}, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	tx := utx.Account
	contract := common.HexToAddress(usdcAsset.Token.NetAddresses[dex.Mainnet])
	if tx.To != contract.Hex() {
		t.Fatalf("token tx not sent to contract: %s", tx.To)
	}
	if tx.Value.Sign() != 0 {
		t.Fatalf("token tx has value %s", tx.Value)
	}
	to, v, err := ParseTransferData(tx.Data)
	if err != nil {
		t.Fatalf("ParseTransferData error: %v", err)
	}
	if to != tRecipient || v.Cmp(amt) != 0 {
		t.Fatalf("wrong transfer data %s %s", to, v)
	}
	// The recorded output is the token recipient, not the contract.
	if utx.Outputs[0].Address != tRecipient.Hex() || utx.Amount().Cmp(amt) != 0 {
		t.Fatalf("wrong output")
	}
	if *o.lastCall.To != contract {
		t.Fatalf("gas estimated against wrong address")
	}

	// No testnet contract for USDT.
	b = NewBuilder(o, tChainID, dex.Testnet, tLogger)
	_, err = b.Build(context.Background(), tFrom, usdtAsset, &asset.Output{Address: tRecipient.Hex(), Amount: amt}, nil)
	if !errors.Is(err, asset.ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
}

func TestBuildNonceChaining(t *testing.T) {
	o := newTOracle()
	b := NewBuilder(o, tChainID, dex.Mainnet, tLogger)
	out := &asset.Output{Address: tRecipient.Hex(), Amount: big.NewInt(1)}

	var prev *asset.UnsignedTx
	for i := uint64(0); i < 4; i++ {
		a := ethAsset
		if i%2 == 1 {
			a = usdcAsset
		}
		utx, err := b.Build(context.Background(), tFrom, a, out, prev)
		if err != nil {
			t.Fatalf("Build %d error: %v", i, err)
		}
		if *utx.Account.Nonce != 7+i {
			t.Fatalf("tx %d: wanted nonce %d, got %d", i, 7+i, *utx.Account.Nonce)
		}
		prev = utx
	}
	if o.nonceCalls != 1 {
		t.Fatalf("pending nonce fetched %d times", o.nonceCalls)
	}

	// A previous transaction from another address does not chain.
	prev.From = tRecipient.Hex()
	utx, err := b.Build(context.Background(), tFrom, ethAsset, out, prev)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if *utx.Account.Nonce != 7 {
		t.Fatalf("chained from foreign sender, nonce %d", *utx.Account.Nonce)
	}
}

func TestBuildFallbacks(t *testing.T) {
	o := newTOracle()
	o.gasPriceErr = errors.New("no gas price")
	o.gasPrice = nil
	o.gasErr = errors.New("execution reverted")
	b := NewBuilder(o, tChainID, dex.Mainnet, tLogger)
	out := &asset.Output{Address: tRecipient.Hex(), Amount: big.NewInt(1)}

	utx, err := b.Build(context.Background(), tFrom, ethAsset, out, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if utx.Account.GasPrice.Cmp(big.NewInt(20e9)) != 0 {
		t.Fatalf("wrong fallback gas price %s", utx.Account.GasPrice)
	}
	if utx.Account.Gas != DefaultSendGas {
		t.Fatalf("wrong native fallback gas %d", utx.Account.Gas)
	}

	utx, err = b.Build(context.Background(), tFrom, usdcAsset, out, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if utx.Account.Gas != DefaultTransferGas {
		t.Fatalf("wrong token fallback gas %d", utx.Account.Gas)
	}

	// The default price must not be mutated through returned transactions.
	utx.Account.GasPrice.SetInt64(1)
	if DefaultGasPrice.Cmp(big.NewInt(20e9)) != 0 {
		t.Fatalf("default gas price mutated")
	}
}

func TestBuildMissingNonce(t *testing.T) {
	o := newTOracle()
	o.nonceErr = errors.New("node down")
	b := NewBuilder(o, tChainID, dex.Mainnet, tLogger)
	_, err := b.Build(context.Background(), tFrom, ethAsset, &asset.Output{Address: tRecipient.Hex(), Amount: big.NewInt(1)}, nil)
	if !errors.Is(err, asset.ErrMissingTxField) {
		t.Fatalf("expected ErrMissingTxField, got %v", err)
	}
}

func TestBuildBadOutput(t *testing.T) {
	b := NewBuilder(newTOracle(), tChainID, dex.Mainnet, tLogger)
	for _, out := range []*asset.Output{
		{Address: "not an address", Amount: big.NewInt(1)},
		{Address: tRecipient.Hex()},
		{Address: tRecipient.Hex(), Amount: big.NewInt(0)},
	} {
		if _, err := b.Build(context.Background(), tFrom, ethAsset, out, nil); err == nil {
			t.Fatalf("no error for output %+v", out)
		}
	}
}

func TestValidateRequired(t *testing.T) {
	nonce := uint64(1)
	good := func() *asset.UnsignedTx {
		return &asset.UnsignedTx{
			From: tFrom.Hex(),
			Account: &asset.AccountTx{
				Nonce:    &nonce,
				GasPrice: big.NewInt(1),
				Gas:      21_000,
				ChainID:  tChainID,
				To:       tRecipient.Hex(),
				Value:    big.NewInt(1),
			},
		}
	}
	if err := ValidateRequired(good()); err != nil {
		t.Fatalf("valid tx rejected: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*asset.UnsignedTx)
	}{
		{"from", func(u *asset.UnsignedTx) { u.From = "" }},
		{"to", func(u *asset.UnsignedTx) { u.Account.To = "" }},
		{"value", func(u *asset.UnsignedTx) { u.Account.Value = nil }},
		{"chainId", func(u *asset.UnsignedTx) { u.Account.ChainID = nil }},
		{"gasPrice", func(u *asset.UnsignedTx) { u.Account.GasPrice = nil }},
		{"gas", func(u *asset.UnsignedTx) { u.Account.Gas = 0 }},
		{"nonce", func(u *asset.UnsignedTx) { u.Account.Nonce = nil }},
		{"utxo", func(u *asset.UnsignedTx) { u.Account = nil }},
	}
	for _, tt := range tests {
		utx := good()
		tt.mutate(utx)
		if err := ValidateRequired(utx); !errors.Is(err, asset.ErrMissingTxField) {
			t.Fatalf("%s: expected ErrMissingTxField, got %v", tt.name, err)
		}
	}
}

func TestParseTokens(t *testing.T) {
	toks, err := ParseTokens(" dai=0x6B175474E89094C44Da98b954EedeAC495271d0F, ", dex.Mainnet)
	if err != nil {
		t.Fatalf("ParseTokens error: %v", err)
	}
	if len(toks) != 1 || toks[0].Symbol != "DAI" || toks[0].Token.ContractAddress(dex.Mainnet) == "" {
		t.Fatalf("wrong tokens %+v", toks)
	}
	for _, s := range []string{"DAI", "=0x6B175474E89094C44Da98b954EedeAC495271d0F", "DAI=0x12"} {
		if _, err := ParseTokens(s, dex.Mainnet); err == nil {
			t.Fatalf("no error for %q", s)
		}
	}
}
