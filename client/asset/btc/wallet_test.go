// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex"
	"decred.org/multiswap/dex/calc"
)

type tDiscoverer struct {
	acct  *asset.UTXOAccount
	err   error
	calls int
}

func (d *tDiscoverer) DiscoverAccount(_ context.Context, _ string, _ dex.Network, onUpdate func(*asset.UTXOAccount)) (*asset.UTXOAccount, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	onUpdate(d.acct)
	return d.acct, nil
}

type tFeeRater struct {
	rate uint64
	err  error
}

func (f *tFeeRater) FeeRate(context.Context) (uint64, error) {
	return f.rate, f.err
}

type tSigner struct {
	signed   []byte
	err      error
	canceled bool
}

func (s *tSigner) Sign(context.Context, *asset.UnsignedTx, *asset.Credentials) ([]byte, error) {
	return s.signed, s.err
}

func (s *tSigner) Cancel() { s.canceled = true }

type tBroadcaster struct {
	sent [][]byte
}

func (b *tBroadcaster) Send(_ context.Context, tx []byte) (string, error) {
	b.sent = append(b.sent, tx)
	return "txid", nil
}

func newTWallet(t *testing.T, acct *asset.UTXOAccount) (*Wallet, *tDiscoverer, *tSigner) {
	t.Helper()
	disc := &tDiscoverer{acct: acct}
	signer := &tSigner{signed: []byte{1}}
	w, err := NewWallet(&Config{
		ID:              "w1",
		Label:           "Hardware BTC",
		Net:             dex.Regtest,
		Descriptor:      "xpub",
		Segwit:          true,
		FallbackFeeRate: 10,
		Discoverer:      disc,
		FeeRater:        &tFeeRater{rate: 5},
		Signer:          signer,
		Broadcaster:     &tBroadcaster{},
	}, dex.StdOutLogger("TEST", dex.DefaultLogLevel))
	if err != nil {
		t.Fatalf("NewWallet error: %v", err)
	}
	return w, disc, signer
}

func TestWalletBuildAggregate(t *testing.T) {
	from, dest1, dest2, chg := newTKey(t), newTKey(t), newTKey(t), newTKey(t)
	acct := &asset.UTXOAccount{
		Address: from.segwit,
		UTXOs: []*asset.UTXO{
			{TxHash: tTxHash(1), Value: 200000, Confirmations: 10, Address: from.segwit, AddressPath: "m/0/0"},
			{TxHash: tTxHash(2), Value: 30000, Confirmations: 10, Address: from.segwit, AddressPath: "m/0/1"},
		},
		ChangeAddresses: []*asset.ChangeAddress{{Address: chg.segwit, Path: "m/1/0"}},
	}
	w, _, _ := newTWallet(t, acct)

	utx, err := w.BuildTransaction(t.Context(), &asset.TxRequest{
		Symbol: Symbol,
		Outputs: []*asset.Output{
			{Address: dest1.segwit, Amount: big.NewInt(100000)},
			{Address: dest2.segwit, Amount: big.NewInt(50000)},
		},
	})
	if err != nil {
		t.Fatalf("BuildTransaction error: %v", err)
	}
	if len(utx.Outputs) != 2 || utx.Outputs[0].Address != dest1.segwit || utx.Outputs[1].Address != dest2.segwit {
		t.Fatal("outputs not in request order")
	}
	if utx.From != from.segwit || utx.FeeSymbol != Symbol {
		t.Fatalf("wrong from/fee symbol %s / %s", utx.From, utx.FeeSymbol)
	}
	// 30000 + 200000 needed, at 5 sat/vB.
	wantFee := calc.TxFee(2, 3, 5, true)
	if utx.Fee.Uint64() != wantFee {
		t.Fatalf("wrong fee. wanted %d, got %s", wantFee, utx.Fee)
	}
	if utx.UTXO.ChangeAddress != chg.segwit || utx.UTXO.Change != 230000-150000-wantFee {
		t.Fatalf("wrong change %d to %s", utx.UTXO.Change, utx.UTXO.ChangeAddress)
	}
	if _, err := ParsePSBT(utx.Payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if addr, _ := w.Address(Symbol); addr != from.segwit {
		t.Fatalf("wrong address %s", addr)
	}
}

func TestWalletBuildExcludesPrevious(t *testing.T) {
	from, dest := newTKey(t), newTKey(t)
	acct := &asset.UTXOAccount{
		Address: from.segwit,
		UTXOs: []*asset.UTXO{
			{TxHash: tTxHash(1), Value: 100000, Confirmations: 10, Address: from.segwit},
			{TxHash: tTxHash(2), Value: 100000, Confirmations: 10, Address: from.segwit},
		},
		ChangeAddresses: []*asset.ChangeAddress{{Address: from.segwit}, {Address: from.segwit}},
	}
	w, _, _ := newTWallet(t, acct)
	req := &asset.TxRequest{Symbol: Symbol, Outputs: []*asset.Output{{Address: dest.segwit, Amount: big.NewInt(50000)}}}
	first, err := w.BuildTransaction(t.Context(), req)
	if err != nil {
		t.Fatalf("first build error: %v", err)
	}
	req.Previous = first
	second, err := w.BuildTransaction(t.Context(), req)
	if err != nil {
		t.Fatalf("second build error: %v", err)
	}
	if first.UTXO.Inputs[0].TxHash == second.UTXO.Inputs[0].TxHash {
		t.Fatal("second transaction spends the first one's input")
	}
}

func TestWalletEstimateFee(t *testing.T) {
	acct := &asset.UTXOAccount{UTXOs: []*asset.UTXO{{TxHash: tTxHash(1), Value: 10000, Confirmations: 10}}}
	w, _, _ := newTWallet(t, acct)
	fee, err := w.EstimateFee(t.Context(), Symbol, big.NewInt(5000))
	if err != nil {
		t.Fatalf("EstimateFee error: %v", err)
	}
	if fee.Uint64() != calc.TxFee(1, 2, 5, true) {
		t.Fatalf("wrong fee %s", fee)
	}
	// Unfundable amounts still get an estimate.
	fee, err = w.EstimateFee(t.Context(), Symbol, big.NewInt(1e8))
	if err != nil {
		t.Fatalf("EstimateFee error for large amount: %v", err)
	}
	if fee.Uint64() != calc.TxFee(1, 2, 5, true) {
		t.Fatalf("wrong fallback fee %s", fee)
	}
	if _, err := w.EstimateFee(t.Context(), "ETH", big.NewInt(1)); !errors.Is(err, asset.ErrUnsupportedAsset) {
		t.Fatalf("expected unsupported asset error, got %v", err)
	}
}

func TestWalletFeeRateFallback(t *testing.T) {
	w, _, _ := newTWallet(t, &asset.UTXOAccount{})
	w.cfg.FeeRater = &tFeeRater{err: errors.New("offline")}
	if r := w.feeRate(t.Context()); r != 10 {
		t.Fatalf("wanted fallback rate 10, got %d", r)
	}
}

func TestWalletSign(t *testing.T) {
	w, _, signer := newTWallet(t, &asset.UTXOAccount{})
	utx := &asset.UnsignedTx{Symbol: Symbol}
	if _, err := w.Sign(t.Context(), utx, nil); err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	w.cfg.RequiresPassword = true
	if _, err := w.Sign(t.Context(), utx, nil); !errors.Is(err, asset.ErrNoCredentials) {
		t.Fatalf("expected credentials error, got %v", err)
	}
	if _, err := w.Sign(t.Context(), utx, &asset.Credentials{Password: "pw"}); err != nil {
		t.Fatalf("Sign with password error: %v", err)
	}
	w.Cancel()
	if !signer.canceled {
		t.Fatal("signer not canceled")
	}
}

func TestWalletBalance(t *testing.T) {
	acct := &asset.UTXOAccount{UTXOs: []*asset.UTXO{{Value: 1000}, {Value: 2500}}}
	w, disc, _ := newTWallet(t, acct)
	bal, err := w.Balance(t.Context(), Symbol)
	if err != nil {
		t.Fatalf("Balance error: %v", err)
	}
	if bal.Int64() != 3500 {
		t.Fatalf("wrong balance %s", bal)
	}
	disc.err = errors.New("scan failed")
	if _, err := w.Balance(t.Context(), Symbol); err == nil {
		t.Fatal("no error for failed discovery")
	}
}

type tReceipts struct {
	receipt *asset.Receipt
}

func (f *tReceipts) Receipt(context.Context, string) (*asset.Receipt, error) {
	return f.receipt, nil
}

func TestWalletReceipt(t *testing.T) {
	w, _, _ := newTWallet(t, &asset.UTXOAccount{})
	if _, err := w.Receipt(t.Context(), "txid"); !errors.Is(err, asset.ErrNoReceipts) {
		t.Fatalf("expected ErrNoReceipts without a receipt source, got %v", err)
	}
	w.cfg.Receipts = &tReceipts{receipt: &asset.Receipt{Confirmations: 2}}
	r, err := w.Receipt(t.Context(), "txid")
	if err != nil {
		t.Fatalf("Receipt error: %v", err)
	}
	if r.Confirmations != 2 {
		t.Fatalf("wrong receipt %+v", r)
	}
}
