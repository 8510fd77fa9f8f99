// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"testing"

	"decred.org/multiswap/client/asset"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var tParams = &chaincfg.RegressionNetParams

type tKey struct {
	priv   *btcec.PrivateKey
	legacy string
	segwit string
}

func newTKey(t *testing.T) *tKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey error: %v", err)
	}
	pkh := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	legacy, err := btcutil.NewAddressPubKeyHash(pkh, tParams)
	if err != nil {
		t.Fatal(err)
	}
	segwit, err := btcutil.NewAddressWitnessPubKeyHash(pkh, tParams)
	if err != nil {
		t.Fatal(err)
	}
	return &tKey{priv: priv, legacy: legacy.EncodeAddress(), segwit: segwit.EncodeAddress()}
}

func tTxHash(b byte) string {
	var h chainhash.Hash
	h[0] = b
	return h.String()
}

func TestBuildPSBT(t *testing.T) {
	from, dest, chg := newTKey(t), newTKey(t), newTKey(t)
	sel := &Selection{
		Inputs: []*asset.UTXO{
			{TxHash: tTxHash(1), Vout: 2, Value: 60000, Address: from.segwit, AddressPath: "m/84'/1'/0'/0/3"},
			{TxHash: tTxHash(2), Vout: 0, Value: 50000, Address: from.segwit, AddressPath: "m/84'/1'/0'/0/4"},
		},
		Outputs:       []*Payment{{Address: dest.segwit, Value: 70000}, {Address: dest.legacy, Value: 20000}},
		Fee:           2000,
		Change:        18000,
		ChangeAddress: chg.segwit,
		ChangePath:    "m/84'/1'/0'/1/0",
	}
	b, err := BuildPSBT(sel, tParams, true)
	if err != nil {
		t.Fatalf("BuildPSBT error: %v", err)
	}
	pkt, err := ParsePSBT(b)
	if err != nil {
		t.Fatalf("ParsePSBT error: %v", err)
	}
	tx := pkt.UnsignedTx
	if len(tx.TxIn) != 2 || len(tx.TxOut) != 3 {
		t.Fatalf("wrong shape: %d ins, %d outs", len(tx.TxIn), len(tx.TxOut))
	}
	if tx.TxIn[0].PreviousOutPoint.Index != 2 || tx.TxIn[0].PreviousOutPoint.Hash.String() != tTxHash(1) {
		t.Fatalf("wrong first outpoint %v", tx.TxIn[0].PreviousOutPoint)
	}
	if tx.TxOut[0].Value != 70000 || tx.TxOut[1].Value != 20000 || tx.TxOut[2].Value != 18000 {
		t.Fatalf("wrong output values")
	}
	if got := inputPath(&pkt.Inputs[1]); got != "m/84'/1'/0'/0/4" {
		t.Fatalf("wrong input path %q", got)
	}
	if pkt.Inputs[0].WitnessUtxo == nil || pkt.Inputs[0].WitnessUtxo.Value != 60000 {
		t.Fatal("missing witness utxo")
	}

	// Legacy inputs carry no witness utxo.
	b, err = BuildPSBT(sel, tParams, false)
	if err != nil {
		t.Fatalf("BuildPSBT error: %v", err)
	}
	if pkt, _ = ParsePSBT(b); pkt.Inputs[0].WitnessUtxo != nil {
		t.Fatal("witness utxo on legacy input")
	}
}

func TestBuildPSBTBadAddress(t *testing.T) {
	sel := &Selection{
		Inputs:  []*asset.UTXO{{TxHash: tTxHash(1), Value: 60000}},
		Outputs: []*Payment{{Address: "notanaddress", Value: 1000}},
	}
	if _, err := BuildPSBT(sel, tParams, false); err == nil {
		t.Fatal("no error for bad address")
	}
	// Mainnet address on regtest.
	sel.Outputs[0].Address = "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"
	if _, err := BuildPSBT(sel, tParams, false); err == nil {
		t.Fatal("no error for mainnet address")
	}
}

func verifySigned(t *testing.T, signed []byte, prevOuts map[wire.OutPoint]*wire.TxOut) {
	t.Helper()
	tx, err := deserializeMsgTx(signed)
	if err != nil {
		t.Fatalf("error decoding signed tx: %v", err)
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, in := range tx.TxIn {
		prev := prevOuts[in.PreviousOutPoint]
		vm, err := txscript.NewEngine(prev.PkScript, tx, i, txscript.StandardVerifyFlags, nil, sigHashes, prev.Value, fetcher)
		if err != nil {
			t.Fatalf("NewEngine error: %v", err)
		}
		if err := vm.Execute(); err != nil {
			t.Fatalf("input %d failed verification: %v", i, err)
		}
	}
}

func TestKeySigner(t *testing.T) {
	for _, segwit := range []bool{false, true} {
		from, dest := newTKey(t), newTKey(t)
		addr := from.legacy
		if segwit {
			addr = from.segwit
		}
		sel := &Selection{
			Inputs: []*asset.UTXO{
				{TxHash: tTxHash(1), Vout: 0, Value: 60000, Address: addr, AddressPath: "m/0/0"},
				{TxHash: tTxHash(2), Vout: 1, Value: 50000, Address: addr, AddressPath: "m/0/1"},
			},
			Outputs: []*Payment{{Address: dest.segwit, Value: 100000}},
			Fee:     10000,
		}
		b, err := BuildPSBT(sel, tParams, segwit)
		if err != nil {
			t.Fatalf("BuildPSBT error: %v", err)
		}
		var paths []string
		signer := NewKeySigner(tParams, func(path string) (*btcec.PrivateKey, error) {
			paths = append(paths, path)
			return from.priv, nil
		})
		signed, err := signer.Sign(t.Context(), &asset.UnsignedTx{Symbol: Symbol, Payload: b}, nil)
		if err != nil {
			t.Fatalf("Sign error (segwit = %t): %v", segwit, err)
		}
		if len(paths) != 2 || paths[0] != "m/0/0" || paths[1] != "m/0/1" {
			t.Fatalf("wrong key paths requested: %v", paths)
		}
		script, _ := outputScript(addr, tParams)
		prevOuts := make(map[wire.OutPoint]*wire.TxOut)
		for _, u := range sel.Inputs {
			h, _ := chainhash.NewHashFromStr(u.TxHash)
			prevOuts[*wire.NewOutPoint(h, u.Vout)] = wire.NewTxOut(int64(u.Value), script)
		}
		verifySigned(t, signed, prevOuts)
	}
}
