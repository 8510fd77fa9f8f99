// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"bytes"
	"context"
	"fmt"

	"decred.org/multiswap/client/asset"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// KeySource returns the private key for the derivation path of an input.
type KeySource func(path string) (*btcec.PrivateKey, error)

// WIFKeySource is a KeySource for a single-key wallet.
func WIFKeySource(wif string) (KeySource, error) {
	w, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, fmt.Errorf("error decoding WIF: %w", err)
	}
	return func(string) (*btcec.PrivateKey, error) {
		return w.PrivKey, nil
	}, nil
}

// KeySigner signs PSBTs built by BuildPSBT with locally held keys. Legacy
// inputs are assumed to be P2PKH of the compressed key, and segwit inputs
// P2WPKH.
type KeySigner struct {
	params *chaincfg.Params
	keys   KeySource
}

var _ asset.Signer = (*KeySigner)(nil)

// NewKeySigner is the constructor for a *KeySigner.
func NewKeySigner(params *chaincfg.Params, keys KeySource) *KeySigner {
	return &KeySigner{params: params, keys: keys}
}

// Sign signs every input and returns the serialized transaction.
func (s *KeySigner) Sign(_ context.Context, utx *asset.UnsignedTx, _ *asset.Credentials) ([]byte, error) {
	pkt, err := ParsePSBT(utx.Payload)
	if err != nil {
		return nil, fmt.Errorf("error parsing psbt: %w", err)
	}
	tx := pkt.UnsignedTx.Copy()

	// Every input needs a prevout in the fetcher, including legacy inputs
	// whose scripts are derived from the key.
	keys := make([]*btcec.PrivateKey, len(pkt.Inputs))
	scripts := make([][]byte, len(pkt.Inputs))
	prevOuts := txscript.NewMultiPrevOutFetcher(make(map[wire.OutPoint]*wire.TxOut))
	for i := range pkt.Inputs {
		in := &pkt.Inputs[i]
		priv, err := s.keys(inputPath(in))
		if err != nil {
			return nil, fmt.Errorf("no key for input %d: %w", i, err)
		}
		keys[i] = priv
		if in.WitnessUtxo != nil {
			scripts[i] = in.WitnessUtxo.PkScript
			prevOuts.AddPrevOut(tx.TxIn[i].PreviousOutPoint, in.WitnessUtxo)
			continue
		}
		pkh := btcutil.Hash160(priv.PubKey().SerializeCompressed())
		addr, err := btcutil.NewAddressPubKeyHash(pkh, s.params)
		if err != nil {
			return nil, err
		}
		if scripts[i], err = txscript.PayToAddrScript(addr); err != nil {
			return nil, err
		}
		prevOuts.AddPrevOut(tx.TxIn[i].PreviousOutPoint, wire.NewTxOut(0, scripts[i]))
	}
	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)

	for i := range pkt.Inputs {
		if wu := pkt.Inputs[i].WitnessUtxo; wu != nil {
			wit, err := txscript.WitnessSignature(tx, sigHashes, i, wu.Value, scripts[i], txscript.SigHashAll, keys[i], true)
			if err != nil {
				return nil, fmt.Errorf("error signing input %d: %w", i, err)
			}
			tx.TxIn[i].Witness = wit
			continue
		}
		sigScript, err := txscript.SignatureScript(tx, i, scripts[i], txscript.SigHashAll, keys[i], true)
		if err != nil {
			return nil, fmt.Errorf("error signing input %d: %w", i, err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}
	return serializeMsgTx(tx)
}

// Cancel is a no-op. Signing with local keys does not block.
func (s *KeySigner) Cancel() {}

func serializeMsgTx(tx *wire.MsgTx) ([]byte, error) {
	var b bytes.Buffer
	b.Grow(tx.SerializeSize())
	if err := tx.Serialize(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func deserializeMsgTx(b []byte) (*wire.MsgTx, error) {
	tx := new(wire.MsgTx)
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return tx, nil
}
