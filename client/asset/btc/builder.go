// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package btc

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// pathKey is the proprietary PSBT input key under which the input address
// derivation path is recorded for hardware signers.
var pathKey = []byte{0xfc, 'p', 'a', 't', 'h'}

// outputScript is the pkScript paying to the encoded address.
func outputScript(addr string, params *chaincfg.Params) ([]byte, error) {
	a, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("error decoding address %q: %w", addr, err)
	}
	if !a.IsForNet(params) {
		return nil, fmt.Errorf("address %s is not for network %s", addr, params.Name)
	}
	return txscript.PayToAddrScript(a)
}

// buildMsgTx creates the unsigned transaction for the selection. Payments
// are added in order, followed by the change output.
func buildMsgTx(sel *Selection, params *chaincfg.Params) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range sel.Inputs {
		h, err := chainhash.NewHashFromStr(u.TxHash)
		if err != nil {
			return nil, fmt.Errorf("bad input tx hash %q: %w", u.TxHash, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(h, u.Vout), nil, nil))
	}
	for _, p := range sel.Outputs {
		script, err := outputScript(p.Address, params)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(int64(p.Value), script))
	}
	if sel.ChangeAddress != "" {
		script, err := outputScript(sel.ChangeAddress, params)
		if err != nil {
			return nil, fmt.Errorf("change: %w", err)
		}
		tx.AddTxOut(wire.NewTxOut(int64(sel.Change), script))
	}
	return tx, nil
}

// BuildPSBT serializes the selection as a BIP-174 partially signed
// transaction. Each input carries its derivation path, and segwit inputs
// carry the spent output.
func BuildPSBT(sel *Selection, params *chaincfg.Params, segwit bool) ([]byte, error) {
	tx, err := buildMsgTx(sel, params)
	if err != nil {
		return nil, err
	}
	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("error creating psbt: %w", err)
	}
	for i, u := range sel.Inputs {
		if u.AddressPath != "" {
			pkt.Inputs[i].Unknowns = append(pkt.Inputs[i].Unknowns, &psbt.Unknown{
				Key:   pathKey,
				Value: []byte(u.AddressPath),
			})
		}
		if segwit && u.Address != "" {
			script, err := outputScript(u.Address, params)
			if err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
			pkt.Inputs[i].WitnessUtxo = wire.NewTxOut(int64(u.Value), script)
		}
	}
	var b bytes.Buffer
	if err := pkt.Serialize(&b); err != nil {
		return nil, fmt.Errorf("error serializing psbt: %w", err)
	}
	return b.Bytes(), nil
}

// ParsePSBT decodes a packet created with BuildPSBT.
func ParsePSBT(b []byte) (*psbt.Packet, error) {
	return psbt.NewFromRawBytes(bytes.NewReader(b), false)
}

// inputPath is the derivation path recorded for the input, if any.
func inputPath(in *psbt.PInput) string {
	for _, u := range in.Unknowns {
		if bytes.Equal(u.Key, pathKey) {
			return string(u.Value)
		}
	}
	return ""
}
