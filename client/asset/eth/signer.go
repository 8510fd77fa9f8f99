// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package eth

import (
	"context"
	"fmt"
	"math/big"

	"decred.org/multiswap/client/asset"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// KeystoreSigner signs with a passphrase-protected key from a go-ethereum
// keystore directory.
type KeystoreSigner struct {
	ks      *keystore.KeyStore
	acct    accounts.Account
	chainID *big.Int
}

var _ asset.Signer = (*KeystoreSigner)(nil)

// NewKeystoreSigner finds the account for addr in the keystore.
func NewKeystoreSigner(ks *keystore.KeyStore, addr common.Address, chainID *big.Int) (*KeystoreSigner, error) {
	acct, err := ks.Find(accounts.Account{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("account %s not in keystore: %w", addr, err)
	}
	return &KeystoreSigner{ks: ks, acct: acct, chainID: chainID}, nil
}

// Sign decodes the unsigned payload, signs it, and returns the binary
// encoding of the signed transaction.
func (s *KeystoreSigner) Sign(_ context.Context, utx *asset.UnsignedTx, creds *asset.Credentials) ([]byte, error) {
	if creds == nil {
		return nil, asset.ErrNoCredentials
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(utx.Payload); err != nil {
		return nil, fmt.Errorf("error decoding unsigned transaction: %w", err)
	}
	signed, err := s.ks.SignTxWithPassphrase(s.acct, creds.Password, tx, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("error signing transaction: %w", err)
	}
	return signed.MarshalBinary()
}

// Cancel is a no-op.
func (s *KeystoreSigner) Cancel() {}
