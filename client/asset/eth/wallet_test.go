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
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type tClient struct {
	*tOracle
	balance    *big.Int
	tokenBal   *big.Int
	callTo     *common.Address
	sent       []*types.Transaction
	sendErr    error
	receipt    *types.Receipt
	receiptErr error
	tip        uint64
}

func newTClient() *tClient {
	return &tClient{
		tOracle:  newTOracle(),
		balance:  big.NewInt(5e18),
		tokenBal: big.NewInt(1_000_000),
		tip:      100,
	}
}

func (c *tClient) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return c.balance, nil
}

func (c *tClient) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.callTo = call.To
	return erc20ABI.Methods["balanceOf"].Outputs.Pack(c.tokenBal)
}

func (c *tClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, tx)
	return nil
}

func (c *tClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return c.receipt, c.receiptErr
}

func (c *tClient) BlockNumber(context.Context) (uint64, error) {
	return c.tip, nil
}

type tSigner struct {
	signed   []*asset.UnsignedTx
	canceled bool
}

func (s *tSigner) Sign(_ context.Context, utx *asset.UnsignedTx, _ *asset.Credentials) ([]byte, error) {
	s.signed = append(s.signed, utx)
	return utx.Payload, nil
}

func (s *tSigner) Cancel() { s.canceled = true }

func newTWallet(t *testing.T, c *tClient, signer asset.Signer, requiresPW bool) *Wallet {
	t.Helper()
	w, err := NewWallet(&Config{
		ID:               "eth-1",
		Label:            "ETH",
		Net:              dex.Mainnet,
		Address:          tFrom,
		ChainID:          tChainID,
		Assets:           KnownAssets(),
		RequiresPassword: requiresPW,
		Client:           c,
		Signer:           signer,
	}, tLogger)
	if err != nil {
		t.Fatalf("NewWallet error: %v", err)
	}
	return w
}

func TestWalletSupports(t *testing.T) {
	w := newTWallet(t, newTClient(), &tSigner{}, false)
	for sym, exp := range map[string]bool{"ETH": true, "USDC": true, "USDT": true, "BTC": false} {
		if w.Supports(sym) != exp {
			t.Fatalf("Supports(%s) != %t", sym, exp)
		}
	}
	if w.FeeSymbol("USDC") != Symbol {
		t.Fatalf("wrong fee symbol for token")
	}
	if w.SupportsAggregateTx("ETH") {
		t.Fatalf("account wallet claims aggregate support")
	}
	if _, err := w.Address("BTC"); !errors.Is(err, asset.ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
	addr, _ := w.Address("USDC")
	if addr != tFrom.Hex() {
		t.Fatalf("wrong address %s", addr)
	}
}

func TestWalletBalance(t *testing.T) {
	c := newTClient()
	w := newTWallet(t, c, &tSigner{}, false)
	bal, err := w.Balance(context.Background(), "ETH")
	if err != nil || bal.Cmp(c.balance) != 0 {
		t.Fatalf("wrong ETH balance %v, %v", bal, err)
	}
	bal, err = w.Balance(context.Background(), "USDC")
	if err != nil || bal.Cmp(c.tokenBal) != 0 {
		t.Fatalf("wrong USDC balance %v, %v", bal, err)
	}
	if *c.callTo != common.HexToAddress(usdcAsset.Token.NetAddresses[dex.Mainnet]) {
		t.Fatalf("balanceOf called on %s", c.callTo)
	}
}

func TestWalletEstimateFee(t *testing.T) {
	c := newTClient()
	w := newTWallet(t, c, &tSigner{}, false)
	fee, err := w.EstimateFee(context.Background(), "USDC", big.NewInt(1))
	if err != nil {
		t.Fatalf("EstimateFee error: %v", err)
	}
	if exp := new(big.Int).Mul(c.gasPrice, big.NewInt(DefaultTransferGas)); fee.Cmp(exp) != 0 {
		t.Fatalf("wanted fee %s, got %s", exp, fee)
	}
}

func TestWalletBuildAndSend(t *testing.T) {
	c := newTClient()
	s := &tSigner{}
	w := newTWallet(t, c, s, false)
	ctx := context.Background()

	req := &asset.TxRequest{
		Symbol:  "ETH",
		Outputs: []*asset.Output{{Address: tRecipient.Hex(), Amount: big.NewInt(1e17)}},
	}
	first, err := w.BuildTransaction(ctx, req)
	if err != nil {
		t.Fatalf("BuildTransaction error: %v", err)
	}
	req.Previous = first
	second, err := w.BuildTransaction(ctx, req)
	if err != nil {
		t.Fatalf("BuildTransaction error: %v", err)
	}
	if *second.Account.Nonce != *first.Account.Nonce+1 {
		t.Fatalf("nonces not consecutive: %d, %d", *first.Account.Nonce, *second.Account.Nonce)
	}

	req.Outputs = append(req.Outputs, req.Outputs[0])
	if _, err := w.BuildTransaction(ctx, req); err == nil {
		t.Fatalf("no error for multiple outputs")
	}

	signed, err := w.Sign(ctx, first, nil)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	hash, err := w.Send(ctx, signed)
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(c.sent) != 1 || c.sent[0].Hash().Hex() != hash {
		t.Fatalf("wrong tx sent")
	}

	c.sendErr = errors.New("nonce too low")
	if _, err := w.Send(ctx, signed); err == nil {
		t.Fatalf("no error for failed send")
	}
	if _, err := w.Send(ctx, []byte{0x01}); err == nil {
		t.Fatalf("no error for garbage tx")
	}

	w.Cancel()
	if !s.canceled {
		t.Fatalf("signer not canceled")
	}
}

func TestWalletSignValidation(t *testing.T) {
	c := newTClient()
	s := &tSigner{}
	w := newTWallet(t, c, s, true)
	ctx := context.Background()
	utx, err := w.BuildTransaction(ctx, &asset.TxRequest{
		Symbol:  "ETH",
		Outputs: []*asset.Output{{Address: tRecipient.Hex(), Amount: big.NewInt(1)}},
	})
	if err != nil {
		t.Fatalf("BuildTransaction error: %v", err)
	}
	if _, err := w.Sign(ctx, utx, nil); !errors.Is(err, asset.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
	utx.Account.Nonce = nil
	if _, err := w.Sign(ctx, utx, &asset.Credentials{Password: "pw"}); !errors.Is(err, asset.ErrMissingTxField) {
		t.Fatalf("expected ErrMissingTxField, got %v", err)
	}
	if len(s.signed) != 0 {
		t.Fatalf("invalid tx reached signer")
	}
}

func TestWalletReceipt(t *testing.T) {
	c := newTClient()
	w := newTWallet(t, c, &tSigner{}, false)
	ctx := context.Background()

	c.receiptErr = ethereum.NotFound
	r, err := w.Receipt(ctx, "0x01")
	if err != nil || r != nil {
		t.Fatalf("expected nil receipt for unmined tx, got %v, %v", r, err)
	}

	c.receiptErr = nil
	c.receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(98)}
	r, err = w.Receipt(ctx, "0x01")
	if err != nil {
		t.Fatalf("Receipt error: %v", err)
	}
	if r.Confirmations != 3 || r.BlockHeight != 98 || r.Failed {
		t.Fatalf("wrong receipt %+v", r)
	}

	c.receipt.Status = types.ReceiptStatusFailed
	r, _ = w.Receipt(ctx, "0x01")
	if !r.Failed {
		t.Fatalf("failed receipt not reported")
	}
}

func TestKeystoreSigner(t *testing.T) {
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	acct, err := ks.NewAccount("abc")
	if err != nil {
		t.Fatalf("NewAccount error: %v", err)
	}
	signer, err := NewKeystoreSigner(ks, acct.Address, tChainID)
	if err != nil {
		t.Fatalf("NewKeystoreSigner error: %v", err)
	}
	if _, err := NewKeystoreSigner(ks, tRecipient, tChainID); err == nil {
		t.Fatalf("no error for unknown account")
	}

	b := NewBuilder(newTOracle(), tChainID, dex.Mainnet, tLogger)
	utx, err := b.Build(context.Background(), acct.Address, ethAsset, &asset.Output{Address: tRecipient.Hex(), Amount: big.NewInt(1)}, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	ctx := context.Background()
	if _, err := signer.Sign(ctx, utx, &asset.Credentials{Password: "wrong"}); err == nil {
		t.Fatalf("no error for wrong passphrase")
	}
	b2, err := signer.Sign(ctx, utx, &asset.Credentials{Password: "abc"})
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(b2); err != nil {
		t.Fatalf("error decoding signed tx: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(tChainID), tx)
	if err != nil {
		t.Fatalf("Sender error: %v", err)
	}
	if sender != acct.Address {
		t.Fatalf("wrong sender %s", sender)
	}
}
