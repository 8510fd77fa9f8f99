// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func newTServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/marketinfo/btc_eth", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":"auth","message":"bad key"}}`))
			return
		}
		w.Write([]byte(`{"rate":"15.5","min":"10000","max":"100000000","minerFee":"2000","lockedUntil":"2026-01-02T15:04:05Z"}`))
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		var req OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.ReceiveAddress == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"address","message":"invalid settle address"}}`))
			return
		}
		json.NewEncoder(w).Encode(&Order{
			ID:            "ord1",
			Deposit:       "bc1qdeposit",
			DepositAmount: req.SendUnits,
		})
	})
	mux.HandleFunc("/orders/ord1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ord1","deposit":"bc1qdeposit","depositAmount":"50000","status":"complete","receipt":"0xabc"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	srv := newTServer(t)
	c, err := NewClient(&Config{URL: srv.URL + "/", APIKey: "key", RequestsPerSecond: 100})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	ctx := context.Background()

	mi, err := c.MarketInfo(ctx, Pair("BTC", "ETH"))
	if err != nil {
		t.Fatalf("MarketInfo error: %v", err)
	}
	if !mi.Rate.Equal(decimal.RequireFromString("15.5")) || mi.Pair != "btc_eth" || mi.LockedUntil.IsZero() {
		t.Fatalf("wrong market info %+v", mi)
	}

	ord, err := c.PlaceOrder(ctx, &OrderRequest{
		SendSymbol:     "BTC",
		ReceiveSymbol:  "ETH",
		ReceiveAddress: "0xrecv",
		SendUnits:      decimal.NewFromInt(50000),
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	if ord.ID != "ord1" || ord.Status != OrderPending || !ord.DepositAmount.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("wrong order %+v", ord)
	}

	_, err = c.PlaceOrder(ctx, &OrderRequest{ReceiveAddress: "bad", SendUnits: decimal.NewFromInt(1)})
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("expected ErrOrderRejected, got %v", err)
	}

	ord, err = c.OrderStatus(ctx, "ord1")
	if err != nil {
		t.Fatalf("OrderStatus error: %v", err)
	}
	if ord.Status != OrderComplete || !ord.Status.Final() || ord.Receipt != "0xabc" {
		t.Fatalf("wrong order status %+v", ord)
	}

	if _, err := c.OrderStatus(ctx, "nope"); err == nil {
		t.Fatalf("no error for unknown order")
	}

	bad, _ := NewClient(&Config{URL: srv.URL, APIKey: "wrong"})
	if _, err := bad.MarketInfo(ctx, "btc_eth"); !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestNewClient(t *testing.T) {
	for _, u := range []string{"ftp://x", "://"} {
		if _, err := NewClient(&Config{URL: u}); err == nil {
			t.Fatalf("no error for %q", u)
		}
	}
}
