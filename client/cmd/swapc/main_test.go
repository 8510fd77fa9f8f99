// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"decred.org/multiswap/client/core"
	"decred.org/multiswap/client/db"
	"decred.org/multiswap/client/exchange"
)

type tExchange struct{}

func (tExchange) MarketInfo(context.Context, string) (*exchange.MarketInfo, error) {
	return nil, errors.New("not implemented")
}

func (tExchange) PlaceOrder(context.Context, *exchange.OrderRequest) (*exchange.Order, error) {
	return nil, errors.New("not implemented")
}

func (tExchange) OrderStatus(context.Context, string) (*exchange.Order, error) {
	return nil, errors.New("not implemented")
}

func TestRunCommand(t *testing.T) {
	c, err := core.New(&core.Config{Exchange: tExchange{}, DB: db.NewMemKV()})
	if err != nil {
		t.Fatalf("core.New error: %v", err)
	}
	ctx := context.Background()
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte("nope"), 0600); err != nil {
		t.Fatal(err)
	}
	exportPath := filepath.Join(dir, "export.json")

	tests := []struct {
		args    []string
		wantErr string
	}{
		{[]string{"status"}, ""},
		{[]string{"export", exportPath}, ""},
		{[]string{"restore"}, "missing argument"},
		{[]string{"restore", garbage}, "validation error"},
		{[]string{"remove"}, "missing argument"},
		{[]string{"remove", "sw-1"}, "unknown swundle"},
		{[]string{"dismiss"}, "no swundle"},
		{[]string{"frobnicate"}, "unknown command"},
	}
	for _, tt := range tests {
		err := runCommand(ctx, c, tt.args)
		if tt.wantErr == "" {
			if err != nil {
				t.Fatalf("%v: unexpected error: %v", tt.args, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Fatalf("%v: wanted error containing %q, got %v", tt.args, tt.wantErr, err)
		}
	}
	if _, err := os.Stat(exportPath); err != nil {
		t.Fatalf("export not written: %v", err)
	}
}
