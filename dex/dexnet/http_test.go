// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dexnet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorParsing(t *testing.T) {
	ctx := t.Context()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code": -150, "msg": "order amount too small"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	var errPayload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := Get(ctx, ts.URL, nil, WithErrorParsing(&errPayload)); err == nil {
		t.Fatal("didn't get an http error")
	}
	if errPayload.Code != -150 || errPayload.Msg != "order amount too small" {
		t.Fatal("unexpected error body")
	}
}

func TestPostJSON(t *testing.T) {
	type payload struct {
		Symbol string `json:"symbol"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			http.Error(w, "bad content type "+ct, http.StatusBadRequest)
			return
		}
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&payload{Symbol: p.Symbol + "!"})
	}))
	defer ts.Close()

	var resp payload
	var status int
	err := PostJSON(t.Context(), ts.URL, &resp, &payload{Symbol: "BTC"}, WithStatusFunc(func(c int) { status = c }))
	if err != nil {
		t.Fatalf("PostJSON error: %v", err)
	}
	if status != http.StatusCreated {
		t.Fatalf("wrong status %d", status)
	}
	if resp.Symbol != "BTC!" {
		t.Fatalf("wrong response %q", resp.Symbol)
	}
}
