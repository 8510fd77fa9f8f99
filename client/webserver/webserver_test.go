// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/client/core"
	"decred.org/multiswap/dex"
	"github.com/gorilla/websocket"
)

var tErr = errors.New("test error")

type TCore struct {
	mtx       sync.Mutex
	swundles  map[string]*core.SwundleInfo
	created   []*core.NewSwap
	creds     map[string]*asset.Credentials
	sendOpts  *core.SendOptions
	dismissed []string
	removed   []string
	canceled  []string
	restored  []byte
	signErr   error
	sendErr   error
	feed      chan *core.Event
}

func newTCore() *TCore {
	return &TCore{
		swundles: map[string]*core.SwundleInfo{
			"sw-1": {
				Swundle: &core.Swundle{ID: "sw-1", Swaps: []string{"swap-1"}},
				Status:  core.StatusPending,
			},
		},
		creds: make(map[string]*asset.Credentials),
		feed:  make(chan *core.Event, 1),
	}
}

func unknown(id string) error {
	return fmt.Errorf("%w: unknown swundle %s", core.ErrValidation, id)
}

func (c *TCore) Wallets() []*core.WalletState {
	return []*core.WalletState{{ID: "btc", Label: "BTC", Model: asset.ModelUTXO}}
}

func (c *TCore) Swundles() []*core.SwundleInfo {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	infos := make([]*core.SwundleInfo, 0, len(c.swundles))
	for _, sw := range c.swundles {
		infos = append(infos, sw)
	}
	return infos
}

func (c *TCore) Swundle(id string) (*core.SwundleInfo, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	sw, found := c.swundles[id]
	if !found {
		return nil, unknown(id)
	}
	return sw, nil
}

func (c *TCore) CurrentSwundle() *core.SwundleInfo { return nil }

func (c *TCore) CreateSwundle(_ context.Context, newSwaps []*core.NewSwap) (*core.SwundleInfo, error) {
	if len(newSwaps) == 0 {
		return nil, fmt.Errorf("%w: no swaps", core.ErrValidation)
	}
	c.created = newSwaps
	return c.swundles["sw-1"], nil
}

func (c *TCore) InitSwundle(_ context.Context, id string) error {
	_, err := c.Swundle(id)
	return err
}

func (c *TCore) SignSwundle(_ context.Context, id string, getCreds core.CredentialsFunc) error {
	if _, err := c.Swundle(id); err != nil {
		return err
	}
	for _, walletID := range []string{"eth", "btc"} {
		creds, err := getCreds(walletID, strings.ToUpper(walletID))
		if err != nil {
			return err
		}
		c.creds[walletID] = creds
	}
	return c.signErr
}

func (c *TCore) SendSwundle(_ context.Context, _ string, opts *core.SendOptions) error {
	c.sendOpts = opts
	return c.sendErr
}

func (c *TCore) DismissSwundle(id string) error {
	c.dismissed = append(c.dismissed, id)
	return nil
}

func (c *TCore) DismissLatestSwundle() error { return unknown("latest") }

func (c *TCore) RemoveSwundle(id string) error {
	if _, err := c.Swundle(id); err != nil {
		return err
	}
	c.removed = append(c.removed, id)
	return nil
}

func (c *TCore) CancelSign(walletID string) error {
	c.canceled = append(c.canceled, walletID)
	return nil
}

func (c *TCore) ResolveReceiveWallet(string) (string, error) { return "eth", nil }

func (c *TCore) RestoreSwundles(_ context.Context, data []byte) ([]string, error) {
	c.restored = data
	return []string{"sw-2"}, nil
}

func (c *TCore) ExportState() ([]byte, error) { return []byte(`{"swaps":[]}`), nil }

func (c *TCore) EventLog() []*core.Event {
	return []*core.Event{{Type: core.SwundleAdded, SwundleID: "sw-1"}}
}

func (c *TCore) Subscribe() (<-chan *core.Event, func()) {
	return c.feed, func() {}
}

func newTServer(t *testing.T) (*WebServer, *TCore) {
	t.Helper()
	c := newTCore()
	s, err := New(&Config{Core: c, Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return s, c
}

func request(t *testing.T, s *WebServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestMain(m *testing.M) {
	UseLogger(dex.StdOutLogger("TEST", dex.DefaultLogLevel))
	m.Run()
}

func TestNew(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Fatalf("no error for missing core")
	}
}

func TestAPIGet(t *testing.T) {
	s, _ := newTServer(t)
	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/api/wallets", http.StatusOK, `"model":"utxo"`},
		{"/api/events", http.StatusOK, `"type":"swundle_added"`},
		{"/api/swundles", http.StatusOK, `"id":"sw-1"`},
		{"/api/swundles/sw-1", http.StatusOK, `"status":"pending"`},
		{"/api/swundles/nope", http.StatusBadRequest, `unknown swundle nope`},
		{"/api/swundles/current", http.StatusNotFound, `no current swundle`},
		{"/api/export", http.StatusOK, `{"swaps":[]}`},
	}
	for _, tt := range tests {
		rec := request(t, s, http.MethodGet, tt.path, "")
		if rec.Code != tt.status {
			t.Fatalf("%s: wanted status %d, got %d", tt.path, tt.status, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tt.want) {
			t.Fatalf("%s: %q not in response %s", tt.path, tt.want, rec.Body)
		}
	}
}

func TestAPICreate(t *testing.T) {
	s, c := newTServer(t)
	body := `[{"sendWalletId":"btc","sendSymbol":"BTC","sendUnits":"0.5","receiveSymbol":"ETH","receiveAddress":"0xabc"}]`
	rec := request(t, s, http.MethodPost, "/api/swundles", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body)
	}
	if len(c.created) != 1 || c.created[0].SendUnits.String() != "0.5" {
		t.Fatalf("swaps not decoded: %+v", c.created)
	}
	var resp swundleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error decoding response: %v", err)
	}
	if !resp.OK || resp.Swundle.ID != "sw-1" {
		t.Fatalf("wrong response %s", rec.Body)
	}

	if rec := request(t, s, http.MethodPost, "/api/swundles", `[]`); rec.Code != http.StatusBadRequest {
		t.Fatalf("wanted bad request for no swaps, got %d", rec.Code)
	}
	if rec := request(t, s, http.MethodPost, "/api/swundles", `{"nope`); rec.Code != http.StatusBadRequest {
		t.Fatalf("wanted bad request for bad JSON, got %d", rec.Code)
	}
	// JSON only.
	req := httptest.NewRequest(http.MethodPost, "/api/swundles", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("wanted unsupported media type, got %d", rec.Code)
	}
}

func TestAPISign(t *testing.T) {
	s, c := newTServer(t)
	rec := request(t, s, http.MethodPost, "/api/swundles/sw-1/sign", `{"passwords":{"eth":"pw"}}`)
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), asset.ErrNoCredentials.Error()) {
		t.Fatalf("wanted missing credentials error, got %d %s", rec.Code, rec.Body)
	}
	if c.creds["eth"].Password != "pw" {
		t.Fatalf("password not passed")
	}

	rec = request(t, s, http.MethodPost, "/api/swundles/sw-1/sign", `{"passwords":{"eth":"pw","btc":"pw2"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("sign failed: %d %s", rec.Code, rec.Body)
	}

	c.signErr = tErr
	rec = request(t, s, http.MethodPost, "/api/swundles/sw-1/sign", `{"passwords":{"eth":"pw","btc":"pw2"}}`)
	var resp standardResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusInternalServerError || resp.OK || resp.Msg != tErr.Error() {
		t.Fatalf("wrong error response %d %s", rec.Code, rec.Body)
	}
}

func TestAPIActions(t *testing.T) {
	s, c := newTServer(t)
	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodPost, "/api/swundles/sw-1/init", "", http.StatusOK},
		{http.MethodPost, "/api/swundles/nope/init", "", http.StatusBadRequest},
		{http.MethodPost, "/api/swundles/sw-1/send", `{"continueOnError":true}`, http.StatusOK},
		{http.MethodPost, "/api/swundles/sw-1/dismiss", "", http.StatusOK},
		{http.MethodPost, "/api/swundles/dismisslatest", "", http.StatusBadRequest},
		{http.MethodDelete, "/api/swundles/sw-1", "", http.StatusOK},
		{http.MethodDelete, "/api/swundles/nope", "", http.StatusBadRequest},
		{http.MethodPost, "/api/wallets/eth/cancelsign", "", http.StatusOK},
		{http.MethodPost, "/api/swaps/swap-1/receivewallet", "", http.StatusOK},
		{http.MethodPost, "/api/restore", `[{"walletId":"btc"}]`, http.StatusOK},
	}
	for _, tt := range tests {
		rec := request(t, s, tt.method, tt.path, tt.body)
		if rec.Code != tt.status {
			t.Fatalf("%s %s: wanted %d, got %d: %s", tt.method, tt.path, tt.status, rec.Code, rec.Body)
		}
	}
	if c.sendOpts == nil || !c.sendOpts.ContinueOnError {
		t.Fatalf("send options not passed")
	}
	if len(c.dismissed) != 1 || len(c.removed) != 1 || len(c.canceled) != 1 {
		t.Fatalf("actions not dispatched")
	}
	if string(c.restored) != `[{"walletId":"btc"}]` {
		t.Fatalf("wrong restore data %s", c.restored)
	}
}

func TestWebsocketFeed(t *testing.T) {
	s, c := newTServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.ctx = ctx
	go s.readNotifications(ctx)

	srv := httptest.NewServer(s.srv.Handler)
	defer srv.Close()

	if rec := request(t, s, http.MethodGet, "/ws", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("wanted bad request for plain GET, got %d", rec.Code)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()

	read := func() *wsMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(time.Second * 5))
		msg := new(wsMessage)
		if err := conn.ReadJSON(msg); err != nil {
			t.Fatalf("ReadJSON error: %v", err)
		}
		return msg
	}
	if msg := read(); msg.Route != swundlesRoute {
		t.Fatalf("wanted %s first, got %s", swundlesRoute, msg.Route)
	}

	c.feed <- &core.Event{Type: core.SwapsUpdated, SwundleID: "sw-1"}
	msg := read()
	if msg.Route != eventRoute {
		t.Fatalf("wrong route %s", msg.Route)
	}
	payload, _ := json.Marshal(msg.Payload)
	if !strings.Contains(string(payload), `"type":"swaps_updated"`) {
		t.Fatalf("wrong payload %s", payload)
	}
}
