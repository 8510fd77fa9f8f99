// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package discovery is a client for an account discovery service that scans
// extended public keys and streams the account's UTXOs over a websocket.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex"
	"github.com/gorilla/websocket"
)

const (
	// The maximum time to write to a connection.
	writeWait = time.Second * 3

	// DefaultScanTimeout bounds a single account scan.
	DefaultScanTimeout = 2 * time.Minute

	methodDiscoverAccount = "discoverAccount"
)

// Request is a discovery request.
type Request struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params *RequestParams `json:"params"`
}

// RequestParams are the parameters of a discoverAccount request.
type RequestParams struct {
	Descriptor string `json:"descriptor"`
	Network    string `json:"network"`
}

// Response is one message of a scan. Every message but the last has Done
// false and carries the account as scanned so far.
type Response struct {
	ID      string             `json:"id"`
	Account *asset.UTXOAccount `json:"data,omitempty"`
	Done    bool               `json:"done"`
	Error   string             `json:"error,omitempty"`
}

// Client dials the discovery service for each scan.
type Client struct {
	url         string
	dialer      *websocket.Dialer
	scanTimeout time.Duration
	reqID       atomic.Uint64
}

// NewClient creates a discovery client for the websocket URL.
func NewClient(url string) *Client {
	return &Client{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		scanTimeout: DefaultScanTimeout,
	}
}

// DiscoverAccount scans the descriptor. onUpdate, if non-nil, is called with
// every partial result. DiscoverAccount blocks until the final result, an
// error, or ctx is done.
func (c *Client) DiscoverAccount(ctx context.Context, descriptor string, net dex.Network, onUpdate func(*asset.UTXOAccount)) (*asset.UTXOAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, c.scanTimeout)
	defer cancel()

	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("error connecting to discovery service: %w", err)
	}
	defer ws.Close()

	// Unblock the reader when the context is done.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	req := &Request{
		ID:     strconv.FormatUint(c.reqID.Add(1), 10),
		Method: methodDiscoverAccount,
		Params: &RequestParams{
			Descriptor: descriptor,
			Network:    net.String(),
		},
	}
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("error sending discovery request: %w", err)
	}

	for {
		var resp Response
		if err := ws.ReadJSON(&resp); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var jsonErr *json.UnmarshalTypeError
			if errors.As(err, &jsonErr) {
				log.Errorf("json decode error: %v", err)
				continue
			}
			return nil, fmt.Errorf("discovery read error: %w", err)
		}
		if resp.ID != req.ID {
			log.Debugf("Ignoring discovery response for unknown request %q", resp.ID)
			continue
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("discovery error: %s", resp.Error)
		}
		if resp.Account == nil {
			return nil, errors.New("discovery response missing account data")
		}
		if resp.Done {
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
			return resp.Account, nil
		}
		if onUpdate != nil {
			onUpdate(resp.Account)
		}
	}
}
