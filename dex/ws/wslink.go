// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package ws is a websocket link that pushes JSON messages to a peer and
// keeps the connection alive with pings.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"decred.org/multiswap/dex"
	"github.com/gorilla/websocket"
)

// outBufferSize is the size of the WSLink's buffered channel for outgoing
// messages.
const outBufferSize = 128

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{}

// ErrPeerDisconnected is returned if Send is called on a disconnected link.
const ErrPeerDisconnected = dex.ErrorKind("peer disconnected")

// Connection represents a websocket connection to a remote peer. In practice,
// it is satisfied by *websocket.Conn. For testing, a stub can be used.
type Connection interface {
	Close() error

	SetReadDeadline(t time.Time) error
	ReadMessage() (int, []byte, error)

	SetWriteDeadline(t time.Time) error
	WriteMessage(int, []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// WSLink is the local, per-connection representation of a websocket peer.
type WSLink struct {
	ip      string
	conn    Connection
	on      atomic.Bool
	quit    context.CancelFunc
	stopped chan struct{}
	outChan chan *sendData
	wg      sync.WaitGroup
	// handler is called with every text message from the peer. A nil handler
	// drops them.
	handler    func([]byte) error
	pingPeriod time.Duration
	log        dex.Logger
}

type sendData struct {
	data []byte
	ret  chan<- error
}

// NewWSLink is a constructor for a new WSLink.
func NewWSLink(addr string, conn Connection, pingPeriod time.Duration, handler func([]byte) error, logger dex.Logger) *WSLink {
	return &WSLink{
		ip:         addr,
		conn:       conn,
		outChan:    make(chan *sendData, outBufferSize),
		pingPeriod: pingPeriod,
		handler:    handler,
		log:        logger,
	}
}

// Send marshals the message and queues it for the peer. A nil error only
// indicates that the link is believed to be up.
func (c *WSLink) Send(msg any) error {
	return c.send(msg, nil)
}

// SendNow is like Send, but it waits for the message to be written, returning
// any error from the write.
func (c *WSLink) SendNow(msg any) error {
	writeErrChan := make(chan error, 1)
	if err := c.send(msg, writeErrChan); err != nil {
		return err
	}
	return <-writeErrChan
}

func (c *WSLink) send(msg any, writeErr chan<- error) error {
	if c.Off() {
		return ErrPeerDisconnected
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.outChan <- &sendData{b, writeErr}:
	case <-c.stopped:
		return ErrPeerDisconnected
	}
	return nil
}

// Connect begins processing input and output messages. The returned
// WaitGroup is done when the connection is closed.
func (c *WSLink) Connect(ctx context.Context) (*sync.WaitGroup, error) {
	if !c.on.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("attempted to start a running WSLink")
	}
	linkCtx, quit := context.WithCancel(ctx)
	c.quit = quit
	c.stopped = make(chan struct{})
	// The pong handler sets subsequent read deadlines.
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pingPeriod * 2)); err != nil {
		c.stop()
		return nil, fmt.Errorf("failed to set initial read deadline for %v: %w", c.ip, err)
	}
	c.wg.Add(3)
	go c.inHandler(linkCtx)
	go c.outHandler(linkCtx)
	go c.pingHandler(linkCtx)
	return &c.wg, nil
}

func (c *WSLink) stop() bool {
	if !c.on.CompareAndSwap(true, false) {
		return false
	}
	close(c.stopped)
	c.quit()
	return true
}

// Disconnect begins shutdown of the WSLink. Queued messages are written
// before the connection is closed.
func (c *WSLink) Disconnect() {
	if !c.stop() {
		c.log.Debugf("Disconnect attempted on stopped link %s", c.ip)
	}
}

func (c *WSLink) inHandler(ctx context.Context) {
	defer c.wg.Done()
	defer c.stop()
	for ctx.Err() == nil {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway,
				websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && ctx.Err() == nil {
				c.log.Debugf("Websocket receive error from peer %s: %v", c.ip, err)
			}
			return
		}
		if c.handler == nil {
			continue
		}
		if err := c.handler(msg); err != nil {
			c.log.Debugf("Error handling message from %s: %v", c.ip, err)
		}
	}
}

func (c *WSLink) write(sd *sendData) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.TextMessage, sd.data)
	if sd.ret != nil {
		sd.ret <- err
	}
	if err != nil {
		c.stop()
		return false
	}
	return true
}

func (c *WSLink) outHandler(ctx context.Context) {
	defer c.wg.Done()
	defer c.conn.Close()
	defer c.stop()

	// Write whatever was queued before the stop.
	defer func() {
		for {
			select {
			case sd := <-c.outChan:
				if !c.write(sd) {
					return
				}
			default:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sd := <-c.outChan:
			if !c.write(sd) {
				return
			}
		}
	}
}

func (c *WSLink) pingHandler(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait))
			if err != nil {
				c.stop()
				c.log.Debugf("Ping error for %s: %v", c.ip, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Off will return true if the link has disconnected.
func (c *WSLink) Off() bool {
	return !c.on.Load()
}

// IP is the peer address passed to the constructor.
func (c *WSLink) IP() string {
	return c.ip
}

// NewConnection creates a new Connection by upgrading the http request to a
// websocket.
func NewConnection(w http.ResponseWriter, r *http.Request, readTimeout time.Duration) (Connection, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		var hsErr websocket.HandshakeError
		if !errors.As(err, &hsErr) {
			http.Error(w, "400 Bad Request.", http.StatusBadRequest)
		}
		return nil, err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	return conn, nil
}
