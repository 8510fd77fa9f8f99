// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package webserver

import (
	"net"
	"net/http"

	"decred.org/multiswap/dex/ws"
)

// Websocket message routes.
const (
	// swundlesRoute is sent once on connect with the current swundles.
	swundlesRoute = "swundles"
	// eventRoute carries a core.Event.
	eventRoute = "event"
)

// wsMessage is a message pushed to websocket clients.
type wsMessage struct {
	Route   string `json:"route"`
	Payload any    `json:"payload"`
}

// handleWS upgrades the request and registers the client for event
// notifications.
func (s *WebServer) handleWS(w http.ResponseWriter, r *http.Request) {
	if !isUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil && host != "" {
		ip = host
	}
	conn, err := ws.NewConnection(w, r, pingPeriod+pongWait)
	if err != nil {
		log.Errorf("ws connection error: %v", err)
		return
	}
	go s.websocketHandler(conn, ip)
}

// websocketHandler runs the client link until it disconnects. This method
// should be run as a goroutine.
func (s *WebServer) websocketHandler(conn ws.Connection, ip string) {
	link := ws.NewWSLink(ip, conn, pingPeriod, nil, log)
	wg, err := link.Connect(s.ctx)
	if err != nil {
		log.Errorf("Error connecting websocket client %s: %v", ip, err)
		conn.Close()
		return
	}

	s.mtx.Lock()
	s.nextCID++
	cid := s.nextCID
	s.clients[cid] = link
	s.mtx.Unlock()
	log.Debugf("New websocket client %s", ip)

	if err := link.Send(&wsMessage{Route: swundlesRoute, Payload: s.core.Swundles()}); err != nil {
		log.Debugf("Error sending swundles to %s: %v", ip, err)
	}

	wg.Wait()

	s.mtx.Lock()
	delete(s.clients, cid)
	s.mtx.Unlock()
	log.Tracef("Disconnected websocket client %s", ip)
}

// notify sends a message to all connected websocket clients.
func (s *WebServer) notify(route string, payload any) {
	msg := &wsMessage{Route: route, Payload: payload}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, cl := range s.clients {
		if err := cl.Send(msg); err != nil {
			log.Debugf("Error sending %s to %s: %v", route, cl.IP(), err)
		}
	}
}
