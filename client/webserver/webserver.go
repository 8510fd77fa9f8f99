// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package webserver serves a JSON API for swundle status and actions, and a
// websocket feed of swundle events.
package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"decred.org/multiswap/client/core"
	"decred.org/multiswap/dex/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

const (
	// rpcTimeoutSeconds is the number of seconds a connection to the server
	// is allowed to stay open for reading.
	rpcTimeoutSeconds = 10
	// writeTimeout is long enough for a hardware wallet to wait on the user.
	writeTimeout = 5 * time.Minute
	// maxBodySize limits request bodies, including restore data.
	maxBodySize = 10 << 20
)

var (
	// Time allowed to read the next pong message from the peer. A var for
	// testing.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// clientCore is satisfied by core.Core.
type clientCore interface {
	Wallets() []*core.WalletState
	Swundles() []*core.SwundleInfo
	Swundle(id string) (*core.SwundleInfo, error)
	CurrentSwundle() *core.SwundleInfo
	CreateSwundle(ctx context.Context, newSwaps []*core.NewSwap) (*core.SwundleInfo, error)
	InitSwundle(ctx context.Context, id string) error
	SignSwundle(ctx context.Context, id string, getCreds core.CredentialsFunc) error
	SendSwundle(ctx context.Context, id string, opts *core.SendOptions) error
	DismissSwundle(id string) error
	DismissLatestSwundle() error
	RemoveSwundle(id string) error
	CancelSign(walletID string) error
	ResolveReceiveWallet(swapID string) (string, error)
	RestoreSwundles(ctx context.Context, data []byte) ([]string, error)
	ExportState() ([]byte, error)
	EventLog() []*core.Event
	Subscribe() (<-chan *core.Event, func())
}

var _ clientCore = (*core.Core)(nil)

// Config is the configuration for the WebServer.
type Config struct {
	Core   clientCore
	Addr   string
	Indent bool
}

// WebServer is the JSON API and websocket server.
type WebServer struct {
	ctx    context.Context
	core   clientCore
	addr   string
	srv    *http.Server
	indent bool

	mtx     sync.Mutex
	clients map[uint64]*ws.WSLink
	nextCID uint64
}

// New is the constructor for a new WebServer.
func New(cfg *Config) (*WebServer, error) {
	if cfg.Core == nil {
		return nil, errors.New("no core")
	}
	mux := chi.NewRouter()
	s := &WebServer{
		ctx:     context.Background(),
		core:    cfg.Core,
		addr:    cfg.Addr,
		indent:  cfg.Indent,
		clients: make(map[uint64]*ws.WSLink),
		srv: &http.Server{
			Handler:      mux,
			ReadTimeout:  rpcTimeoutSeconds * time.Second,
			WriteTimeout: writeTimeout,
		},
	}

	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Get("/ws", s.handleWS)

	mux.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Get("/wallets", s.apiWallets)
		r.Get("/events", s.apiEvents)
		r.Get("/export", s.apiExport)
		r.Get("/swundles", s.apiSwundles)
		r.Get("/swundles/current", s.apiCurrentSwundle)
		r.Get("/swundles/{id}", s.apiSwundle)
		r.Delete("/swundles/{id}", s.apiRemoveSwundle)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Post("/swundles", s.apiCreateSwundle)
			r.Post("/swundles/{id}/init", s.apiInitSwundle)
			r.Post("/swundles/{id}/sign", s.apiSignSwundle)
			r.Post("/swundles/{id}/send", s.apiSendSwundle)
			r.Post("/swundles/{id}/dismiss", s.apiDismissSwundle)
			r.Post("/swundles/dismisslatest", s.apiDismissLatest)
			r.Post("/wallets/{id}/cancelsign", s.apiCancelSign)
			r.Post("/swaps/{id}/receivewallet", s.apiReceiveWallet)
			r.Post("/restore", s.apiRestore)
		})
	})

	return s, nil
}

// Run starts the web server. Satisfies the dex.Runner interface.
func (s *WebServer) Run(ctx context.Context) {
	s.ctx = ctx
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		log.Errorf("Can't listen on %s. web server quitting: %v", s.addr, err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := s.srv.Shutdown(context.Background()); err != nil {
			log.Errorf("Problem shutting down web server: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readNotifications(ctx)
	}()

	log.Infof("Web server listening on http://%s", listener.Addr())
	err = s.srv.Serve(listener)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Warnf("unexpected (http.Server).Serve error: %v", err)
	}
	log.Infof("Web server off")

	// Shutdown does not deal with hijacked websocket connections.
	s.mtx.Lock()
	for _, cl := range s.clients {
		cl.Disconnect()
	}
	s.mtx.Unlock()

	wg.Wait()
}

// readNotifications relays core events to the websocket clients.
func (s *WebServer) readNotifications(ctx context.Context) {
	ch, unsub := s.core.Subscribe()
	defer unsub()
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.notify(eventRoute, e)
		case <-ctx.Done():
			return
		}
	}
}

// readPost unmarshals the request body into the provided interface.
func readPost(w http.ResponseWriter, r *http.Request, thing any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	r.Body.Close()
	if err != nil {
		log.Debugf("Error reading request body: %v", err)
		http.Error(w, "error reading JSON message", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, thing); err != nil {
		log.Debugf("failed to unmarshal JSON request: %v", err)
		http.Error(w, "failed to unmarshal JSON request", http.StatusBadRequest)
		return false
	}
	return true
}

// writeJSON marshals the provided interface and writes the bytes to the
// ResponseWriter. The response code is assumed to be StatusOK.
func writeJSON(w http.ResponseWriter, thing any, indent bool) {
	writeJSONWithStatus(w, thing, http.StatusOK, indent)
}

// writeJSONWithStatus marshals the provided interface and writes the bytes to
// the ResponseWriter with the specified response code.
func writeJSONWithStatus(w http.ResponseWriter, thing any, code int, indent bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	encoder := json.NewEncoder(w)
	if indent {
		encoder.SetIndent("", "    ")
	}
	if err := encoder.Encode(thing); err != nil {
		log.Infof("JSON encode error: %v", err)
	}
}

// isUpgrade is true for websocket upgrade requests.
func isUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}
