// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package webserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/client/core"
	"github.com/go-chi/chi/v5"
)

// standardResponse is a basic API response when no data needs to be returned.
type standardResponse struct {
	OK   bool   `json:"ok"`
	Msg  string `json:"msg,omitempty"`
	Code *int   `json:"code,omitempty"`
}

// simpleAck is a plain standardResponse with "ok" = true.
func simpleAck() *standardResponse {
	return &standardResponse{
		OK: true,
	}
}

// swundleResponse is returned by requests that act on a swundle.
type swundleResponse struct {
	OK      bool              `json:"ok"`
	Swundle *core.SwundleInfo `json:"swundle,omitempty"`
}

// signForm supplies wallet passwords, keyed by wallet ID.
type signForm struct {
	Passwords map[string]string `json:"passwords"`
}

// sendForm is the request body of the send route.
type sendForm struct {
	ContinueOnError bool `json:"continueOnError"`
}

// apiWallets is the handler for the '/wallets' API request.
func (s *WebServer) apiWallets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.core.Wallets(), s.indent)
}

// apiEvents is the handler for the '/events' API request.
func (s *WebServer) apiEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.core.EventLog(), s.indent)
}

// apiSwundles is the handler for the '/swundles' API request.
func (s *WebServer) apiSwundles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.core.Swundles(), s.indent)
}

// apiCurrentSwundle responds with the latest swundle that is not dismissed.
func (s *WebServer) apiCurrentSwundle(w http.ResponseWriter, _ *http.Request) {
	sw := s.core.CurrentSwundle()
	if sw == nil {
		writeJSONWithStatus(w, &standardResponse{Msg: "no current swundle"}, http.StatusNotFound, s.indent)
		return
	}
	writeJSON(w, sw, s.indent)
}

// apiSwundle is the handler for the '/swundles/{id}' API request.
func (s *WebServer) apiSwundle(w http.ResponseWriter, r *http.Request) {
	sw, err := s.core.Swundle(chi.URLParam(r, "id"))
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, sw, s.indent)
}

// apiReceiveWallet responds with the ID of the configured wallet that owns
// the swap's receive address.
func (s *WebServer) apiReceiveWallet(w http.ResponseWriter, r *http.Request) {
	walletID, err := s.core.ResolveReceiveWallet(chi.URLParam(r, "id"))
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	resp := struct {
		OK       bool   `json:"ok"`
		WalletID string `json:"walletId,omitempty"`
	}{
		OK:       true,
		WalletID: walletID,
	}
	writeJSON(w, resp, s.indent)
}

// apiCreateSwundle creates a swundle from a list of swaps and initializes it.
// Swaps that fail initialization are reported in the returned swundle.
func (s *WebServer) apiCreateSwundle(w http.ResponseWriter, r *http.Request) {
	var newSwaps []*core.NewSwap
	if !readPost(w, r, &newSwaps) {
		return
	}
	sw, err := s.core.CreateSwundle(r.Context(), newSwaps)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, &swundleResponse{OK: true, Swundle: sw}, s.indent)
}

// apiInitSwundle retries initialization of the swundle's pending swaps.
func (s *WebServer) apiInitSwundle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.core.InitSwundle(r.Context(), id); err != nil {
		s.writeAPIError(w, err)
		return
	}
	s.writeSwundle(w, id)
}

// apiSignSwundle signs the swundle's transactions with the provided
// passwords.
func (s *WebServer) apiSignSwundle(w http.ResponseWriter, r *http.Request) {
	form := new(signForm)
	if !readPost(w, r, form) {
		return
	}
	id := chi.URLParam(r, "id")
	getCreds := func(walletID, _ string) (*asset.Credentials, error) {
		pw, found := form.Passwords[walletID]
		if !found {
			return nil, asset.ErrNoCredentials
		}
		return &asset.Credentials{Password: pw}, nil
	}
	if err := s.core.SignSwundle(r.Context(), id, getCreds); err != nil {
		s.writeAPIError(w, err)
		return
	}
	s.writeSwundle(w, id)
}

// apiSendSwundle broadcasts the swundle's signed transactions.
func (s *WebServer) apiSendSwundle(w http.ResponseWriter, r *http.Request) {
	form := new(sendForm)
	if !readPost(w, r, form) {
		return
	}
	id := chi.URLParam(r, "id")
	err := s.core.SendSwundle(r.Context(), id, &core.SendOptions{ContinueOnError: form.ContinueOnError})
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	s.writeSwundle(w, id)
}

// apiDismissSwundle hides a swundle from the current view.
func (s *WebServer) apiDismissSwundle(w http.ResponseWriter, r *http.Request) {
	if err := s.core.DismissSwundle(chi.URLParam(r, "id")); err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, simpleAck(), s.indent)
}

// apiDismissLatest dismisses the latest swundle.
func (s *WebServer) apiDismissLatest(w http.ResponseWriter, _ *http.Request) {
	if err := s.core.DismissLatestSwundle(); err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, simpleAck(), s.indent)
}

// apiRemoveSwundle deletes a swundle and its swaps.
func (s *WebServer) apiRemoveSwundle(w http.ResponseWriter, r *http.Request) {
	if err := s.core.RemoveSwundle(chi.URLParam(r, "id")); err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, simpleAck(), s.indent)
}

// apiCancelSign cancels a pending signing request on the wallet.
func (s *WebServer) apiCancelSign(w http.ResponseWriter, r *http.Request) {
	if err := s.core.CancelSign(chi.URLParam(r, "id")); err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, simpleAck(), s.indent)
}

// apiRestore restores swundles from exported or legacy state.
func (s *WebServer) apiRestore(w http.ResponseWriter, r *http.Request) {
	var data json.RawMessage
	if !readPost(w, r, &data) {
		return
	}
	ids, err := s.core.RestoreSwundles(r.Context(), data)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	resp := struct {
		OK         bool     `json:"ok"`
		SwundleIDs []string `json:"swundleIds"`
	}{
		OK:         true,
		SwundleIDs: ids,
	}
	writeJSON(w, resp, s.indent)
}

// apiExport responds with the state of every swundle in the format accepted
// by the restore route.
func (s *WebServer) apiExport(w http.ResponseWriter, _ *http.Request) {
	b, err := s.core.ExportState()
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="swundles.json"`)
	if _, err := w.Write(b); err != nil {
		log.Debugf("Error writing export: %v", err)
	}
}

// writeSwundle responds with the swundle after an action on it.
func (s *WebServer) writeSwundle(w http.ResponseWriter, id string) {
	sw, err := s.core.Swundle(id)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(w, &swundleResponse{OK: true, Swundle: sw}, s.indent)
}

// writeAPIError logs the error and responds with a standardResponse. Bad
// requests and unknown swundles have their own status codes.
func (s *WebServer) writeAPIError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.UnknownSwundle(err):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	}
	resp := &standardResponse{Msg: err.Error()}
	if code := core.ErrorCode(err); code >= 0 {
		resp.Code = &code
	}
	log.Errorf("API error: %v", err)
	writeJSONWithStatus(w, resp, status, s.indent)
}
