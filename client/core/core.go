// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package core orchestrates bundles of swaps ("swundles"). Core quotes and
// places exchange orders, checks that shared wallets can fund every swap
// drawing on them, builds the deposit transactions, and drives signing and
// broadcast.
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/client/db"
	"decred.org/multiswap/client/exchange"
	"decred.org/multiswap/dex/wait"
	"github.com/google/uuid"
)

const (
	// DefaultPollInterval is the interval between order and receipt checks.
	DefaultPollInterval = 30 * time.Second
	// pollExpiration is how long an unresolved order or transaction is
	// polled.
	pollExpiration = 24 * time.Hour
	// maxEventLog is the number of recent events kept.
	maxEventLog = 500
	// subscriberBuffer is the capacity of subscription channels.
	subscriberBuffer = 64
)

// Config is the configuration for the Core.
type Config struct {
	// Wallets are the available wallets. IDs must be unique.
	Wallets []asset.Wallet
	// Exchange is the rate and order provider.
	Exchange exchange.OrderService
	// DB persists swap state keyed by send-wallet address. May be nil.
	DB db.KV
	// PollInterval is the interval between order and receipt checks. Zero
	// uses DefaultPollInterval.
	PollInterval time.Duration
	// NewID generates swap, swundle and transaction IDs. Defaults to random
	// UUIDs.
	NewID func() string
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Core is the swap orchestrator.
type Core struct {
	ctx      context.Context
	wg       sync.WaitGroup
	wallets  map[string]asset.Wallet
	walletsL []asset.Wallet
	exchange exchange.OrderService
	db       db.KV
	newID    func() string
	now      func() time.Time

	stateMtx sync.RWMutex
	state    *State
	eventLog []*Event

	subMtx sync.RWMutex
	subs   map[int]chan *Event
	subID  int

	pollQueue *wait.TickerQueue
	pollMtx   sync.Mutex
	polls     map[string][]wait.Cancel

	persistMtx  sync.Mutex
	persistKeys map[string]string // swap ID -> storage key
	knownKeys   map[string]bool

	opMtx sync.Mutex
	ops   map[string]bool
}

// New is the constructor for a new Core.
func New(cfg *Config) (*Core, error) {
	if cfg.Exchange == nil {
		return nil, errors.New("no exchange provided")
	}
	wallets := make(map[string]asset.Wallet, len(cfg.Wallets))
	for _, w := range cfg.Wallets {
		if _, dup := wallets[w.ID()]; dup {
			return nil, fmt.Errorf("duplicate wallet ID %q", w.ID())
		}
		wallets[w.ID()] = w
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	newID, now := cfg.NewID, cfg.Now
	if newID == nil {
		newID = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	c := &Core{
		ctx:         context.Background(),
		wallets:     wallets,
		walletsL:    cfg.Wallets,
		exchange:    cfg.Exchange,
		db:          cfg.DB,
		newID:       newID,
		now:         now,
		state:       newState(),
		subs:        make(map[int]chan *Event),
		pollQueue:   wait.NewTickerQueue(pollInterval),
		polls:       make(map[string][]wait.Cancel),
		persistKeys: make(map[string]string),
		knownKeys:   make(map[string]bool),
		ops:         make(map[string]bool),
	}
	log.Tracef("New swap core created with %d wallets", len(wallets))
	return c, nil
}

// Run runs the polling loop until the context is canceled. Satisfies the
// dex.Runner interface.
func (c *Core) Run(ctx context.Context) {
	log.Infof("Started swap core")
	c.ctx = ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pollQueue.Run(ctx)
	}()
	<-ctx.Done()
	c.wg.Wait()
	log.Infof("Swap core off")
}

// dispatch applies the event to the state, records it, delivers it to
// subscribers, and persists the affected state. A snapshot of e is
// published, so the caller may keep modifying its records.
func (c *Core) dispatch(e *Event) {
	e = e.snapshot()
	e.Stamp = c.now()
	c.stateMtx.Lock()
	c.state.apply(e)
	c.eventLog = append(c.eventLog, e)
	if len(c.eventLog) > maxEventLog {
		c.eventLog = c.eventLog[len(c.eventLog)-maxEventLog:]
	}
	c.stateMtx.Unlock()

	c.subMtx.RLock()
	for _, ch := range c.subs {
		select {
		case ch <- e:
		default:
			log.Errorf("Blocking event subscription channel. Dropping %s event", e.Type)
		}
	}
	c.subMtx.RUnlock()

	if e.Type != InitStarted && e.Type != SignStarted && e.Type != SendStarted {
		c.persist()
	}
}

// Subscribe returns a channel of events and a function to end the
// subscription. The channel should be drained for the lifetime of the
// subscription. Events are dropped for blocking channels.
func (c *Core) Subscribe() (<-chan *Event, func()) {
	ch := make(chan *Event, subscriberBuffer)
	c.subMtx.Lock()
	id := c.subID
	c.subID++
	c.subs[id] = ch
	c.subMtx.Unlock()
	return ch, func() {
		c.subMtx.Lock()
		delete(c.subs, id)
		c.subMtx.Unlock()
	}
}

// EventLog returns the most recent events, oldest first.
func (c *Core) EventLog() []*Event {
	c.stateMtx.RLock()
	defer c.stateMtx.RUnlock()
	return append([]*Event(nil), c.eventLog...)
}

// beginOp marks the swundle as busy. Init, sign and send of one swundle may
// not run concurrently.
func (c *Core) beginOp(swundleID string) (func(), error) {
	c.opMtx.Lock()
	defer c.opMtx.Unlock()
	if c.ops[swundleID] {
		return nil, newError(validationErr, "%w: swundle %s is busy", ErrValidation, swundleID)
	}
	c.ops[swundleID] = true
	return func() {
		c.opMtx.Lock()
		delete(c.ops, swundleID)
		c.opMtx.Unlock()
	}, nil
}

func (c *Core) wallet(id string) (asset.Wallet, error) {
	w, found := c.wallets[id]
	if !found {
		return nil, newError(walletErr, "unknown wallet %q", id)
	}
	return w, nil
}

// memberWallet resolves multi-chain wallets to the wallet for the asset.
func memberWallet(w asset.Wallet, symbol string) (asset.Wallet, error) {
	if agg, is := w.(asset.Aggregator); is {
		return agg.Resolve(symbol)
	}
	return w, nil
}

// Wallets lists the configured wallets.
func (c *Core) Wallets() []*WalletState {
	ws := make([]*WalletState, 0, len(c.walletsL))
	for _, w := range c.walletsL {
		ws = append(ws, &WalletState{
			ID:       w.ID(),
			Label:    w.Label(),
			Model:    w.Model(),
			Password: w.RequiresPassword(),
		})
	}
	return ws
}

// swundle returns a copy of the swundle with its swaps and transactions.
func (c *Core) swundle(id string) (*Swundle, []*Swap, map[string]*Transaction, error) {
	c.stateMtx.RLock()
	defer c.stateMtx.RUnlock()
	sw := c.state.Swundles[id]
	if sw == nil {
		return nil, nil, nil, newError(unknownSwundleErr, "%w: unknown swundle %s", ErrValidation, id)
	}
	swaps := c.state.swundleSwaps(sw)
	txs := make(map[string]*Transaction)
	for i, swap := range swaps {
		swaps[i] = swap.copy()
		if tx := c.state.Txs[swap.TxID]; tx != nil {
			txs[tx.ID] = tx.copy()
		}
	}
	return sw.copy(), swaps, txs, nil
}

// SwapInfo is a swap with its derived status and transaction.
type SwapInfo struct {
	*Swap
	Status Status       `json:"status"`
	Tx     *Transaction `json:"tx,omitempty"`
}

// SwundleInfo is a swundle with its swaps and derived status.
type SwundleInfo struct {
	*Swundle
	Status StatusKind  `json:"status"`
	Swaps  []*SwapInfo `json:"swapInfos"`
}

func (c *Core) swundleInfo(sw *Swundle) *SwundleInfo {
	swaps := c.state.swundleSwaps(sw)
	info := &SwundleInfo{
		Swundle: sw.copy(),
		Status:  c.state.swundleStatus(sw),
		Swaps:   make([]*SwapInfo, 0, len(swaps)),
	}
	for _, swap := range swaps {
		si := &SwapInfo{Swap: swap.copy(), Status: c.state.swapStatus(swap)}
		if tx := c.state.Txs[swap.TxID]; tx != nil {
			si.Tx = tx.copy()
		}
		info.Swaps = append(info.Swaps, si)
	}
	return info
}

// Swundle returns the swundle with derived statuses.
func (c *Core) Swundle(id string) (*SwundleInfo, error) {
	c.stateMtx.RLock()
	defer c.stateMtx.RUnlock()
	sw := c.state.Swundles[id]
	if sw == nil {
		return nil, newError(unknownSwundleErr, "%w: unknown swundle %s", ErrValidation, id)
	}
	return c.swundleInfo(sw), nil
}

// Swundles lists all swundles, newest first.
func (c *Core) Swundles() []*SwundleInfo {
	c.stateMtx.RLock()
	defer c.stateMtx.RUnlock()
	swundles := c.state.sortedSwundles()
	infos := make([]*SwundleInfo, 0, len(swundles))
	for i := len(swundles) - 1; i >= 0; i-- {
		infos = append(infos, c.swundleInfo(swundles[i]))
	}
	return infos
}

// CurrentSwundle is the most recent swundle that has not been dismissed, or
// nil.
func (c *Core) CurrentSwundle() *SwundleInfo {
	c.stateMtx.RLock()
	defer c.stateMtx.RUnlock()
	sw := c.state.latestSwundle()
	if sw == nil {
		return nil
	}
	return c.swundleInfo(sw)
}

// SwundleStatus is the aggregate status of the swundle.
func (c *Core) SwundleStatus(id string) (StatusKind, error) {
	c.stateMtx.RLock()
	defer c.stateMtx.RUnlock()
	sw := c.state.Swundles[id]
	if sw == nil {
		return "", newError(unknownSwundleErr, "%w: unknown swundle %s", ErrValidation, id)
	}
	return c.state.swundleStatus(sw), nil
}

// RemoveSwundle stops polling and removes the swundle with its swaps and
// transactions.
func (c *Core) RemoveSwundle(id string) error {
	c.stateMtx.RLock()
	_, found := c.state.Swundles[id]
	c.stateMtx.RUnlock()
	if !found {
		return newError(unknownSwundleErr, "%w: unknown swundle %s", ErrValidation, id)
	}
	c.stopPolling(id)
	c.dispatch(&Event{Type: SwundleRemoved, SwundleID: id})
	log.Infof("Removed swundle %s", id)
	return nil
}

// RemoveCurrentSwundle removes the most recent swundle that has not been
// dismissed.
func (c *Core) RemoveCurrentSwundle() error {
	c.stateMtx.RLock()
	sw := c.state.latestSwundle()
	c.stateMtx.RUnlock()
	if sw == nil {
		return newError(unknownSwundleErr, "%w: no current swundle", ErrValidation)
	}
	return c.RemoveSwundle(sw.ID)
}

// DismissSwundle hides the swundle and cancels its polling. A check in
// progress is allowed to finish.
func (c *Core) DismissSwundle(id string) error {
	c.stateMtx.RLock()
	_, found := c.state.Swundles[id]
	c.stateMtx.RUnlock()
	if !found {
		return newError(unknownSwundleErr, "%w: unknown swundle %s", ErrValidation, id)
	}
	c.stopPolling(id)
	c.dispatch(&Event{Type: SwundleDismissed, SwundleID: id})
	return nil
}

// DismissLatestSwundle dismisses the most recent swundle that has not been
// dismissed.
func (c *Core) DismissLatestSwundle() error {
	c.stateMtx.RLock()
	sw := c.state.latestSwundle()
	c.stateMtx.RUnlock()
	if sw == nil {
		return newError(unknownSwundleErr, "%w: no swundle to dismiss", ErrValidation)
	}
	return c.DismissSwundle(sw.ID)
}

// CancelSign aborts an in-flight signing request of the wallet, e.g. a
// pending hardware device confirmation.
func (c *Core) CancelSign(walletID string) error {
	w, err := c.wallet(walletID)
	if err != nil {
		return err
	}
	w.Cancel()
	return nil
}

// ResolveReceiveWallet sets the receive wallet of a swap that has none from
// the wallet owning the receive address. The wallet ID is returned, or an
// empty string if no wallet owns the address.
func (c *Core) ResolveReceiveWallet(swapID string) (string, error) {
	c.stateMtx.RLock()
	swap := c.state.Swaps[swapID]
	if swap != nil {
		swap = swap.copy()
	}
	c.stateMtx.RUnlock()
	if swap == nil {
		return "", newError(validationErr, "%w: unknown swap %s", ErrValidation, swapID)
	}
	if swap.ReceiveWalletID != "" {
		return swap.ReceiveWalletID, nil
	}
	id := c.receiveWalletFor(swap.ReceiveSymbol, swap.ReceiveAddress)
	if id == "" {
		return "", nil
	}
	swap.ReceiveWalletID = id
	c.dispatch(swapsEvent(swap))
	return id, nil
}

func (c *Core) receiveWalletFor(symbol, addr string) string {
	if addr == "" {
		return ""
	}
	for _, w := range c.walletsL {
		if !w.Supports(symbol) {
			continue
		}
		a, err := w.Address(symbol)
		if err != nil {
			log.Debugf("No %s address for wallet %s: %v", symbol, w.ID(), err)
			continue
		}
		if strings.EqualFold(a, addr) {
			return w.ID()
		}
	}
	return ""
}

// sortedSwaps orders swaps by creation time, then ID.
func sortedSwaps(swaps []*Swap) []*Swap {
	sort.SliceStable(swaps, func(i, j int) bool {
		if swaps[i].CreatedAt.Equal(swaps[j].CreatedAt) {
			return swaps[i].ID < swaps[j].ID
		}
		return swaps[i].CreatedAt.Before(swaps[j].CreatedAt)
	})
	return swaps
}
