// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package exchange is a client for the rate and order HTTP API of an exchange
// provider.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"decred.org/multiswap/dex"
	"decred.org/multiswap/dex/dexnet"
	"golang.org/x/time/rate"
)

const (
	// ErrOrderRejected is returned when the provider refuses an order.
	ErrOrderRejected = dex.ErrorKind("order rejected")

	defaultRequestsPerSecond = 4
	defaultBurst             = 8
	requestTimeout           = 20 * time.Second
)

// Config is the configuration for the HTTP client.
type Config struct {
	URL    string
	APIKey string
	// RequestsPerSecond limits requests to the provider. Zero uses the
	// default.
	RequestsPerSecond float64
}

// Client is an OrderService for the provider's HTTP API.
type Client struct {
	url     string
	apiKey  string
	limiter *rate.Limiter
}

var _ OrderService = (*Client)(nil)

// NewClient is the constructor for a *Client.
func NewClient(cfg *Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid exchange URL %q: %w", cfg.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid exchange URL scheme %q", u.Scheme)
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	return &Client{
		url:     strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(rate.Limit(rps), defaultBurst),
	}, nil
}

type apiError struct {
	Err *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *apiError) err() error {
	if e.Err == nil {
		return nil
	}
	return dex.NewError(ErrOrderRejected, e.Err.Message)
}

func (c *Client) opts(errThing *apiError) []*dexnet.RequestOption {
	opts := []*dexnet.RequestOption{dexnet.WithErrorParsing(errThing)}
	if c.apiKey != "" {
		opts = append(opts, dexnet.WithRequestHeader("x-api-key", c.apiKey))
	}
	return opts
}

// do waits on the rate limiter and runs the request, converting a provider
// error body into an error.
func (c *Client) do(ctx context.Context, req func(ctx context.Context, errThing *apiError) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	var errThing apiError
	err := req(ctx, &errThing)
	if apiErr := errThing.err(); apiErr != nil {
		return apiErr
	}
	return err
}

// MarketInfo fetches the current terms for the pair.
func (c *Client) MarketInfo(ctx context.Context, pair string) (*MarketInfo, error) {
	var mi MarketInfo
	err := c.do(ctx, func(ctx context.Context, errThing *apiError) error {
		return dexnet.Get(ctx, c.url+"/marketinfo/"+url.PathEscape(pair), &mi, c.opts(errThing)...)
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching market info for %s: %w", pair, err)
	}
	if mi.Rate.Sign() <= 0 {
		return nil, fmt.Errorf("no rate for %s", pair)
	}
	if mi.Pair == "" {
		mi.Pair = pair
	}
	return &mi, nil
}

// PlaceOrder creates an order.
func (c *Client) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	var ord Order
	err := c.do(ctx, func(ctx context.Context, errThing *apiError) error {
		return dexnet.PostJSON(ctx, c.url+"/orders", &ord, req, c.opts(errThing)...)
	})
	if err != nil {
		return nil, err
	}
	if ord.ID == "" || ord.Deposit == "" {
		return nil, errors.New("order response missing id or deposit address")
	}
	if ord.Status == "" {
		ord.Status = OrderPending
	}
	log.Debugf("Placed order %s: %s %s -> %s", ord.ID, req.SendUnits, req.SendSymbol, req.ReceiveSymbol)
	return &ord, nil
}

// OrderStatus fetches the current state of an order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (*Order, error) {
	var ord Order
	err := c.do(ctx, func(ctx context.Context, errThing *apiError) error {
		return dexnet.Get(ctx, c.url+"/orders/"+url.PathEscape(orderID), &ord, c.opts(errThing)...)
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching order %s: %w", orderID, err)
	}
	return &ord, nil
}
