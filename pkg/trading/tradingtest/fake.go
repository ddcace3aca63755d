// Package tradingtest provides in-memory doubles for the trading backend.
package tradingtest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/uhyunpark/clobrelay/pkg/clob"
	"github.com/uhyunpark/clobrelay/pkg/trading"
)

// PostedOrder is one CreateAndPostOrder call as the backend saw it.
type PostedOrder struct {
	Args      clob.OrderArgs
	Options   clob.OrderOptions
	OrderType clob.OrderType
}

// Backend records every call and answers from its fields.
type Backend struct {
	mu sync.Mutex

	Creds     clob.Credentials
	DeriveErr error
	ClientErr error
	Response  *clob.OrderResponse
	PostErr   error
	Orders    []json.RawMessage
	Trades    []json.RawMessage
	ListErr   error

	DeriverCalls int
	DeriveCalls  int
	ClientCalls  int
	Posted       []PostedOrder
	Signers      []string
	SigTypes     []clob.SignatureType
	Funders      []string
}

func NewBackend() *Backend {
	return &Backend{
		Creds: clob.Credentials{APIKey: "test-key", Secret: "dGVzdA==", Passphrase: "test-pass"},
		Response: &clob.OrderResponse{
			Success:            true,
			OrderID:            "0xorder",
			TransactionsHashes: []string{"0xtx"},
			Status:             "live",
			Raw:                json.RawMessage(`{"success":true,"orderID":"0xorder","transactionsHashes":["0xtx"],"status":"live"}`),
		},
	}
}

func (b *Backend) NewDeriver(signer clob.Signer) trading.CredentialDeriver {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DeriverCalls++
	b.Signers = append(b.Signers, signer.Address().Hex())
	return deriver{b}
}

func (b *Backend) NewClient(signer clob.Signer, creds clob.Credentials, sigType clob.SignatureType, funder string) (trading.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ClientCalls++
	b.SigTypes = append(b.SigTypes, sigType)
	b.Funders = append(b.Funders, funder)
	if b.ClientErr != nil {
		return nil, b.ClientErr
	}
	return client{b}, nil
}

// PostCount is safe to call while handlers run.
func (b *Backend) PostCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Posted)
}

type deriver struct{ b *Backend }

func (d deriver) CreateOrDeriveAPIKey(ctx context.Context) (clob.Credentials, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	d.b.DeriveCalls++
	if d.b.DeriveErr != nil {
		return clob.Credentials{}, d.b.DeriveErr
	}
	return d.b.Creds, nil
}

type client struct{ b *Backend }

func (c client) CreateAndPostOrder(ctx context.Context, args clob.OrderArgs, opts clob.OrderOptions, orderType clob.OrderType) (*clob.OrderResponse, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.Posted = append(c.b.Posted, PostedOrder{Args: args, Options: opts, OrderType: orderType})
	if c.b.PostErr != nil {
		return nil, c.b.PostErr
	}
	return c.b.Response, nil
}

func (c client) GetOpenOrders(ctx context.Context) ([]json.RawMessage, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.b.Orders, c.b.ListErr
}

func (c client) GetTrades(ctx context.Context) ([]json.RawMessage, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.b.Trades, c.b.ListErr
}

// Clock fires immediately and records each requested wait.
type Clock struct {
	mu    sync.Mutex
	Waits []time.Duration
	At    time.Time
}

func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.Waits = append(c.Waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *Clock) Now() time.Time {
	if c.At.IsZero() {
		return time.Unix(1700000000, 0).UTC()
	}
	return c.At
}
