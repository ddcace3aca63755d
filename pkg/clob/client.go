// Package clob is a client for the Polymarket central limit order book API.
package clob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/clobrelay/pkg/crypto"
	"github.com/uhyunpark/clobrelay/pkg/upstream"
)

const (
	initialCursor = "MA=="
	endCursor     = "LTE="
	maxPages      = 100
)

var (
	ErrNoSigner      = errors.New("client has no signer (L1 auth unavailable)")
	ErrNoCredentials = errors.New("client has no API credentials (L2 auth unavailable)")
	ErrTooManyPages  = errors.New("listing did not reach its last page")
)

// Signer signs both auth attestations and orders.
type Signer interface {
	Address() common.Address
	crypto.TypedDataSigner
	crypto.LegacyTypedDataSigner
}

type Client struct {
	http    *upstream.Client
	chainID int64
	signer  Signer

	creds   *Credentials
	sigType SignatureType
	funder  common.Address

	now  func() time.Time
	salt func() int64
}

// New returns an L1 client; signer may be nil for public endpoints only.
func New(hc *upstream.Client, chainID int64, signer Signer) *Client {
	return &Client{
		http:    hc,
		chainID: chainID,
		signer:  signer,
		now:     time.Now,
		salt:    randomSalt,
	}
}

func randomSalt() int64 {
	return int64(float64(time.Now().UnixMilli()) * rand.Float64())
}

// WithCredentials returns an L2 copy of c that trades for funder.
func (c *Client) WithCredentials(creds Credentials, sigType SignatureType, funder string) (*Client, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}
	if !sigType.Valid() {
		return nil, fmt.Errorf("invalid signature type %d", sigType)
	}
	if !common.IsHexAddress(funder) {
		return nil, fmt.Errorf("invalid funder address %q", funder)
	}

	l2 := *c
	l2.creds = &creds
	l2.sigType = sigType
	l2.funder = common.HexToAddress(funder)
	return &l2, nil
}

// ServerTime returns the backend clock as it reports it (unix seconds).
func (c *Client) ServerTime(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.http.Do(ctx, upstream.Request{Method: http.MethodGet, Path: "/time"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateAPIKey(ctx context.Context, nonce int64) (Credentials, error) {
	return c.apiKeyRequest(ctx, http.MethodPost, "/auth/api-key", nonce)
}

func (c *Client) DeriveAPIKey(ctx context.Context, nonce int64) (Credentials, error) {
	return c.apiKeyRequest(ctx, http.MethodGet, "/auth/derive-api-key", nonce)
}

// CreateOrDeriveAPIKey creates a key and falls back to deriving the existing
// one, which is what the backend expects once a key exists for the nonce.
func (c *Client) CreateOrDeriveAPIKey(ctx context.Context) (Credentials, error) {
	creds, createErr := c.CreateAPIKey(ctx, 0)
	if createErr == nil {
		return creds, nil
	}
	creds, err := c.DeriveAPIKey(ctx, 0)
	if err != nil {
		return Credentials{}, fmt.Errorf("derive api key (create failed: %v): %w", createErr, err)
	}
	return creds, nil
}

func (c *Client) apiKeyRequest(ctx context.Context, method, path string, nonce int64) (Credentials, error) {
	if c.signer == nil {
		return Credentials{}, ErrNoSigner
	}
	headers, err := c.l1Headers(nonce)
	if err != nil {
		return Credentials{}, err
	}

	var creds Credentials
	if err := c.http.Do(ctx, upstream.Request{Method: method, Path: path, Headers: headers}, &creds); err != nil {
		return Credentials{}, err
	}
	if creds.APIKey == "" || creds.Secret == "" || creds.Passphrase == "" {
		return Credentials{}, fmt.Errorf("%s %s: incomplete api credentials in response", method, path)
	}
	return creds, nil
}

// GetOpenOrders lists every open order of the API key owner.
func (c *Client) GetOpenOrders(ctx context.Context) ([]json.RawMessage, error) {
	return c.paginate(ctx, "/data/orders")
}

// GetTrades lists the matched trades of the API key owner.
func (c *Client) GetTrades(ctx context.Context) ([]json.RawMessage, error) {
	return c.paginate(ctx, "/data/trades")
}

func (c *Client) paginate(ctx context.Context, path string) ([]json.RawMessage, error) {
	if c.creds == nil {
		return nil, ErrNoCredentials
	}

	items := []json.RawMessage{}
	cursor := initialCursor
	for pages := 0; cursor != endCursor; pages++ {
		if pages == maxPages {
			return nil, fmt.Errorf("%s: %w after %d pages", path, ErrTooManyPages, maxPages)
		}
		headers, err := c.l2Headers(http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		query := url.Values{"next_cursor": {cursor}}

		var p page
		if err := c.http.Do(ctx, upstream.Request{Method: http.MethodGet, Path: path, Query: query, Headers: headers}, &p); err != nil {
			return nil, err
		}
		items = append(items, p.Data...)

		if p.NextCursor == "" || p.NextCursor == cursor {
			break
		}
		cursor = p.NextCursor
	}
	return items, nil
}

// PostOrder submits a signed order. A 2xx answer with success=false is
// reported as an *upstream.APIError with status 400.
func (c *Client) PostOrder(ctx context.Context, order *SignedOrder, orderType OrderType) (*OrderResponse, error) {
	if c.creds == nil {
		return nil, ErrNoCredentials
	}

	body, err := json.Marshal(postOrderBody{Order: *order, Owner: c.creds.APIKey, OrderType: orderType})
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	headers, err := c.l2Headers(http.MethodPost, "/order", body)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.http.Do(ctx, upstream.Request{Method: http.MethodPost, Path: "/order", Body: body, Headers: headers}, &raw); err != nil {
		return nil, err
	}

	var resp OrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	resp.Raw = raw

	if !resp.Success {
		msg := resp.ErrorMsg
		if msg == "" {
			msg = http.StatusText(http.StatusBadRequest)
		}
		return nil, &upstream.APIError{
			Method:  http.MethodPost,
			Path:    "/order",
			Status:  http.StatusBadRequest,
			Body:    raw,
			Message: msg,
		}
	}
	return &resp, nil
}

// CreateAndPostOrder signs and submits an order in one call.
func (c *Client) CreateAndPostOrder(ctx context.Context, args OrderArgs, opts OrderOptions, orderType OrderType) (*OrderResponse, error) {
	if c.creds == nil {
		return nil, ErrNoCredentials
	}
	order, err := c.CreateOrder(args, opts)
	if err != nil {
		return nil, err
	}
	return c.PostOrder(ctx, order, orderType)
}
