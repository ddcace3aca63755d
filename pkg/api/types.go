package api

import (
	"encoding/json"

	"github.com/uhyunpark/clobrelay/pkg/storage"
	"github.com/uhyunpark/clobrelay/pkg/trading"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

type RootResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
}

type HealthResponse struct {
	Status    string `json:"status"`    // "OK"
	Timestamp string `json:"timestamp"` // ISO 8601, millisecond precision
}

// DataResponse wraps a proxied upstream payload.
type DataResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

type OpenOrdersResponse struct {
	Success     bool              `json:"success"`
	Signer      string            `json:"signer"`
	Funder      string            `json:"funder"`
	TotalOrders int               `json:"totalOrders"`
	Orders      []ListingItem     `json:"orders"`
	RawOrders   []json.RawMessage `json:"rawOrders"`
}

type MatchedTradesResponse struct {
	Success     bool              `json:"success"`
	Signer      string            `json:"signer"`
	Funder      string            `json:"funder"`
	TotalTrades int               `json:"totalTrades"`
	Trades      []ListingItem     `json:"trades"`
	RawTrades   []json.RawMessage `json:"rawTrades"`
}

type PlaceOrderResponse struct {
	Success         bool                 `json:"success"`
	Message         string               `json:"message"`
	OrderID         string               `json:"orderId"`
	TransactionHash string               `json:"transactionHash"`
	Status          string               `json:"status"`
	OrderDetails    trading.OrderDetails `json:"orderDetails"`
	Data            json.RawMessage      `json:"data"` // upstream response as received
}

type SubmittedOrdersResponse struct {
	Success     bool            `json:"success"`
	Funder      string          `json:"funder"`
	TotalOrders int             `json:"totalOrders"`
	Orders      []storage.Entry `json:"orders"`
}

// ErrorResponse is returned for all errors. Validation failures fill only
// the first fields; classified upstream failures fill the rest.
type ErrorResponse struct {
	Success         bool            `json:"success"` // always false
	Message         string          `json:"message"`
	Field           string          `json:"field,omitempty"`
	Category        string          `json:"category,omitempty"`
	Error           string          `json:"error,omitempty"`
	APIError        json.RawMessage `json:"apiError,omitempty"`
	CloudflareBlock bool            `json:"cloudflareBlock,omitempty"`
	RayID           string          `json:"rayId,omitempty"`
	Troubleshooting []string        `json:"troubleshooting,omitempty"`
	Stack           string          `json:"stack,omitempty"`
}

// ==============================
// REST Request Types
// ==============================

// BtcEventRequest is the payload for POST /getBtcEvent
type BtcEventRequest struct {
	EpochTime any `json:"epochTime"` // must be a non-empty string
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orders", "orders:0x..."]
}

// WSAck confirms a subscription change.
type WSAck struct {
	Type     string   `json:"type"` // "subscribed" | "unsubscribed"
	Channels []string `json:"channels"`
}

// OrderPlacedEvent is broadcast after every accepted submission
type OrderPlacedEvent struct {
	Type            string               `json:"type"` // "order_placed"
	OrderID         string               `json:"orderId"`
	TransactionHash string               `json:"transactionHash,omitempty"`
	Status          string               `json:"status"`
	Signer          string               `json:"signer"`
	Funder          string               `json:"funder"`
	Details         trading.OrderDetails `json:"orderDetails"`
	Timestamp       int64                `json:"timestamp"` // Unix milliseconds
}
