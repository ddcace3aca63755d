package trading

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/clobrelay/pkg/clob"
)

// Side is the outcome direction as callers name it.
type Side string

const (
	Up   Side = "UP"
	Down Side = "DOWN"
)

// BackendSide maps UP to BUY and DOWN to SELL.
func (s Side) BackendSide() clob.Side {
	if s == Down {
		return clob.Sell
	}
	return clob.Buy
}

// OrderRequest is the decoded /placeOrder body. Fields stay untyped so the
// validator can tell a missing field from one of the wrong JSON type;
// numbers must be decoded as json.Number.
type OrderRequest struct {
	ClobTokenID   any `json:"clobTokenId"`
	Side          any `json:"side"`
	Price         any `json:"price"`
	Quantity      any `json:"quantity"`
	PrivateKey    any `json:"privateKey"`
	FunderAddress any `json:"funderAddress"`
	SignatureType any `json:"signatureType"`
	OrderType     any `json:"orderType"`
	TickSize      any `json:"tickSize"`
	NegRisk       any `json:"negRisk"`
}

// OrderIntent is a validated, normalized order.
type OrderIntent struct {
	TokenID    string
	Side       Side
	PriceCents decimal.Decimal // 0..100
	Quantity   decimal.Decimal
	OrderType  clob.OrderType
	TickSize   string
	NegRisk    bool
}

// OrderDetails echoes the normalized order back to the caller.
type OrderDetails struct {
	TokenID      string      `json:"tokenId"`
	Side         Side        `json:"side"`
	Price        string      `json:"price"`
	PriceDecimal json.Number `json:"priceDecimal"`
	Quantity     json.Number `json:"quantity"`
	OrderType    string      `json:"orderType"`
}

type OrderResult struct {
	OrderID         string
	TransactionHash string
	Status          string
	Details         OrderDetails
	Raw             json.RawMessage
}

// Listing is the raw result of an open-orders or trades read.
type Listing struct {
	Signer string
	Funder string
	Items  []json.RawMessage
}
