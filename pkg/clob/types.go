package clob

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Credentials are the L2 API credentials derived from an L1 signature.
type Credentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// code is the uint8 the exchange contract expects.
func (s Side) code() uint8 {
	if s == Sell {
		return 1
	}
	return 0
}

type OrderType string

const (
	GTC OrderType = "GTC" // good til cancelled
	FOK OrderType = "FOK" // fill or kill
	GTD OrderType = "GTD" // good til date
	FAK OrderType = "FAK" // fill and kill
)

func ParseOrderType(s string) (OrderType, bool) {
	switch OrderType(s) {
	case GTC, FOK, GTD, FAK:
		return OrderType(s), true
	}
	return "", false
}

// SignatureType selects how the exchange verifies the order signer against
// the maker (funder).
type SignatureType int

const (
	EOA            SignatureType = 0
	PolyProxy      SignatureType = 1
	PolyGnosisSafe SignatureType = 2
)

func (t SignatureType) Valid() bool {
	return t >= EOA && t <= PolyGnosisSafe
}

type OrderArgs struct {
	TokenID    string
	Price      decimal.Decimal // fraction of one USDC, e.g. 0.55
	Size       decimal.Decimal // outcome tokens
	Side       Side
	FeeRateBps int64
	Nonce      int64
	Expiration int64 // unix seconds, 0 = none
}

type OrderOptions struct {
	TickSize string
	NegRisk  bool
}

// SignedOrder is the wire form of an order as POST /order expects it.
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          Side   `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type postOrderBody struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType OrderType   `json:"orderType"`
}

type OrderResponse struct {
	Success            bool     `json:"success"`
	ErrorMsg           string   `json:"errorMsg"`
	OrderID            string   `json:"orderID"`
	TransactionsHashes []string `json:"transactionsHashes"`
	Status             string   `json:"status"`
	TakingAmount       string   `json:"takingAmount"`
	MakingAmount       string   `json:"makingAmount"`

	Raw json.RawMessage `json:"-"`
}

type page struct {
	Data       []json.RawMessage `json:"data"`
	NextCursor string            `json:"next_cursor"`
}
