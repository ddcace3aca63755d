package clob

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/clobrelay/pkg/crypto"
)

// Exchange contracts per chain. Polygon mainnet and the Amoy testnet.
var exchanges = map[int64]struct{ standard, negRisk common.Address }{
	137: {
		standard: common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
		negRisk:  common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	},
	80002: {
		standard: common.HexToAddress("0xdFE02Eb6733538f8Ea35D585af8DE5958AD99E40"),
		negRisk:  common.HexToAddress("0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"),
	},
}

// ExchangeAddress returns the verifying contract for orders on chainID.
func ExchangeAddress(chainID int64, negRisk bool) (common.Address, error) {
	ex, ok := exchanges[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("no exchange contract for chain %d", chainID)
	}
	if negRisk {
		return ex.negRisk, nil
	}
	return ex.standard, nil
}

// OrderError rejects order arguments before anything is signed or sent.
type OrderError struct {
	Field  string
	Reason string
}

func (e *OrderError) Error() string { return e.Reason }

// RoundConfig is the number of decimal places kept for each quantity.
type RoundConfig struct {
	Price  int32
	Size   int32
	Amount int32
}

var roundingConfig = map[string]RoundConfig{
	"0.1":    {Price: 1, Size: 2, Amount: 3},
	"0.01":   {Price: 2, Size: 2, Amount: 4},
	"0.001":  {Price: 3, Size: 2, Amount: 5},
	"0.0001": {Price: 4, Size: 2, Amount: 6},
}

func ValidTickSize(tick string) bool {
	_, ok := roundingConfig[tick]
	return ok
}

// collateral and outcome tokens both use 6 decimals
const tokenDecimals = 6

// OrderAmounts converts price and size into the integer maker and taker
// amounts. A BUY gives USDC for tokens, a SELL gives tokens for USDC.
func OrderAmounts(side Side, size, price decimal.Decimal, rc RoundConfig) (maker, taker *big.Int) {
	rawPrice := price.Round(rc.Price)
	rawSize := size.RoundDown(rc.Size)
	rawNotional := roundAmount(rawSize.Mul(rawPrice), rc.Amount)

	if side == Buy {
		return toUnits(rawNotional), toUnits(rawSize)
	}
	return toUnits(rawSize), toUnits(rawNotional)
}

// roundAmount rounds up at a few extra places first so values like
// 5.50000001 from float-derived inputs collapse before being cut down.
func roundAmount(d decimal.Decimal, places int32) decimal.Decimal {
	if d.Equal(d.RoundDown(places)) {
		return d
	}
	d = d.RoundUp(places + 4)
	if d.Equal(d.RoundDown(places)) {
		return d
	}
	return d.RoundDown(places)
}

func toUnits(d decimal.Decimal) *big.Int {
	return d.Shift(tokenDecimals).BigInt()
}

// buildOrder validates args and produces the unsigned order struct.
func (c *Client) buildOrder(args OrderArgs, opts OrderOptions) (*crypto.OrderEIP712, common.Address, error) {
	rc, ok := roundingConfig[opts.TickSize]
	if !ok {
		return nil, common.Address{}, &OrderError{Field: "tickSize", Reason: fmt.Sprintf("unsupported tick size %q", opts.TickSize)}
	}
	tick := decimal.RequireFromString(opts.TickSize)
	if args.Price.LessThan(tick) || args.Price.GreaterThan(decimal.NewFromInt(1).Sub(tick)) {
		return nil, common.Address{}, &OrderError{Field: "price", Reason: fmt.Sprintf("invalid price (%s), min: %s - max: %s",
			args.Price, tick, decimal.NewFromInt(1).Sub(tick))}
	}
	if !args.Size.IsPositive() {
		return nil, common.Address{}, &OrderError{Field: "size", Reason: fmt.Sprintf("invalid size (%s)", args.Size)}
	}
	if args.Side != Buy && args.Side != Sell {
		return nil, common.Address{}, &OrderError{Field: "side", Reason: fmt.Sprintf("invalid side %q", args.Side)}
	}

	tokenID, ok := new(big.Int).SetString(args.TokenID, 10)
	if !ok {
		return nil, common.Address{}, &OrderError{Field: "tokenId", Reason: fmt.Sprintf("token id %q is not a decimal integer", args.TokenID)}
	}

	exchange, err := ExchangeAddress(c.chainID, opts.NegRisk)
	if err != nil {
		return nil, common.Address{}, err
	}

	maker, taker := OrderAmounts(args.Side, args.Size, args.Price, rc)
	if maker.Sign() == 0 || taker.Sign() == 0 {
		return nil, common.Address{}, &OrderError{Field: "size", Reason: fmt.Sprintf("order rounds to zero (size %s, price %s)", args.Size, args.Price)}
	}

	return &crypto.OrderEIP712{
		Salt:          big.NewInt(c.salt()),
		Maker:         c.funder,
		Signer:        c.signer.Address(),
		TokenID:       tokenID,
		MakerAmount:   maker,
		TakerAmount:   taker,
		Expiration:    big.NewInt(args.Expiration),
		Nonce:         big.NewInt(args.Nonce),
		FeeRateBps:    big.NewInt(args.FeeRateBps),
		Side:          args.Side.code(),
		SignatureType: uint8(c.sigType),
	}, exchange, nil
}

// CreateOrder builds and signs an order without posting it.
func (c *Client) CreateOrder(args OrderArgs, opts OrderOptions) (*SignedOrder, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}
	if c.funder == (common.Address{}) {
		return nil, errors.New("client has no funder address")
	}
	order, exchange, err := c.buildOrder(args, opts)
	if err != nil {
		return nil, err
	}

	sig, err := c.signer.SignTypedData(crypto.OrderTypedData(order, c.chainID, exchange))
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}

	return &SignedOrder{
		Salt:          order.Salt.Int64(),
		Maker:         order.Maker.Hex(),
		Signer:        order.Signer.Hex(),
		Taker:         order.Taker.Hex(),
		TokenID:       order.TokenID.String(),
		MakerAmount:   order.MakerAmount.String(),
		TakerAmount:   order.TakerAmount.String(),
		Expiration:    order.Expiration.String(),
		Nonce:         order.Nonce.String(),
		FeeRateBps:    order.FeeRateBps.String(),
		Side:          args.Side,
		SignatureType: int(c.sigType),
		Signature:     "0x" + common.Bytes2Hex(sig),
	}, nil
}
