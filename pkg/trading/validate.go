package trading

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/clobrelay/pkg/clob"
)

const (
	defaultOrderType = clob.GTC
	defaultTickSize  = "0.01"
)

var hundred = decimal.NewFromInt(100)

// Validate checks req in a fixed order and reports only the first failure.
// Nothing here touches the network.
func Validate(req OrderRequest, store *CredentialStore) (OrderIntent, Credentials, error) {
	var intent OrderIntent

	tokenID, ok := req.ClobTokenID.(string)
	if !ok || tokenID == "" {
		return OrderIntent{}, Credentials{}, invalidField("clobTokenId", "Invalid clobTokenId: must be a non-empty string")
	}
	intent.TokenID = tokenID

	side, ok := req.Side.(string)
	switch Side(strings.ToUpper(side)) {
	case Up, Down:
		intent.Side = Side(strings.ToUpper(side))
	default:
		ok = false
	}
	if !ok {
		return OrderIntent{}, Credentials{}, invalidField("side", `Invalid side: must be "UP" or "DOWN"`)
	}

	price, ok := number(req.Price)
	if !ok || price.IsNegative() || price.GreaterThan(hundred) {
		return OrderIntent{}, Credentials{}, invalidField("price", "Invalid price: must be between 0 and 100 cents")
	}
	intent.PriceCents = price

	qty, ok := number(req.Quantity)
	if !ok || !qty.IsPositive() {
		return OrderIntent{}, Credentials{}, invalidField("quantity", "Invalid quantity: must be a positive number")
	}
	intent.Quantity = qty

	ov, err := overridesFromBody(req)
	if err != nil {
		return OrderIntent{}, Credentials{}, err
	}
	creds, err := store.Resolve(ov)
	if err != nil {
		return OrderIntent{}, Credentials{}, err
	}

	orderType := string(defaultOrderType)
	if req.OrderType != nil {
		s, isString := req.OrderType.(string)
		orderType = strings.ToUpper(s)
		if !isString {
			orderType = ""
		}
	}
	ot, ok := clob.ParseOrderType(orderType)
	if !ok {
		return OrderIntent{}, Credentials{}, invalidField("orderType", "Invalid orderType: must be one of GTC, FOK, GTD, FAK")
	}
	intent.OrderType = ot

	if req.SignatureType != nil {
		n, isNumber := number(req.SignatureType)
		if !isNumber || !n.IsInteger() {
			return OrderIntent{}, Credentials{}, invalidSignatureType()
		}
		creds.SignatureType = int(n.IntPart())
	}
	if !clob.SignatureType(creds.SignatureType).Valid() {
		return OrderIntent{}, Credentials{}, invalidSignatureType()
	}

	intent.TickSize = defaultTickSize
	if req.TickSize != nil {
		switch v := req.TickSize.(type) {
		case string:
			intent.TickSize = v
		case json.Number:
			intent.TickSize = v.String()
		default:
			intent.TickSize = ""
		}
	}
	if !clob.ValidTickSize(intent.TickSize) {
		return OrderIntent{}, Credentials{}, invalidField("tickSize", "Invalid tickSize: must be one of 0.1, 0.01, 0.001, 0.0001")
	}

	if req.NegRisk != nil {
		b, isBool := req.NegRisk.(bool)
		if !isBool {
			return OrderIntent{}, Credentials{}, invalidField("negRisk", "Invalid negRisk: must be a boolean")
		}
		intent.NegRisk = b
	}

	return intent, creds, nil
}

func invalidSignatureType() *FieldError {
	return invalidField("signatureType", "Invalid signatureType: must be 0 (EOA), 1 (POLY_PROXY) or 2 (POLY_GNOSIS_SAFE)")
}

// overridesFromBody reads the optional credential fields of the body.
// signatureType is applied later so its error keeps its place in the order.
func overridesFromBody(req OrderRequest) (Overrides, error) {
	var ov Overrides
	if req.PrivateKey != nil {
		s, ok := req.PrivateKey.(string)
		if !ok {
			return Overrides{}, invalidCredential("privateKey", "Invalid privateKey: must be a hex string")
		}
		ov.PrivateKey = s
	}
	if req.FunderAddress != nil {
		s, ok := req.FunderAddress.(string)
		if !ok {
			return Overrides{}, invalidCredential("funderAddress", "Invalid funderAddress: must be a 0x-prefixed 20-byte hex address")
		}
		ov.FunderAddress = s
	}
	return ov, nil
}

// Bounds on any JSON number the validator reads. Comparing or printing a
// decimal with a huge exponent materialises every digit, so magnitude is
// checked on the exponent before any arithmetic.
const (
	maxNumberLen      = 64
	maxIntegerDigits  = 15
	maxFractionDigits = 18
)

// number accepts a JSON number only; numeric strings are rejected, as are
// values outside maxIntegerDigits/maxFractionDigits. The result has no
// trailing zeros in its coefficient.
func number(v any) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch n := v.(type) {
	case json.Number:
		if len(n) > maxNumberLen {
			return decimal.Decimal{}, false
		}
		var err error
		if d, err = decimal.NewFromString(n.String()); err != nil {
			return decimal.Decimal{}, false
		}
	case float64:
		d = decimal.NewFromFloat(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	default:
		return decimal.Decimal{}, false
	}
	return bounded(d)
}

func bounded(d decimal.Decimal) (decimal.Decimal, bool) {
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return decimal.Zero, true
	}
	digits := new(big.Int).Abs(coef).String()
	trimmed := strings.TrimRight(digits, "0")
	exp := int64(d.Exponent()) + int64(len(digits)-len(trimmed))
	if exp < -maxFractionDigits || int64(len(trimmed))+exp > maxIntegerDigits {
		return decimal.Decimal{}, false
	}

	c, _ := new(big.Int).SetString(trimmed, 10)
	if coef.Sign() < 0 {
		c.Neg(c)
	}
	return decimal.NewFromBigInt(c, int32(exp)), true
}
