package trading

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobrelay/pkg/clob"
	"github.com/uhyunpark/clobrelay/pkg/util"
)

// Submitter posts one order per call. There is no idempotency key, so a
// caller that retries after a timeout may create a duplicate order.
type Submitter struct {
	clock  util.Clock
	delay  time.Duration
	logger *zap.SugaredLogger
}

func NewSubmitter(clock util.Clock, delay time.Duration, logger *zap.SugaredLogger) *Submitter {
	return &Submitter{clock: clock, delay: delay, logger: logger}
}

func (s *Submitter) Submit(ctx context.Context, sess *Session, intent OrderIntent) (*OrderResult, error) {
	if sess == nil || sess.State != StateInitialized {
		return nil, errors.New("submit on uninitialized session")
	}

	if err := util.Sleep(ctx, s.clock, s.delay); err != nil {
		return nil, errors.WithStack(err)
	}

	priceDecimal := intent.PriceCents.Div(hundred)
	args := clob.OrderArgs{
		TokenID: intent.TokenID,
		Price:   priceDecimal,
		Size:    intent.Quantity,
		Side:    intent.Side.BackendSide(),
	}
	opts := clob.OrderOptions{TickSize: intent.TickSize, NegRisk: intent.NegRisk}

	s.logger.Infow("order_submitting",
		"token_id", intent.TokenID,
		"side", intent.Side,
		"backend_side", args.Side,
		"price_cents", intent.PriceCents.String(),
		"price", priceDecimal.String(),
		"size", intent.Quantity.String(),
		"order_type", intent.OrderType,
		"tick_size", intent.TickSize,
		"neg_risk", intent.NegRisk,
	)

	resp, err := sess.Client.CreateAndPostOrder(ctx, args, opts, intent.OrderType)
	if err != nil {
		return nil, errors.Wrap(err, "create and post order")
	}

	result := &OrderResult{
		OrderID: resp.OrderID,
		Status:  resp.Status,
		Details: OrderDetails{
			TokenID:      intent.TokenID,
			Side:         intent.Side,
			Price:        intent.PriceCents.String() + " cents",
			PriceDecimal: json.Number(priceDecimal.String()),
			Quantity:     json.Number(intent.Quantity.String()),
			OrderType:    string(intent.OrderType),
		},
		Raw: resp.Raw,
	}
	if len(resp.TransactionsHashes) > 0 {
		result.TransactionHash = resp.TransactionsHashes[0]
	}
	if len(result.Raw) == 0 {
		result.Raw, _ = json.Marshal(resp)
	}

	s.logger.Infow("order_submitted", "order_id", result.OrderID, "status", result.Status, "funder", sess.Funder)
	return result, nil
}
