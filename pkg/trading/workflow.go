package trading

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobrelay/pkg/clob"
)

// Workflow wires validation, session setup and submission together.
type Workflow struct {
	store     *CredentialStore
	sessions  *SessionInitializer
	submitter *Submitter
	logger    *zap.SugaredLogger
}

func NewWorkflow(store *CredentialStore, sessions *SessionInitializer, submitter *Submitter, logger *zap.SugaredLogger) *Workflow {
	return &Workflow{store: store, sessions: sessions, submitter: submitter, logger: logger}
}

// PlacedOrder pairs a submission result with the wallet that placed it.
type PlacedOrder struct {
	*OrderResult
	Signer string
	Funder string
}

// PlaceOrder validates req, opens a session and submits exactly once.
// Validation failures return a *FieldError before any network call.
func (w *Workflow) PlaceOrder(ctx context.Context, req OrderRequest) (*PlacedOrder, error) {
	intent, creds, err := Validate(req, w.store)
	if err != nil {
		return nil, err
	}

	sess, err := w.sessions.Initialize(ctx, creds)
	if err != nil {
		return nil, err
	}

	result, err := w.submitter.Submit(ctx, sess, intent)
	if err != nil {
		return nil, err
	}
	return &PlacedOrder{
		OrderResult: result,
		Signer:      sess.Identity.Address().Hex(),
		Funder:      sess.Funder,
	}, nil
}

// OpenOrders lists the open orders of the resolved wallet.
func (w *Workflow) OpenOrders(ctx context.Context, ov Overrides) (*Listing, error) {
	return w.list(ctx, ov, "open_orders", Client.GetOpenOrders)
}

// MatchedTrades lists the trade history of the resolved wallet.
func (w *Workflow) MatchedTrades(ctx context.Context, ov Overrides) (*Listing, error) {
	return w.list(ctx, ov, "matched_trades", Client.GetTrades)
}

func (w *Workflow) list(ctx context.Context, ov Overrides, what string, fetch func(Client, context.Context) ([]json.RawMessage, error)) (*Listing, error) {
	creds, err := w.store.Resolve(ov)
	if err != nil {
		return nil, err
	}
	if !clob.SignatureType(creds.SignatureType).Valid() {
		return nil, invalidSignatureType()
	}

	sess, err := w.sessions.Initialize(ctx, creds)
	if err != nil {
		return nil, err
	}

	items, err := fetch(sess.Client, ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", what)
	}

	w.logger.Debugw("listing_fetched", "kind", what, "count", len(items), "funder", sess.Funder)
	return &Listing{
		Signer: sess.Identity.Address().Hex(),
		Funder: sess.Funder,
		Items:  items,
	}, nil
}
