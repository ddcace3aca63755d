package trading

import (
	"context"
	"encoding/json"

	"github.com/uhyunpark/clobrelay/pkg/clob"
	"github.com/uhyunpark/clobrelay/pkg/upstream"
)

// CredentialDeriver is the unauthenticated (L1) handle to the backend.
type CredentialDeriver interface {
	CreateOrDeriveAPIKey(ctx context.Context) (clob.Credentials, error)
}

// Client is the authenticated (L2) handle a session trades through.
type Client interface {
	CreateAndPostOrder(ctx context.Context, args clob.OrderArgs, opts clob.OrderOptions, orderType clob.OrderType) (*clob.OrderResponse, error)
	GetOpenOrders(ctx context.Context) ([]json.RawMessage, error)
	GetTrades(ctx context.Context) ([]json.RawMessage, error)
}

// Backend builds handles for one signing identity.
type Backend interface {
	NewDeriver(signer clob.Signer) CredentialDeriver
	NewClient(signer clob.Signer, creds clob.Credentials, sigType clob.SignatureType, funder string) (Client, error)
}

// ClobBackend is the Backend for the Polymarket CLOB.
type ClobBackend struct {
	HTTP    *upstream.Client
	ChainID int64
}

func NewClobBackend(hc *upstream.Client, chainID int64) *ClobBackend {
	return &ClobBackend{HTTP: hc, ChainID: chainID}
}

func (b *ClobBackend) NewDeriver(signer clob.Signer) CredentialDeriver {
	return clob.New(b.HTTP, b.ChainID, signer)
}

func (b *ClobBackend) NewClient(signer clob.Signer, creds clob.Credentials, sigType clob.SignatureType, funder string) (Client, error) {
	c, err := clob.New(b.HTTP, b.ChainID, signer).WithCredentials(creds, sigType, funder)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ServerTime reads the backend clock; no signer is needed.
func (b *ClobBackend) ServerTime(ctx context.Context) (json.RawMessage, error) {
	return clob.New(b.HTTP, b.ChainID, nil).ServerTime(ctx)
}
