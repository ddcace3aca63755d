// Package gamma reads market metadata from the Polymarket gamma API.
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/uhyunpark/clobrelay/pkg/upstream"
)

type Client struct {
	http       *upstream.Client
	slugPrefix string
}

// New returns a client that looks markets up by slugPrefix+epoch.
func New(hc *upstream.Client, slugPrefix string) *Client {
	return &Client{http: hc, slugPrefix: slugPrefix}
}

// MarketByEpoch fetches the raw market document for an event epoch. The
// document is passed through untouched.
func (c *Client) MarketByEpoch(ctx context.Context, epochTime string) (json.RawMessage, error) {
	slug := c.slugPrefix + epochTime

	var raw json.RawMessage
	err := c.http.Do(ctx, upstream.Request{
		Method: http.MethodGet,
		Path:   "/markets/slug/" + url.PathEscape(slug),
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", slug, err)
	}
	return raw, nil
}
