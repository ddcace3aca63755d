package clob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/clobrelay/pkg/crypto"
	"github.com/uhyunpark/clobrelay/pkg/upstream"
)

const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testFunder  = "0x00000000000000000000000000000000000000aa"
	testSecret  = "c2VjcmV0LXNlY3JldC1zZWNyZXQ=" // base64("secret-secret-secret")
	testTokenID = "71321045679252212594626385532706912750332728571942532289631379312455583992563"
)

var fixedNow = time.Unix(1700000000, 0)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	id, err := crypto.FromPrivateKey(testKey)
	if err != nil {
		t.Fatal(err)
	}
	c := New(upstream.New(srv.URL, 5*time.Second), 137, id)
	c.now = func() time.Time { return fixedNow }
	c.salt = func() int64 { return 42 }
	return c
}

func l2(t *testing.T, c *Client) *Client {
	t.Helper()
	out, err := c.WithCredentials(Credentials{APIKey: "key-1", Secret: testSecret, Passphrase: "pass-1"}, PolyProxy, testFunder)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestCreateOrDeriveAPIKey_L1Headers(t *testing.T) {
	var gotHeaders http.Header
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/api-key" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		w.Write([]byte(`{"apiKey":"k","secret":"s","passphrase":"p"}`))
	}))

	creds, err := c.CreateOrDeriveAPIKey(context.Background())
	if err != nil {
		t.Fatalf("CreateOrDeriveAPIKey: %v", err)
	}
	if creds != (Credentials{APIKey: "k", Secret: "s", Passphrase: "p"}) {
		t.Errorf("creds = %+v", creds)
	}

	if gotHeaders.Get(headerAddress) != c.signer.Address().Hex() {
		t.Errorf("%s = %q", headerAddress, gotHeaders.Get(headerAddress))
	}
	if gotHeaders.Get(headerTimestamp) != "1700000000" || gotHeaders.Get(headerNonce) != "0" {
		t.Errorf("timestamp/nonce = %q/%q", gotHeaders.Get(headerTimestamp), gotHeaders.Get(headerNonce))
	}

	sig := common.FromHex(gotHeaders.Get(headerSignature))
	td := crypto.ClobAuthTypedData(c.signer.Address(), 137, fixedNow.Unix(), 0)
	signer, err := crypto.RecoverTypedDataSigner(td, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer != c.signer.Address() {
		t.Errorf("attestation signed by %s, want %s", signer.Hex(), c.signer.Address().Hex())
	}
}

func TestCreateOrDeriveAPIKey_FallsBackToDerive(t *testing.T) {
	var calls []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"Could not create api key"}`))
			return
		}
		w.Write([]byte(`{"apiKey":"derived","secret":"s","passphrase":"p"}`))
	}))

	creds, err := c.CreateOrDeriveAPIKey(context.Background())
	if err != nil {
		t.Fatalf("CreateOrDeriveAPIKey: %v", err)
	}
	if creds.APIKey != "derived" {
		t.Errorf("APIKey = %q", creds.APIKey)
	}
	want := []string{"POST /auth/api-key", "GET /auth/derive-api-key"}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestCreateOrDeriveAPIKey_BothFail(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Unauthorized/Invalid api key"}`))
	}))

	_, err := c.CreateOrDeriveAPIKey(context.Background())
	var apiErr *upstream.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Fatalf("err = %v, want wrapped 401 APIError", err)
	}
}

func TestGetOpenOrders_PaginatesWithL2Headers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/orders" {
			t.Errorf("path = %s", r.URL.Path)
		}
		wantSig, _ := HMACSignature(testSecret, "1700000000", "GET", "/data/orders", nil)
		if got := r.Header.Get(headerSignature); got != wantSig {
			t.Errorf("signature = %q, want %q", got, wantSig)
		}
		if r.Header.Get(headerAPIKey) != "key-1" || r.Header.Get(headerPassphrase) != "pass-1" {
			t.Errorf("api key headers missing")
		}

		switch r.URL.Query().Get("next_cursor") {
		case "MA==":
			w.Write([]byte(`{"data":[{"id":"1"},{"id":"2"}],"next_cursor":"MTAw"}`))
		case "MTAw":
			w.Write([]byte(`{"data":[{"id":"3"}],"next_cursor":"LTE="}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("next_cursor"))
		}
	}))

	orders, err := l2(t, c).GetOpenOrders(context.Background())
	if err != nil {
		t.Fatalf("GetOpenOrders: %v", err)
	}
	if len(orders) != 3 {
		t.Errorf("got %d orders, want 3", len(orders))
	}
}

func TestGetOpenOrders_PageLimit(t *testing.T) {
	var requests int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprintf(w, `{"data":[{"id":"%d"}],"next_cursor":"c%d"}`, requests, requests)
	}))

	orders, err := l2(t, c).GetOpenOrders(context.Background())
	if !errors.Is(err, ErrTooManyPages) {
		t.Fatalf("err = %v, want ErrTooManyPages", err)
	}
	if orders != nil {
		t.Errorf("got %d partial orders, want none", len(orders))
	}
	if requests != maxPages {
		t.Errorf("requests = %d, want %d", requests, maxPages)
	}
}

func TestGetTrades_RequiresCredentials(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	if _, err := c.GetTrades(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("err = %v, want ErrNoCredentials", err)
	}
}

func TestCreateAndPostOrder(t *testing.T) {
	var body postOrderBody
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		wantSig, _ := HMACSignature(testSecret, "1700000000", "POST", "/order", raw)
		if r.Header.Get(headerSignature) != wantSig {
			t.Errorf("body not covered by L2 signature")
		}
		w.Write([]byte(`{"success":true,"errorMsg":"","orderID":"0xabc","transactionsHashes":["0xdef"],"status":"matched"}`))
	}))

	args := OrderArgs{
		TokenID: testTokenID,
		Price:   decimal.RequireFromString("0.55"),
		Size:    decimal.NewFromInt(10),
		Side:    Buy,
	}
	resp, err := l2(t, c).CreateAndPostOrder(context.Background(), args, OrderOptions{TickSize: "0.01"}, GTC)
	if err != nil {
		t.Fatalf("CreateAndPostOrder: %v", err)
	}
	if resp.OrderID != "0xabc" || resp.Status != "matched" || len(resp.TransactionsHashes) != 1 {
		t.Errorf("resp = %+v", resp)
	}

	if body.Owner != "key-1" || body.OrderType != GTC {
		t.Errorf("owner/orderType = %q/%q", body.Owner, body.OrderType)
	}
	o := body.Order
	if o.MakerAmount != "5500000" || o.TakerAmount != "10000000" {
		t.Errorf("amounts = %s/%s, want 5500000/10000000", o.MakerAmount, o.TakerAmount)
	}
	if o.Side != Buy || o.SignatureType != 1 || o.Salt != 42 {
		t.Errorf("side/sigType/salt = %s/%d/%d", o.Side, o.SignatureType, o.Salt)
	}
	if o.Maker != common.HexToAddress(testFunder).Hex() {
		t.Errorf("maker = %s", o.Maker)
	}

	// the signature must verify against the standard exchange domain
	exchange, _ := ExchangeAddress(137, false)
	eip := &crypto.OrderEIP712{
		Salt:          bigFromString(t, strconv.FormatInt(o.Salt, 10)),
		Maker:         common.HexToAddress(o.Maker),
		Signer:        common.HexToAddress(o.Signer),
		Taker:         common.HexToAddress(o.Taker),
		TokenID:       bigFromString(t, o.TokenID),
		MakerAmount:   bigFromString(t, o.MakerAmount),
		TakerAmount:   bigFromString(t, o.TakerAmount),
		Expiration:    bigFromString(t, o.Expiration),
		Nonce:         bigFromString(t, o.Nonce),
		FeeRateBps:    bigFromString(t, o.FeeRateBps),
		Side:          0,
		SignatureType: 1,
	}
	signer, err := crypto.RecoverTypedDataSigner(crypto.OrderTypedData(eip, 137, exchange), common.FromHex(o.Signature))
	if err != nil {
		t.Fatal(err)
	}
	if signer.Hex() != o.Signer {
		t.Errorf("order signed by %s, want %s", signer.Hex(), o.Signer)
	}
}

func TestPostOrder_UnsuccessfulBodyIsAPIError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"with reason", `{"success":false,"errorMsg":"not enough balance / allowance"}`, "not enough balance / allowance"},
		{"without reason", `{"success":false,"errorMsg":""}`, "Bad Request"},
		{"success missing", `{"orderID":""}`, "Bad Request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))

			args := OrderArgs{TokenID: testTokenID, Price: decimal.RequireFromString("0.40"), Size: decimal.NewFromInt(5), Side: Sell}
			resp, err := l2(t, c).CreateAndPostOrder(context.Background(), args, OrderOptions{TickSize: "0.01"}, FOK)
			if resp != nil {
				t.Errorf("resp = %+v, want nil", resp)
			}

			var apiErr *upstream.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Status != 400 || apiErr.Message != tt.wantMsg {
				t.Errorf("apiErr = %+v", apiErr)
			}
			if string(apiErr.Body) != tt.body {
				t.Errorf("body = %s, want %s", apiErr.Body, tt.body)
			}
		})
	}
}

func TestWithCredentials_Validation(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	creds := Credentials{APIKey: "k", Secret: testSecret, Passphrase: "p"}

	if _, err := c.WithCredentials(creds, SignatureType(7), testFunder); err == nil {
		t.Error("expected error for signature type 7")
	}
	if _, err := c.WithCredentials(creds, EOA, "not-an-address"); err == nil {
		t.Error("expected error for malformed funder")
	}
	if _, err := New(c.http, 137, nil).WithCredentials(creds, EOA, testFunder); !errors.Is(err, ErrNoSigner) {
		t.Errorf("err = %v, want ErrNoSigner", err)
	}
}

func TestHMACSignature_URLSafe(t *testing.T) {
	a, err := HMACSignature(testSecret, "1", "GET", "/x", nil)
	if err != nil {
		t.Fatal(err)
	}
	// URL-safe and standard encodings of the same secret sign identically
	b, err := HMACSignature("c2VjcmV0LXNlY3JldC1zZWNyZXQ", "1", "GET", "/x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("padding changed signature: %q vs %q", a, b)
	}
	for _, ch := range a {
		if ch == '+' || ch == '/' {
			t.Fatalf("signature %q is not URL-safe", a)
		}
	}
	if _, err := HMACSignature("!!!", "1", "GET", "/x", nil); err == nil {
		t.Error("expected error for non-base64 secret")
	}
}

func testIdentity(t *testing.T) *crypto.Identity {
	t.Helper()
	id, err := crypto.FromPrivateKey(testKey)
	if err != nil {
		t.Fatal(err)
	}
	return id
}
