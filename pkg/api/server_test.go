package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobrelay/pkg/storage"
	"github.com/uhyunpark/clobrelay/pkg/trading"
	"github.com/uhyunpark/clobrelay/pkg/trading/tradingtest"
	"github.com/uhyunpark/clobrelay/pkg/upstream"
)

const (
	testKey    = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testFunder = "0x00000000000000000000000000000000000000aa"
)

type fakeUpstream struct {
	time      json.RawMessage
	timeErr   error
	market    json.RawMessage
	marketErr error
	epochs    []string
}

func (f *fakeUpstream) ServerTime(ctx context.Context) (json.RawMessage, error) {
	return f.time, f.timeErr
}

func (f *fakeUpstream) MarketByEpoch(ctx context.Context, epochTime string) (json.RawMessage, error) {
	f.epochs = append(f.epochs, epochTime)
	return f.market, f.marketErr
}

type testEnv struct {
	server   *Server
	backend  *tradingtest.Backend
	upstream *fakeUpstream
}

func newTestEnv(t *testing.T, defaults trading.Credentials, journal storage.Journal) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()
	clock := &tradingtest.Clock{}
	backend := tradingtest.NewBackend()
	store := trading.NewCredentialStore(defaults)
	wf := trading.NewWorkflow(
		store,
		trading.NewSessionInitializer(backend, clock, 0, 0, logger),
		trading.NewSubmitter(clock, 0, logger),
		logger,
	)
	up := &fakeUpstream{time: json.RawMessage(`1700000000`), market: json.RawMessage(`{"slug":"btc-updown-15m-1700000000"}`)}
	srv := NewServer(Deps{
		Workflow: wf,
		Store:    store,
		Times:    up,
		Markets:  up,
		Journal:  journal,
		Clock:    clock,
		Logger:   logger,
	})
	return &testEnv{server: srv, backend: backend, upstream: up}
}

func defaultCreds() trading.Credentials {
	return trading.Credentials{PrivateKey: testKey, FunderAddress: testFunder, SignatureType: 1}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: body is not JSON: %q", method, path, rec.Body.String())
	}
	return rec, out
}

func TestPlaceOrder_EndToEnd(t *testing.T) {
	env := newTestEnv(t, defaultCreds(), nil)

	rec, out := env.do(t, http.MethodPost, "/placeOrder", `{"clobTokenId":"123","side":"UP","price":55,"quantity":10}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if out["success"] != true || out["orderId"] != "0xorder" || out["transactionHash"] != "0xtx" || out["status"] != "live" {
		t.Errorf("response = %v", out)
	}

	details := out["orderDetails"].(map[string]any)
	if details["side"] != "UP" || details["priceDecimal"] != 0.55 || details["price"] != "55 cents" || details["quantity"] != 10.0 || details["orderType"] != "GTC" {
		t.Errorf("orderDetails = %v", details)
	}
	if data, ok := out["data"].(map[string]any); !ok || data["orderID"] != "0xorder" {
		t.Errorf("data = %v", out["data"])
	}

	if env.backend.PostCount() != 1 {
		t.Fatalf("backend received %d orders", env.backend.PostCount())
	}
	p := env.backend.Posted[0]
	if string(p.Args.Side) != "BUY" || p.Args.Price.String() != "0.55" || p.Args.Size.String() != "10" {
		t.Errorf("backend got side=%s price=%s size=%s", p.Args.Side, p.Args.Price, p.Args.Size)
	}
}

func TestPlaceOrder_RejectsBeforeBackend(t *testing.T) {
	tests := []struct {
		name     string
		defaults trading.Credentials
		body     string
		field    string
		category string
	}{
		{"price out of range", defaultCreds(), `{"clobTokenId":"123","side":"UP","price":150,"quantity":10}`, "price", "InvalidField"},
		{"empty body", defaultCreds(), ``, "clobTokenId", "InvalidField"},
		{"no key configured", trading.Credentials{SignatureType: 1}, `{"clobTokenId":"1","side":"UP","price":5,"quantity":1}`, "privateKey", "MissingCredential"},
		{"bad key", defaultCreds(), `{"clobTokenId":"1","side":"UP","price":5,"quantity":1,"privateKey":"0x1234"}`, "privateKey", "InvalidCredential"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.defaults, nil)
			rec, out := env.do(t, http.MethodPost, "/placeOrder", tt.body, nil)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			if out["success"] != false || out["field"] != tt.field || out["category"] != tt.category {
				t.Errorf("response = %v", out)
			}
			if msg, _ := out["message"].(string); msg == "" {
				t.Error("empty message")
			}
			if env.backend.PostCount() != 0 {
				t.Error("backend received an order")
			}
		})
	}
}

func TestPlaceOrder_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, defaultCreds(), nil)
	rec, out := env.do(t, http.MethodPost, "/placeOrder", `{"clobTokenId":`, nil)
	if rec.Code != http.StatusBadRequest || out["success"] != false {
		t.Errorf("status = %d, body %v", rec.Code, out)
	}
}

func TestPlaceOrder_ClassifiedFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		category   string
		cloudflare bool
	}{
		{"blocked", &upstream.APIError{Status: 403, Message: "Attention Required", RayID: "8f1e2d3c4b5a6978", Body: json.RawMessage(`"<html>blocked</html>"`)}, 403, "UpstreamBlocked", true},
		{"auth", &upstream.APIError{Status: 401, Message: "Unauthorized/Invalid api key", Body: json.RawMessage(`{"error":"Unauthorized/Invalid api key"}`)}, 401, "AuthenticationFailed", false},
		{"balance", &upstream.APIError{Status: 400, Message: "not enough BALANCE / allowance", Body: json.RawMessage(`{"error":"not enough BALANCE / allowance"}`)}, 400, "InsufficientBalance", false},
		{"upstream status", &upstream.APIError{Status: 503, Message: "maintenance", Body: json.RawMessage(`{"error":"maintenance"}`)}, 503, "UpstreamApiError", false},
		{"internal", errors.New("connection reset"), 500, "InternalError", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, defaultCreds(), nil)
			env.backend.PostErr = tt.err

			rec, out := env.do(t, http.MethodPost, "/placeOrder", `{"clobTokenId":"123","side":"UP","price":55,"quantity":10}`, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if out["success"] != false || out["message"] != "Failed to place order" || out["category"] != tt.category {
				t.Errorf("response = %v", out)
			}
			if tips, _ := out["troubleshooting"].([]any); len(tips) == 0 {
				t.Error("troubleshooting list is empty")
			}
			if tt.cloudflare {
				if out["cloudflareBlock"] != true || out["rayId"] != "8f1e2d3c4b5a6978" {
					t.Errorf("block fields = %v / %v", out["cloudflareBlock"], out["rayId"])
				}
			}
			if _, ok := out["stack"]; ok {
				t.Error("stack leaked outside development mode")
			}
			if env.backend.PostCount() != 1 {
				t.Errorf("posted %d times, want 1", env.backend.PostCount())
			}
		})
	}
}

func TestPlaceOrder_NeverEchoesPrivateKey(t *testing.T) {
	env := newTestEnv(t, defaultCreds(), nil)
	env.server.devMode = true
	env.backend.PostErr = errors.New("signer rejected " + testKey)

	rec, _ := env.do(t, http.MethodPost, "/placeOrder", `{"clobTokenId":"123","side":"UP","price":55,"quantity":10}`, nil)
	if strings.Contains(rec.Body.String(), strings.TrimPrefix(testKey, "0x")) {
		t.Errorf("response leaks private key: %s", rec.Body)
	}
}

func TestRoutes_NotFound(t *testing.T) {
	env := newTestEnv(t, defaultCreds(), nil)
	for _, c := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodGet, "/placeOrder"},
		{http.MethodDelete, "/health"},
	} {
		rec, out := env.do(t, c.method, c.path, "", nil)
		if rec.Code != http.StatusNotFound || out["success"] != false || out["message"] != "Route not found" {
			t.Errorf("%s %s = %d %v", c.method, c.path, rec.Code, out)
		}
	}
}

func TestRoot_HealthAndRequestID(t *testing.T) {
	env := newTestEnv(t, defaultCreds(), nil)

	rec, out := env.do(t, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || out["message"] != "API is running" {
		t.Errorf("root = %d %v", rec.Code, out)
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Error("no request id minted")
	}

	rec, out = env.do(t, http.MethodGet, "/health", "", map[string]string{headerRequestID: "abc-123"})
	if out["status"] != "OK" || out["timestamp"] != "2023-11-14T22:13:20.000Z" {
		t.Errorf("health = %v", out)
	}
	if rec.Header().Get(headerRequestID) != "abc-123" {
		t.Errorf("request id = %q", rec.Header().Get(headerRequestID))
	}
}

func TestServerTime(t *testing.T) {
	env := newTestEnv(t, defaultCreds(), nil)
	rec, out := env.do(t, http.MethodGet, "/getServerTime", "", nil)
	if rec.Code != http.StatusOK || out["success"] != true || out["data"] != 1700000000.0 {
		t.Errorf("ok = %d %v", rec.Code, out)
	}

	env.upstream.timeErr = errors.New("dial tcp: timeout")
	rec, out = env.do(t, http.MethodGet, "/getServerTime", "", nil)
	if rec.Code != http.StatusInternalServerError || out["message"] != "Failed to fetch server time" || out["error"] != "dial tcp: timeout" {
		t.Errorf("failure = %d %v", rec.Code, out)
	}
}

func TestBtcEvent(t *testing.T) {
	env := newTestEnv(t, defaultCreds(), nil)

	for _, body := range []string{`{}`, `{"epochTime":""}`, `{"epochTime":1700000000}`} {
		rec, out := env.do(t, http.MethodPost, "/getBtcEvent", body, nil)
		if rec.Code != http.StatusBadRequest || out["message"] != "Invalid epochTime: must be a non-empty string" {
			t.Errorf("%s = %d %v", body, rec.Code, out)
		}
	}
	if len(env.upstream.epochs) != 0 {
		t.Error("invalid epochs reached upstream")
	}

	rec, out := env.do(t, http.MethodPost, "/getBtcEvent", `{"epochTime":"1700000000"}`, nil)
	if rec.Code != http.StatusOK || out["data"].(map[string]any)["slug"] != "btc-updown-15m-1700000000" {
		t.Errorf("ok = %d %v", rec.Code, out)
	}

	env.upstream.marketErr = &upstream.APIError{Status: 404, Message: "not found"}
	rec, _ = env.do(t, http.MethodPost, "/getBtcEvent", `{"epochTime":"1"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("failure status = %d", rec.Code)
	}
}

func TestOpenOrdersAndTrades(t *testing.T) {
	env := newTestEnv(t, defaultCreds(), nil)
	env.backend.Orders = []json.RawMessage{
		json.RawMessage(`{"id":"a","side":"BUY","price":"0.55","original_size":"10","size_matched":"4","created_at":1700000000}`),
	}
	env.backend.Trades = []json.RawMessage{
		json.RawMessage(`{"id":"t1","side":"SELL","price":"0.4","size":"2","match_time":"1700000000"}`),
		json.RawMessage(`{"id":"t2","side":"BUY","price":"0.6","size":"1"}`),
	}

	rec, out := env.do(t, http.MethodGet, "/getOpenOrders", "", nil)
	if rec.Code != http.StatusOK || out["totalOrders"] != 1.0 || out["signer"] == "" {
		t.Fatalf("orders = %d %v", rec.Code, out)
	}
	order := out["orders"].([]any)[0].(map[string]any)
	if order["remaining"] != "6.00" || order["price"] != "0.5500" || order["side"] != "Buy" || order["createdAt"] != "11/14/2023, 10:13:20 PM" {
		t.Errorf("order = %v", order)
	}
	if len(out["rawOrders"].([]any)) != 1 {
		t.Errorf("rawOrders = %v", out["rawOrders"])
	}

	rec, out = env.do(t, http.MethodGet, "/getMatchedTrades", "", nil)
	if rec.Code != http.StatusOK || out["totalTrades"] != 2.0 || len(out["trades"].([]any)) != 2 || len(out["rawTrades"].([]any)) != 2 {
		t.Errorf("trades = %d %v", rec.Code, out)
	}
}

func TestOpenOrders_HeaderOverrides(t *testing.T) {
	env := newTestEnv(t, trading.Credentials{SignatureType: 1}, nil)

	rec, out := env.do(t, http.MethodGet, "/getOpenOrders", "", nil)
	if rec.Code != http.StatusBadRequest || out["category"] != "MissingCredential" {
		t.Errorf("no credentials = %d %v", rec.Code, out)
	}

	rec, out = env.do(t, http.MethodGet, "/getOpenOrders", "", map[string]string{
		headerPrivateKey:    testKey,
		headerFunderAddress: testFunder,
		headerSignatureType: "x",
	})
	if rec.Code != http.StatusBadRequest || out["field"] != "signatureType" {
		t.Errorf("bad signature type = %d %v", rec.Code, out)
	}

	rec, out = env.do(t, http.MethodGet, "/getOpenOrders", "", map[string]string{
		headerPrivateKey:    testKey,
		headerFunderAddress: testFunder,
		headerSignatureType: "2",
	})
	if rec.Code != http.StatusOK || out["orders"] == nil || out["rawOrders"] == nil {
		t.Errorf("overrides = %d %v", rec.Code, out)
	}
	if got := env.backend.SigTypes[len(env.backend.SigTypes)-1]; got != 2 {
		t.Errorf("signature type = %d, want 2", got)
	}
}

func TestSubmittedOrders_Journal(t *testing.T) {
	journal, err := storage.NewPebbleJournal(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()
	env := newTestEnv(t, defaultCreds(), journal)

	rec, _ := env.do(t, http.MethodPost, "/placeOrder", `{"clobTokenId":"123","side":"DOWN","price":40,"quantity":5}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("place = %d %s", rec.Code, rec.Body)
	}

	rec, out := env.do(t, http.MethodGet, "/getSubmittedOrders?funderAddress="+testFunder, "", nil)
	if rec.Code != http.StatusOK || out["totalOrders"] != 1.0 {
		t.Fatalf("submitted = %d %v", rec.Code, out)
	}
	entry := out["orders"].([]any)[0].(map[string]any)
	if entry["orderId"] != "0xorder" || entry["side"] != "DOWN" || entry["tokenId"] != "123" || entry["priceDecimal"] != 0.4 {
		t.Errorf("entry = %v", entry)
	}

	rec, out = env.do(t, http.MethodGet, "/getSubmittedOrders?funderAddress=0x12", "", nil)
	if rec.Code != http.StatusBadRequest || out["category"] != "InvalidCredential" {
		t.Errorf("bad funder = %d %v", rec.Code, out)
	}
}

func TestWebSocket_OrderPlacedEvent(t *testing.T) {
	env := newTestEnv(t, defaultCreds(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.server.hub.Run(ctx)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	sub := WSSubscribeRequest{Op: "subscribe", Channels: []string{"orders:" + strings.ToUpper(testFunder)}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatal(err)
	}
	var ack WSAck
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != "subscribed" {
		t.Fatalf("ack = %+v, %v", ack, err)
	}

	resp, err := http.Post(ts.URL+"/placeOrder", "application/json", bytes.NewBufferString(`{"clobTokenId":"123","side":"UP","price":55,"quantity":10}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place status = %d", resp.StatusCode)
	}

	var ev OrderPlacedEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "order_placed" || ev.OrderID != "0xorder" || ev.Details.Side != trading.Up || ev.Timestamp != 1700000000000 {
		t.Errorf("event = %+v", ev)
	}
}

func TestRecovery(t *testing.T) {
	h := withRequestID(withRecovery(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var out ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &out)
	if rec.Code != http.StatusInternalServerError || out.Message != "Server error" || out.Error != "boom" {
		t.Errorf("recovered = %d %+v", rec.Code, out)
	}
}
