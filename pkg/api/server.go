package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobrelay/pkg/crypto"
	"github.com/uhyunpark/clobrelay/pkg/storage"
	"github.com/uhyunpark/clobrelay/pkg/trading"
	"github.com/uhyunpark/clobrelay/pkg/util"
)

const (
	headerPrivateKey    = "X-Private-Key"
	headerFunderAddress = "X-Funder-Address"
	headerSignatureType = "X-Signature-Type"

	maxBodyBytes        = 1 << 20
	defaultJournalLimit = 50
	shutdownGracePeriod = 10 * time.Second
	readHeaderTimeout   = 10 * time.Second
)

// TimeSource reads the backend clock.
type TimeSource interface {
	ServerTime(ctx context.Context) (json.RawMessage, error)
}

// MarketSource looks up a market document by event epoch.
type MarketSource interface {
	MarketByEpoch(ctx context.Context, epochTime string) (json.RawMessage, error)
}

// Deps are the collaborators a Server is built from. Journal may be nil.
type Deps struct {
	Workflow    *trading.Workflow
	Store       *trading.CredentialStore
	Times       TimeSource
	Markets     MarketSource
	Journal     storage.Journal
	Clock       util.Clock
	Logger      *zap.SugaredLogger
	DevMode     bool
	CORSOrigins []string
}

// Server handles REST API and WebSocket connections
type Server struct {
	workflow    *trading.Workflow
	store       *trading.CredentialStore
	times       TimeSource
	markets     MarketSource
	journal     storage.Journal
	clock       util.Clock
	logger      *zap.SugaredLogger
	devMode     bool
	corsOrigins []string

	router *mux.Router
	hub    *Hub
}

func NewServer(d Deps) *Server {
	s := &Server{
		workflow:    d.Workflow,
		store:       d.Store,
		times:       d.Times,
		markets:     d.Markets,
		journal:     d.Journal,
		clock:       d.Clock,
		logger:      d.Logger,
		devMode:     d.DevMode,
		corsOrigins: d.CORSOrigins,
		router:      mux.NewRouter(),
	}
	if s.journal == nil {
		s.journal = storage.NewNopJournal()
	}
	if s.clock == nil {
		s.clock = util.RealClock{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = []string{"*"}
	}
	s.hub = NewHub(s.logger)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Upstream reads
	s.router.HandleFunc("/getServerTime", s.handleServerTime).Methods(http.MethodGet)
	s.router.HandleFunc("/getBtcEvent", s.handleBtcEvent).Methods(http.MethodPost)

	// Authenticated reads
	s.router.HandleFunc("/getOpenOrders", s.handleOpenOrders).Methods(http.MethodGet)
	s.router.HandleFunc("/getMatchedTrades", s.handleMatchedTrades).Methods(http.MethodGet)

	// Order submission
	s.router.HandleFunc("/placeOrder", s.handlePlaceOrder).Methods(http.MethodPost)
	s.router.HandleFunc("/getSubmittedOrders", s.handleSubmittedOrders).Methods(http.MethodGet)

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, ErrorResponse{Message: "Route not found"})
	})
	s.router.NotFoundHandler = notFound
	s.router.MethodNotAllowedHandler = notFound
}

// Handler is the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", headerPrivateKey, headerFunderAddress, headerSignatureType, headerRequestID},
		ExposedHeaders: []string{headerRequestID},
	})

	var h http.Handler = s.router
	h = c.Handler(h)
	h = withRecovery(s.logger)(h)
	h = withAccessLog(s.logger)(h)
	h = withRequestID(h)
	return h
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		s.logger.Infow("api_shutting_down")
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RootResponse{
		Success: true,
		Message: "API is running",
		Endpoints: map[string]string{
			"serverTime":      "GET /getServerTime",
			"openOrders":      "GET /getOpenOrders",
			"matchedTrades":   "GET /getMatchedTrades",
			"btcEvent":        "POST /getBtcEvent",
			"placeOrder":      "POST /placeOrder",
			"submittedOrders": "GET /getSubmittedOrders",
			"websocket":       "GET /ws",
			"health":          "GET /health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "OK", Timestamp: s.timestamp()})
}

func (s *Server) handleServerTime(w http.ResponseWriter, r *http.Request) {
	data, err := s.times.ServerTime(r.Context())
	if err != nil {
		s.logger.Warnw("server_time_failed", "request_id", requestIDFrom(r.Context()), "err", err)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Message: "Failed to fetch server time",
			Error:   err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, DataResponse{Success: true, Data: data, Timestamp: s.timestamp()})
}

func (s *Server) handleBtcEvent(w http.ResponseWriter, r *http.Request) {
	var req BtcEventRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body", Error: err.Error()})
		return
	}
	epoch, ok := req.EpochTime.(string)
	if !ok || epoch == "" {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid epochTime: must be a non-empty string"})
		return
	}

	data, err := s.markets.MarketByEpoch(r.Context(), epoch)
	if err != nil {
		s.logger.Warnw("market_lookup_failed", "request_id", requestIDFrom(r.Context()), "epoch", epoch, "err", err)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Message: "Failed to fetch BTC event",
			Error:   err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, DataResponse{Success: true, Data: data, Timestamp: s.timestamp()})
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	ov, err := overridesFromHeaders(r.Header)
	if err != nil {
		s.respondFailure(w, r, "Failed to fetch open orders", err, s.store.Secrets(ov.PrivateKey))
		return
	}
	listing, err := s.workflow.OpenOrders(r.Context(), ov)
	if err != nil {
		s.respondFailure(w, r, "Failed to fetch open orders", err, s.store.Secrets(ov.PrivateKey))
		return
	}

	raw := nonNil(listing.Items)
	orders := NormalizeListing(raw)
	respondJSON(w, http.StatusOK, OpenOrdersResponse{
		Success:     true,
		Signer:      listing.Signer,
		Funder:      listing.Funder,
		TotalOrders: len(raw),
		Orders:      orders,
		RawOrders:   raw,
	})
}

func (s *Server) handleMatchedTrades(w http.ResponseWriter, r *http.Request) {
	ov, err := overridesFromHeaders(r.Header)
	if err != nil {
		s.respondFailure(w, r, "Failed to fetch matched trades", err, s.store.Secrets(ov.PrivateKey))
		return
	}
	listing, err := s.workflow.MatchedTrades(r.Context(), ov)
	if err != nil {
		s.respondFailure(w, r, "Failed to fetch matched trades", err, s.store.Secrets(ov.PrivateKey))
		return
	}

	raw := nonNil(listing.Items)
	respondJSON(w, http.StatusOK, MatchedTradesResponse{
		Success:     true,
		Signer:      listing.Signer,
		Funder:      listing.Funder,
		TotalTrades: len(raw),
		Trades:      NormalizeListing(raw),
		RawTrades:   raw,
	})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req trading.OrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid JSON body", Error: err.Error()})
		return
	}
	overrideKey, _ := req.PrivateKey.(string)
	secrets := s.store.Secrets(overrideKey)

	// the backend write must finish even if the caller goes away
	ctx := context.WithoutCancel(r.Context())
	placed, err := s.workflow.PlaceOrder(ctx, req)
	if err != nil {
		s.respondFailure(w, r, "Failed to place order", err, secrets)
		return
	}

	s.recordPlaced(r.Context(), placed)

	respondJSON(w, http.StatusOK, PlaceOrderResponse{
		Success:         true,
		Message:         "Order placed successfully",
		OrderID:         placed.OrderID,
		TransactionHash: placed.TransactionHash,
		Status:          placed.Status,
		OrderDetails:    placed.Details,
		Data:            placed.Raw,
	})
}

func (s *Server) handleSubmittedOrders(w http.ResponseWriter, r *http.Request) {
	funder := r.URL.Query().Get("funderAddress")
	if funder == "" {
		funder = r.Header.Get(headerFunderAddress)
	}
	if funder == "" {
		funder = s.store.DefaultFunder()
	}
	if funder == "" {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Message:  "Funder address is required. Set FUNDER_ADDRESS in .env or pass funderAddress",
			Field:    "funderAddress",
			Category: trading.MissingCredential.String(),
		})
		return
	}
	checksummed, err := crypto.ChecksumAddress(funder)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Message:  "Invalid funderAddress: must be a 0x-prefixed 20-byte hex address",
			Field:    "funderAddress",
			Category: trading.InvalidCredential.String(),
		})
		return
	}

	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid limit: must be a positive integer", Field: "limit"})
			return
		}
		limit = n
	}

	entries, err := s.journal.ListByFunder(checksummed, limit)
	if err != nil {
		s.logger.Errorw("journal_read_failed", "request_id", requestIDFrom(r.Context()), "funder", checksummed, "err", err)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "Failed to read submitted orders", Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	respondJSON(w, http.StatusOK, SubmittedOrdersResponse{
		Success:     true,
		Funder:      checksummed,
		TotalOrders: len(entries),
		Orders:      entries,
	})
}

// ==============================
// Helper Functions
// ==============================

// recordPlaced journals and broadcasts an accepted order. Failures here are
// logged; the order is already live.
func (s *Server) recordPlaced(ctx context.Context, placed *trading.PlacedOrder) {
	now := s.clock.Now().UTC()
	d := placed.Details
	err := s.journal.Record(storage.Entry{
		OrderID:         placed.OrderID,
		Signer:          placed.Signer,
		Funder:          placed.Funder,
		TokenID:         d.TokenID,
		Side:            string(d.Side),
		Price:           d.Price,
		PriceDecimal:    d.PriceDecimal,
		Quantity:        d.Quantity,
		OrderType:       d.OrderType,
		Status:          placed.Status,
		TransactionHash: placed.TransactionHash,
		SubmittedAt:     now,
		Response:        placed.Raw,
	})
	if err != nil {
		s.logger.Warnw("journal_record_failed", "request_id", requestIDFrom(ctx), "order_id", placed.OrderID, "err", err)
	}

	s.hub.PublishOrder(OrderPlacedEvent{
		Type:            "order_placed",
		OrderID:         placed.OrderID,
		TransactionHash: placed.TransactionHash,
		Status:          placed.Status,
		Signer:          placed.Signer,
		Funder:          placed.Funder,
		Details:         d,
		Timestamp:       now.UnixMilli(),
	})
}

// respondFailure classifies err and writes the matching response. Local
// validation failures get the short form.
func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, message string, err error, secrets []string) {
	ce := trading.Classify(err, trading.ClassifyOptions{DevMode: s.devMode, Secrets: secrets})
	reqID := requestIDFrom(r.Context())

	if ce.Local() {
		s.logger.Infow("request_rejected", "request_id", reqID, "path", r.URL.Path, "category", ce.Category, "field", ce.Field, "reason", ce.Message)
		respondJSON(w, ce.HTTPStatus, ErrorResponse{
			Message:  ce.Message,
			Field:    ce.Field,
			Category: ce.Category.String(),
		})
		return
	}

	fields := []any{"request_id", reqID, "path", r.URL.Path, "category", ce.Category, "status", ce.HTTPStatus, "err", ce.Message}
	if ce.RayID != "" {
		fields = append(fields, "ray_id", ce.RayID)
	}
	if ce.HTTPStatus >= http.StatusInternalServerError {
		s.logger.Errorw("request_failed", fields...)
	} else {
		s.logger.Warnw("request_failed", fields...)
	}

	respondJSON(w, ce.HTTPStatus, ErrorResponse{
		Message:         message,
		Category:        ce.Category.String(),
		Error:           ce.Message,
		APIError:        ce.RawDetail,
		CloudflareBlock: ce.CloudflareBlock,
		RayID:           ce.RayID,
		Troubleshooting: ce.Troubleshooting,
		Stack:           ce.Stack,
	})
}

func overridesFromHeaders(h http.Header) (trading.Overrides, error) {
	ov := trading.Overrides{
		PrivateKey:    strings.TrimSpace(h.Get(headerPrivateKey)),
		FunderAddress: strings.TrimSpace(h.Get(headerFunderAddress)),
	}
	if v := strings.TrimSpace(h.Get(headerSignatureType)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ov, &trading.FieldError{
				Category: trading.InvalidField,
				Field:    "signatureType",
				Message:  "Invalid signatureType: must be 0 (EOA), 1 (POLY_PROXY) or 2 (POLY_GNOSIS_SAFE)",
			}
		}
		ov.SignatureType = &n
	}
	return ov, nil
}

// decodeBody reads a JSON object with numbers kept as json.Number. An empty
// body decodes as {}.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func nonNil(items []json.RawMessage) []json.RawMessage {
	if items == nil {
		return []json.RawMessage{}
	}
	return items
}

func (s *Server) timestamp() string {
	return s.clock.Now().UTC().Format(isoMillis)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
