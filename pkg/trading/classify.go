package trading

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/uhyunpark/clobrelay/pkg/clob"
	"github.com/uhyunpark/clobrelay/pkg/crypto"
	"github.com/uhyunpark/clobrelay/pkg/upstream"
)

// ClassifiedError is the single reported form of any workflow failure.
type ClassifiedError struct {
	Category        Category
	HTTPStatus      int
	Message         string
	Field           string
	Troubleshooting []string
	RawDetail       json.RawMessage // upstream body, when there was one
	CloudflareBlock bool
	RayID           string
	Stack           string // development mode only
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Category, e.HTTPStatus, e.Message)
}

// Local reports whether the failure was found before any network call.
func (e *ClassifiedError) Local() bool {
	switch e.Category {
	case InvalidField, MissingCredential, InvalidCredential:
		return true
	}
	return false
}

type ClassifyOptions struct {
	DevMode bool
	Secrets []string // scrubbed from every string in the result
}

var (
	blockedTips = []string{
		"The request was blocked by the exchange's edge protection (Cloudflare), not rejected by the order book",
		"Wait a few minutes before retrying; repeated attempts extend the block",
		"Avoid datacenter, VPN and proxy IPs; run from an address the exchange allows",
		"Increase CREDENTIAL_DELAY_MS and SUBMIT_DELAY_MS to space out requests",
	}
	authTips = []string{
		"Ensure your PRIVATE_KEY and FUNDER_ADDRESS are correct",
		"Check that SIGNATURE_TYPE matches the wallet (0 EOA, 1 POLY_PROXY, 2 POLY_GNOSIS_SAFE)",
		"Confirm the wallet has been used on Polymarket at least once so an API key can be derived",
	}
	balanceTips = []string{
		"Check that you have sufficient balance",
		"Make sure the collateral and conditional token allowances are set for the exchange",
		"Reduce the quantity or price of the order",
	}
	generalTips = []string{
		"Ensure your PRIVATE_KEY and FUNDER_ADDRESS are correct",
		"Check that you have sufficient balance",
		"Verify the token ID is valid",
		"Make sure the price and quantity are within limits",
	}
)

var authMarkers = []string{"api key", "apikey", "api_key", "api-key", "credential"}

// Classify maps err to exactly one category. Local validation errors keep
// their own category; everything else goes through the upstream rules in
// priority order: blocked, auth, balance, upstream status, internal.
func Classify(err error, opts ClassifyOptions) *ClassifiedError {
	ce := classify(err)
	if opts.DevMode && !ce.Local() {
		ce.Stack = fmt.Sprintf("%+v", err)
	}
	scrub(ce, opts.Secrets)
	return ce
}

func classify(err error) *ClassifiedError {
	var fe *FieldError
	if errors.As(err, &fe) {
		return &ClassifiedError{Category: fe.Category, HTTPStatus: http.StatusBadRequest, Message: fe.Message, Field: fe.Field}
	}
	if errors.Is(err, crypto.ErrInvalidKey) {
		return &ClassifiedError{
			Category:   InvalidCredential,
			HTTPStatus: http.StatusBadRequest,
			Message:    "Invalid privateKey: must be 32 bytes of hex, with or without 0x",
			Field:      "privateKey",
		}
	}
	var oe *clob.OrderError
	if errors.As(err, &oe) {
		return &ClassifiedError{Category: InvalidField, HTTPStatus: http.StatusBadRequest, Message: oe.Reason, Field: oe.Field}
	}

	// match on the backend's message, never on our own wrapping
	var apiErr *upstream.APIError
	hasAPIErr := errors.As(err, &apiErr)
	text := strings.ToLower(rootCause(err).Error())
	if hasAPIErr {
		text = strings.ToLower(apiErr.Message)
	}

	ce := &ClassifiedError{Message: err.Error()}
	if hasAPIErr {
		ce.Message = apiErr.Message
		ce.RawDetail = apiErr.Body
		ce.RayID = apiErr.RayID
	}

	switch {
	case hasAPIErr && apiErr.Status == http.StatusForbidden:
		ce.Category = UpstreamBlocked
		ce.HTTPStatus = http.StatusForbidden
		ce.CloudflareBlock = true
		ce.Message = "Request blocked by upstream protection (HTTP 403)"
		ce.Troubleshooting = blockedTips
	case containsAny(text, authMarkers):
		ce.Category = AuthenticationFailed
		ce.HTTPStatus = http.StatusUnauthorized
		ce.Troubleshooting = authTips
	case strings.Contains(text, "balance"):
		ce.Category = InsufficientBalance
		ce.HTTPStatus = http.StatusBadRequest
		ce.Troubleshooting = balanceTips
	case hasAPIErr && apiErr.Status > 0:
		ce.Category = UpstreamAPIError
		ce.HTTPStatus = apiErr.Status
		ce.Troubleshooting = generalTips
	default:
		ce.Category = InternalError
		ce.HTTPStatus = http.StatusInternalServerError
		ce.Message = err.Error()
		ce.Troubleshooting = generalTips
	}
	return ce
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

const redacted = "[REDACTED]"

func scrub(ce *ClassifiedError, secrets []string) {
	var pairs []string
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if len(s) < 8 {
			continue
		}
		pairs = append(pairs, s, redacted)
		if bare := strings.TrimPrefix(s, "0x"); bare != s {
			pairs = append(pairs, bare, redacted)
		}
	}
	if len(pairs) == 0 {
		return
	}
	r := strings.NewReplacer(pairs...)
	ce.Message = r.Replace(ce.Message)
	ce.Stack = r.Replace(ce.Stack)
	if len(ce.RawDetail) > 0 {
		ce.RawDetail = json.RawMessage(r.Replace(string(ce.RawDetail)))
	}
}
