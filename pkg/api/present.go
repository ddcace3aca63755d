package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// displayLayout renders timestamps as a US locale string, always in UTC.
const displayLayout = "1/2/2006, 3:04:05 PM"

// isoMillis matches JavaScript's Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

// ListingItem is one open order or trade with backend field variants merged.
// Derived fields are recomputed on every read.
type ListingItem struct {
	ID           string `json:"id"`
	Status       string `json:"status,omitempty"`
	Market       string `json:"market,omitempty"`
	AssetID      string `json:"assetId,omitempty"`
	Outcome      string `json:"outcome,omitempty"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"originalSize"`
	SizeMatched  string `json:"sizeMatched"`
	Remaining    string `json:"remaining"`
	OrderType    string `json:"orderType,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// NormalizeListing projects raw backend records. Records that are not JSON
// objects are skipped; they still appear in the raw listing.
func NormalizeListing(raw []json.RawMessage) []ListingItem {
	items := make([]ListingItem, 0, len(raw))
	for _, r := range raw {
		var rec map[string]any
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.UseNumber()
		if err := dec.Decode(&rec); err != nil || rec == nil {
			continue
		}
		items = append(items, normalizeRecord(rec))
	}
	return items
}

func normalizeRecord(rec map[string]any) ListingItem {
	original := field(rec, "original_size", "originalSize", "size")
	matched := field(rec, "size_matched", "sizeMatched", "matched_size")
	origDec := parseDecimal(original)
	matchedDec := parseDecimal(matched)

	item := ListingItem{
		ID:           field(rec, "id", "orderID", "order_id"),
		Status:       field(rec, "status"),
		Market:       field(rec, "market", "condition_id"),
		AssetID:      field(rec, "asset_id", "assetId", "token_id"),
		Outcome:      field(rec, "outcome"),
		Side:         SideLabel(field(rec, "side")),
		Price:        formatFixed(field(rec, "price"), 4),
		OriginalSize: origDec.StringFixed(2),
		SizeMatched:  matchedDec.StringFixed(2),
		Remaining:    Remaining(origDec, matchedDec).StringFixed(2),
		OrderType:    field(rec, "order_type", "orderType", "type"),
	}
	if ts := field(rec, "created_at", "createdAt", "match_time", "matchTime", "timestamp"); ts != "" {
		item.CreatedAt = FormatTimestamp(ts)
	}
	return item
}

// Remaining is original minus matched, clamped at zero.
func Remaining(original, matched decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, original.Sub(matched))
}

// SideLabel maps BUY/SELL and their numeric codes to Buy/Sell. Unknown
// values pass through.
func SideLabel(v string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY", "0":
		return "Buy"
	case "SELL", "1":
		return "Sell"
	}
	return v
}

// FormatTimestamp renders epoch seconds (up to 10 digits), epoch millis
// (longer) or RFC 3339 in displayLayout. Anything else, including an already
// formatted value, is returned unchanged.
func FormatTimestamp(v string) string {
	s := strings.TrimSpace(v)
	if s != "" && isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return v
		}
		if len(s) <= 10 {
			return time.Unix(n, 0).UTC().Format(displayLayout)
		}
		return time.UnixMilli(n).UTC().Format(displayLayout)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Format(displayLayout)
	}
	return v
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// field returns the first present key as a string.
func field(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			return x
		case json.Number:
			return x.String()
		default:
			return fmt.Sprint(x)
		}
	}
	return ""
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatFixed(s string, places int32) string {
	if s == "" {
		return ""
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return d.StringFixed(places)
}
