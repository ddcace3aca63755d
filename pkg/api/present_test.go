package api

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatTimestamp(t *testing.T) {
	const want = "11/14/2023, 10:13:20 PM"
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unix seconds", "1700000000", want},
		{"unix millis", "1700000000123", want},
		{"rfc3339", "2023-11-14T22:13:20Z", want},
		{"rfc3339 offset", "2023-11-14T23:13:20+01:00", want},
		{"short seconds", "0", "1/1/1970, 12:00:00 AM"},
		{"garbage", "yesterday", "yesterday"},
		{"empty", "", ""},
		{"already formatted", want, want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatTimestamp(tt.in)
			if got != tt.want {
				t.Errorf("FormatTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := FormatTimestamp(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestRemaining_NeverNegative(t *testing.T) {
	tests := []struct {
		original, matched, want string
	}{
		{"10", "4", "6"},
		{"10", "10", "0"},
		{"5", "7.5", "0"},
		{"0", "0", "0"},
		{"2.25", "0.5", "1.75"},
	}
	for _, tt := range tests {
		got := Remaining(decimal.RequireFromString(tt.original), decimal.RequireFromString(tt.matched))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Remaining(%s, %s) = %s, want %s", tt.original, tt.matched, got, tt.want)
		}
		if got.IsNegative() {
			t.Errorf("Remaining(%s, %s) is negative", tt.original, tt.matched)
		}
	}
}

func TestSideLabel(t *testing.T) {
	tests := map[string]string{
		"BUY":  "Buy",
		"buy":  "Buy",
		"0":    "Buy",
		"SELL": "Sell",
		"1":    "Sell",
		"HOLD": "HOLD",
		"":     "",
	}
	for in, want := range tests {
		if got := SideLabel(in); got != want {
			t.Errorf("SideLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeListing_FieldVariants(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"id":"a","side":"BUY","price":"0.55","original_size":"10","size_matched":"4","created_at":1700000000,"asset_id":"123","order_type":"GTC"}`),
		json.RawMessage(`{"id":"b","side":1,"price":0.5,"originalSize":"3","sizeMatched":"5","createdAt":"1700000000123"}`),
		json.RawMessage(`{"id":"t","side":"SELL","price":"0.4","size":"2","match_time":"1700000000","outcome":"Up"}`),
		json.RawMessage(`"not an object"`),
	}

	items := NormalizeListing(raw)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	a := items[0]
	if a.Side != "Buy" || a.Price != "0.5500" || a.OriginalSize != "10.00" || a.SizeMatched != "4.00" || a.Remaining != "6.00" {
		t.Errorf("snake_case record = %+v", a)
	}
	if a.CreatedAt != "11/14/2023, 10:13:20 PM" || a.AssetID != "123" || a.OrderType != "GTC" {
		t.Errorf("snake_case record = %+v", a)
	}

	b := items[1]
	if b.Side != "Sell" || b.Price != "0.5000" || b.Remaining != "0.00" {
		t.Errorf("camelCase record = %+v", b)
	}

	tr := items[2]
	if tr.OriginalSize != "2.00" || tr.SizeMatched != "0.00" || tr.Remaining != "2.00" || tr.Outcome != "Up" {
		t.Errorf("trade record = %+v", tr)
	}
}

func TestNormalizeListing_Recomputes(t *testing.T) {
	raw := []json.RawMessage{json.RawMessage(`{"id":"a","price":"0.1","size":"1","created_at":"1700000000"}`)}
	first := NormalizeListing(raw)
	second := NormalizeListing(raw)
	if first[0] != second[0] {
		t.Errorf("projection changed between reads: %+v vs %+v", first[0], second[0])
	}
}
