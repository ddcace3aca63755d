package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *PebbleJournal {
	t.Helper()
	j, err := NewPebbleJournal(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestPebbleJournal_ListNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	base := time.Unix(1700000000, 0).UTC()
	funder := "0x00000000000000000000000000000000000000Aa"

	for i, id := range []string{"0x01", "0x02", "0x03"} {
		err := j.Record(Entry{OrderID: id, Funder: funder, Side: "UP", SubmittedAt: base.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}
	if err := j.Record(Entry{OrderID: "0xother", Funder: "0x00000000000000000000000000000000000000bb", SubmittedAt: base}); err != nil {
		t.Fatal(err)
	}

	got, err := j.ListByFunder("0x00000000000000000000000000000000000000aa", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].OrderID != "0x03" || got[2].OrderID != "0x01" {
		t.Errorf("order = %s..%s, want newest first", got[0].OrderID, got[2].OrderID)
	}
	if !got[0].SubmittedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("SubmittedAt = %v", got[0].SubmittedAt)
	}

	limited, err := j.ListByFunder(funder, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[0].OrderID != "0x03" {
		t.Errorf("limited = %+v", limited)
	}
}

func TestPebbleJournal_UnknownFunderIsEmpty(t *testing.T) {
	j := openTestJournal(t)
	got, err := j.ListByFunder("0xnobody", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestPebbleJournal_RejectsUnkeyedEntry(t *testing.T) {
	j := openTestJournal(t)
	tests := []struct {
		name  string
		entry Entry
	}{
		{"no order id", Entry{Funder: "0xaa"}},
		{"no funder", Entry{OrderID: "0x01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := j.Record(tt.entry); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOrderKey_SortsByTime(t *testing.T) {
	a := string(orderKey("0xAA", 999, "z"))
	b := string(orderKey("0xaa", 1000, "a"))
	if a >= b {
		t.Errorf("%q should sort before %q", a, b)
	}
	if got := string(keyUpperBound([]byte("ord:0xaa:"))); got != "ord:0xaa;" {
		t.Errorf("upper bound = %q", got)
	}
}
