package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// Entry is one accepted order submission.
type Entry struct {
	OrderID         string          `json:"orderId"`
	Signer          string          `json:"signer"`
	Funder          string          `json:"funder"`
	TokenID         string          `json:"tokenId"`
	Side            string          `json:"side"`
	Price           string          `json:"price"`
	PriceDecimal    json.Number     `json:"priceDecimal"`
	Quantity        json.Number     `json:"quantity"`
	OrderType       string          `json:"orderType"`
	Status          string          `json:"status"`
	TransactionHash string          `json:"transactionHash,omitempty"`
	SubmittedAt     time.Time       `json:"submittedAt"`
	Response        json.RawMessage `json:"response,omitempty"`
}

// Journal records submitted orders. Nothing on the submission path reads it.
type Journal interface {
	Record(e Entry) error
	ListByFunder(funder string, limit int) ([]Entry, error)
	Close() error
}

type NopJournal struct{}

func NewNopJournal() *NopJournal                                    { return &NopJournal{} }
func (j *NopJournal) Record(_ Entry) error                          { return nil }
func (j *NopJournal) ListByFunder(_ string, _ int) ([]Entry, error) { return nil, nil }
func (j *NopJournal) Close() error                                  { return nil }

type PebbleJournal struct {
	db *pebble.DB
}

func NewPebbleJournal(path string) (*PebbleJournal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &PebbleJournal{db: db}, nil
}

func (j *PebbleJournal) Close() error { return j.db.Close() }

// Record persists e under its funder. OrderID and Funder are required.
func (j *PebbleJournal) Record(e Entry) error {
	if e.OrderID == "" || e.Funder == "" {
		return fmt.Errorf("journal entry needs orderId and funder")
	}
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	key := orderKey(e.Funder, e.SubmittedAt.UnixMilli(), e.OrderID)
	if err := j.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

// ListByFunder returns up to limit entries, newest first. limit <= 0 means all.
func (j *PebbleJournal) ListByFunder(funder string, limit int) ([]Entry, error) {
	prefix := orderPrefix(funder)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	entries := []Entry{}
	for iter.Last(); iter.Valid(); iter.Prev() {
		if limit > 0 && len(entries) >= limit {
			break
		}
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue // Skip invalid entries
		}
		entries = append(entries, e)
	}
	return entries, iter.Error()
}

var _ Journal = (*NopJournal)(nil)
var _ Journal = (*PebbleJournal)(nil)
