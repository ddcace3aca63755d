package storage

import (
	"fmt"
	"strings"
)

// Journal key schema:
//
//	ord:<funder>:<unix-millis>:<orderID> → Entry
//
// The funder is lowercased so lookups ignore checksum casing. The timestamp
// is zero-padded (20 digits) for lexicographic sorting.
const prefixOrder = "ord:"

// orderKey returns the key for a journal entry
// Format: "ord:{funder}:{timestamp}:{orderID}"
func orderKey(funder string, millis int64, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixOrder, strings.ToLower(funder), millis, orderID))
}

// orderPrefix returns the prefix for all entries of a funder
// Format: "ord:{funder}:"
func orderPrefix(funder string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, strings.ToLower(funder)))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
