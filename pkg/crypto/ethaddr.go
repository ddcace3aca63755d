// file: pkg/crypto/ethaddr.go
package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ChecksumAddress validates a 0x-prefixed 20-byte hex address in any case
// and returns its EIP-55 form.
func ChecksumAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("address %q: missing 0x prefix", s)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return "", fmt.Errorf("address %q: %w", s, err)
	}
	if len(raw) != 20 {
		return "", fmt.Errorf("address %q: want 20 bytes, got %d", s, len(raw))
	}
	return EIP55(raw), nil
}

// EIP55 computes the checksummed hex address string from 20-byte raw address.
func EIP55(addr20 []byte) string {
	hexaddr := hex.EncodeToString(addr20) // lower
	// keccak of lowercase hex
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexaddr))
	hash := h.Sum(nil)

	out := make([]byte, 2+len(hexaddr))
	copy(out, "0x")
	for i, c := range []byte(hexaddr) {
		if c >= '0' && c <= '9' {
			out[2+i] = c
			continue
		}
		// each hex char maps to one nibble of the hash; >= 8 means uppercase
		nibble := hash[i>>1] & 0x0f
		if i%2 == 0 {
			nibble = hash[i>>1] >> 4
		}
		if nibble >= 8 {
			c -= 'a' - 'A'
		}
		out[2+i] = c
	}
	return string(out)
}
