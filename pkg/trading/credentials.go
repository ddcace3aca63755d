package trading

import (
	"fmt"

	"github.com/uhyunpark/clobrelay/pkg/crypto"
)

// Credentials are the wallet inputs one request trades with.
type Credentials struct {
	PrivateKey    string
	FunderAddress string
	SignatureType int
}

// String never prints the private key.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{funder=%s signatureType=%d}", c.FunderAddress, c.SignatureType)
}

func (c Credentials) GoString() string { return c.String() }

// Overrides are per-request values; empty strings and nil mean "use default".
type Overrides struct {
	PrivateKey    string
	FunderAddress string
	SignatureType *int
}

// CredentialStore resolves credentials from request overrides and the
// process defaults. It holds no mutable state.
type CredentialStore struct {
	defaults Credentials
}

func NewCredentialStore(defaults Credentials) *CredentialStore {
	return &CredentialStore{defaults: defaults}
}

const (
	msgPrivateKeyRequired = "Private key is required. Set PRIVATE_KEY in .env or pass in request body"
	msgFunderRequired     = "Funder address is required. Set FUNDER_ADDRESS in .env or pass in request body"
)

// Resolve applies overrides over defaults. The funder address comes back
// in EIP-55 form.
func (s *CredentialStore) Resolve(ov Overrides) (Credentials, error) {
	out := s.defaults
	if ov.PrivateKey != "" {
		out.PrivateKey = ov.PrivateKey
	}
	if ov.FunderAddress != "" {
		out.FunderAddress = ov.FunderAddress
	}
	if ov.SignatureType != nil {
		out.SignatureType = *ov.SignatureType
	}

	if out.PrivateKey == "" {
		return Credentials{}, missingCredential("privateKey", msgPrivateKeyRequired)
	}
	if out.FunderAddress == "" {
		return Credentials{}, missingCredential("funderAddress", msgFunderRequired)
	}

	funder, err := crypto.ChecksumAddress(out.FunderAddress)
	if err != nil {
		return Credentials{}, invalidCredential("funderAddress", "Invalid funderAddress: must be a 0x-prefixed 20-byte hex address")
	}
	out.FunderAddress = funder
	return out, nil
}

// DefaultFunder is the configured funder address, possibly empty.
func (s *CredentialStore) DefaultFunder() string {
	return s.defaults.FunderAddress
}

// Secrets lists every private key a request could sign with, for scrubbing
// error output.
func (s *CredentialStore) Secrets(overrideKey string) []string {
	var out []string
	if s.defaults.PrivateKey != "" {
		out = append(out, s.defaults.PrivateKey)
	}
	if overrideKey != "" && overrideKey != s.defaults.PrivateKey {
		out = append(out, overrideKey)
	}
	return out
}
