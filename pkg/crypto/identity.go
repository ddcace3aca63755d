package crypto

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedDataSigner is the current wallet signing shape.
type TypedDataSigner interface {
	SignTypedData(typedData apitypes.TypedData) ([]byte, error)
}

// LegacyTypedDataSigner is the older shape that takes the parts separately
// and infers the primary type.
type LegacyTypedDataSigner interface {
	SignTypedDataLegacy(domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) ([]byte, error)
}

// Wallet is anything with an address that can sign typed data in at least
// one of the two shapes.
type Wallet interface {
	Address() common.Address
}

var ErrNoSigningMethod = errors.New("wallet exposes no typed-data signing method")

// Identity adapts a wallet so callers can use either signing shape. The
// delegate is chosen once at construction; the current shape wins when a
// wallet has both.
type Identity struct {
	address common.Address
	current TypedDataSigner
	legacy  LegacyTypedDataSigner
}

func NewIdentity(wallet Wallet) (*Identity, error) {
	id := &Identity{address: wallet.Address()}
	if s, ok := wallet.(TypedDataSigner); ok {
		id.current = s
		return id, nil
	}
	if s, ok := wallet.(LegacyTypedDataSigner); ok {
		id.legacy = s
		return id, nil
	}
	return nil, ErrNoSigningMethod
}

// FromPrivateKey builds an identity backed by a local key.
func FromPrivateKey(hexKey string) (*Identity, error) {
	signer, err := FromPrivateKeyHex(hexKey)
	if err != nil {
		return nil, err
	}
	return NewIdentity(signer)
}

func (i *Identity) Address() common.Address {
	return i.address
}

func (i *Identity) SignTypedData(typedData apitypes.TypedData) ([]byte, error) {
	if i.current != nil {
		return i.current.SignTypedData(typedData)
	}
	types := make(apitypes.Types, len(typedData.Types))
	for name, fields := range typedData.Types {
		if name != "EIP712Domain" {
			types[name] = fields
		}
	}
	return i.legacy.SignTypedDataLegacy(typedData.Domain, types, typedData.Message)
}

func (i *Identity) SignTypedDataLegacy(domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) ([]byte, error) {
	if i.legacy != nil {
		return i.legacy.SignTypedDataLegacy(domain, types, message)
	}
	typedData, err := assembleTypedData(domain, types, message)
	if err != nil {
		return nil, err
	}
	return i.current.SignTypedData(typedData)
}

func assembleTypedData(domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) (apitypes.TypedData, error) {
	primary, err := PrimaryType(types)
	if err != nil {
		return apitypes.TypedData{}, err
	}

	full := make(apitypes.Types, len(types)+1)
	for name, fields := range types {
		full[name] = fields
	}
	if _, ok := full["EIP712Domain"]; !ok {
		full["EIP712Domain"] = domainType(domain)
	}

	return apitypes.TypedData{
		Types:       full,
		PrimaryType: primary,
		Domain:      domain,
		Message:     message,
	}, nil
}

// PrimaryType returns the single struct type no other type references.
func PrimaryType(types apitypes.Types) (string, error) {
	referenced := map[string]bool{}
	for _, fields := range types {
		for _, f := range fields {
			referenced[strings.TrimSuffix(f.Type, "[]")] = true
		}
	}

	var candidates []string
	for name := range types {
		if name == "EIP712Domain" || referenced[name] {
			continue
		}
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)

	if len(candidates) != 1 {
		return "", fmt.Errorf("cannot infer primary type from %v", candidates)
	}
	return candidates[0], nil
}
