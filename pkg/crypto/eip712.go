package crypto

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ClobAuthMessage is the fixed attestation text of the L1 auth payload.
const ClobAuthMessage = "This message attests that I control the given wallet"

// EIP712Domain represents the domain separator for EIP-712 typed data
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract *common.Address // nil for off-chain attestations
}

func (d EIP712Domain) typed() apitypes.TypedDataDomain {
	out := apitypes.TypedDataDomain{
		Name:    d.Name,
		Version: d.Version,
		ChainId: (*math.HexOrDecimal256)(d.ChainID),
	}
	if d.VerifyingContract != nil {
		out.VerifyingContract = d.VerifyingContract.Hex()
	}
	return out
}

// domainType lists only the fields a domain actually sets, matching what
// Domain.Map() feeds into the separator hash.
func domainType(domain apitypes.TypedDataDomain) []apitypes.Type {
	fields := []apitypes.Type{}
	if domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}

// OrderEIP712 is the exchange order struct users sign.
type OrderEIP712 struct {
	Salt          *big.Int
	Maker         common.Address // funder holding the collateral
	Signer        common.Address // key that signs
	Taker         common.Address // zero address for public orders
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8 // 0 = BUY, 1 = SELL
	SignatureType uint8
}

// ClobAuthTypedData builds the L1 attestation that proves control of address.
func ClobAuthTypedData(address common.Address, chainID int64, timestamp int64, nonce int64) apitypes.TypedData {
	domain := EIP712Domain{
		Name:    "ClobAuthDomain",
		Version: "1",
		ChainID: big.NewInt(chainID),
	}.typed()

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType(domain),
			"ClobAuth": []apitypes.Type{
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"address":   address.Hex(),
			"timestamp": strconv.FormatInt(timestamp, 10),
			"nonce":     strconv.FormatInt(nonce, 10),
			"message":   ClobAuthMessage,
		},
	}
}

// OrderTypedData builds the typed data for an order against one exchange contract.
func OrderTypedData(order *OrderEIP712, chainID int64, exchange common.Address) apitypes.TypedData {
	domain := EIP712Domain{
		Name:              "Polymarket CTF Exchange",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: &exchange,
	}.typed()

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType(domain),
			"Order": []apitypes.Type{
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"salt":          order.Salt.String(),
			"maker":         order.Maker.Hex(),
			"signer":        order.Signer.Hex(),
			"taker":         order.Taker.Hex(),
			"tokenId":       order.TokenID.String(),
			"makerAmount":   order.MakerAmount.String(),
			"takerAmount":   order.TakerAmount.String(),
			"expiration":    order.Expiration.String(),
			"nonce":         order.Nonce.String(),
			"feeRateBps":    order.FeeRateBps.String(),
			"side":          strconv.Itoa(int(order.Side)),
			"signatureType": strconv.Itoa(int(order.SignatureType)),
		},
	}
}

// TypedDataHash returns the EIP-712 digest that should be signed
func TypedDataHash(typedData apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// RecoverTypedDataSigner recovers the address that signed typed data
func RecoverTypedDataSigner(typedData apitypes.TypedData, signature []byte) (common.Address, error) {
	digest, err := TypedDataHash(typedData)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(digest, signature)
}
