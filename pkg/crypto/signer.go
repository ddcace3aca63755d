package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrInvalidKey is returned for private keys that are not 32 bytes of hex.
var ErrInvalidKey = errors.New("invalid private key")

// KeySigner holds a secp256k1 key pair and signs EIP-712 typed data with it.
type KeySigner struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	address    common.Address
}

// FromPrivateKeyHex creates a KeySigner from a hex-encoded private key
// Format: "0x1234..." or "1234..." (64 hex chars)
func FromPrivateKeyHex(hexKey string) (*KeySigner, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")

	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// the parse error may echo key material
		return nil, ErrInvalidKey
	}
	return newKeySigner(privateKey)
}

func newKeySigner(privateKey *ecdsa.PrivateKey) (*KeySigner, error) {
	publicKey := privateKey.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return &KeySigner{
		privateKey: privateKey,
		publicKey:  publicKeyECDSA,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

// Address returns the Ethereum address derived from the public key
func (s *KeySigner) Address() common.Address {
	return s.address
}

// Sign signs a 32-byte hash and returns [R || S || V] with V in {0, 1}.
func (s *KeySigner) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}

	signature, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	return signature, nil
}

// SignTypedData hashes typed data per EIP-712 and signs the digest.
// V is returned as 27/28, the form wallets and the exchange contracts expect.
func (s *KeySigner) SignTypedData(typedData apitypes.TypedData) ([]byte, error) {
	digest, err := TypedDataHash(typedData)
	if err != nil {
		return nil, err
	}

	signature, err := s.Sign(digest)
	if err != nil {
		return nil, err
	}
	signature[64] += 27
	return signature, nil
}

// RecoverAddress recovers the signer's address from a message hash and signature.
// V may be 0/1 or 27/28.
func RecoverAddress(hash []byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	if len(hash) != 32 {
		return common.Address{}, fmt.Errorf("invalid hash length: %d", len(hash))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	publicKeyBytes, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	publicKey, err := crypto.UnmarshalPubkey(publicKeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}
