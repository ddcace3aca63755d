package clob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/uhyunpark/clobrelay/pkg/crypto"
)

const (
	headerAddress    = "POLY_ADDRESS"
	headerSignature  = "POLY_SIGNATURE"
	headerTimestamp  = "POLY_TIMESTAMP"
	headerNonce      = "POLY_NONCE"
	headerAPIKey     = "POLY_API_KEY"
	headerPassphrase = "POLY_PASSPHRASE"
)

// l1Headers proves control of the signing key. The attestation is signed
// through the legacy typed-data shape, as wallets of the older SDK do.
func (c *Client) l1Headers(nonce int64) (map[string]string, error) {
	ts := c.now().Unix()
	td := crypto.ClobAuthTypedData(c.signer.Address(), c.chainID, ts, nonce)

	types := apitypes.Types{"ClobAuth": td.Types["ClobAuth"]}
	sig, err := c.signer.SignTypedDataLegacy(td.Domain, types, td.Message)
	if err != nil {
		return nil, fmt.Errorf("sign auth attestation: %w", err)
	}

	return map[string]string{
		headerAddress:   c.signer.Address().Hex(),
		headerSignature: "0x" + common.Bytes2Hex(sig),
		headerTimestamp: strconv.FormatInt(ts, 10),
		headerNonce:     strconv.FormatInt(nonce, 10),
	}, nil
}

// l2Headers authenticates a request with the derived API credentials.
func (c *Client) l2Headers(method, path string, body []byte) (map[string]string, error) {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	sig, err := HMACSignature(c.creds.Secret, ts, method, path, body)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		headerAddress:    c.signer.Address().Hex(),
		headerSignature:  sig,
		headerTimestamp:  ts,
		headerAPIKey:     c.creds.APIKey,
		headerPassphrase: c.creds.Passphrase,
	}, nil
}

// HMACSignature signs timestamp+method+path+body with the base64 secret and
// returns URL-safe base64.
func HMACSignature(secret, timestamp, method, path string, body []byte) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp + method + path))
	mac.Write(body)
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// decodeSecret accepts standard or URL-safe base64, padded or not.
func decodeSecret(secret string) ([]byte, error) {
	s := strings.NewReplacer("-", "+", "_", "/").Replace(secret)
	s = strings.TrimRight(s, "=")
	return base64.RawStdEncoding.DecodeString(s)
}
