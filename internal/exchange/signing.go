package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
)

// All venue signing schemes reduce to an HMAC over a scheme-specific payload.
// These helpers are the only signing primitives in the codebase; each venue
// file composes its payload and picks one.

func hmacHex(h func() hash.Hash, secret, payload string) string {
	mac := hmac.New(h, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacB64(h func() hash.Hash, secret []byte, payload []byte) string {
	mac := hmac.New(h, secret)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signSHA256Hex: Binance-family query-string signing.
func signSHA256Hex(secret, payload string) string {
	return hmacHex(sha256.New, secret, payload)
}

// signSHA256B64: ts+method+path+body signing (KuCoin, OKX family, Coinbase).
func signSHA256B64(secret, payload string) string {
	return hmacB64(sha256.New, []byte(secret), []byte(payload))
}

// hmacB64SHA256 signs with an already-decoded binary secret (Coinbase).
func hmacB64SHA256(secret []byte, payload string) string {
	return hmacB64(sha256.New, secret, []byte(payload))
}

// signSHA512Hex: ts+METHOD+path+body signing (VALR, Gate).
func signSHA512Hex(secret, payload string) string {
	return hmacHex(sha512.New, secret, payload)
}

// signSHA384Hex: base64-payload signing (Gemini, Bitfinex).
func signSHA384Hex(secret, payload string) string {
	return hmacHex(sha512.New384, secret, payload)
}

// signKraken: HMAC-SHA512 base64 of path + SHA256(nonce+postdata) with the
// base64-decoded secret.
func signKraken(secretB64, path, nonce, postdata string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		return "", err
	}
	inner := sha256.Sum256([]byte(nonce + postdata))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(inner[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
