package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Prefix is the scheme marker carried by the signature header.
const Prefix = "sha256="

// Sign computes the HMAC-SHA256 signature of body keyed by secret,
// formatted the way the provider sends it: "sha256=<hex>".
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header carries a valid HMAC-SHA256 signature of
// body under secret. The comparison is constant-time. Malformed input
// (missing prefix, bad hex, empty header or secret) verifies as false;
// Verify never fails any other way.
func Verify(body []byte, header, secret string) bool {
	if secret == "" {
		return false
	}
	if !strings.HasPrefix(header, Prefix) {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, Prefix))
	if err != nil || len(provided) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	return subtle.ConstantTimeCompare(provided, expected) == 1
}
