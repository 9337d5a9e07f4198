package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// SignatureHeader is the header Paystack signs webhook deliveries with.
const SignatureHeader = "x-paystack-signature"

// ComputeSignature returns the hex HMAC-SHA-512 of the raw payload under the
// account secret key. Paystack signs the exact bytes it delivers, so callers
// must pass the body unmodified.
func ComputeSignature(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time.
func VerifySignature(secret string, payload []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	expected := ComputeSignature(secret, payload)
	return hmac.Equal([]byte(expected), []byte(header))
}
