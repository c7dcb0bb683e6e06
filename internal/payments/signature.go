package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Sign returns the base64 HMAC-SHA256 of payload under secret, the scheme
// gateways use to sign webhook deliveries.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time. An empty secret disables
// verification.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" {
		return true
	}
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}
