package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Whop-Signature"

// VerifyWebhookSignature checks header against HMAC-SHA256(secret, body).
// The header may be "sha256=<hex>" or bare hex.
func VerifyWebhookSignature(secret string, body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if secret == "" || header == "" {
		return false
	}
	header = strings.TrimPrefix(header, "sha256=")

	got, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	return hmac.Equal(got, signBody(secret, body))
}

// SignWebhookBody returns the header value Whop would send for body
func SignWebhookBody(secret string, body []byte) string {
	return "sha256=" + hex.EncodeToString(signBody(secret, body))
}

func signBody(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
