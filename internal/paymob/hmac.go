package paymob

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// Transaction callback fields covered by the signature, in signing order
var callbackHMACFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

// SignCallback computes the hex HMAC-SHA512 of a callback's signed fields
func SignCallback(secret string, fields map[string]string) string {
	var sb strings.Builder
	for _, name := range callbackHMACFields {
		sb.WriteString(fields[name])
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACEnabled reports whether callbacks must carry a valid signature
func (c *Client) HMACEnabled() bool {
	return c.cfg.HMACSecret != ""
}

// VerifyCallbackHMAC checks a callback signature against the configured secret
func (c *Client) VerifyCallbackHMAC(fields map[string]string, signature string) bool {
	if c.cfg.HMACSecret == "" || signature == "" {
		return false
	}
	expected := SignCallback(c.cfg.HMACSecret, fields)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
