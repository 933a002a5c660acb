package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Webhook signature headers.
const (
	HeaderTimestamp = "X-Propertyx-Timestamp"
	HeaderSignature = "X-Propertyx-Signature"
)

// WebhookSigner signs outbound webhook bodies so receivers can verify they
// came from this service: HMAC-SHA256(secret, timestamp + "." + body), hex.
type WebhookSigner struct {
	Secret string
}

// Headers returns the signature headers for body at the current time.
func (w *WebhookSigner) Headers(body []byte) map[string]string {
	return w.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is like Headers with a caller-supplied Unix timestamp.
func (w *WebhookSigner) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: w.sign(ts, body),
	}
}

// Verify checks a received signature in constant time.
func (w *WebhookSigner) Verify(ts string, body []byte, signature string) bool {
	expected := w.sign(ts, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (w *WebhookSigner) sign(ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(w.Secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
