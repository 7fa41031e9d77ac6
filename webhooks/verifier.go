package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-pylon/core"
)

// Header names a delivery may carry. Lookups are case-insensitive and prefer
// the provider-prefixed name over the short alias.
const (
	HeaderSignature       = "X-Pylon-Signature"
	HeaderSignatureAlias  = "X-Signature"
	HeaderTimestamp       = "X-Pylon-Timestamp"
	HeaderTimestampAlias  = "X-Timestamp"
	HeaderDeliveryID      = "X-Pylon-Delivery-Id"
	HeaderDeliveryIDAlias = "X-Delivery-Id"
)

// VerifiedPayload is the outcome of a successful signature check. SignedAt is
// zero when the delivery carried no timestamp header.
type VerifiedPayload struct {
	Payload   []byte
	Signature string
	SignedAt  time.Time
}

// SignatureVerifier checks HMAC-SHA256 delivery signatures. The signed
// message is "<timestamp>.<payload>" when a timestamp accompanies the
// delivery, otherwise the raw payload bytes. Comparison is constant-time.
type SignatureVerifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{
		Secret:    strings.TrimSpace(secret),
		Tolerance: core.DefaultWebhookTolerance,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Verify checks signature over payload. A non-empty timestamp is validated
// against the tolerance window before any signature computation, so a
// replayed delivery fails fast regardless of signature validity.
func (v *SignatureVerifier) Verify(payload []byte, signature string, timestamp string) (VerifiedPayload, error) {
	if v == nil {
		return VerifiedPayload{}, fmt.Errorf("webhooks: verifier is nil")
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return VerifiedPayload{}, fmt.Errorf("webhooks: signature secret is required")
	}

	verified := VerifiedPayload{Payload: payload, Signature: strings.TrimSpace(signature)}
	timestamp = strings.TrimSpace(timestamp)
	if timestamp != "" {
		signedAt, err := v.validateTimestamp(timestamp)
		if err != nil {
			return VerifiedPayload{}, err
		}
		verified.SignedAt = signedAt
	}

	expected := Sign(secret, timestamp, payload)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(verified.Signature)) != 1 {
		return VerifiedPayload{}, signatureMismatchError()
	}
	return verified, nil
}

func (v *SignatureVerifier) validateTimestamp(timestamp string) (time.Time, error) {
	tolerance := v.tolerance()
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return time.Time{}, timestampError(
			fmt.Sprintf("webhooks: timestamp %q is not a unix timestamp", timestamp),
			map[string]any{"timestamp": timestamp, "tolerance_s": int64(tolerance.Seconds())},
		)
	}

	age := v.now().Unix() - seconds
	limit := int64(tolerance.Seconds())
	if age > limit {
		return time.Time{}, timestampError(
			fmt.Sprintf("webhooks: timestamp too old: %d seconds (tolerance %ds)", age, limit),
			map[string]any{"timestamp": timestamp, "age_s": age, "tolerance_s": limit},
		)
	}
	if age < -limit {
		return time.Time{}, timestampError(
			fmt.Sprintf("webhooks: timestamp in the future: %d seconds ahead (tolerance %ds)", -age, limit),
			map[string]any{"timestamp": timestamp, "age_s": age, "tolerance_s": limit},
		)
	}
	return time.Unix(seconds, 0).UTC(), nil
}

func (v *SignatureVerifier) tolerance() time.Duration {
	if v != nil && v.Tolerance > 0 {
		return v.Tolerance
	}
	return core.DefaultWebhookTolerance
}

func (v *SignatureVerifier) now() time.Time {
	if v != nil && v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

// Sign computes the lowercase hex HMAC-SHA256 a delivery with the given
// timestamp and payload must carry. An empty timestamp signs the payload
// bytes alone.
func Sign(secret string, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	if timestamp = strings.TrimSpace(timestamp); timestamp != "" {
		_, _ = mac.Write([]byte(timestamp + "."))
	}
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureFromHeaders returns the delivery signature, preferring the
// provider-prefixed header over the short alias.
func SignatureFromHeaders(headers map[string]string) string {
	if value := core.HeaderValue(headers, HeaderSignature); value != "" {
		return value
	}
	return core.HeaderValue(headers, HeaderSignatureAlias)
}

// TimestampFromHeaders returns the delivery timestamp, preferring the
// provider-prefixed header over the short alias.
func TimestampFromHeaders(headers map[string]string) string {
	if value := core.HeaderValue(headers, HeaderTimestamp); value != "" {
		return value
	}
	return core.HeaderValue(headers, HeaderTimestampAlias)
}
