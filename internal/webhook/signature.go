package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

type SignatureHeaders struct {
	Signature string
	Timestamp int64
	ID        string
}

func (s SignatureHeaders) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Signature)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderID, s.ID)
}

// Sign computes HMAC-SHA256(secret, timestamp + "." + payload).
func Sign(secret string, payload []byte, now time.Time) SignatureHeaders {
	ts := now.Unix()
	return SignatureHeaders{
		Signature: computeSignature(secret, ts, payload),
		Timestamp: ts,
		ID:        uuid.NewString(),
	}
}

func computeSignature(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.", ts)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseSignatureHeaders reads the signature headers from an inbound request.
func ParseSignatureHeaders(h http.Header) (SignatureHeaders, error) {
	sig := strings.TrimSpace(h.Get(HeaderSignature))
	rawTs := strings.TrimSpace(h.Get(HeaderTimestamp))
	if sig == "" || rawTs == "" {
		return SignatureHeaders{}, ErrSignatureRequired
	}
	ts, err := strconv.ParseInt(rawTs, 10, 64)
	if err != nil {
		return SignatureHeaders{}, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	return SignatureHeaders{Signature: sig, Timestamp: ts, ID: h.Get(HeaderID)}, nil
}

// Verify checks the signature and rejects timestamps further than maxSkew from now.
func Verify(secret string, payload []byte, headers SignatureHeaders, now time.Time, maxSkew time.Duration) error {
	if maxSkew > 0 {
		delta := now.Sub(time.Unix(headers.Timestamp, 0))
		if delta < 0 {
			delta = -delta
		}
		if delta > maxSkew {
			return ErrSignatureExpired
		}
	}
	expected := computeSignature(secret, headers.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(headers.Signature))) {
		return ErrInvalidSignature
	}
	return nil
}
