package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSignature  = errors.New("webhook signature verification failed")
	ErrSignatureTooOld   = errors.New("webhook timestamp outside tolerance")
	ErrMalformedSigningH = errors.New("malformed signature header")
)

// DefaultSignatureTolerance bounds replay of captured webhook payloads.
const DefaultSignatureTolerance = 5 * time.Minute

// VerifySignature checks a "t=<unix>,v1=<hex hmac>" header against the raw
// payload. The signed message is "<timestamp>.<payload>" keyed with the
// endpoint secret. Comparison is constant-time. Nothing in the payload may be
// trusted before this passes.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	var ts int64
	var sigs []string

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return ErrMalformedSigningH
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrMalformedSigningH
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrMalformedSigningH
	}

	if tolerance > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return ErrSignatureTooOld
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	expected := mac.Sum(nil)

	for _, sig := range sigs {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignPayload produces a header VerifySignature accepts. Used by tests and
// the local webhook replay tooling.
func SignPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
