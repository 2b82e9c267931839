// Package billing implements the provider webhook pipeline: signature
// verification, idempotency, routing, timeout supervision and dead-lettering.
package billing

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

// SignatureHeader is the provider's webhook signature header.
const SignatureHeader = "Stripe-Signature"

var (
	// ErrInvalidSignature covers malformed headers, digest mismatches and
	// stale timestamps. The caller treats them all as an unauthenticated
	// request.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrSecretMissing means no signing secret is configured for the tenant.
	ErrSecretMissing = errors.New("no signing secret configured")
)

// Verifier checks provider webhook signatures against a per-tenant secret.
type Verifier struct {
	secretFor func(tenant string) (string, bool)
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a Verifier. secretFor resolves a tenant to its signing
// secret; tolerance bounds how old a signed timestamp may be.
func NewVerifier(secretFor func(tenant string) (string, bool), tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{
		secretFor: secretFor,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify authenticates one webhook delivery. The header carries
// "t=<unix>,v1=<hex>" where v1 is HMAC-SHA256 over "<t>.<body>". Any v1
// candidate matching is accepted, which covers secret rotation windows.
func (v *Verifier) Verify(tenant, header string, body []byte) error {
	secret, ok := v.secretFor(tenant)
	if !ok || secret == "" {
		return fmt.Errorf("tenant %q: %w", tenant, ErrSecretMissing)
	}

	timestamp, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("timestamp outside %s tolerance: %w", v.tolerance, ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return fmt.Errorf("no matching v1 signature: %w", ErrInvalidSignature)
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp  int64
		candidates []string
		sawTS      bool
	)
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("bad timestamp %q: %w", value, ErrInvalidSignature)
			}
			timestamp = parsed
			sawTS = true
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if !sawTS || len(candidates) == 0 {
		return 0, nil, fmt.Errorf("header missing t or v1: %w", ErrInvalidSignature)
	}
	return timestamp, candidates, nil
}

// Sign produces a header value for outbound test deliveries.
func Sign(secret string, at time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
