package billing

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func staticSecret(secret string) func(string) (string, bool) {
	return func(string) (string, bool) {
		if secret == "" {
			return "", false
		}
		return secret, true
	}
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	t.Parallel()

	verifier := NewVerifier(staticSecret("whsec_test"), 5*time.Minute)
	body := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	header := Sign("whsec_test", time.Now(), body)

	if err := verifier.Verify("default", header, body); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	t.Parallel()

	verifier := NewVerifier(staticSecret("whsec_test"), 5*time.Minute)
	header := Sign("whsec_test", time.Now(), []byte(`{"id":"evt_1"}`))

	err := verifier.Verify("default", header, []byte(`{"id":"evt_2"}`))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	verifier := NewVerifier(staticSecret("whsec_real"), 5*time.Minute)
	body := []byte(`{}`)
	header := Sign("whsec_forged", time.Now(), body)

	if err := verifier.Verify("default", header, body); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	t.Parallel()

	verifier := NewVerifier(staticSecret("whsec_test"), 5*time.Minute)
	body := []byte(`{}`)
	header := Sign("whsec_test", time.Now().Add(-10*time.Minute), body)

	if err := verifier.Verify("default", header, body); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for stale timestamp, got %v", err)
	}
}

func TestVerifyRejectsMalformedHeaders(t *testing.T) {
	t.Parallel()

	verifier := NewVerifier(staticSecret("whsec_test"), 5*time.Minute)
	body := []byte(`{}`)

	for _, header := range []string{
		"",
		"v1=deadbeef",
		"t=notanumber,v1=deadbeef",
		"t=1756700000",
		"garbage",
	} {
		if err := verifier.Verify("default", header, body); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("header %q: expected ErrInvalidSignature, got %v", header, err)
		}
	}
}

func TestVerifyAcceptsRotatedSecretCandidates(t *testing.T) {
	t.Parallel()

	verifier := NewVerifier(staticSecret("whsec_new"), 5*time.Minute)
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	oldSig := Sign("whsec_old", now, body)
	newSig := Sign("whsec_new", now, body)
	// Provider sends both signatures during rotation; one match suffices.
	header := oldSig + "," + strings.TrimPrefix(newSig[strings.Index(newSig, ","):], ",")

	if err := verifier.Verify("default", header, body); err != nil {
		t.Fatalf("verify rotated header: %v", err)
	}
}

func TestVerifyMissingSecret(t *testing.T) {
	t.Parallel()

	verifier := NewVerifier(staticSecret(""), 5*time.Minute)
	err := verifier.Verify("acme", "t=1,v1=00", []byte(`{}`))
	if !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("expected ErrSecretMissing, got %v", err)
	}
}
