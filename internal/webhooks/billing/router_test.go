package billing

import (
	"testing"
	"time"
)

func TestRouterResolvesHandledTypes(t *testing.T) {
	t.Parallel()

	router := NewRouter(NewHandlers(newFakeBillingStore(), nil, nil))

	cases := map[string]struct {
		name     string
		priority Priority
	}{
		"customer.subscription.created": {"subscription_created", PriorityCritical},
		"customer.subscription.deleted": {"subscription_deleted", PriorityCritical},
		"checkout.session.completed":    {"checkout_completed", PriorityCritical},
		"invoice.paid":                  {"invoice_paid", PriorityHigh},
		"invoice.payment_failed":        {"invoice_payment_failed", PriorityHigh},
		"payment_method.attached":       {"payment_method_attached", PriorityNormal},
		"product.updated":               {"product_upserted", PriorityLow},
		"price.deleted":                 {"price_deleted", PriorityLow},
		"customer.updated":              {"customer_upserted", PriorityNormal},
	}
	for eventType, want := range cases {
		route, ok := router.Resolve(eventType)
		if !ok {
			t.Errorf("%s: not resolved", eventType)
			continue
		}
		if route.Name != want.name || route.Priority != want.priority {
			t.Errorf("%s: got %s/%s, want %s/%s", eventType, route.Name, route.Priority, want.name, want.priority)
		}
		if route.Timeout <= 0 {
			t.Errorf("%s: route has no timeout", eventType)
		}
		if route.Handler == nil {
			t.Errorf("%s: route has no handler", eventType)
		}
	}
}

func TestRouterLeavesUnknownTypesUnrouted(t *testing.T) {
	t.Parallel()

	router := NewRouter(NewHandlers(newFakeBillingStore(), nil, nil))
	for _, eventType := range []string{"charge.refunded", "payout.paid", ""} {
		if _, ok := router.Resolve(eventType); ok {
			t.Errorf("%q: unexpectedly routed", eventType)
		}
	}
}

func TestCheckoutRouteGetsLongerDeadline(t *testing.T) {
	t.Parallel()

	router := NewRouter(NewHandlers(newFakeBillingStore(), nil, nil))
	checkout, _ := router.Resolve("checkout.session.completed")
	invoice, _ := router.Resolve("invoice.paid")
	// Checkout may call upstream twice, so it gets more headroom.
	if checkout.Timeout <= invoice.Timeout {
		t.Fatalf("checkout timeout %s not above invoice timeout %s", checkout.Timeout, invoice.Timeout)
	}
	if invoice.Timeout != 5*time.Second {
		t.Fatalf("unexpected default timeout %s", invoice.Timeout)
	}
}
