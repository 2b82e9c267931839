// Package billing models the provider's webhook event envelope and the
// payload objects the pipeline projects into local storage.
package billing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event is the provider's webhook envelope. Data.Object stays raw so each
// handler decodes only the shape it needs.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes and minimally validates a webhook envelope.
func ParseEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("decode event envelope: %w", err)
	}
	if strings.TrimSpace(event.ID) == "" {
		return Event{}, fmt.Errorf("event envelope missing id")
	}
	if strings.TrimSpace(event.Type) == "" {
		return Event{}, fmt.Errorf("event %s missing type", event.ID)
	}
	return event, nil
}

// EventKind is the closed set of event families the pipeline understands.
// Everything else is acknowledged and dropped at the boundary.
type EventKind int

const (
	KindUnhandled EventKind = iota
	KindSubscriptionCreated
	KindSubscriptionUpdated
	KindSubscriptionDeleted
	KindCheckoutCompleted
	KindInvoicePaid
	KindInvoicePaymentFailed
	KindPaymentMethodAttached
	KindPaymentMethodDetached
	KindProductUpserted
	KindProductDeleted
	KindPriceUpserted
	KindPriceDeleted
	KindCustomerUpserted
)

var kindByType = map[string]EventKind{
	"customer.subscription.created": KindSubscriptionCreated,
	"customer.subscription.updated": KindSubscriptionUpdated,
	"customer.subscription.deleted": KindSubscriptionDeleted,
	"checkout.session.completed":    KindCheckoutCompleted,
	"invoice.paid":                  KindInvoicePaid,
	"invoice.payment_succeeded":     KindInvoicePaid,
	"invoice.payment_failed":        KindInvoicePaymentFailed,
	"payment_method.attached":       KindPaymentMethodAttached,
	"payment_method.detached":       KindPaymentMethodDetached,
	"product.created":               KindProductUpserted,
	"product.updated":               KindProductUpserted,
	"product.deleted":               KindProductDeleted,
	"price.created":                 KindPriceUpserted,
	"price.updated":                 KindPriceUpserted,
	"price.deleted":                 KindPriceDeleted,
	"customer.created":              KindCustomerUpserted,
	"customer.updated":              KindCustomerUpserted,
}

// KindOf maps a provider event type to its kind, KindUnhandled for anything
// outside the closed set.
func KindOf(eventType string) EventKind {
	if kind, ok := kindByType[eventType]; ok {
		return kind
	}
	return KindUnhandled
}
