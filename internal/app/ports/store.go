// Package ports defines the storage contracts the webhook pipeline depends
// on. Adapters (sqlite today) implement them; future backends should
// implement the same ports.
package ports

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a required row does not exist.
var ErrNotFound = errors.New("not found")

// FailureReason classifies a dead-lettered event.
type FailureReason string

const (
	ReasonSignatureInvalid FailureReason = "signature_invalid"
	ReasonParsingFailed    FailureReason = "parsing_failed"
	ReasonTimeoutExceeded  FailureReason = "timeout_exceeded"
	ReasonHandlerError     FailureReason = "handler_error"
	ReasonDatabaseError    FailureReason = "database_error"
	ReasonPoolExhausted    FailureReason = "pool_exhausted"
)

// EventRecord is one inbound webhook event as recorded in the idempotency
// ledger. EventID is the provider-assigned unique id.
type EventRecord struct {
	EventID     string     `json:"event_id"`
	EventType   string     `json:"event_type"`
	Payload     string     `json:"payload"`
	ReceivedAt  time.Time  `json:"received_at"`
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// DeadLetter records one event that could not be processed. EventID is empty
// when the failure happened before an id could be extracted.
type DeadLetter struct {
	ID        string        `json:"id"`
	EventID   string        `json:"event_id,omitempty"`
	Reason    FailureReason `json:"reason"`
	Detail    string        `json:"detail"`
	CreatedAt time.Time     `json:"created_at"`
}

// PerfSample is one append-only processing measurement.
type PerfSample struct {
	Operation    string        `json:"operation"`
	Duration     time.Duration `json:"duration"`
	QueryCount   int64         `json:"query_count"`
	APICallCount int64         `json:"api_call_count"`
	ErrorCount   int64         `json:"error_count"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Customer is the local mapping for one provider customer.
type Customer struct {
	StripeCustomerID string
	Email            string
	Name             string
}

// Subscription is the local record for one provider subscription.
type Subscription struct {
	StripeSubscriptionID string
	StripeCustomerID     string
	Status               string
	StripePriceID        string
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
}

// PaymentEvent is one immutable payment outcome record. StripeEventID is the
// delivering webhook event's id; appends are deduplicated on it so racing
// deliveries of one event collapse to a single row.
type PaymentEvent struct {
	StripeEventID        string
	StripeInvoiceID      string
	StripeCustomerID     string
	StripeSubscriptionID string
	Amount               int64
	Currency             string
	Status               string
	FailureMessage       string
}

// PaymentMethod is the local record for one provider payment method. On
// attach, IsDefault forces the flag; left false, the store atomically
// promotes the customer's first attached method to default.
type PaymentMethod struct {
	StripePaymentMethodID string
	StripeCustomerID      string
	Brand                 string
	Last4                 string
	IsDefault             bool
	DetachedAt            *time.Time
}

// Product is one catalog product, soft-deactivated rather than deleted.
type Product struct {
	StripeProductID string
	Name            string
	Active          bool
}

// Price is one catalog price, soft-deactivated rather than deleted.
type Price struct {
	StripePriceID   string
	StripeProductID string
	UnitAmount      int64
	Currency        string
	Interval        string
	Active          bool
}

// LedgerStore is the idempotency ledger over inbound events.
type LedgerStore interface {
	// HasBeenProcessed reports whether the event id was already processed
	// to completion. Events recorded but not yet marked processed return
	// false so redelivery re-attempts them.
	HasBeenProcessed(ctx context.Context, eventID string) (bool, error)
	// RecordSeen upserts the raw event before processing (processed=false).
	// Duplicate ids are ignored.
	RecordSeen(ctx context.Context, record EventRecord) error
	// MarkProcessed finalizes one attempt: an empty errMsg sets
	// processed=true; a non-empty errMsg keeps processed=false and stores
	// the message.
	MarkProcessed(ctx context.Context, eventID, errMsg string) error
	// GetEvent loads one ledger entry.
	GetEvent(ctx context.Context, eventID string) (EventRecord, error)
}

// DeadLetterStore persists failed events for inspection and replay.
type DeadLetterStore interface {
	Record(ctx context.Context, letter DeadLetter) error
	ListRecent(ctx context.Context, limit int) ([]DeadLetter, error)
}

// PerfStore persists append-only performance samples.
type PerfStore interface {
	Append(ctx context.Context, sample PerfSample) error
}

// BillingStore holds the local projections of provider billing objects. All
// writes are upserts keyed by the provider's stable object id.
type BillingStore interface {
	UpsertCustomer(ctx context.Context, customer Customer) error
	GetCustomerByID(ctx context.Context, stripeCustomerID string) (Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (Customer, error)

	UpsertSubscription(ctx context.Context, subscription Subscription) error
	GetSubscription(ctx context.Context, stripeSubscriptionID string) (Subscription, error)

	// AppendPaymentEvent inserts one immutable payment record. Appends
	// carrying an already-recorded StripeEventID are dropped.
	AppendPaymentEvent(ctx context.Context, event PaymentEvent) error

	UpsertPaymentMethod(ctx context.Context, method PaymentMethod) error
	CountAttachedPaymentMethods(ctx context.Context, stripeCustomerID string) (int64, error)
	MarkPaymentMethodDetached(ctx context.Context, stripePaymentMethodID string, at time.Time) error

	UpsertProduct(ctx context.Context, product Product) error
	DeactivateProduct(ctx context.Context, stripeProductID string) error
	UpsertPrice(ctx context.Context, price Price) error
	DeactivatePrice(ctx context.Context, stripePriceID string) error
}
