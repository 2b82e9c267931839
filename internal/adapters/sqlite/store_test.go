package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/greenquote/payhook/internal/app/ports"
	"github.com/greenquote/payhook/internal/db"
	"github.com/greenquote/payhook/internal/pool"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "storetest"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	p, err := pool.New(context.Background(), database, pool.Config{MinConns: 1, MaxConns: 4}, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	return NewStore(p)
}

func TestLedgerRecordsAndMarksEvents(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	processed, err := store.HasBeenProcessed(ctx, "evt_unknown")
	if err != nil {
		t.Fatalf("has been processed: %v", err)
	}
	if processed {
		t.Fatal("unknown event reported as processed")
	}

	record := ports.EventRecord{
		EventID:    "evt_1",
		EventType:  "invoice.paid",
		Payload:    `{"id":"evt_1"}`,
		ReceivedAt: time.Now(),
	}
	if err := store.RecordSeen(ctx, record); err != nil {
		t.Fatalf("record seen: %v", err)
	}
	// A redelivered event must not fail or reset the row.
	if err := store.RecordSeen(ctx, record); err != nil {
		t.Fatalf("record seen duplicate: %v", err)
	}

	processed, err = store.HasBeenProcessed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("has been processed: %v", err)
	}
	if processed {
		t.Fatal("unprocessed event reported as processed")
	}

	if err := store.MarkProcessed(ctx, "evt_1", ""); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	processed, err = store.HasBeenProcessed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("has been processed: %v", err)
	}
	if !processed {
		t.Fatal("processed event reported as unprocessed")
	}

	got, err := store.GetEvent(ctx, "evt_1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if !got.Processed || got.ProcessedAt == nil {
		t.Fatalf("event not finalized: %+v", got)
	}
}

func TestMarkProcessedWithErrorKeepsEventPending(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	record := ports.EventRecord{EventID: "evt_fail", EventType: "invoice.paid", Payload: "{}", ReceivedAt: time.Now()}
	if err := store.RecordSeen(ctx, record); err != nil {
		t.Fatalf("record seen: %v", err)
	}
	if err := store.MarkProcessed(ctx, "evt_fail", "handler blew up"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	processed, err := store.HasBeenProcessed(ctx, "evt_fail")
	if err != nil {
		t.Fatalf("has been processed: %v", err)
	}
	if processed {
		t.Fatal("failed event reported as processed, redelivery would be skipped")
	}

	got, err := store.GetEvent(ctx, "evt_fail")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.Error != "handler blew up" {
		t.Fatalf("unexpected error message: %q", got.Error)
	}
}

func TestGetEventNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if _, err := store.GetEvent(context.Background(), "evt_missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeadLetterRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	letters := []ports.DeadLetter{
		{EventID: "evt_a", Reason: ports.ReasonHandlerError, Detail: "db constraint"},
		{Reason: ports.ReasonSignatureInvalid, Detail: "bad hmac"},
		{EventID: "evt_b", Reason: ports.ReasonTimeoutExceeded, Detail: "5s exceeded"},
	}
	for _, letter := range letters {
		if err := store.Record(ctx, letter); err != nil {
			t.Fatalf("record dead letter: %v", err)
		}
	}

	got, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 dead letters, got %d", len(got))
	}
	for _, letter := range got {
		if letter.ID == "" {
			t.Fatal("dead letter missing generated id")
		}
		if letter.CreatedAt.IsZero() {
			t.Fatal("dead letter missing created_at")
		}
	}
}

func TestPerfSamplesAppend(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.Append(context.Background(), ports.PerfSample{
		Operation:    "invoice.paid",
		Duration:     42 * time.Millisecond,
		QueryCount:   3,
		APICallCount: 1,
	})
	if err != nil {
		t.Fatalf("append perf sample: %v", err)
	}
}

func TestCustomerUpsertPreservesKnownFields(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertCustomer(ctx, ports.Customer{
		StripeCustomerID: "cus_1",
		Email:            "mow@greenquote.test",
		Name:             "Mow & Grow LLC",
	})
	if err != nil {
		t.Fatalf("upsert customer: %v", err)
	}

	// A later event with a bare customer object must not wipe email/name.
	if err := store.UpsertCustomer(ctx, ports.Customer{StripeCustomerID: "cus_1"}); err != nil {
		t.Fatalf("upsert bare customer: %v", err)
	}

	got, err := store.GetCustomerByID(ctx, "cus_1")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if got.Email != "mow@greenquote.test" || got.Name != "Mow & Grow LLC" {
		t.Fatalf("bare upsert clobbered fields: %+v", got)
	}

	byEmail, err := store.GetCustomerByEmail(ctx, "mow@greenquote.test")
	if err != nil {
		t.Fatalf("get customer by email: %v", err)
	}
	if byEmail.StripeCustomerID != "cus_1" {
		t.Fatalf("unexpected customer by email: %+v", byEmail)
	}
}

func TestSubscriptionUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	sub := ports.Subscription{
		StripeSubscriptionID: "sub_1",
		StripeCustomerID:     "cus_1",
		Status:               "active",
		StripePriceID:        "price_basic",
		CurrentPeriodEnd:     &periodEnd,
	}
	if err := store.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}

	sub.Status = "past_due"
	sub.CancelAtPeriodEnd = true
	if err := store.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.GetSubscription(ctx, "sub_1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if got.Status != "past_due" || !got.CancelAtPeriodEnd {
		t.Fatalf("upsert did not update row: %+v", got)
	}
	if got.CurrentPeriodEnd == nil || !got.CurrentPeriodEnd.Equal(periodEnd) {
		t.Fatalf("period end mismatch: %v want %v", got.CurrentPeriodEnd, periodEnd)
	}
}

func TestPaymentMethodAttachDetach(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertPaymentMethod(ctx, ports.PaymentMethod{
		StripePaymentMethodID: "pm_1",
		StripeCustomerID:      "cus_1",
		Brand:                 "visa",
		Last4:                 "4242",
		IsDefault:             true,
	})
	if err != nil {
		t.Fatalf("upsert payment method: %v", err)
	}

	count, err := store.CountAttachedPaymentMethods(ctx, "cus_1")
	if err != nil {
		t.Fatalf("count attached: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 attached method, got %d", count)
	}

	if err := store.MarkPaymentMethodDetached(ctx, "pm_1", time.Now()); err != nil {
		t.Fatalf("detach: %v", err)
	}
	count, err = store.CountAttachedPaymentMethods(ctx, "cus_1")
	if err != nil {
		t.Fatalf("count after detach: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 attached methods after detach, got %d", count)
	}
}

func TestCatalogUpsertAndDeactivate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertProduct(ctx, ports.Product{StripeProductID: "prod_1", Name: "Weekly Mow", Active: true}); err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	err := store.UpsertPrice(ctx, ports.Price{
		StripePriceID:   "price_1",
		StripeProductID: "prod_1",
		UnitAmount:      4900,
		Currency:        "usd",
		Interval:        "month",
		Active:          true,
	})
	if err != nil {
		t.Fatalf("upsert price: %v", err)
	}

	if err := store.DeactivateProduct(ctx, "prod_1"); err != nil {
		t.Fatalf("deactivate product: %v", err)
	}
	if err := store.DeactivatePrice(ctx, "price_1"); err != nil {
		t.Fatalf("deactivate price: %v", err)
	}
}

func countRows(t *testing.T, store *Store, query string, args ...any) int64 {
	t.Helper()
	var count int64
	err := store.pool.Query(context.Background(), func(ctx context.Context, conn *pool.Conn) error {
		return conn.QueryRowContext(ctx, query, args...).Scan(&count)
	})
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}

func TestPaymentEventsDedupeOnEventID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	event := ports.PaymentEvent{
		StripeEventID:        "evt_1",
		StripeInvoiceID:      "in_1",
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		Amount:               4900,
		Currency:             "usd",
		Status:               "paid",
	}
	// A redelivered or racing append for the same webhook event is a no-op.
	if err := store.AppendPaymentEvent(ctx, event); err != nil {
		t.Fatalf("append payment event: %v", err)
	}
	if err := store.AppendPaymentEvent(ctx, event); err != nil {
		t.Fatalf("append duplicate payment event: %v", err)
	}

	count := countRows(t, store,
		"-- name: CountPaymentEventsByInvoice :one\nSELECT COUNT(*) FROM payment_events WHERE stripe_invoice_id = ?", "in_1")
	if count != 1 {
		t.Fatalf("expected 1 payment row, got %d", count)
	}

	// A distinct event for the same invoice still appends.
	event.StripeEventID = "evt_2"
	event.Status = "failed"
	if err := store.AppendPaymentEvent(ctx, event); err != nil {
		t.Fatalf("append second payment event: %v", err)
	}
	count = countRows(t, store,
		"-- name: CountPaymentEventsByInvoice :one\nSELECT COUNT(*) FROM payment_events WHERE stripe_invoice_id = ?", "in_1")
	if count != 2 {
		t.Fatalf("expected 2 payment rows, got %d", count)
	}
}

func TestConcurrentPaymentEventAppendsCollapse(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	event := ports.PaymentEvent{
		StripeEventID:    "evt_race",
		StripeInvoiceID:  "in_race",
		StripeCustomerID: "cus_1",
		Amount:           4900,
		Currency:         "usd",
		Status:           "paid",
	}

	start := make(chan struct{})
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			errs <- store.AppendPaymentEvent(context.Background(), event)
		}()
	}
	close(start)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	count := countRows(t, store,
		"-- name: CountPaymentEventsByInvoice :one\nSELECT COUNT(*) FROM payment_events WHERE stripe_invoice_id = ?", "in_race")
	if count != 1 {
		t.Fatalf("racing appends produced %d rows, want 1", count)
	}
}

func TestConcurrentAttachesElectOneDefault(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	start := make(chan struct{})
	errs := make(chan error, 2)
	for _, id := range []string{"pm_a", "pm_b"} {
		go func() {
			<-start
			errs <- store.UpsertPaymentMethod(context.Background(), ports.PaymentMethod{
				StripePaymentMethodID: id,
				StripeCustomerID:      "cus_race",
				Brand:                 "visa",
				Last4:                 "4242",
			})
		}()
	}
	close(start)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("attach: %v", err)
		}
	}

	defaults := countRows(t, store,
		"-- name: CountDefaultPaymentMethods :one\nSELECT COUNT(*) FROM payment_methods WHERE stripe_customer_id = ? AND is_default = 1", "cus_race")
	if defaults != 1 {
		t.Fatalf("racing attaches elected %d defaults, want 1", defaults)
	}
}
