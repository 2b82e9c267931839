package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/greenquote/payhook/internal/app/ports"
	billingdom "github.com/greenquote/payhook/internal/billing"
)

// Handlers project provider events into local billing state. Every handler is
// idempotent: redelivered events converge on the same rows.
type Handlers struct {
	store  ports.BillingStore
	client *billingdom.Client
	log    *slog.Logger
}

func NewHandlers(store ports.BillingStore, client *billingdom.Client, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{store: store, client: client, log: log}
}

func decodeObject[T any](event billingdom.Event) (T, error) {
	var object T
	if err := json.Unmarshal(event.Data.Object, &object); err != nil {
		return object, fmt.Errorf("event %s: decode %s object: %w", event.ID, event.Type, err)
	}
	return object, nil
}

// SubscriptionUpserted projects created/updated subscription events.
func (h *Handlers) SubscriptionUpserted(ctx context.Context, event billingdom.Event) error {
	sub, err := decodeObject[billingdom.Subscription](event)
	if err != nil {
		return err
	}
	if sub.ID == "" || sub.Customer == "" {
		return fmt.Errorf("event %s: subscription object missing id or customer", event.ID)
	}
	return h.projectSubscription(ctx, sub)
}

func (h *Handlers) projectSubscription(ctx context.Context, sub billingdom.Subscription) error {
	// The customer row may not exist yet when the provider delivers the
	// subscription event before checkout.session.completed.
	if err := h.store.UpsertCustomer(ctx, ports.Customer{StripeCustomerID: sub.Customer}); err != nil {
		return fmt.Errorf("ensure customer %s: %w", sub.Customer, err)
	}

	record := ports.Subscription{
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.Customer,
		Status:               sub.Status,
		StripePriceID:        sub.PriceID(),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		record.CurrentPeriodEnd = &end
	}
	if err := h.store.UpsertSubscription(ctx, record); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", sub.ID, err)
	}
	return nil
}

// SubscriptionDeleted marks the subscription canceled. Canceled is terminal:
// later out-of-order updates for the same subscription still overwrite the
// row, which matches the provider's own event ordering guarantees (none).
func (h *Handlers) SubscriptionDeleted(ctx context.Context, event billingdom.Event) error {
	sub, err := decodeObject[billingdom.Subscription](event)
	if err != nil {
		return err
	}
	if sub.ID == "" {
		return fmt.Errorf("event %s: deleted subscription missing id", event.ID)
	}
	sub.Status = "canceled"
	return h.projectSubscription(ctx, sub)
}

// CheckoutCompleted establishes the customer mapping and projects the new
// subscription. A checkout that cannot be tied to a customer is a hard
// failure so the provider redelivers it.
func (h *Handlers) CheckoutCompleted(ctx context.Context, event billingdom.Event) error {
	session, err := decodeObject[billingdom.CheckoutSession](event)
	if err != nil {
		return err
	}

	customerID := session.Customer
	if customerID == "" {
		// Guest checkouts carry only an email. Fall back to the local
		// mapping established by an earlier checkout or customer event.
		email := session.Email()
		if email == "" {
			return fmt.Errorf("event %s: checkout %s has no customer or email", event.ID, session.ID)
		}
		existing, err := h.store.GetCustomerByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				return fmt.Errorf("event %s: no customer mapping for %s", event.ID, email)
			}
			return fmt.Errorf("lookup customer by email: %w", err)
		}
		customerID = existing.StripeCustomerID
	}

	customer := ports.Customer{
		StripeCustomerID: customerID,
		Email:            session.Email(),
		Name:             session.CustomerDetail.Name,
	}
	if h.client.Enabled() && (customer.Email == "" || customer.Name == "") {
		if fetched, err := h.client.GetCustomer(ctx, customerID); err != nil {
			h.log.WarnContext(ctx, "customer enrichment failed, projecting checkout fields only",
				slog.String("customer_id", customerID), slog.Any("error", err))
		} else {
			if customer.Email == "" {
				customer.Email = fetched.Email
			}
			if customer.Name == "" {
				customer.Name = fetched.Name
			}
		}
	}
	if err := h.store.UpsertCustomer(ctx, customer); err != nil {
		return fmt.Errorf("upsert customer %s: %w", customerID, err)
	}

	if session.Subscription == "" {
		return nil
	}
	// Checkout sessions reference the subscription by id only; fetch the
	// full object so the projection has status and price.
	if h.client.Enabled() {
		sub, err := h.client.GetSubscription(ctx, session.Subscription)
		if err != nil {
			return fmt.Errorf("fetch subscription %s: %w", session.Subscription, err)
		}
		if sub.Customer == "" {
			sub.Customer = customerID
		}
		return h.projectSubscription(ctx, sub)
	}
	return h.store.UpsertSubscription(ctx, ports.Subscription{
		StripeSubscriptionID: session.Subscription,
		StripeCustomerID:     customerID,
		Status:               "active",
	})
}

// InvoicePaid appends a successful payment record.
func (h *Handlers) InvoicePaid(ctx context.Context, event billingdom.Event) error {
	invoice, err := decodeObject[billingdom.Invoice](event)
	if err != nil {
		return err
	}
	return h.store.AppendPaymentEvent(ctx, ports.PaymentEvent{
		StripeEventID:        event.ID,
		StripeInvoiceID:      invoice.ID,
		StripeCustomerID:     invoice.Customer,
		StripeSubscriptionID: invoice.Subscription,
		Amount:               invoice.AmountPaid,
		Currency:             invoice.Currency,
		Status:               "paid",
	})
}

// InvoicePaymentFailed appends a failed payment record and flags the
// subscription past_due when the local row still reads active.
func (h *Handlers) InvoicePaymentFailed(ctx context.Context, event billingdom.Event) error {
	invoice, err := decodeObject[billingdom.Invoice](event)
	if err != nil {
		return err
	}
	record := ports.PaymentEvent{
		StripeEventID:        event.ID,
		StripeInvoiceID:      invoice.ID,
		StripeCustomerID:     invoice.Customer,
		StripeSubscriptionID: invoice.Subscription,
		Amount:               invoice.AmountDue,
		Currency:             invoice.Currency,
		Status:               "failed",
		FailureMessage:       invoice.LastPaymentErr.Message,
	}
	if err := h.store.AppendPaymentEvent(ctx, record); err != nil {
		return err
	}

	if invoice.Subscription == "" {
		return nil
	}
	sub, err := h.store.GetSubscription(ctx, invoice.Subscription)
	if errors.Is(err, ports.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load subscription %s: %w", invoice.Subscription, err)
	}
	if sub.Status != "active" {
		return nil
	}
	sub.Status = "past_due"
	if err := h.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("flag subscription %s past_due: %w", sub.StripeSubscriptionID, err)
	}
	return nil
}

// PaymentMethodAttached stores the method. The store promotes a customer's
// first attached method to default atomically, so racing attach events
// cannot both win.
func (h *Handlers) PaymentMethodAttached(ctx context.Context, event billingdom.Event) error {
	method, err := decodeObject[billingdom.PaymentMethod](event)
	if err != nil {
		return err
	}
	if method.ID == "" || method.Customer == "" {
		return fmt.Errorf("event %s: payment method object missing id or customer", event.ID)
	}
	return h.store.UpsertPaymentMethod(ctx, ports.PaymentMethod{
		StripePaymentMethodID: method.ID,
		StripeCustomerID:      method.Customer,
		Brand:                 method.Card.Brand,
		Last4:                 method.Card.Last4,
	})
}

// PaymentMethodDetached soft-deletes the method.
func (h *Handlers) PaymentMethodDetached(ctx context.Context, event billingdom.Event) error {
	method, err := decodeObject[billingdom.PaymentMethod](event)
	if err != nil {
		return err
	}
	if method.ID == "" {
		return fmt.Errorf("event %s: detached payment method missing id", event.ID)
	}
	return h.store.MarkPaymentMethodDetached(ctx, method.ID, time.Unix(event.Created, 0).UTC())
}

// ProductUpserted projects catalog product changes.
func (h *Handlers) ProductUpserted(ctx context.Context, event billingdom.Event) error {
	product, err := decodeObject[billingdom.Product](event)
	if err != nil {
		return err
	}
	if product.ID == "" {
		return fmt.Errorf("event %s: product object missing id", event.ID)
	}
	return h.store.UpsertProduct(ctx, ports.Product{
		StripeProductID: product.ID,
		Name:            product.Name,
		Active:          product.Active,
	})
}

// ProductDeleted soft-deactivates the product so existing quotes keep their
// references.
func (h *Handlers) ProductDeleted(ctx context.Context, event billingdom.Event) error {
	product, err := decodeObject[billingdom.Product](event)
	if err != nil {
		return err
	}
	if product.ID == "" {
		return fmt.Errorf("event %s: deleted product missing id", event.ID)
	}
	return h.store.DeactivateProduct(ctx, product.ID)
}

// PriceUpserted projects catalog price changes.
func (h *Handlers) PriceUpserted(ctx context.Context, event billingdom.Event) error {
	price, err := decodeObject[billingdom.Price](event)
	if err != nil {
		return err
	}
	if price.ID == "" {
		return fmt.Errorf("event %s: price object missing id", event.ID)
	}
	return h.store.UpsertPrice(ctx, ports.Price{
		StripePriceID:   price.ID,
		StripeProductID: price.Product,
		UnitAmount:      price.UnitAmount,
		Currency:        price.Currency,
		Interval:        price.Recurring.Interval,
		Active:          price.Active,
	})
}

// PriceDeleted soft-deactivates the price.
func (h *Handlers) PriceDeleted(ctx context.Context, event billingdom.Event) error {
	price, err := decodeObject[billingdom.Price](event)
	if err != nil {
		return err
	}
	if price.ID == "" {
		return fmt.Errorf("event %s: deleted price missing id", event.ID)
	}
	return h.store.DeactivatePrice(ctx, price.ID)
}

// CustomerUpserted keeps the local customer mapping fresh.
func (h *Handlers) CustomerUpserted(ctx context.Context, event billingdom.Event) error {
	customer, err := decodeObject[billingdom.Customer](event)
	if err != nil {
		return err
	}
	if customer.ID == "" {
		return fmt.Errorf("event %s: customer object missing id", event.ID)
	}
	return h.store.UpsertCustomer(ctx, ports.Customer{
		StripeCustomerID: customer.ID,
		Email:            customer.Email,
		Name:             customer.Name,
	})
}
