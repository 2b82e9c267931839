package billing

import (
	"context"
	"time"

	billingdom "github.com/greenquote/payhook/internal/billing"
)

// Priority orders handler importance for logging and admin surfaces. Lower is
// more urgent.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// HandlerFunc processes one parsed event.
type HandlerFunc func(ctx context.Context, event billingdom.Event) error

// Route binds an event kind to its handler, priority and execution deadline.
type Route struct {
	Name     string
	Handler  HandlerFunc
	Priority Priority
	Timeout  time.Duration
}

// Router resolves event kinds to routes. The table is static after
// construction, so lookups need no locking.
type Router struct {
	routes map[billingdom.EventKind]Route
}

// NewRouter wires the handler set into the routing table.
func NewRouter(h *Handlers) *Router {
	const defaultTimeout = 5 * time.Second

	routes := map[billingdom.EventKind]Route{
		billingdom.KindSubscriptionCreated:   {Name: "subscription_created", Handler: h.SubscriptionUpserted, Priority: PriorityCritical, Timeout: defaultTimeout},
		billingdom.KindSubscriptionUpdated:   {Name: "subscription_updated", Handler: h.SubscriptionUpserted, Priority: PriorityCritical, Timeout: defaultTimeout},
		billingdom.KindSubscriptionDeleted:   {Name: "subscription_deleted", Handler: h.SubscriptionDeleted, Priority: PriorityCritical, Timeout: defaultTimeout},
		billingdom.KindCheckoutCompleted:     {Name: "checkout_completed", Handler: h.CheckoutCompleted, Priority: PriorityCritical, Timeout: 10 * time.Second},
		billingdom.KindInvoicePaid:           {Name: "invoice_paid", Handler: h.InvoicePaid, Priority: PriorityHigh, Timeout: defaultTimeout},
		billingdom.KindInvoicePaymentFailed:  {Name: "invoice_payment_failed", Handler: h.InvoicePaymentFailed, Priority: PriorityHigh, Timeout: defaultTimeout},
		billingdom.KindPaymentMethodAttached: {Name: "payment_method_attached", Handler: h.PaymentMethodAttached, Priority: PriorityNormal, Timeout: defaultTimeout},
		billingdom.KindPaymentMethodDetached: {Name: "payment_method_detached", Handler: h.PaymentMethodDetached, Priority: PriorityNormal, Timeout: defaultTimeout},
		billingdom.KindProductUpserted:       {Name: "product_upserted", Handler: h.ProductUpserted, Priority: PriorityLow, Timeout: defaultTimeout},
		billingdom.KindProductDeleted:        {Name: "product_deleted", Handler: h.ProductDeleted, Priority: PriorityLow, Timeout: defaultTimeout},
		billingdom.KindPriceUpserted:         {Name: "price_upserted", Handler: h.PriceUpserted, Priority: PriorityLow, Timeout: defaultTimeout},
		billingdom.KindPriceDeleted:          {Name: "price_deleted", Handler: h.PriceDeleted, Priority: PriorityLow, Timeout: defaultTimeout},
		billingdom.KindCustomerUpserted:      {Name: "customer_upserted", Handler: h.CustomerUpserted, Priority: PriorityNormal, Timeout: defaultTimeout},
	}
	return &Router{routes: routes}
}

// Resolve returns the route for an event type, false when the type is outside
// the handled set.
func (r *Router) Resolve(eventType string) (Route, bool) {
	route, ok := r.routes[billingdom.KindOf(eventType)]
	return route, ok
}
