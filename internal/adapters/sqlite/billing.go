package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/greenquote/payhook/internal/app/ports"
	"github.com/greenquote/payhook/internal/pool"
)

const upsertCustomerQuery = `-- name: UpsertCustomer :exec
INSERT INTO customers (stripe_customer_id, email, name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (stripe_customer_id) DO UPDATE SET
    email = CASE WHEN excluded.email != '' THEN excluded.email ELSE customers.email END,
    name = CASE WHEN excluded.name != '' THEN excluded.name ELSE customers.name END,
    updated_at = excluded.updated_at`

const getCustomerByIDQuery = `-- name: GetCustomerByID :one
SELECT stripe_customer_id, email, name FROM customers WHERE stripe_customer_id = ?`

const getCustomerByEmailQuery = `-- name: GetCustomerByEmail :one
SELECT stripe_customer_id, email, name FROM customers
WHERE email = ? ORDER BY updated_at DESC LIMIT 1`

const upsertSubscriptionQuery = `-- name: UpsertSubscription :exec
INSERT INTO subscriptions (stripe_subscription_id, stripe_customer_id, status, stripe_price_id, current_period_end, cancel_at_period_end, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (stripe_subscription_id) DO UPDATE SET
    stripe_customer_id = excluded.stripe_customer_id,
    status = excluded.status,
    stripe_price_id = excluded.stripe_price_id,
    current_period_end = excluded.current_period_end,
    cancel_at_period_end = excluded.cancel_at_period_end,
    updated_at = excluded.updated_at`

const getSubscriptionQuery = `-- name: GetSubscription :one
SELECT stripe_subscription_id, stripe_customer_id, status, stripe_price_id, current_period_end, cancel_at_period_end
FROM subscriptions WHERE stripe_subscription_id = ?`

const appendPaymentEventQuery = `-- name: AppendPaymentEvent :exec
INSERT INTO payment_events (stripe_event_id, stripe_invoice_id, stripe_customer_id, stripe_subscription_id, amount, currency, status, failure_message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (stripe_event_id) DO NOTHING`

const upsertPaymentMethodQuery = `-- name: UpsertPaymentMethod :exec
INSERT INTO payment_methods (stripe_payment_method_id, stripe_customer_id, brand, last4, is_default, detached_at, created_at, updated_at)
SELECT ?, ?, ?, ?,
       CASE WHEN ? != 0 THEN 1
            WHEN EXISTS (SELECT 1 FROM payment_methods pm
                         WHERE pm.stripe_customer_id = ? AND pm.detached_at IS NULL) THEN 0
            ELSE 1 END,
       NULL, ?, ?
WHERE true
ON CONFLICT (stripe_payment_method_id) DO UPDATE SET
    stripe_customer_id = excluded.stripe_customer_id,
    brand = excluded.brand,
    last4 = excluded.last4,
    is_default = excluded.is_default,
    detached_at = NULL,
    updated_at = excluded.updated_at`

const countAttachedPaymentMethodsQuery = `-- name: CountAttachedPaymentMethods :one
SELECT COUNT(*) FROM payment_methods
WHERE stripe_customer_id = ? AND detached_at IS NULL`

const markPaymentMethodDetachedQuery = `-- name: MarkPaymentMethodDetached :exec
UPDATE payment_methods SET detached_at = ?, is_default = 0, updated_at = ?
WHERE stripe_payment_method_id = ?`

const upsertProductQuery = `-- name: UpsertProduct :exec
INSERT INTO products (stripe_product_id, name, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (stripe_product_id) DO UPDATE SET
    name = excluded.name,
    active = excluded.active,
    updated_at = excluded.updated_at`

const deactivateProductQuery = `-- name: DeactivateProduct :exec
UPDATE products SET active = 0, updated_at = ? WHERE stripe_product_id = ?`

const upsertPriceQuery = `-- name: UpsertPrice :exec
INSERT INTO prices (stripe_price_id, stripe_product_id, unit_amount, currency, billing_interval, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (stripe_price_id) DO UPDATE SET
    stripe_product_id = excluded.stripe_product_id,
    unit_amount = excluded.unit_amount,
    currency = excluded.currency,
    billing_interval = excluded.billing_interval,
    active = excluded.active,
    updated_at = excluded.updated_at`

const deactivatePriceQuery = `-- name: DeactivatePrice :exec
UPDATE prices SET active = 0, updated_at = ? WHERE stripe_price_id = ?`

// UpsertCustomer inserts or refreshes the local customer mapping. Empty email
// or name on the incoming record keeps the stored value.
func (s *Store) UpsertCustomer(ctx context.Context, customer ports.Customer) error {
	now := formatTime(timeNow())
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, upsertCustomerQuery,
			customer.StripeCustomerID,
			customer.Email,
			customer.Name,
			now, now,
		)
		return err
	})
}

func (s *Store) GetCustomerByID(ctx context.Context, stripeCustomerID string) (ports.Customer, error) {
	return s.getCustomer(ctx, getCustomerByIDQuery, stripeCustomerID)
}

func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (ports.Customer, error) {
	return s.getCustomer(ctx, getCustomerByEmailQuery, email)
}

func (s *Store) getCustomer(ctx context.Context, query, arg string) (ports.Customer, error) {
	var customer ports.Customer
	err := s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		return conn.QueryRowContext(ctx, query, arg).Scan(
			&customer.StripeCustomerID,
			&customer.Email,
			&customer.Name,
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Customer{}, ports.ErrNotFound
	}
	if err != nil {
		return ports.Customer{}, err
	}
	return customer, nil
}

func (s *Store) UpsertSubscription(ctx context.Context, subscription ports.Subscription) error {
	now := formatTime(timeNow())
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, upsertSubscriptionQuery,
			subscription.StripeSubscriptionID,
			subscription.StripeCustomerID,
			subscription.Status,
			subscription.StripePriceID,
			nullTime(subscription.CurrentPeriodEnd),
			boolToInt64(subscription.CancelAtPeriodEnd),
			now, now,
		)
		return err
	})
}

func (s *Store) GetSubscription(ctx context.Context, stripeSubscriptionID string) (ports.Subscription, error) {
	var subscription ports.Subscription
	err := s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		var (
			periodEnd sql.NullString
			cancel    int64
		)
		err := conn.QueryRowContext(ctx, getSubscriptionQuery, stripeSubscriptionID).Scan(
			&subscription.StripeSubscriptionID,
			&subscription.StripeCustomerID,
			&subscription.Status,
			&subscription.StripePriceID,
			&periodEnd,
			&cancel,
		)
		if err != nil {
			return err
		}
		if periodEnd.Valid {
			at := parseTime(periodEnd.String)
			subscription.CurrentPeriodEnd = &at
		}
		subscription.CancelAtPeriodEnd = cancel != 0
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Subscription{}, ports.ErrNotFound
	}
	if err != nil {
		return ports.Subscription{}, err
	}
	return subscription, nil
}

// AppendPaymentEvent records one payment outcome. Rows are never updated;
// a second append for the same webhook event id is a no-op.
func (s *Store) AppendPaymentEvent(ctx context.Context, event ports.PaymentEvent) error {
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, appendPaymentEventQuery,
			event.StripeEventID,
			event.StripeInvoiceID,
			event.StripeCustomerID,
			event.StripeSubscriptionID,
			event.Amount,
			event.Currency,
			event.Status,
			event.FailureMessage,
			formatTime(timeNow()),
		)
		return err
	})
}

// UpsertPaymentMethod attaches or re-attaches a payment method. Re-attaching
// clears any previous detachment. The default flag is decided inside the
// statement: an explicit IsDefault wins, otherwise the customer's first
// attached method becomes default. Racing attaches for one customer
// serialize on the write, so exactly one can observe an empty set.
func (s *Store) UpsertPaymentMethod(ctx context.Context, method ports.PaymentMethod) error {
	now := formatTime(timeNow())
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, upsertPaymentMethodQuery,
			method.StripePaymentMethodID,
			method.StripeCustomerID,
			method.Brand,
			method.Last4,
			boolToInt64(method.IsDefault),
			method.StripeCustomerID,
			now, now,
		)
		return err
	})
}

func (s *Store) CountAttachedPaymentMethods(ctx context.Context, stripeCustomerID string) (int64, error) {
	var count int64
	err := s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		return conn.QueryRowContext(ctx, countAttachedPaymentMethodsQuery, stripeCustomerID).Scan(&count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) MarkPaymentMethodDetached(ctx context.Context, stripePaymentMethodID string, at time.Time) error {
	if at.IsZero() {
		at = timeNow()
	}
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, markPaymentMethodDetachedQuery,
			formatTime(at),
			formatTime(timeNow()),
			stripePaymentMethodID,
		)
		return err
	})
}

func (s *Store) UpsertProduct(ctx context.Context, product ports.Product) error {
	now := formatTime(timeNow())
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, upsertProductQuery,
			product.StripeProductID,
			product.Name,
			boolToInt64(product.Active),
			now, now,
		)
		return err
	})
}

func (s *Store) DeactivateProduct(ctx context.Context, stripeProductID string) error {
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, deactivateProductQuery, formatTime(timeNow()), stripeProductID)
		return err
	})
}

func (s *Store) UpsertPrice(ctx context.Context, price ports.Price) error {
	now := formatTime(timeNow())
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, upsertPriceQuery,
			price.StripePriceID,
			price.StripeProductID,
			price.UnitAmount,
			price.Currency,
			price.Interval,
			boolToInt64(price.Active),
			now, now,
		)
		return err
	})
}

func (s *Store) DeactivatePrice(ctx context.Context, stripePriceID string) error {
	return s.pool.Query(ctx, func(ctx context.Context, conn *pool.Conn) error {
		_, err := conn.ExecContext(ctx, deactivatePriceQuery, formatTime(timeNow()), stripePriceID)
		return err
	})
}

var _ ports.BillingStore = (*Store)(nil)
