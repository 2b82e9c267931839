package billing

// Subscription is the provider's subscription object, trimmed to the fields
// the projections need.
type Subscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []struct {
			Price Price `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// PriceID returns the first item's price id, empty when the provider sent no
// items.
func (s Subscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// CheckoutSession is the provider's completed checkout object.
type CheckoutSession struct {
	ID             string `json:"id"`
	Customer       string `json:"customer"`
	CustomerEmail  string `json:"customer_email"`
	Subscription   string `json:"subscription"`
	CustomerDetail struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
}

// Email returns the best available customer email for the session.
func (c CheckoutSession) Email() string {
	if c.CustomerDetail.Email != "" {
		return c.CustomerDetail.Email
	}
	return c.CustomerEmail
}

// Invoice is the provider's invoice object for payment outcomes.
type Invoice struct {
	ID             string `json:"id"`
	Customer       string `json:"customer"`
	Subscription   string `json:"subscription"`
	AmountPaid     int64  `json:"amount_paid"`
	AmountDue      int64  `json:"amount_due"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	AttemptCount   int64  `json:"attempt_count"`
	LastPaymentErr struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// PaymentMethod is the provider's payment method object.
type PaymentMethod struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Type     string `json:"type"`
	Card     struct {
		Brand string `json:"brand"`
		Last4 string `json:"last4"`
	} `json:"card"`
}

// Product is the provider's catalog product object.
type Product struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Price is the provider's catalog price object.
type Price struct {
	ID         string `json:"id"`
	Product    string `json:"product"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Active     bool   `json:"active"`
	Recurring  struct {
		Interval string `json:"interval"`
	} `json:"recurring"`
}

// Customer is the provider's customer object.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
