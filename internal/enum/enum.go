package enum

// ── Group A: Pricing switches (drive the totals calculation) ──

const (
	DiscountTypeNone       = "none"
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

const (
	FulfillmentPickup   = "pickup"
	FulfillmentDelivery = "delivery"
)

// ── Group B: Checkout labels (set by the checkout flow, not priced) ──

const (
	PaymentMethodCash   = "cash"
	PaymentMethodCard   = "card"
	PaymentMethodUPI    = "upi"
	PaymentMethodCredit = "credit"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
)

// ── Group C: Terminal roles (JWT claims) ──

const (
	RoleManager = "MANAGER"
	RoleCashier = "CASHIER"
)

// IsDiscountType reports whether s is a known discount type.
func IsDiscountType(s string) bool {
	switch s {
	case DiscountTypeNone, DiscountTypePercentage, DiscountTypeFixed:
		return true
	}
	return false
}

// IsFulfillmentType reports whether s is a known fulfillment type.
func IsFulfillmentType(s string) bool {
	switch s {
	case FulfillmentPickup, FulfillmentDelivery:
		return true
	}
	return false
}

func IsPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodUPI, PaymentMethodCredit:
		return true
	}
	return false
}

func IsPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid:
		return true
	}
	return false
}
