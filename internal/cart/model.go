package cart

import (
	"time"

	"github.com/laundrypos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// DefaultMaxCarts is the number of concurrent carts a terminal may hold.
const DefaultMaxCarts = 5

// DefaultExtraChargesLabel is shown next to a cart's extra charges.
const DefaultExtraChargesLabel = "Extra Charges"

// Palette is the cyclic set of UI colours assigned to new carts.
var Palette = []string{"#3B82F6", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6"}

// Service is a catalog entry the cart was given by the catalog lookup.
type Service struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Customer is a customer directory reference.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AddOn is a flat-priced treatment attached to a single line item.
type AddOn struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// CartItem is one line in a cart. Subtotal is always Quantity * PriceOverride.
type CartItem struct {
	ID             string          `json:"id"`
	Service        Service         `json:"service"`
	Quantity       int             `json:"quantity"`
	PriceOverride  decimal.Decimal `json:"price_override"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	CustomName     string          `json:"custom_name"`
	TagNote        string          `json:"tag_note"`
	GarmentBarcode string          `json:"garment_barcode"`
	AddOns         []AddOn         `json:"add_ons"`
}

func (it *CartItem) recompute() {
	it.Subtotal = it.PriceOverride.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

func (it *CartItem) hasAddOn(id string) bool {
	for _, a := range it.AddOns {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Cart is one in-progress sale.
type Cart struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Color               string          `json:"color"`
	Customer            *Customer       `json:"customer"`
	Items               []CartItem      `json:"items"`
	SpecialInstructions string          `json:"special_instructions"`
	IsExpressOrder      bool            `json:"is_express_order"`
	FulfillmentType     string          `json:"fulfillment_type"`
	DeliveryAddress     string          `json:"delivery_address,omitempty"`
	DiscountType        string          `json:"discount_type"`
	DiscountValue       decimal.Decimal `json:"discount_value"`
	CouponCode          string          `json:"coupon_code"`
	ExtraCharges        decimal.Decimal `json:"extra_charges"`
	ExtraChargesLabel   string          `json:"extra_charges_label"`
	DeliveryCharges     decimal.Decimal `json:"delivery_charges"`
	PickupDate          *time.Time      `json:"pickup_date"`
	PaymentMethod       string          `json:"payment_method"`
	PaymentStatus       string          `json:"payment_status"`
	EnableGST           bool            `json:"enable_gst"`
	GSTNumber           string          `json:"gst_number"`
	AdvancePayment      decimal.Decimal `json:"advance_payment"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Item returns the line with the given id.
func (c Cart) Item(id string) (CartItem, bool) {
	if i := c.itemIndex(id); i >= 0 {
		return c.Items[i].clone(), true
	}
	return CartItem{}, false
}

func (c Cart) itemIndex(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c Cart) hasBarcode(tag string) bool {
	for i := range c.Items {
		if c.Items[i].GarmentBarcode == tag {
			return true
		}
	}
	return false
}

// State is the whole store: what observers receive and what gets persisted.
type State struct {
	Carts        []Cart `json:"carts"`
	ActiveCartID string `json:"active_cart_id"`
	MaxCarts     int    `json:"max_carts"`
}

// ActiveCart returns the cart ActiveCartID points at.
func (s State) ActiveCart() (Cart, bool) {
	for _, c := range s.Carts {
		if c.ID == s.ActiveCartID {
			return c, true
		}
	}
	return Cart{}, false
}

// CartPatch is a shallow partial update. Nil fields are left untouched;
// the Clear flags set nullable fields back to null.
type CartPatch struct {
	Name                *string
	Customer            *Customer
	ClearCustomer       bool
	SpecialInstructions *string
	IsExpressOrder      *bool
	FulfillmentType     *string
	DeliveryAddress     *string
	DiscountType        *string
	DiscountValue       *decimal.Decimal
	CouponCode          *string
	ExtraCharges        *decimal.Decimal
	ExtraChargesLabel   *string
	DeliveryCharges     *decimal.Decimal
	PickupDate          *time.Time
	ClearPickupDate     bool
	PaymentMethod       *string
	PaymentStatus       *string
	EnableGST           *bool
	GSTNumber           *string
	AdvancePayment      *decimal.Decimal
}

func (p CartPatch) apply(c *Cart) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.ClearCustomer {
		c.Customer = nil
	} else if p.Customer != nil {
		cust := *p.Customer
		c.Customer = &cust
	}
	if p.SpecialInstructions != nil {
		c.SpecialInstructions = *p.SpecialInstructions
	}
	if p.IsExpressOrder != nil {
		c.IsExpressOrder = *p.IsExpressOrder
	}
	if p.FulfillmentType != nil {
		c.FulfillmentType = *p.FulfillmentType
	}
	if p.DeliveryAddress != nil {
		c.DeliveryAddress = *p.DeliveryAddress
	}
	if p.DiscountType != nil {
		c.DiscountType = *p.DiscountType
	}
	if p.DiscountValue != nil {
		c.DiscountValue = *p.DiscountValue
	}
	if p.CouponCode != nil {
		c.CouponCode = *p.CouponCode
	}
	if p.ExtraCharges != nil {
		c.ExtraCharges = *p.ExtraCharges
	}
	if p.ExtraChargesLabel != nil {
		c.ExtraChargesLabel = *p.ExtraChargesLabel
	}
	if p.DeliveryCharges != nil {
		c.DeliveryCharges = *p.DeliveryCharges
	}
	if p.ClearPickupDate {
		c.PickupDate = nil
	} else if p.PickupDate != nil {
		d := *p.PickupDate
		c.PickupDate = &d
	}
	if p.PaymentMethod != nil {
		c.PaymentMethod = *p.PaymentMethod
	}
	if p.PaymentStatus != nil {
		c.PaymentStatus = *p.PaymentStatus
	}
	if p.EnableGST != nil {
		c.EnableGST = *p.EnableGST
	}
	if p.GSTNumber != nil {
		c.GSTNumber = *p.GSTNumber
	}
	if p.AdvancePayment != nil {
		c.AdvancePayment = *p.AdvancePayment
	}
}

// ItemPatch is a shallow partial update of a line item.
type ItemPatch struct {
	Quantity      *int
	PriceOverride *decimal.Decimal
	CustomName    *string
	TagNote       *string
}

// newDefaultCart builds the empty cart used for new slots and resets.
// position is the cart's index in the store and picks its name and colour.
func newDefaultCart(id string, position int, now time.Time) Cart {
	return Cart{
		ID:                id,
		Name:              defaultName(position),
		Color:             Palette[position%len(Palette)],
		Items:             []CartItem{},
		FulfillmentType:   enum.FulfillmentPickup,
		DiscountType:      enum.DiscountTypeNone,
		DiscountValue:     decimal.Zero,
		ExtraCharges:      decimal.Zero,
		ExtraChargesLabel: DefaultExtraChargesLabel,
		DeliveryCharges:   decimal.Zero,
		PaymentMethod:     enum.PaymentMethodCash,
		PaymentStatus:     enum.PaymentStatusPending,
		AdvancePayment:    decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (it CartItem) clone() CartItem {
	out := it
	out.AddOns = append([]AddOn{}, it.AddOns...)
	return out
}

func (c Cart) clone() Cart {
	out := c
	if c.Customer != nil {
		cust := *c.Customer
		out.Customer = &cust
	}
	if c.PickupDate != nil {
		d := *c.PickupDate
		out.PickupDate = &d
	}
	out.Items = make([]CartItem, len(c.Items))
	for i, it := range c.Items {
		out.Items[i] = it.clone()
	}
	return out
}
