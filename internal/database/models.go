package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Order struct {
	ID                  uuid.UUID          `json:"id"`
	TerminalID          uuid.UUID          `json:"terminal_id"`
	OrderNumber         string             `json:"order_number"`
	CartID              string             `json:"cart_id"`
	CustomerID          pgtype.Text        `json:"customer_id"`
	CustomerName        pgtype.Text        `json:"customer_name"`
	FulfillmentType     string             `json:"fulfillment_type"`
	DeliveryAddress     pgtype.Text        `json:"delivery_address"`
	PickupDate          pgtype.Timestamptz `json:"pickup_date"`
	IsExpress           bool               `json:"is_express"`
	SpecialInstructions pgtype.Text        `json:"special_instructions"`
	DiscountType        string             `json:"discount_type"`
	DiscountValue       pgtype.Numeric     `json:"discount_value"`
	CouponCode          pgtype.Text        `json:"coupon_code"`
	Subtotal            pgtype.Numeric     `json:"subtotal"`
	ExpressSurcharge    pgtype.Numeric     `json:"express_surcharge"`
	DiscountAmount      pgtype.Numeric     `json:"discount_amount"`
	ExtraCharges        pgtype.Numeric     `json:"extra_charges"`
	ExtraChargesLabel   string             `json:"extra_charges_label"`
	DeliveryCharges     pgtype.Numeric     `json:"delivery_charges"`
	GstAmount           pgtype.Numeric     `json:"gst_amount"`
	GstNumber           pgtype.Text        `json:"gst_number"`
	TotalAmount         pgtype.Numeric     `json:"total_amount"`
	PaymentMethod       string             `json:"payment_method"`
	PaymentStatus       string             `json:"payment_status"`
	AdvancePayment      pgtype.Numeric     `json:"advance_payment"`
	CreatedAt           time.Time          `json:"created_at"`
}

type OrderItem struct {
	ID             uuid.UUID      `json:"id"`
	OrderID        uuid.UUID      `json:"order_id"`
	ServiceID      string         `json:"service_id"`
	ServiceName    string         `json:"service_name"`
	CustomName     pgtype.Text    `json:"custom_name"`
	TagNote        pgtype.Text    `json:"tag_note"`
	GarmentBarcode string         `json:"garment_barcode"`
	Quantity       int32          `json:"quantity"`
	UnitPrice      pgtype.Numeric `json:"unit_price"`
	Subtotal       pgtype.Numeric `json:"subtotal"`
}

type OrderItemAddOn struct {
	ID          uuid.UUID      `json:"id"`
	OrderItemID uuid.UUID      `json:"order_item_id"`
	AddOnID     string         `json:"add_on_id"`
	Name        string         `json:"name"`
	Price       pgtype.Numeric `json:"price"`
}
