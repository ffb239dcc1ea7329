package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getNextOrderNumber = `
SELECT (COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS INTEGER)), 0) + 1)::int4
FROM orders
WHERE terminal_id = $1
`

// GetNextOrderNumber returns the next sequence value for a terminal's
// LND-NNNN order numbers. Concurrent callers can read the same value; the
// unique constraint on (terminal_id, order_number) catches that.
func (q *Queries) GetNextOrderNumber(ctx context.Context, terminalID uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, getNextOrderNumber, terminalID)
	var next int32
	err := row.Scan(&next)
	return next, err
}

const createOrder = `
INSERT INTO orders (
    terminal_id, order_number, cart_id, customer_id, customer_name,
    fulfillment_type, delivery_address, pickup_date, is_express, special_instructions,
    discount_type, discount_value, coupon_code, subtotal, express_surcharge,
    discount_amount, extra_charges, extra_charges_label, delivery_charges, gst_amount,
    gst_number, total_amount, payment_method, payment_status, advance_payment
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
    $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
)
RETURNING id, terminal_id, order_number, cart_id, customer_id, customer_name,
    fulfillment_type, delivery_address, pickup_date, is_express, special_instructions,
    discount_type, discount_value, coupon_code, subtotal, express_surcharge,
    discount_amount, extra_charges, extra_charges_label, delivery_charges, gst_amount,
    gst_number, total_amount, payment_method, payment_status, advance_payment, created_at
`

type CreateOrderParams struct {
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
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.TerminalID,
		arg.OrderNumber,
		arg.CartID,
		arg.CustomerID,
		arg.CustomerName,
		arg.FulfillmentType,
		arg.DeliveryAddress,
		arg.PickupDate,
		arg.IsExpress,
		arg.SpecialInstructions,
		arg.DiscountType,
		arg.DiscountValue,
		arg.CouponCode,
		arg.Subtotal,
		arg.ExpressSurcharge,
		arg.DiscountAmount,
		arg.ExtraCharges,
		arg.ExtraChargesLabel,
		arg.DeliveryCharges,
		arg.GstAmount,
		arg.GstNumber,
		arg.TotalAmount,
		arg.PaymentMethod,
		arg.PaymentStatus,
		arg.AdvancePayment,
	)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TerminalID,
		&i.OrderNumber,
		&i.CartID,
		&i.CustomerID,
		&i.CustomerName,
		&i.FulfillmentType,
		&i.DeliveryAddress,
		&i.PickupDate,
		&i.IsExpress,
		&i.SpecialInstructions,
		&i.DiscountType,
		&i.DiscountValue,
		&i.CouponCode,
		&i.Subtotal,
		&i.ExpressSurcharge,
		&i.DiscountAmount,
		&i.ExtraCharges,
		&i.ExtraChargesLabel,
		&i.DeliveryCharges,
		&i.GstAmount,
		&i.GstNumber,
		&i.TotalAmount,
		&i.PaymentMethod,
		&i.PaymentStatus,
		&i.AdvancePayment,
		&i.CreatedAt,
	)
	return i, err
}

const createOrderItem = `
INSERT INTO order_items (
    order_id, service_id, service_name, custom_name, tag_note,
    garment_barcode, quantity, unit_price, subtotal
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, order_id, service_id, service_name, custom_name, tag_note,
    garment_barcode, quantity, unit_price, subtotal
`

type CreateOrderItemParams struct {
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

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ServiceID,
		arg.ServiceName,
		arg.CustomName,
		arg.TagNote,
		arg.GarmentBarcode,
		arg.Quantity,
		arg.UnitPrice,
		arg.Subtotal,
	)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ServiceID,
		&i.ServiceName,
		&i.CustomName,
		&i.TagNote,
		&i.GarmentBarcode,
		&i.Quantity,
		&i.UnitPrice,
		&i.Subtotal,
	)
	return i, err
}

const createOrderItemAddOn = `
INSERT INTO order_item_add_ons (order_item_id, add_on_id, name, price)
VALUES ($1, $2, $3, $4)
RETURNING id, order_item_id, add_on_id, name, price
`

type CreateOrderItemAddOnParams struct {
	OrderItemID uuid.UUID      `json:"order_item_id"`
	AddOnID     string         `json:"add_on_id"`
	Name        string         `json:"name"`
	Price       pgtype.Numeric `json:"price"`
}

func (q *Queries) CreateOrderItemAddOn(ctx context.Context, arg CreateOrderItemAddOnParams) (OrderItemAddOn, error) {
	row := q.db.QueryRow(ctx, createOrderItemAddOn,
		arg.OrderItemID,
		arg.AddOnID,
		arg.Name,
		arg.Price,
	)
	var i OrderItemAddOn
	err := row.Scan(
		&i.ID,
		&i.OrderItemID,
		&i.AddOnID,
		&i.Name,
		&i.Price,
	)
	return i, err
}
