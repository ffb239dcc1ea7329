// Package checkout turns a finished cart into a persisted order and frees
// the cart slot once the order is committed.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/laundrypos/api/internal/cart"
	"github.com/laundrypos/api/internal/database"
	"github.com/laundrypos/api/internal/enum"
	"github.com/laundrypos/api/internal/metrics"
	"github.com/laundrypos/api/internal/pricing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxOrderNumberRetries = 3

// Errors returned by the checkout service.
var (
	ErrCartNotFound          = errors.New("cart not found")
	ErrEmptyCart             = errors.New("cart has no items")
	ErrDeliveryAddress       = errors.New("delivery_address is required for delivery orders")
	ErrInvalidPaymentMethod  = errors.New("invalid payment_method")
	ErrInvalidPaymentStatus  = errors.New("invalid payment_status")
	ErrInvalidDiscount       = errors.New("invalid discount_type")
	ErrInvalidAdvancePayment = errors.New("advance_payment must be between 0 and the order total")
	ErrCheckoutInProgress    = errors.New("checkout already in progress for this cart")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to write an order.
// Satisfied by *database.Queries.
type OrderStore interface {
	GetNextOrderNumber(ctx context.Context, terminalID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateOrderItemAddOn(ctx context.Context, arg database.CreateOrderItemAddOnParams) (database.OrderItemAddOn, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// CartStore is the part of *cart.Store checkout needs.
type CartStore interface {
	Cart(id string) (cart.Cart, bool)
	MarkCartAsProcessed(id string)
}

// Request carries the payment details chosen at the counter. Empty fields
// keep what the cart already says.
type Request struct {
	TerminalID     uuid.UUID
	CartID         string
	PaymentMethod  string
	PaymentStatus  string
	AdvancePayment *decimal.Decimal
}

// Receipt is what the counter prints after a successful checkout.
type Receipt struct {
	OrderID     uuid.UUID      `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	TerminalID  uuid.UUID      `json:"terminal_id"`
	Cart        cart.Cart      `json:"cart"`
	Totals      pricing.Totals `json:"totals"`
	BalanceDue  string         `json:"balance_due"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Service struct {
	pool     TxBeginner
	newStore NewOrderStore
	metrics  *metrics.CartMetrics
	log      zerolog.Logger

	mu       sync.Mutex
	inflight map[claimKey]struct{}
}

// claimKey identifies a cart across terminals.
type claimKey struct {
	terminalID uuid.UUID
	cartID     string
}

func NewService(pool TxBeginner, newStore NewOrderStore, m *metrics.CartMetrics, log zerolog.Logger) *Service {
	return &Service{
		pool:     pool,
		newStore: newStore,
		metrics:  m,
		log:      log,
		inflight: make(map[claimKey]struct{}),
	}
}

// claim marks the cart as being checked out. It returns false when another
// checkout of the same cart has not finished yet.
func (s *Service) claim(k claimKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[k]; busy {
		return false
	}
	s.inflight[k] = struct{}{}
	return true
}

func (s *Service) release(k claimKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, k)
}

// Checkout validates the cart, writes it as an order in one transaction and
// then clears the cart. The cart is left untouched on any error.
//
// Only one checkout per cart runs at a time; a second call made before the
// first returns gets ErrCheckoutInProgress. The claim is held until the cart
// has been cleared, so a repeat submit after success sees ErrEmptyCart.
//
// Retries up to maxOrderNumberRetries times when two terminals race for the
// same order number.
func (s *Service) Checkout(ctx context.Context, store CartStore, req Request) (*Receipt, error) {
	key := claimKey{terminalID: req.TerminalID, cartID: req.CartID}
	if !s.claim(key) {
		return nil, ErrCheckoutInProgress
	}
	defer s.release(key)

	c, ok := store.Cart(req.CartID)
	if !ok {
		return nil, ErrCartNotFound
	}
	if err := applyPayment(&c, req); err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}

	totals := pricing.Calculate(c)
	if c.AdvancePayment.IsNegative() || c.AdvancePayment.GreaterThan(totals.Total) {
		return nil, ErrInvalidAdvancePayment
	}

	var (
		order   database.Order
		err     error
		lastErr error
	)
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		order, err = s.createOrderTx(ctx, req.TerminalID, c, totals)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if !isOrderNumberConflict(err) {
			break
		}
		s.log.Debug().Int("attempt", attempt+1).Str("terminal_id", req.TerminalID.String()).Msg("order number conflict, retrying")
	}
	if lastErr != nil {
		s.metrics.CheckoutFailed()
		s.log.Error().Err(lastErr).
			Str("terminal_id", req.TerminalID.String()).
			Str("cart_id", c.ID).
			Msg("checkout failed")
		return nil, lastErr
	}

	store.MarkCartAsProcessed(c.ID)
	s.metrics.CheckoutCompleted(totals.Total)
	s.log.Info().
		Str("terminal_id", req.TerminalID.String()).
		Str("order_number", order.OrderNumber).
		Str("total", totals.Total.StringFixed(2)).
		Msg("checkout completed")

	return &Receipt{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TerminalID:  req.TerminalID,
		Cart:        c,
		Totals:      totals,
		BalanceDue:  totals.Total.Sub(c.AdvancePayment).StringFixed(2),
		CreatedAt:   order.CreatedAt,
	}, nil
}

func applyPayment(c *cart.Cart, req Request) error {
	if req.PaymentMethod != "" {
		if !enum.IsPaymentMethod(req.PaymentMethod) {
			return ErrInvalidPaymentMethod
		}
		c.PaymentMethod = req.PaymentMethod
	}
	if req.PaymentStatus != "" {
		if !enum.IsPaymentStatus(req.PaymentStatus) {
			return ErrInvalidPaymentStatus
		}
		c.PaymentStatus = req.PaymentStatus
	}
	if req.AdvancePayment != nil {
		c.AdvancePayment = *req.AdvancePayment
	}
	return nil
}

func validate(c cart.Cart) error {
	if len(c.Items) == 0 {
		return ErrEmptyCart
	}
	if c.FulfillmentType == enum.FulfillmentDelivery && c.DeliveryAddress == "" {
		return ErrDeliveryAddress
	}
	if !enum.IsPaymentMethod(c.PaymentMethod) {
		return ErrInvalidPaymentMethod
	}
	if !enum.IsPaymentStatus(c.PaymentStatus) {
		return ErrInvalidPaymentStatus
	}
	if !enum.IsDiscountType(c.DiscountType) {
		return ErrInvalidDiscount
	}
	return nil
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_terminal_id_order_number_key"
	}
	return false
}

func (s *Service) createOrderTx(ctx context.Context, terminalID uuid.UUID, c cart.Cart, t pricing.Totals) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	nextNum, err := store.GetNextOrderNumber(ctx, terminalID)
	if err != nil {
		return database.Order{}, fmt.Errorf("get next order number: %w", err)
	}

	params := database.CreateOrderParams{
		TerminalID:          terminalID,
		OrderNumber:         fmt.Sprintf("LND-%04d", nextNum),
		CartID:              c.ID,
		FulfillmentType:     c.FulfillmentType,
		DeliveryAddress:     optText(c.DeliveryAddress),
		IsExpress:           c.IsExpressOrder,
		SpecialInstructions: optText(c.SpecialInstructions),
		DiscountType:        c.DiscountType,
		DiscountValue:       decimalToNumeric(c.DiscountValue),
		CouponCode:          optText(c.CouponCode),
		Subtotal:            decimalToNumeric(t.BaseSubtotal),
		ExpressSurcharge:    decimalToNumeric(t.ExpressSurcharge),
		DiscountAmount:      decimalToNumeric(t.DiscountAmount),
		ExtraCharges:        decimalToNumeric(c.ExtraCharges),
		ExtraChargesLabel:   c.ExtraChargesLabel,
		DeliveryCharges:     decimalToNumeric(t.DeliveryAmount),
		GstAmount:           decimalToNumeric(t.GSTAmount),
		GstNumber:           optText(c.GSTNumber),
		TotalAmount:         decimalToNumeric(t.Total),
		PaymentMethod:       c.PaymentMethod,
		PaymentStatus:       c.PaymentStatus,
		AdvancePayment:      decimalToNumeric(c.AdvancePayment),
	}
	if c.Customer != nil {
		params.CustomerID = optText(c.Customer.ID)
		params.CustomerName = optText(c.Customer.Name)
	}
	if c.PickupDate != nil {
		params.PickupDate = pgtype.Timestamptz{Time: *c.PickupDate, Valid: true}
	}

	order, err := store.CreateOrder(ctx, params)
	if err != nil {
		return database.Order{}, fmt.Errorf("create order: %w", err)
	}

	for _, it := range c.Items {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:        order.ID,
			ServiceID:      it.Service.ID,
			ServiceName:    it.Service.Name,
			CustomName:     optText(it.CustomName),
			TagNote:        optText(it.TagNote),
			GarmentBarcode: it.GarmentBarcode,
			Quantity:       int32(it.Quantity),
			UnitPrice:      decimalToNumeric(it.PriceOverride),
			Subtotal:       decimalToNumeric(it.Subtotal),
		})
		if err != nil {
			return database.Order{}, fmt.Errorf("create order item: %w", err)
		}

		for _, a := range it.AddOns {
			if _, err := store.CreateOrderItemAddOn(ctx, database.CreateOrderItemAddOnParams{
				OrderItemID: item.ID,
				AddOnID:     a.ID,
				Name:        a.Name,
				Price:       decimalToNumeric(a.Price),
			}); err != nil {
				return database.Order{}, fmt.Errorf("create order item add-on: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return order, nil
}

// --- Helpers ---

func optText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
