package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/laundrypos/api/internal/cart"
	"github.com/laundrypos/api/internal/enum"
	"github.com/laundrypos/api/internal/middleware"
	"github.com/laundrypos/api/internal/money"
	"github.com/laundrypos/api/internal/pricing"
	"github.com/shopspring/decimal"
)

// Stores resolves the cart store of a terminal. Satisfied by *cart.Registry.
type Stores interface {
	Get(terminalID uuid.UUID) *cart.Store
}

// CartHandler exposes a terminal's cart store over HTTP. The store treats
// unknown ids as no-ops; the handler checks ids first so clients get 404s.
type CartHandler struct {
	stores Stores
}

func NewCartHandler(stores Stores) *CartHandler {
	return &CartHandler{stores: stores}
}

// RegisterRoutes registers cart endpoints.
// Expected to be mounted inside a terminal-scoped subrouter: /terminals/{tid}
func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Get("/summary", h.Summary)
	r.Get("/status", h.Status)

	r.Get("/carts", h.State)
	r.Post("/carts", h.Create)
	r.With(middleware.RequireRole(enum.RoleManager)).Delete("/carts", h.ResetAll)
	r.Put("/carts/active", h.SetActive)

	r.Get("/carts/{cid}", h.Get)
	r.Patch("/carts/{cid}", h.Update)
	r.Delete("/carts/{cid}", h.Delete)
	r.Put("/carts/{cid}/name", h.Rename)
	r.Post("/carts/{cid}/clear", h.Clear)
	r.Get("/carts/{cid}/totals", h.Totals)

	r.Post("/carts/{cid}/items", h.AddItem)
	r.Patch("/carts/{cid}/items/{iid}", h.UpdateItem)
	r.Delete("/carts/{cid}/items/{iid}", h.RemoveItem)
	r.Put("/carts/{cid}/items/{iid}/quantity", h.UpdateItemQuantity)
	r.Post("/carts/{cid}/items/{iid}/addons", h.AddAddOn)
	r.Delete("/carts/{cid}/items/{iid}/addons/{aid}", h.RemoveAddOn)
}

// --- Request / Response types ---

type moneyItemBody struct {
	ID    string `json:"id" validate:"required,max=64"`
	Name  string `json:"name" validate:"required,max=120"`
	Price string `json:"price" validate:"required,numeric"`
}

type addItemRequest struct {
	Service moneyItemBody `json:"service"`
}

type addAddOnRequest = moneyItemBody

type setActiveRequest struct {
	CartID string `json:"cart_id" validate:"required"`
}

type renameCartRequest struct {
	Name string `json:"name" validate:"required,max=40"`
}

type customerBody struct {
	ID   string `json:"id" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=120"`
}

type updateCartRequest struct {
	Name                *string       `json:"name" validate:"omitnil,min=1,max=40"`
	Customer            *customerBody `json:"customer"`
	ClearCustomer       bool          `json:"clear_customer"`
	SpecialInstructions *string       `json:"special_instructions" validate:"omitnil,max=500"`
	IsExpressOrder      *bool         `json:"is_express_order"`
	FulfillmentType     *string       `json:"fulfillment_type" validate:"omitnil,oneof=pickup delivery"`
	DeliveryAddress     *string       `json:"delivery_address" validate:"omitnil,max=500"`
	DiscountType        *string       `json:"discount_type" validate:"omitnil,oneof=none percentage fixed"`
	DiscountValue       *string       `json:"discount_value" validate:"omitnil,numeric"`
	CouponCode          *string       `json:"coupon_code" validate:"omitnil,max=40"`
	ExtraCharges        *string       `json:"extra_charges" validate:"omitnil,numeric"`
	ExtraChargesLabel   *string       `json:"extra_charges_label" validate:"omitnil,max=40"`
	DeliveryCharges     *string       `json:"delivery_charges" validate:"omitnil,numeric"`
	PickupDate          *time.Time    `json:"pickup_date"`
	ClearPickupDate     bool          `json:"clear_pickup_date"`
	PaymentMethod       *string       `json:"payment_method" validate:"omitnil,oneof=cash card upi credit"`
	PaymentStatus       *string       `json:"payment_status" validate:"omitnil,oneof=pending partial paid"`
	EnableGST           *bool         `json:"enable_gst"`
	GSTNumber           *string       `json:"gst_number" validate:"omitnil,max=15"`
	AdvancePayment      *string       `json:"advance_payment" validate:"omitnil,numeric"`
}

type updateItemRequest struct {
	Quantity      *int    `json:"quantity"`
	PriceOverride *string `json:"price_override" validate:"omitnil,numeric"`
	CustomName    *string `json:"custom_name" validate:"omitnil,max=120"`
	TagNote       *string `json:"tag_note" validate:"omitnil,max=200"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type cartResponse struct {
	cart.Cart
	Totals pricing.Totals `json:"totals"`
}

type stateResponse struct {
	cart.State
	CanCreateCart bool            `json:"can_create_cart"`
	Summary       pricing.Summary `json:"summary"`
}

func newCartResponse(c cart.Cart) cartResponse {
	return cartResponse{Cart: c, Totals: pricing.Calculate(c)}
}

func newStateResponse(s *cart.Store) stateResponse {
	st := s.State()
	return stateResponse{
		State:         st,
		CanCreateCart: len(st.Carts) < st.MaxCarts,
		Summary:       pricing.Summarize(st),
	}
}

// --- Terminal-level handlers ---

func (h *CartHandler) State(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(s))
}

func (h *CartHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pricing.Summarize(s.State()))
}

type statusResponse struct {
	Restore   cart.RestoreReport `json:"restore"`
	Observers int                `json:"observers"`
	Carts     int                `json:"carts"`
	MaxCarts  int                `json:"max_carts"`
}

// Status reports how the terminal's state was loaded at startup and how many
// observers are attached.
func (h *CartHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Restore:   s.RestoreReport(),
		Observers: s.Observers(),
		Carts:     len(s.State().Carts),
		MaxCarts:  s.MaxCarts(),
	})
}

// Create opens a new cart and makes it active. 409 at capacity.
func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	c := s.CreateCart()
	if c == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("maximum of %d carts reached", s.MaxCarts()))
		return
	}
	writeJSON(w, http.StatusCreated, newCartResponse(*c))
}

func (h *CartHandler) ResetAll(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	s.ResetAll()
	writeJSON(w, http.StatusOK, newStateResponse(s))
}

func (h *CartHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, found := s.Cart(req.CartID); !found {
		writeError(w, http.StatusNotFound, "cart not found")
		return
	}
	s.SetActiveCart(req.CartID)
	writeJSON(w, http.StatusOK, newStateResponse(s))
}

// --- Cart handlers ---

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, c, ok := h.cart(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *CartHandler) Totals(w http.ResponseWriter, r *http.Request) {
	_, c, ok := h.cart(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pricing.Calculate(c))
}

func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	s, c, ok := h.cart(w, r)
	if !ok {
		return
	}
	var req updateCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.UpdateCart(c.ID, patch)
	h.respondCart(w, s, c.ID)
}

// Delete removes a cart. Deleting the last cart clears it instead, so the
// response is the whole terminal state.
func (h *CartHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, c, ok := h.cart(w, r)
	if !ok {
		return
	}
	s.DeleteCart(c.ID)
	writeJSON(w, http.StatusOK, newStateResponse(s))
}

func (h *CartHandler) Rename(w http.ResponseWriter, r *http.Request) {
	s, c, ok := h.cart(w, r)
	if !ok {
		return
	}
	var req renameCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.RenameCart(c.ID, req.Name)
	h.respondCart(w, s, c.ID)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	s, c, ok := h.cart(w, r)
	if !ok {
		return
	}
	s.ClearCart(c.ID)
	h.respondCart(w, s, c.ID)
}

// --- Item handlers ---

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, c, ok := h.cart(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := parseAmount("service.price", req.Service.Price, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.AddItem(c.ID, cart.Service{ID: req.Service.ID, Name: req.Service.Name, Price: price})

	updated, _ := s.Cart(c.ID)
	writeJSON(w, http.StatusCreated, newCartResponse(updated))
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	s, c, itemID, ok := h.item(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch := cart.ItemPatch{
		Quantity:   req.Quantity,
		CustomName: req.CustomName,
		TagNote:    req.TagNote,
	}
	if req.PriceOverride != nil {
		p, err := parseAmount("price_override", *req.PriceOverride, false)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.PriceOverride = &p
	}
	s.UpdateItem(c.ID, itemID, patch)
	h.respondCart(w, s, c.ID)
}

// UpdateItemQuantity sets a line's quantity; zero or less removes the line.
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	s, c, itemID, ok := h.item(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.UpdateItemQuantity(c.ID, itemID, *req.Quantity)
	h.respondCart(w, s, c.ID)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, c, itemID, ok := h.item(w, r)
	if !ok {
		return
	}
	s.RemoveItem(c.ID, itemID)
	h.respondCart(w, s, c.ID)
}

func (h *CartHandler) AddAddOn(w http.ResponseWriter, r *http.Request) {
	s, c, itemID, ok := h.item(w, r)
	if !ok {
		return
	}
	var req addAddOnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := parseAmount("price", req.Price, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.AddItemAddOn(c.ID, itemID, cart.AddOn{ID: req.ID, Name: req.Name, Price: price})
	h.respondCart(w, s, c.ID)
}

func (h *CartHandler) RemoveAddOn(w http.ResponseWriter, r *http.Request) {
	s, c, itemID, ok := h.item(w, r)
	if !ok {
		return
	}
	addOnID := chi.URLParam(r, "aid")
	it, _ := c.Item(itemID)
	found := false
	for _, a := range it.AddOns {
		if a.ID == addOnID {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "add-on not found")
		return
	}
	s.RemoveItemAddOn(c.ID, itemID, addOnID)
	h.respondCart(w, s, c.ID)
}

// --- Helpers ---

func (h *CartHandler) store(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	tid, err := terminalIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid terminal ID")
		return nil, false
	}
	return h.stores.Get(tid), true
}

func (h *CartHandler) cart(w http.ResponseWriter, r *http.Request) (*cart.Store, cart.Cart, bool) {
	s, ok := h.store(w, r)
	if !ok {
		return nil, cart.Cart{}, false
	}
	c, found := s.Cart(chi.URLParam(r, "cid"))
	if !found {
		writeError(w, http.StatusNotFound, "cart not found")
		return nil, cart.Cart{}, false
	}
	return s, c, true
}

func (h *CartHandler) item(w http.ResponseWriter, r *http.Request) (*cart.Store, cart.Cart, string, bool) {
	s, c, ok := h.cart(w, r)
	if !ok {
		return nil, cart.Cart{}, "", false
	}
	itemID := chi.URLParam(r, "iid")
	if _, found := c.Item(itemID); !found {
		writeError(w, http.StatusNotFound, "item not found")
		return nil, cart.Cart{}, "", false
	}
	return s, c, itemID, true
}

func (h *CartHandler) respondCart(w http.ResponseWriter, s *cart.Store, cartID string) {
	c, found := s.Cart(cartID)
	if !found {
		writeError(w, http.StatusNotFound, "cart not found")
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func parseAmount(field, s string, allowNegative bool) (decimal.Decimal, error) {
	d, err := money.Parse(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	if !allowNegative && d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

func (req updateCartRequest) toPatch() (cart.CartPatch, error) {
	p := cart.CartPatch{
		Name:                req.Name,
		ClearCustomer:       req.ClearCustomer,
		SpecialInstructions: req.SpecialInstructions,
		IsExpressOrder:      req.IsExpressOrder,
		FulfillmentType:     req.FulfillmentType,
		DeliveryAddress:     req.DeliveryAddress,
		DiscountType:        req.DiscountType,
		CouponCode:          req.CouponCode,
		ExtraChargesLabel:   req.ExtraChargesLabel,
		PickupDate:          req.PickupDate,
		ClearPickupDate:     req.ClearPickupDate,
		PaymentMethod:       req.PaymentMethod,
		PaymentStatus:       req.PaymentStatus,
		EnableGST:           req.EnableGST,
		GSTNumber:           req.GSTNumber,
	}
	if req.Customer != nil {
		p.Customer = &cart.Customer{ID: req.Customer.ID, Name: req.Customer.Name}
	}

	amounts := []struct {
		field         string
		src           *string
		dst           **decimal.Decimal
		allowNegative bool
	}{
		{"discount_value", req.DiscountValue, &p.DiscountValue, false},
		// extra charges double as manual adjustments and may be negative
		{"extra_charges", req.ExtraCharges, &p.ExtraCharges, true},
		{"delivery_charges", req.DeliveryCharges, &p.DeliveryCharges, false},
		{"advance_payment", req.AdvancePayment, &p.AdvancePayment, false},
	}
	for _, a := range amounts {
		if a.src == nil {
			continue
		}
		d, err := parseAmount(a.field, *a.src, a.allowNegative)
		if err != nil {
			return cart.CartPatch{}, err
		}
		*a.dst = &d
	}
	return p, nil
}
