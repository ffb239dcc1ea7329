package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/laundrypos/api/internal/enum"
	"github.com/laundrypos/api/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

// testClock is a manually advanced clock.
type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *testClock {
	return &testClock{t: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)}
}

// seqIDs returns deterministic ids: id-0001, id-0002, ...
func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%02d-%04d", n, n)
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *testClock) {
	t.Helper()
	clock := newClock()
	base := []Option{WithClock(clock.Now), WithIDGenerator(seqIDs())}
	return New(append(base, opts...)...), clock
}

func svc(id, price string) Service {
	return Service{ID: id, Name: "Service " + id, Price: decimal.RequireFromString(price)}
}

func assertSubtotals(t *testing.T, c Cart) {
	t.Helper()
	for _, it := range c.Items {
		want := it.PriceOverride.Mul(decimal.NewFromInt(int64(it.Quantity)))
		assert.Truef(t, want.Equal(it.Subtotal), "item %s subtotal %s, want %s", it.ID, it.Subtotal, want)
	}
}

// =====================
// Cart lifecycle
// =====================

func TestNew_StartsWithOneDefaultCart(t *testing.T) {
	s, clock := newTestStore(t)

	st := s.State()
	require.Len(t, st.Carts, 1)
	assert.Equal(t, DefaultMaxCarts, st.MaxCarts)
	assert.Equal(t, st.Carts[0].ID, st.ActiveCartID)

	c := st.Carts[0]
	assert.Equal(t, "Cart 1", c.Name)
	assert.Equal(t, Palette[0], c.Color)
	assert.Empty(t, c.Items)
	assert.Nil(t, c.Customer)
	assert.Equal(t, enum.DiscountTypeNone, c.DiscountType)
	assert.Equal(t, enum.FulfillmentPickup, c.FulfillmentType)
	assert.Equal(t, enum.PaymentMethodCash, c.PaymentMethod)
	assert.Equal(t, enum.PaymentStatusPending, c.PaymentStatus)
	assert.Equal(t, DefaultExtraChargesLabel, c.ExtraChargesLabel)
	assert.Equal(t, clock.Now(), c.CreatedAt)
	assert.Equal(t, RestoreNone, s.RestoreReport().Reason)
}

func TestCreateCart_AppendsAndActivates(t *testing.T) {
	s, _ := newTestStore(t)

	c := s.CreateCart()
	require.NotNil(t, c)
	assert.Equal(t, "Cart 2", c.Name)
	assert.Equal(t, Palette[1], c.Color)

	st := s.State()
	assert.Len(t, st.Carts, 2)
	assert.Equal(t, c.ID, st.ActiveCartID)
}

func TestCreateCart_AtCapacityReturnsNil(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < DefaultMaxCarts-1; i++ {
		require.NotNil(t, s.CreateCart())
	}
	require.Len(t, s.State().Carts, 5)
	assert.False(t, s.CanCreateCart())

	var notified int
	unsub := s.Subscribe(func(State) { notified++ })
	defer unsub()

	assert.Nil(t, s.CreateCart())
	assert.Len(t, s.State().Carts, 5)
	assert.Equal(t, 1, notified, "a refused create must not notify")
}

func TestCreateCart_ColorsCycle(t *testing.T) {
	s, _ := newTestStore(t, WithMaxCarts(7))
	for i := 0; i < 6; i++ {
		s.CreateCart()
	}
	st := s.State()
	assert.Equal(t, Palette[0], st.Carts[5].Color)
	assert.Equal(t, Palette[1], st.Carts[6].Color)
}

func TestDeleteCart_ActiveFallsToPrevious(t *testing.T) {
	s, _ := newTestStore(t)
	first := s.ActiveCart().ID
	second := s.CreateCart().ID
	third := s.CreateCart().ID

	s.DeleteCart(third)
	st := s.State()
	assert.Len(t, st.Carts, 2)
	assert.Equal(t, second, st.ActiveCartID)

	s.SetActiveCart(first)
	s.DeleteCart(first)
	st = s.State()
	assert.Len(t, st.Carts, 1)
	assert.Equal(t, second, st.ActiveCartID, "deleting index 0 activates the new index 0")
}

func TestDeleteCart_InactiveKeepsActive(t *testing.T) {
	s, _ := newTestStore(t)
	first := s.ActiveCart().ID
	second := s.CreateCart().ID

	s.DeleteCart(first)
	assert.Equal(t, second, s.State().ActiveCartID)
}

func TestDeleteCart_LastCartIsCleared(t *testing.T) {
	s, _ := newTestStore(t)
	c := s.ActiveCart()
	s.RenameCart(c.ID, "Walk-in")
	s.AddItem(c.ID, svc("shirt", "40"))

	s.DeleteCart(c.ID)

	st := s.State()
	require.Len(t, st.Carts, 1)
	assert.Equal(t, c.ID, st.Carts[0].ID)
	assert.Equal(t, "Walk-in", st.Carts[0].Name)
	assert.Empty(t, st.Carts[0].Items)
}

func TestDeleteCart_UnknownIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	s.CreateCart()
	before := s.State()

	s.DeleteCart("nope")
	assert.Equal(t, before, s.State())
}

func TestCartCountStaysWithinBounds(t *testing.T) {
	s, _ := newTestStore(t)
	ops := []string{"c", "c", "d", "c", "c", "c", "c", "c", "d", "d", "d", "d", "d", "d", "c"}
	for _, op := range ops {
		if op == "c" {
			s.CreateCart()
		} else {
			s.DeleteCart(s.ActiveCart().ID)
		}
		st := s.State()
		assert.GreaterOrEqual(t, len(st.Carts), 1)
		assert.LessOrEqual(t, len(st.Carts), st.MaxCarts)
		_, ok := st.ActiveCart()
		assert.True(t, ok, "active cart id must resolve")
	}
}

func TestClearCart_PreservesIdentity(t *testing.T) {
	s, clock := newTestStore(t)
	s.CreateCart()
	c := s.ActiveCart()
	express := true
	s.UpdateCart(c.ID, CartPatch{IsExpressOrder: &express, Customer: &Customer{ID: "cu1", Name: "Asha"}})
	s.AddItem(c.ID, svc("shirt", "40"))

	clock.Advance(time.Minute)
	s.ClearCart(c.ID)

	got, ok := s.Cart(c.ID)
	require.True(t, ok)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.Color, got.Color)
	assert.Empty(t, got.Items)
	assert.Nil(t, got.Customer)
	assert.False(t, got.IsExpressOrder)
	assert.Equal(t, clock.Now(), got.UpdatedAt)
}

func TestMarkCartAsProcessed_ClearsCart(t *testing.T) {
	s, _ := newTestStore(t)
	c := s.ActiveCart()
	s.AddItem(c.ID, svc("shirt", "40"))

	s.MarkCartAsProcessed(c.ID)

	got, _ := s.Cart(c.ID)
	assert.Empty(t, got.Items)
	assert.Len(t, s.State().Carts, 1)
}

func TestRenameAndUpdateCart_BumpUpdatedAt(t *testing.T) {
	s, clock := newTestStore(t)
	id := s.ActiveCart().ID

	clock.Advance(time.Minute)
	s.RenameCart(id, "Mrs. Rao")
	c, _ := s.Cart(id)
	assert.Equal(t, "Mrs. Rao", c.Name)
	assert.Equal(t, clock.Now(), c.UpdatedAt)

	clock.Advance(time.Minute)
	pickup := time.Date(2026, 10, 20, 17, 0, 0, 0, time.UTC)
	ftype := enum.FulfillmentDelivery
	addr := "12 MG Road"
	charges := decimal.NewFromInt(50)
	s.UpdateCart(id, CartPatch{
		FulfillmentType: &ftype,
		DeliveryAddress: &addr,
		DeliveryCharges: &charges,
		PickupDate:      &pickup,
		Customer:        &Customer{ID: "cu1", Name: "Asha"},
	})

	c, _ = s.Cart(id)
	assert.Equal(t, "Mrs. Rao", c.Name, "untouched fields survive")
	assert.Equal(t, enum.FulfillmentDelivery, c.FulfillmentType)
	assert.Equal(t, "12 MG Road", c.DeliveryAddress)
	assert.True(t, charges.Equal(c.DeliveryCharges))
	require.NotNil(t, c.PickupDate)
	assert.True(t, pickup.Equal(*c.PickupDate))
	require.NotNil(t, c.Customer)
	assert.Equal(t, "Asha", c.Customer.Name)
	assert.Equal(t, clock.Now(), c.UpdatedAt)

	s.UpdateCart(id, CartPatch{ClearCustomer: true, ClearPickupDate: true})
	c, _ = s.Cart(id)
	assert.Nil(t, c.Customer)
	assert.Nil(t, c.PickupDate)
}

func TestSetActiveCart(t *testing.T) {
	s, _ := newTestStore(t)
	first := s.ActiveCart().ID
	s.CreateCart()

	s.SetActiveCart(first)
	assert.Equal(t, first, s.State().ActiveCartID)

	s.SetActiveCart("unknown")
	assert.Equal(t, first, s.State().ActiveCartID)
}

func TestResetAll(t *testing.T) {
	s, _ := newTestStore(t)
	s.CreateCart()
	s.CreateCart()
	s.AddItem(s.ActiveCart().ID, svc("shirt", "40"))

	s.ResetAll()

	st := s.State()
	require.Len(t, st.Carts, 1)
	assert.Equal(t, "Cart 1", st.Carts[0].Name)
	assert.Empty(t, st.Carts[0].Items)
	assert.Equal(t, st.Carts[0].ID, st.ActiveCartID)
}

func TestStateIsACopy(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.ActiveCart().ID
	s.AddItem(id, svc("shirt", "40"))

	st := s.State()
	st.Carts[0].Items[0].Quantity = 99
	st.Carts[0].Name = "mutated"

	c, _ := s.Cart(id)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.NotEqual(t, "mutated", c.Name)
}

// =====================
// Observers
// =====================

func TestSubscribe_ImmediateAndOnMutation(t *testing.T) {
	s, _ := newTestStore(t)
	var got []State
	unsub := s.Subscribe(func(st State) { got = append(got, st) })

	require.Len(t, got, 1, "listener runs once on subscribe")
	assert.Len(t, got[0].Carts, 1)

	s.CreateCart()
	require.Len(t, got, 2)
	assert.Len(t, got[1].Carts, 2)

	unsub()
	unsub()
	s.CreateCart()
	assert.Len(t, got, 2, "no calls after unsubscribe")
}

func TestObserversCountsSubscriptions(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Zero(t, s.Observers())

	first := s.Subscribe(func(State) {})
	second := s.Subscribe(func(State) {})
	assert.Equal(t, 2, s.Observers())

	first()
	first()
	assert.Equal(t, 1, s.Observers())
	second()
	assert.Zero(t, s.Observers())
}

func TestSubscribe_NoNotifyOnNoop(t *testing.T) {
	s, _ := newTestStore(t)
	calls := 0
	s.Subscribe(func(State) { calls++ })

	s.RenameCart("missing", "x")
	s.AddItem("missing", svc("shirt", "40"))
	s.SetActiveCart(s.ActiveCart().ID)
	assert.Equal(t, 1, calls)
}

func TestCommit_PersistsBeforeNotify(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, WithStorage(kv, "carts:t1"))

	var seen []int
	s.Subscribe(func(st State) {
		raw, err := kv.Get(context.Background(), "carts:t1")
		if err != nil {
			seen = append(seen, -1)
			return
		}
		persisted, _, _, err := decodeState(raw, SchemaVersion, migrations)
		if err != nil {
			seen = append(seen, -1)
			return
		}
		assert.Equal(t, len(st.Carts), len(persisted.Carts))
		seen = append(seen, len(persisted.Carts))
	})
	s.CreateCart()
	s.CreateCart()

	// first call is the subscribe snapshot, before anything was written
	assert.Equal(t, []int{-1, 2, 3}, seen)
}

// =====================
// Items & add-ons
// =====================

func TestAddItem_NewLine(t *testing.T) {
	s, clock := newTestStore(t)
	id := s.ActiveCart().ID

	s.AddItem(id, svc("shirt", "40"))

	c, _ := s.Cart(id)
	require.Len(t, c.Items, 1)
	it := c.Items[0]
	assert.Equal(t, 1, it.Quantity)
	assert.True(t, decimal.NewFromInt(40).Equal(it.PriceOverride))
	assert.True(t, decimal.NewFromInt(40).Equal(it.Subtotal))
	assert.Equal(t, GarmentTag(id, clock.Now(), 1), it.GarmentBarcode)
	assert.NotNil(t, it.AddOns)
}

func TestAddItem_MergesDuplicateService(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.ActiveCart().ID

	s.AddItem(id, svc("shirt", "40"))
	c, _ := s.Cart(id)
	tag := c.Items[0].GarmentBarcode

	price := decimal.NewFromInt(35)
	s.UpdateItem(id, c.Items[0].ID, ItemPatch{PriceOverride: &price})
	s.AddItem(id, svc("shirt", "40"))

	c, _ = s.Cart(id)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(70).Equal(c.Items[0].Subtotal), "merge keeps the overridden price")
	assert.Equal(t, tag, c.Items[0].GarmentBarcode, "barcode never changes")
}

func TestUpdateItem_RecomputesSubtotal(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.ActiveCart().ID
	s.AddItem(id, svc("saree", "150"))
	itemID := s.ActiveCart().Items[0].ID

	qty := 3
	s.UpdateItem(id, itemID, ItemPatch{Quantity: &qty})
	c, _ := s.Cart(id)
	assertSubtotals(t, c)
	assert.True(t, decimal.NewFromInt(450).Equal(c.Items[0].Subtotal))

	price := decimal.RequireFromString("120.50")
	name := "Silk saree"
	note := "stain on pallu"
	s.UpdateItem(id, itemID, ItemPatch{PriceOverride: &price, CustomName: &name, TagNote: &note})
	c, _ = s.Cart(id)
	assertSubtotals(t, c)
	assert.True(t, decimal.RequireFromString("361.5").Equal(c.Items[0].Subtotal))
	assert.Equal(t, "Silk saree", c.Items[0].CustomName)
	assert.Equal(t, "stain on pallu", c.Items[0].TagNote)
}

func TestUpdateItemQuantity_ZeroRemoves(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.ActiveCart().ID
	s.AddItem(id, svc("shirt", "40"))
	s.AddItem(id, svc("saree", "150"))
	c, _ := s.Cart(id)

	s.UpdateItemQuantity(id, c.Items[0].ID, 4)
	got, _ := s.Cart(id)
	assert.Equal(t, 4, got.Items[0].Quantity)
	assertSubtotals(t, got)

	s.UpdateItemQuantity(id, c.Items[0].ID, 0)
	got, _ = s.Cart(id)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "saree", got.Items[0].Service.ID)

	neg := -2
	s.UpdateItem(id, got.Items[0].ID, ItemPatch{Quantity: &neg})
	got, _ = s.Cart(id)
	assert.Empty(t, got.Items)
}

func TestRemoveItem(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.ActiveCart().ID
	s.AddItem(id, svc("shirt", "40"))
	itemID := s.ActiveCart().Items[0].ID

	s.RemoveItem(id, "missing")
	assert.Len(t, s.ActiveCart().Items, 1)

	s.RemoveItem(id, itemID)
	assert.Empty(t, s.ActiveCart().Items)
}

func TestAddOns_SetSemantics(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.ActiveCart().ID
	s.AddItem(id, svc("shirt", "40"))
	itemID := s.ActiveCart().Items[0].ID
	starch := AddOn{ID: "starch", Name: "Starch", Price: decimal.NewFromInt(10)}

	calls := 0
	s.Subscribe(func(State) { calls++ })

	s.AddItemAddOn(id, itemID, starch)
	s.AddItemAddOn(id, itemID, starch)
	it, _ := s.ActiveCart().Item(itemID)
	assert.Len(t, it.AddOns, 1)
	assert.Equal(t, 2, calls, "duplicate add-on is a no-op")

	s.RemoveItemAddOn(id, itemID, "missing")
	s.RemoveItemAddOn(id, itemID, "starch")
	it, _ = s.ActiveCart().Item(itemID)
	assert.Empty(t, it.AddOns)
	assert.Equal(t, 3, calls)
}

func TestCartItem_LookupOnSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.ActiveCart().ID
	s.AddItem(id, svc("shirt", "40"))
	itemID := s.ActiveCart().Items[0].ID

	it, ok := s.ActiveCart().Item(itemID)
	require.True(t, ok)
	assert.Equal(t, "shirt", it.Service.ID)

	_, ok = s.State().Carts[0].Item("missing")
	assert.False(t, ok)
}

func TestGarmentTag_Format(t *testing.T) {
	at := time.UnixMilli(1760000000000) // base36 "mgj6k3cw"
	tag := GarmentTag("ab12cd34-ffff", at, 7)
	assert.Equal(t, "TAG-AB12-K3CW-007", tag)

	assert.Equal(t, "TAG-XY-K3CW-012", GarmentTag("xy", at, 12))
}

func TestGarmentTag_UniqueWithinCartAtSameMillisecond(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.ActiveCart().ID

	s.AddItem(id, svc("a", "10"))
	s.AddItem(id, svc("b", "10"))
	first := s.ActiveCart().Items[0].ID
	s.RemoveItem(id, first)
	// len(items)+1 == 2 again, which collides with b's tag
	s.AddItem(id, svc("c", "10"))

	seen := map[string]bool{}
	for _, it := range s.ActiveCart().Items {
		assert.False(t, seen[it.GarmentBarcode], "duplicate tag %s", it.GarmentBarcode)
		seen[it.GarmentBarcode] = true
	}
	assert.Len(t, seen, 2)
}

// =====================
// Persistence
// =====================

func TestPersistence_RoundTrip(t *testing.T) {
	kv := storage.NewMemory()
	s, clock := newTestStore(t, WithStorage(kv, "carts:t1"))
	id := s.ActiveCart().ID
	s.AddItem(id, svc("shirt", "40.50"))
	s.AddItemAddOn(id, s.ActiveCart().Items[0].ID, AddOn{ID: "starch", Name: "Starch", Price: decimal.NewFromInt(10)})
	pickup := clock.Now().Add(48 * time.Hour)
	gst := true
	s.UpdateCart(id, CartPatch{PickupDate: &pickup, EnableGST: &gst, Customer: &Customer{ID: "cu1", Name: "Asha"}})
	second := s.CreateCart()
	require.NotNil(t, second)

	restored := New(WithStorage(kv, "carts:t1"))

	assert.Equal(t, RestoreRestored, restored.RestoreReport().Reason)
	assert.Equal(t, SchemaVersion, restored.RestoreReport().Version)

	want, err := json.Marshal(s.State())
	require.NoError(t, err)
	got, err := json.Marshal(restored.State())
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	c, ok := restored.Cart(id)
	require.True(t, ok)
	require.NotNil(t, c.PickupDate)
	assert.True(t, pickup.Equal(*c.PickupDate))
	assert.True(t, s.ActiveCart().CreatedAt.Equal(restored.ActiveCart().CreatedAt))
}

func TestPersistence_DocumentIsVersioned(t *testing.T) {
	kv := storage.NewMemory()
	s, _ := newTestStore(t, WithStorage(kv, "carts:t1"))
	s.CreateCart()

	raw, err := kv.Get(context.Background(), "carts:t1")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.EqualValues(t, SchemaVersion, doc["version"])
	assert.Contains(t, doc, "carts")
	assert.Contains(t, doc, "active_cart_id")
	assert.EqualValues(t, DefaultMaxCarts, doc["max_carts"])
}

func TestRestore_Fallbacks(t *testing.T) {
	tests := []struct {
		name   string
		blob   string
		reason RestoreReason
	}{
		{name: "corrupt json", blob: `{"carts": [`, reason: RestoreCorrupt},
		{name: "unversioned", blob: `{"carts":[{"id":"a"}],"active_cart_id":"a"}`, reason: RestoreUnversioned},
		{name: "future version", blob: `{"version":99,"carts":[{"id":"a"}]}`, reason: RestoreUnsupportedVersion},
		{name: "no carts", blob: `{"version":1,"carts":[]}`, reason: RestoreEmpty},
		{name: "wrong shape", blob: `{"version":1,"carts":"nope"}`, reason: RestoreCorrupt},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kv := storage.NewMemory()
			require.NoError(t, kv.Set(context.Background(), "k", []byte(tc.blob)))

			s := New(WithStorage(kv, "k"))

			report := s.RestoreReport()
			assert.Equal(t, tc.reason, report.Reason)
			assert.True(t, report.FellBack())
			assert.NotEmpty(t, report.Error)
			st := s.State()
			require.Len(t, st.Carts, 1)
			assert.Equal(t, "Cart 1", st.Carts[0].Name)
		})
	}
}

func TestRestore_MissingIsNotAFallback(t *testing.T) {
	s := New(WithStorage(storage.NewMemory(), "k"))
	assert.Equal(t, RestoreMissing, s.RestoreReport().Reason)
	assert.False(t, s.RestoreReport().FellBack())
}

func TestRestore_Normalizes(t *testing.T) {
	blob := `{
		"version": 1,
		"active_cart_id": "gone",
		"max_carts": 5,
		"carts": [
			{"id": "a", "name": "A", "items": [
				{"id": "i1", "service": {"id": "s", "name": "S", "price": "10"}, "quantity": 3, "price_override": "10", "subtotal": "999"},
				{"id": "i2", "service": {"id": "t", "name": "T", "price": "5"}, "quantity": 0, "price_override": "5", "subtotal": "0"}
			]},
			{"id": "b"}, {"id": "c"}
		]
	}`
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(context.Background(), "k", []byte(blob)))

	s := New(WithStorage(kv, "k"), WithMaxCarts(2))

	st := s.State()
	require.Len(t, st.Carts, 2)
	assert.Equal(t, "a", st.ActiveCartID)
	require.Len(t, st.Carts[0].Items, 1)
	assert.True(t, decimal.NewFromInt(30).Equal(st.Carts[0].Items[0].Subtotal))
	assert.NotNil(t, st.Carts[0].Items[0].AddOns)
	assert.Equal(t, 2, st.MaxCarts)
}

func TestRestore_NormalizesDuplicates(t *testing.T) {
	t.Run("duplicate cart ids keep the first", func(t *testing.T) {
		blob := `{"version":1,"active_cart_id":"a","carts":[
			{"id":"a","name":"First"},{"id":"a","name":"Second"},{"id":"b","name":"B"}
		]}`
		kv := storage.NewMemory()
		require.NoError(t, kv.Set(context.Background(), "k", []byte(blob)))

		st := New(WithStorage(kv, "k")).State()

		require.Len(t, st.Carts, 2)
		assert.Equal(t, "First", st.Carts[0].Name)
		assert.Equal(t, "b", st.Carts[1].ID)
	})

	t.Run("duplicate garment tags are reissued", func(t *testing.T) {
		blob := `{"version":1,"active_cart_id":"ab12cd34","carts":[{"id":"ab12cd34","items":[
			{"id":"i1","service":{"id":"s","name":"S","price":"10"},"quantity":1,"price_override":"10","garment_barcode":"TAG-AB12-0000-001"},
			{"id":"i2","service":{"id":"t","name":"T","price":"5"},"quantity":1,"price_override":"5","garment_barcode":"TAG-AB12-0000-001"},
			{"id":"i3","service":{"id":"u","name":"U","price":"5"},"quantity":1,"price_override":"5","garment_barcode":"TAG-AB12-0000-002"}
		]}]}`
		kv := storage.NewMemory()
		require.NoError(t, kv.Set(context.Background(), "k", []byte(blob)))

		s, _ := newTestStore(t, WithStorage(kv, "k"))
		items := s.ActiveCart().Items

		require.Len(t, items, 3)
		assert.Equal(t, "TAG-AB12-0000-001", items[0].GarmentBarcode)
		assert.Equal(t, "TAG-AB12-0000-002", items[2].GarmentBarcode)
		tags := map[string]bool{}
		for _, it := range items {
			assert.Falsef(t, tags[it.GarmentBarcode], "tag %s repeated", it.GarmentBarcode)
			tags[it.GarmentBarcode] = true
		}
		assert.Regexp(t, `^TAG-AB12-[0-9A-Z]{4}-\d{3}$`, items[1].GarmentBarcode)
	})
}

// upgradeNames is a v1 -> v2 step that renames every cart.
func upgradeNames(raw json.RawMessage) (json.RawMessage, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	carts, _ := doc["carts"].([]any)
	for _, c := range carts {
		if m, ok := c.(map[string]any); ok {
			m["name"] = "Upgraded " + fmt.Sprint(m["name"])
		}
	}
	doc["version"] = 2
	return json.Marshal(doc)
}

func TestDecodeState_Migrations(t *testing.T) {
	v1 := []byte(`{"version":1,"active_cart_id":"a","carts":[{"id":"a","name":"Front"}]}`)

	t.Run("upgrades through each step", func(t *testing.T) {
		steps := map[int]migration{1: upgradeNames}

		st, version, reason, err := decodeState(v1, 2, steps)

		require.NoError(t, err)
		assert.Equal(t, RestoreRestored, reason)
		assert.Equal(t, 1, version, "reports the version that was read")
		require.Len(t, st.Carts, 1)
		assert.Equal(t, "Upgraded Front", st.Carts[0].Name)
	})

	t.Run("failing step is corrupt", func(t *testing.T) {
		steps := map[int]migration{1: func(json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("bad shape")
		}}

		_, version, reason, err := decodeState(v1, 2, steps)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "migrate from 1")
		assert.Equal(t, RestoreCorrupt, reason)
		assert.Equal(t, 1, version)
	})

	t.Run("missing step is unsupported", func(t *testing.T) {
		_, _, reason, err := decodeState(v1, 3, map[int]migration{1: upgradeNames})

		assert.ErrorIs(t, err, errUnsupportedVersion)
		assert.Equal(t, RestoreUnsupportedVersion, reason)
	})

	t.Run("current version needs no steps", func(t *testing.T) {
		st, _, reason, err := decodeState(v1, 1, nil)

		require.NoError(t, err)
		assert.Equal(t, RestoreRestored, reason)
		assert.Equal(t, "Front", st.Carts[0].Name)
	})
}

type failingKV struct {
	getErr error
	setErr error
	sets   int
}

func (f *failingKV) Get(context.Context, string) ([]byte, error) { return nil, f.getErr }
func (f *failingKV) Set(context.Context, string, []byte) error {
	f.sets++
	return f.setErr
}

func TestPersistFailure_DoesNotBreakOperations(t *testing.T) {
	kv := &failingKV{getErr: errors.New("disk on fire"), setErr: errors.New("disk on fire")}
	s, _ := newTestStore(t, WithStorage(kv, "k"))

	assert.Equal(t, RestoreStorageError, s.RestoreReport().Reason)

	calls := 0
	s.Subscribe(func(State) { calls++ })
	c := s.CreateCart()

	require.NotNil(t, c)
	assert.Len(t, s.State().Carts, 2)
	assert.Equal(t, 2, calls, "observers still notified")
	assert.Equal(t, 1, kv.sets)
	assert.Error(t, s.Flush())
}
