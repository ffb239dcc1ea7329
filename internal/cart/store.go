// Package cart implements the point-of-sale multi-cart engine: a store of
// up to MaxCarts concurrent sales with line items, add-ons and pricing
// modifiers, persisted on every mutation and observable by UI bindings.
//
// Store operations never return errors. Unknown cart or item ids are silent
// no-ops, CreateCart signals capacity with a nil cart, and persistence
// failures are logged and counted but never surfaced to callers.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/laundrypos/api/internal/metrics"
	"github.com/laundrypos/api/internal/storage"
	"github.com/rs/zerolog"
)

const defaultPersistTimeout = 2 * time.Second

// Store owns the carts of one terminal.
//
// Each operation runs to completion under the store lock: mutate, bump
// UpdatedAt, persist, then notify listeners. Listeners are called with the
// lock held and must not call back into the store.
type Store struct {
	mu           sync.Mutex
	carts        []Cart
	activeCartID string
	maxCarts     int

	kv             storage.KV
	key            string
	persistTimeout time.Duration

	log     zerolog.Logger
	metrics *metrics.CartMetrics
	now     func() time.Time
	newID   func() string

	broker Broker[State]
	report RestoreReport
}

// Option configures a Store.
type Option func(*Store)

// WithStorage persists the store under key in kv.
func WithStorage(kv storage.KV, key string) Option {
	return func(s *Store) {
		s.kv = kv
		s.key = key
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithMetrics(m *metrics.CartMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the uuid generator used for cart and item ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func WithMaxCarts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxCarts = n
		}
	}
}

func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// New builds a store and restores its state from storage, falling back to
// a single empty cart when nothing usable is stored.
func New(opts ...Option) *Store {
	s := &Store{
		maxCarts:       DefaultMaxCarts,
		persistTimeout: defaultPersistTimeout,
		log:            zerolog.Nop(),
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.restore()
	return s
}

func (s *Store) restore() {
	s.report = RestoreReport{Reason: RestoreNone, At: s.now()}
	if s.kv == nil {
		s.resetLocked()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.report.Reason = RestoreMissing
		} else {
			s.report.Reason = RestoreStorageError
			s.report.Error = err.Error()
		}
		s.fallback(err)
		return
	}

	st, version, reason, err := decodeState(raw, SchemaVersion, migrations)
	s.report.Reason = reason
	s.report.Version = version
	if err != nil {
		s.report.Error = err.Error()
		s.fallback(err)
		return
	}

	st = normalize(st, s.maxCarts, s.now())
	s.carts = st.Carts
	s.activeCartID = st.ActiveCartID
	s.metrics.Restored(string(RestoreRestored))
	s.log.Info().
		Str("key", s.key).
		Int("carts", len(s.carts)).
		Int("version", version).
		Msg("cart state restored")
}

func (s *Store) fallback(err error) {
	s.resetLocked()
	s.metrics.Restored(string(s.report.Reason))

	ev := s.log.Info()
	if s.report.FellBack() {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("key", s.key).
		Str("reason", string(s.report.Reason)).
		Msg("starting with a fresh cart")
}

// RestoreReport describes how the initial state was obtained.
func (s *Store) RestoreReport() RestoreReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// --- Reads ---

// State returns a deep copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Cart returns a copy of the cart with the given id.
func (s *Store) Cart(id string) (Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findLocked(id); c != nil {
		return c.clone(), true
	}
	return Cart{}, false
}

// ActiveCart returns a copy of the active cart.
func (s *Store) ActiveCart() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(s.activeCartID).clone()
}

// CanCreateCart reports whether CreateCart would succeed.
func (s *Store) CanCreateCart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts) < s.maxCarts
}

func (s *Store) MaxCarts() int {
	return s.maxCarts
}

// --- Cart lifecycle ---

// CreateCart appends a new empty cart and makes it active. It returns nil
// when the store already holds MaxCarts carts.
func (s *Store) CreateCart() *Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.carts) >= s.maxCarts {
		s.metrics.CapacityRejected()
		s.log.Debug().Int("max_carts", s.maxCarts).Msg("cart capacity reached")
		return nil
	}

	c := newDefaultCart(s.newID(), len(s.carts), s.now())
	s.carts = append(s.carts, c)
	s.activeCartID = c.ID
	s.metrics.CartCreated()
	s.commitLocked()

	out := c.clone()
	return &out
}

// DeleteCart removes a cart. Deleting the only cart clears it instead.
// If the deleted cart was active, the cart before it becomes active.
func (s *Store) DeleteCart(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return
	}
	if len(s.carts) == 1 {
		s.clearLocked(idx)
		s.metrics.CartCleared("delete_last")
		s.commitLocked()
		return
	}

	s.carts = append(s.carts[:idx], s.carts[idx+1:]...)
	if s.activeCartID == id {
		s.activeCartID = s.carts[max(0, idx-1)].ID
	}
	s.commitLocked()
}

// ClearCart resets a cart to defaults, keeping its id, name and colour.
func (s *Store) ClearCart(id string) {
	s.clear(id, "clear")
}

// MarkCartAsProcessed frees a cart after a successful checkout.
func (s *Store) MarkCartAsProcessed(id string) {
	s.clear(id, "processed")
}

func (s *Store) clear(id, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return
	}
	s.clearLocked(idx)
	s.metrics.CartCleared(reason)
	s.commitLocked()
}

func (s *Store) clearLocked(idx int) {
	old := s.carts[idx]
	fresh := newDefaultCart(old.ID, idx, s.now())
	fresh.Name = old.Name
	fresh.Color = old.Color
	s.carts[idx] = fresh
}

func (s *Store) RenameCart(id, name string) {
	s.UpdateCart(id, CartPatch{Name: &name})
}

// UpdateCart shallow-merges patch into the cart.
func (s *Store) UpdateCart(id string, patch CartPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findLocked(id)
	if c == nil {
		return
	}
	patch.apply(c)
	c.UpdatedAt = s.now()
	s.commitLocked()
}

// SetActiveCart switches the active cart. Unknown ids are ignored.
func (s *Store) SetActiveCart(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 || s.activeCartID == id {
		return
	}
	s.activeCartID = id
	s.commitLocked()
}

// ResetAll collapses the store back to a single empty cart.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.metrics.CartCleared("reset")
	s.commitLocked()
}

func (s *Store) resetLocked() {
	c := newDefaultCart(s.newID(), 0, s.now())
	s.carts = []Cart{c}
	s.activeCartID = c.ID
}

// --- Observation & persistence ---

// Observers reports how many listeners are subscribed.
func (s *Store) Observers() int {
	return s.broker.Len()
}

// Subscribe registers l, calls it immediately with the current state and
// returns a function that unregisters it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broker.Subscribe(l, s.snapshotLocked())
}

// Flush writes the current state to storage and reports any error.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// commitLocked persists and then notifies, so listeners only ever see
// state that has already been handed to storage.
func (s *Store) commitLocked() {
	if err := s.persistLocked(); err != nil {
		s.metrics.PersistFailed()
		s.log.Error().Err(err).Str("key", s.key).Msg("persist cart state")
	}
	s.broker.Publish(s.snapshotLocked())
}

func (s *Store) persistLocked() error {
	if s.kv == nil {
		return nil
	}
	raw, err := encodeState(s.snapshotLocked())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (s *Store) snapshotLocked() State {
	carts := make([]Cart, len(s.carts))
	for i, c := range s.carts {
		carts[i] = c.clone()
	}
	return State{Carts: carts, ActiveCartID: s.activeCartID, MaxCarts: s.maxCarts}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.carts {
		if s.carts[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) findLocked(id string) *Cart {
	if i := s.indexLocked(id); i >= 0 {
		return &s.carts[i]
	}
	return nil
}

func defaultName(position int) string {
	return fmt.Sprintf("Cart %d", position+1)
}
