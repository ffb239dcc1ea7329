package cart

import "sync"

// Listener receives every published state.
type Listener func(State)

// Broker fans a value out to subscribers in subscription order. It knows
// nothing about carts; the store publishes into it after each mutation.
type Broker[T any] struct {
	mu   sync.Mutex
	next uint64
	subs []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn, calls it once with current, and returns an
// idempotent unsubscribe function.
func (b *Broker[T]) Subscribe(fn func(T), current T) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription[T]{id: id, fn: fn})
	b.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// Publish delivers v to every subscriber registered at the time of the call.
func (b *Broker[T]) Publish(v T) {
	b.mu.Lock()
	subs := append([]subscription[T](nil), b.subs...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Len reports the number of active subscribers.
func (b *Broker[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
