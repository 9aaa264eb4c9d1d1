// Package state holds UI selection state as replaying subjects: each holder
// owns its subjects and is the only writer, consumers subscribe and read.
package state

import "sync"

// Observable is the read side of a Subject.
type Observable[T any] interface {
	Value() T
	Subscribe(fn func(T)) *Subscription
}

// Subject keeps the latest value and replays it to new subscribers before
// delivering later values in emission order.
type Subject[T any] struct {
	mu      sync.Mutex
	value   T
	initial T
	subs    map[uint64]*subscriber[T]
	nextID  uint64
}

// NewSubject returns a subject holding initial. Reset restores it.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		value:   initial,
		initial: initial,
		subs:    make(map[uint64]*subscriber[T]),
	}
}

// Value returns the current value.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Next stores v and queues it for every subscriber.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(v)
}

// Update applies fn to the current value and emits the result atomically.
func (s *Subject[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := fn(s.value)
	s.emit(v)
	return v
}

// Reset emits the initial value.
func (s *Subject[T]) Reset() {
	s.Next(s.initial)
}

func (s *Subject[T]) emit(v T) {
	s.value = v
	for _, sub := range s.subs {
		sub.push(v)
	}
}

// Subscribe calls fn with the current value and then with every later value,
// one at a time and in order, on a goroutine owned by the subscription.
func (s *Subject[T]) Subscribe(fn func(T)) *Subscription {
	sub := &subscriber[T]{done: make(chan struct{})}
	sub.cond = sync.NewCond(&sub.mu)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	sub.push(s.value)
	s.mu.Unlock()

	go sub.run(fn)

	return &Subscription{
		done: sub.done,
		cancel: func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			sub.close()
		},
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Subject[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscription is returned by Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
	done   chan struct{}
}

// Unsubscribe stops delivery. Values still queued are dropped. It is safe to
// call more than once and from inside the callback.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Done is closed once the delivery goroutine has returned.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

type subscriber[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool
	done   chan struct{}
}

func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, v)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscriber[T]) run(fn func(T)) {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		v := s.queue[0]
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		fn(v)
	}
}
