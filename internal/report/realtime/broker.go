package realtime

import "sync"

// broker fans one event stream out to any number of observer channels so
// multiple UI consumers can watch the same subscription stream without
// re-subscribing server-side. Sends never block: a slow observer whose
// buffer is full misses the event rather than stalling the pump.
type broker[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	closed bool
}

func newBroker[T any]() *broker[T] {
	return &broker[T]{subs: make(map[int]chan T)}
}

// subscribe registers a new observer channel with the given buffer size and
// returns it with a cancel func that unregisters and closes the channel.
func (b *broker[T]) subscribe(buffer int) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *broker[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (b *broker[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
