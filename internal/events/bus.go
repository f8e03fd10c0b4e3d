package events

import (
	"sync"

	"github.com/google/uuid"
)

// KindAll subscribes to every event kind, mirroring the wildcard filter this
// lineage's event manager exposed.
const KindAll Kind = "*"

// DefaultQueueSize is the default bound on a subscription's pending-event
// queue (§4.9). Overflow drops the oldest queued event for that subscription
// only.
const DefaultQueueSize = 1024

// Handler processes one event. It runs on its subscription's private
// dispatch goroutine, never concurrently with itself, and never concurrently
// with another handler on the *same* subscription.
type Handler func(Event)

// Unsubscribe detaches a subscription. It is idempotent and safe to call
// from within the handler it detaches.
type Unsubscribe func()

// Bus is the ordered, typed pub/sub implementation of C9. A zero-value Bus
// is not usable; construct with NewBus.
type Bus struct {
	mu        sync.RWMutex
	byKind    map[Kind][]*subscription
	queueSize int
}

// NewBus constructs a Bus. queueSize <= 0 uses DefaultQueueSize.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		byKind:    make(map[Kind][]*subscription),
		queueSize: queueSize,
	}
}

type subscription struct {
	id      uuid.UUID
	kind    Kind
	handler Handler

	cap int

	mu      sync.Mutex
	buf     []Event
	dropped uint64

	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newSubscription(kind Kind, handler Handler, cap int) *subscription {
	s := &subscription{
		id:      uuid.New(),
		kind:    kind,
		handler: handler,
		cap:     cap,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.dispatchLoop()
	return s
}

func (s *subscription) enqueue(e Event) {
	s.mu.Lock()
	if len(s.buf) >= s.cap {
		// drop-oldest: shift the queue head out, keep the newest arrival.
		s.buf = s.buf[1:]
		s.dropped++
	}
	s.buf = append(s.buf, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) dispatchLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.buf) == 0 {
				s.mu.Unlock()
				break
			}
			e := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.handler(e)
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// DroppedCount returns how many events this subscription has dropped due to
// its queue being full. Exposed for diagnostics, not part of the core
// contract.
func (s *subscription) DroppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Subscribe registers handler for kind (or KindAll for every kind).
// Publish enqueues onto subscriptions for the same kind in the order they
// were created; each subscription runs its handler on its own goroutine, so
// handlers of different subscriptions are not invoked in a defined order.
// The returned Unsubscribe is idempotent and dispatch-safe.
func (b *Bus) Subscribe(kind Kind, handler Handler) Unsubscribe {
	sub := newSubscription(kind, handler, b.queueSize)

	b.mu.Lock()
	b.byKind[kind] = append(b.byKind[kind], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		list := b.byKind[kind]
		for i, s := range list {
			if s == sub {
				b.byKind[kind] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.stop()
	}
}

// Publish dispatches e to every subscription matching e.Kind plus every
// KindAll subscription, enqueuing in subscription-registration order
// (handler invocation across subscriptions is not ordered). Publish itself
// is synchronous and never blocks on a slow handler: it only enqueues onto
// each subscription's own bounded queue.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	specific := append([]*subscription(nil), b.byKind[e.Kind]...)
	wild := append([]*subscription(nil), b.byKind[KindAll]...)
	b.mu.RUnlock()

	for _, s := range specific {
		s.enqueue(e)
	}
	for _, s := range wild {
		s.enqueue(e)
	}
}

// Shutdown stops every subscription's dispatch goroutine. Subsequent
// Publish calls are no-ops against stopped subscriptions still registered
// (there are none, since Shutdown also clears the registry).
func (b *Bus) Shutdown() {
	b.mu.Lock()
	all := b.byKind
	b.byKind = make(map[Kind][]*subscription)
	b.mu.Unlock()

	for _, list := range all {
		for _, s := range list {
			s.stop()
		}
	}
}
