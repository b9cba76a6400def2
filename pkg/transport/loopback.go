package transport

import "sync"

// LoopbackBus is an in-process Bus that delivers every publish to every
// subscriber on the subject, including the publisher itself. Self-echo
// suppression must survive this worst-case broadcast. Used by tests and
// demos; no external broker needed.
type LoopbackBus struct {
	mu     sync.Mutex
	subs   map[string][]*loopbackSub
	closed bool
	wg     sync.WaitGroup
}

// NewLoopbackBus creates an empty loopback bus.
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{subs: map[string][]*loopbackSub{}}
}

// Publish delivers data to all current subscribers of the subject.
// Delivery is asynchronous, matching a real broker.
func (b *LoopbackBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	targets := make([]*loopbackSub, len(b.subs[subject]))
	copy(targets, b.subs[subject])
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil
	}
	for _, sub := range targets {
		payload := make([]byte, len(data))
		copy(payload, data)
		b.wg.Add(1)
		go func(s *loopbackSub, p []byte) {
			defer b.wg.Done()
			s.deliver(p)
		}(sub, payload)
	}
	return nil
}

// Subscribe registers a handler for a subject.
func (b *LoopbackBus) Subscribe(subject string, h Handler) (Subscription, error) {
	sub := &loopbackSub{bus: b, subject: subject, handler: h}
	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], sub)
	b.mu.Unlock()
	return sub, nil
}

// Close stops delivery and waits for in-flight handlers.
func (b *LoopbackBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.subs = map[string][]*loopbackSub{}
	b.mu.Unlock()
	b.wg.Wait()
}

type loopbackSub struct {
	bus     *LoopbackBus
	subject string
	handler Handler

	mu       sync.Mutex
	inactive bool
}

func (s *loopbackSub) deliver(data []byte) {
	s.mu.Lock()
	inactive := s.inactive
	s.mu.Unlock()
	if inactive {
		return
	}
	s.handler(data)
}

func (s *loopbackSub) Unsubscribe() error {
	s.mu.Lock()
	s.inactive = true
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	list := s.bus.subs[s.subject]
	for i, sub := range list {
		if sub == s {
			s.bus.subs[s.subject] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}
