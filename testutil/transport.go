package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/servo/webxr/remote"
)

// MemoryTransport is an in-memory remote.Transport for testing the wire
// protocol without a broker. Subjects match exactly; handlers run on the
// publisher's goroutine. Thread-safe for concurrent use.
type MemoryTransport struct {
	mu        sync.RWMutex
	subs      map[string][]*memorySubscription
	published map[string][][]byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMemoryTransport creates an empty in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		subs:      make(map[string][]*memorySubscription),
		published: make(map[string][][]byte),
		closed:    make(chan struct{}),
	}
}

type memorySubscription struct {
	transport *MemoryTransport
	subject   string
	handler   remote.Handler
}

// Unsubscribe removes the subscription.
func (s *memorySubscription) Unsubscribe() error {
	t := s.transport
	t.mu.Lock()
	defer t.mu.Unlock()

	handlers := t.subs[s.subject]
	for i, h := range handlers {
		if h == s {
			t.subs[s.subject] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	return nil
}

// Publish delivers a message to every subscriber of the subject.
func (t *MemoryTransport) Publish(ctx context.Context, subject string, data []byte) error {
	if t.isClosed() {
		return fmt.Errorf("transport is closed")
	}

	t.mu.Lock()
	t.published[subject] = append(t.published[subject], data)
	// Copy handlers to avoid holding the lock during callbacks.
	handlers := make([]*memorySubscription, len(t.subs[subject]))
	copy(handlers, t.subs[subject])
	t.mu.Unlock()

	for _, h := range handlers {
		h.handler(ctx, &remote.Message{Subject: subject, Data: data})
	}
	return nil
}

// Request delivers to the first subscriber and waits for its response.
func (t *MemoryTransport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if t.isClosed() {
		return nil, fmt.Errorf("transport is closed")
	}

	t.mu.RLock()
	var handler *memorySubscription
	if hs := t.subs[subject]; len(hs) > 0 {
		handler = hs[0]
	}
	t.mu.RUnlock()

	if handler == nil {
		return nil, fmt.Errorf("no responder on subject %s", subject)
	}

	reply := make(chan []byte, 1)
	msg := &remote.Message{
		Subject: subject,
		Data:    data,
		Respond: func(response []byte) error {
			select {
			case reply <- response:
				return nil
			default:
				return fmt.Errorf("duplicate response on subject %s", subject)
			}
		},
	}

	done := make(chan struct{})
	go func() {
		handler.handler(ctx, msg)
		close(done)
	}()

	select {
	case response := <-reply:
		return response, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		// Handler finished without responding; give a queued reply one
		// last chance before reporting no response.
		select {
		case response := <-reply:
			return response, nil
		case <-time.After(10 * time.Millisecond):
			return nil, fmt.Errorf("no response on subject %s", subject)
		}
	}
}

// Subscribe registers a handler for exact-match subjects.
func (t *MemoryTransport) Subscribe(subject string, handler remote.Handler) (remote.Subscription, error) {
	if t.isClosed() {
		return nil, fmt.Errorf("transport is closed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	sub := &memorySubscription{transport: t, subject: subject, handler: handler}
	t.subs[subject] = append(t.subs[subject], sub)
	return sub, nil
}

// Closed returns the shutdown signal channel.
func (t *MemoryTransport) Closed() <-chan struct{} {
	return t.closed
}

// Close shuts the transport down, waking everything watching Closed.
func (t *MemoryTransport) Close() {
	t.closeOnce.Do(func() { close(t.closed) })
}

// Published returns a copy of everything published to a subject.
func (t *MemoryTransport) Published(subject string) [][]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()

	msgs := t.published[subject]
	if msgs == nil {
		return nil
	}
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

// SubscriberCount returns how many handlers a subject has.
func (t *MemoryTransport) SubscriberCount(subject string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs[subject])
}

func (t *MemoryTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}
