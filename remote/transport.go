package remote

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/servo/webxr/errors"
	"github.com/servo/webxr/natsclient"
)

// Message is one delivery from the transport. Respond answers a request;
// it is nil for plain published messages.
type Message struct {
	Subject string
	Data    []byte
	Respond func([]byte) error
}

// Handler consumes messages delivered to a subscription.
type Handler func(ctx context.Context, msg *Message)

// Subscription is an active subject subscription.
type Subscription interface {
	Unsubscribe() error
}

// Transport is the messaging fabric the remote backend and the device
// agent talk over. The production implementation rides on NATS; tests
// use an in-memory fake.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	Subscribe(subject string, handler Handler) (Subscription, error)
	// Closed signals that the transport is gone for good. Open sessions
	// treat it as device loss.
	Closed() <-chan struct{}
}

// natsTransport adapts a managed NATS client to the Transport interface.
type natsTransport struct {
	client *natsclient.Client
}

// NewNATSTransport wraps a connected NATS client as a Transport.
func NewNATSTransport(client *natsclient.Client) Transport {
	return &natsTransport{client: client}
}

func (t *natsTransport) Publish(ctx context.Context, subject string, data []byte) error {
	return t.client.Publish(ctx, subject, data)
}

func (t *natsTransport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	return t.client.Request(ctx, subject, data)
}

func (t *natsTransport) Subscribe(subject string, handler Handler) (Subscription, error) {
	sub, err := t.client.Subscribe(subject, func(msg *nats.Msg) {
		m := &Message{Subject: msg.Subject, Data: msg.Data}
		if msg.Reply != "" {
			m.Respond = msg.Respond
		}
		handler(context.Background(), m)
	})
	if err != nil {
		return nil, errors.Wrap(err, "remote", "Subscribe", "subscribing over NATS")
	}
	return sub, nil
}

func (t *natsTransport) Closed() <-chan struct{} {
	return t.client.Closed()
}
