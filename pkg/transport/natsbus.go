package transport

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const natsLogPrefix = "transport:natsbus"

// NatsBus is the NATS-backed Bus implementation.
type NatsBus struct {
	nc *nats.Conn
}

// ConnectNats connects to a NATS server. A connection failure is fatal to
// the caller: the protocol cannot run without a bus.
func ConnectNats(url, name string) (*NatsBus, error) {
	slog.Info(fmt.Sprintf("%s - connecting to %s as %s", natsLogPrefix, url, name))

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - disconnected: %v", natsLogPrefix, err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info(fmt.Sprintf("%s - reconnected to %s", natsLogPrefix, nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info(fmt.Sprintf("%s - connection closed", natsLogPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect: %w", natsLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - connected to %s", natsLogPrefix, nc.ConnectedUrl()))
	return &NatsBus{nc: nc}, nil
}

// Publish emits a payload on a subject. Fire-and-forget.
func (b *NatsBus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

// Subscribe registers a handler for a subject.
func (b *NatsBus) Subscribe(subject string, h Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		h(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return natsSubscription{sub}, nil
}

// Close drains and closes the connection.
func (b *NatsBus) Close() {
	if err := b.nc.Drain(); err != nil {
		slog.Warn(fmt.Sprintf("%s - drain: %v", natsLogPrefix, err))
	}
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
