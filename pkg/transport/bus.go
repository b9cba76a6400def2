// Package transport turns a raw broadcast bus into protocol-level
// request/response semantics: envelope framing, self-echo suppression,
// freshness-filtered announce reads, and deadline-bound correlation waits.
package transport

import (
	"fmt"
	"strings"
)

// Handler receives raw payload bytes delivered to a subscription.
type Handler func(data []byte)

// Subscription is a live topic subscription.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the external pub/sub collaborator: anything that delivers byte
// payloads to topic subscribers. The envelope layer owns everything above
// this line.
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, h Handler) (Subscription, error)
	Close()
}

// SubjectFor maps a SpatialDDS logical topic and transport domain to a bus
// subject. Slashes become dots; the domain prefix keeps instances in
// different domains from cross-talking.
func SubjectFor(domain int, topic string) string {
	rest := strings.TrimPrefix(topic, "spatialdds/")
	return fmt.Sprintf("spatialdds.d%d.%s", domain, strings.ReplaceAll(rest, "/", "."))
}
