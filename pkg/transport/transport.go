package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openarcloud/spatialdds-discovery/pkg/topics"
)

const logPrefix = "transport:transport"

// fingerprintCapacity bounds the sent-message history; oldest entries are
// evicted first.
const fingerprintCapacity = 512

// Callback receives every inbound envelope that survives self-echo
// suppression. It is invoked synchronously from the delivery context;
// panics are caught and logged per message, never crashing the loop.
type Callback func(env *Envelope)

// Transport wraps a Bus with SpatialDDS envelope discipline. It exclusively
// owns the inbound delivery path and the sent-fingerprint cache.
type Transport struct {
	bus           Bus
	domain        int
	localSenderID string
	callback      Callback

	mu        sync.Mutex
	sentTypes map[string]struct{}

	fingerprints *lru.Cache[string, struct{}]

	sub         Subscription
	announceSub Subscription
	stopped     chan struct{}
	once        sync.Once
}

// Options configures a Transport.
type Options struct {
	// Domain is the transport domain identifier; instances in different
	// domains do not see each other.
	Domain int
	// LocalSenderID, when set, drops inbound payloads whose embedded sender
	// identity matches it.
	LocalSenderID string
	// Callback receives inbound envelopes. Required for Start.
	Callback Callback
}

// New creates a Transport over the given bus. A nil bus is a fatal
// misconfiguration: the protocol cannot proceed without one.
func New(bus Bus, opts Options) (*Transport, error) {
	if bus == nil {
		return nil, fmt.Errorf("%s - bus is required", logPrefix)
	}
	fingerprints, err := lru.New[string, struct{}](fingerprintCapacity)
	if err != nil {
		return nil, fmt.Errorf("%s - fingerprint cache init: %w", logPrefix, err)
	}
	return &Transport{
		bus:           bus,
		domain:        opts.Domain,
		localSenderID: opts.LocalSenderID,
		callback:      opts.Callback,
		sentTypes:     map[string]struct{}{},
		fingerprints:  fingerprints,
		stopped:       make(chan struct{}),
	}, nil
}

// Start subscribes to the envelope and announce topics and begins
// delivering inbound envelopes to the callback. Announces arrive on their
// own subject, so the callback sees them only through this second
// subscription.
func (t *Transport) Start() error {
	subject := SubjectFor(t.domain, topics.Envelope)
	sub, err := t.bus.Subscribe(subject, t.onInbound)
	if err != nil {
		return fmt.Errorf("%s - subscribe %s: %w", logPrefix, subject, err)
	}
	announceSubject := SubjectFor(t.domain, topics.DiscoveryAnnounce)
	announceSub, err := t.bus.Subscribe(announceSubject, t.onInbound)
	if err != nil {
		if uerr := sub.Unsubscribe(); uerr != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe: %v", logPrefix, uerr))
		}
		return fmt.Errorf("%s - subscribe %s: %w", logPrefix, announceSubject, err)
	}
	t.sub = sub
	t.announceSub = announceSub
	slog.Info(fmt.Sprintf("%s - listening on %s and %s (domain %d)", logPrefix, subject, announceSubject, t.domain))
	return nil
}

// Stop tears the subscriptions down. Idempotent.
func (t *Transport) Stop() {
	t.once.Do(func() {
		for _, sub := range []Subscription{t.sub, t.announceSub} {
			if sub == nil {
				continue
			}
			if err := sub.Unsubscribe(); err != nil {
				slog.Warn(fmt.Sprintf("%s - unsubscribe: %v", logPrefix, err))
			}
		}
		close(t.stopped)
	})
}

// Publish wraps a payload in an envelope, records its fingerprint for
// self-echo suppression, and emits it on the envelope topic.
func (t *Transport) Publish(logicalTopic, msgType string, payload []byte, requestID string) error {
	return t.publishOn(SubjectFor(t.domain, topics.Envelope), logicalTopic, msgType, payload, requestID)
}

func (t *Transport) publishOn(subject, logicalTopic, msgType string, payload []byte, requestID string) error {
	env := &Envelope{
		MsgType:      msgType,
		LogicalTopic: logicalTopic,
		Payload:      payload,
		StampNs:      time.Now().UnixNano(),
		RequestID:    requestID,
	}
	t.recordSent(env)

	data, err := EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("%s - encode envelope: %w", logPrefix, err)
	}
	slog.Debug(fmt.Sprintf("%s - TX msg_type=%s logical_topic=%s", logPrefix, msgType, logicalTopic))
	return t.bus.Publish(subject, data)
}

func (t *Transport) recordSent(env *Envelope) {
	t.mu.Lock()
	if env.MsgType != "" {
		t.sentTypes[env.MsgType] = struct{}{}
	}
	t.mu.Unlock()
	t.fingerprints.Add(fingerprint(env.MsgType, env.LogicalTopic, env.RequestID, env.Payload), struct{}{})
}

func (t *Transport) onInbound(data []byte) {
	select {
	case <-t.stopped:
		return
	default:
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping undecodable envelope: %v", logPrefix, err))
		return
	}
	if t.isSelfEcho(env) {
		return
	}
	slog.Debug(fmt.Sprintf("%s - RX msg_type=%s logical_topic=%s", logPrefix, env.MsgType, env.LogicalTopic))
	t.deliver(env)
}

func (t *Transport) deliver(env *Envelope) {
	if t.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - callback panic on %s: %v", logPrefix, env.MsgType, r))
		}
	}()
	t.callback(env)
}

// isSelfEcho reports whether an inbound envelope is one this instance sent:
// either the payload embeds the local sender identity, or the fingerprint
// matches a recorded send for a message type this instance has published.
func (t *Transport) isSelfEcho(env *Envelope) bool {
	if t.localSenderID != "" {
		if sender := senderIDFromPayload(env.Payload); sender != "" && sender == t.localSenderID {
			return true
		}
	}
	t.mu.Lock()
	_, sentType := t.sentTypes[env.MsgType]
	t.mu.Unlock()
	if !sentType {
		return false
	}
	return t.fingerprints.Contains(fingerprint(env.MsgType, env.LogicalTopic, env.RequestID, env.Payload))
}
