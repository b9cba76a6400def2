package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openarcloud/spatialdds-discovery/pkg/topics"
)

const announceLogPrefix = "transport:announce"

// AnnouncePolicy is the explicit delivery policy for the announce topic:
// retain the last value, deliver reliably, expire after TTL. The policy is
// a first-class object, not implicit reader behavior.
type AnnouncePolicy struct {
	RetainLast bool
	Reliable   bool
	TTLSec     int64
}

// DefaultAnnouncePolicy returns the policy for the given TTL. TTLs below
// one second are clamped up.
func DefaultAnnouncePolicy(ttlSec int64) AnnouncePolicy {
	if ttlSec < 1 {
		ttlSec = 1
	}
	return AnnouncePolicy{RetainLast: true, Reliable: true, TTLSec: ttlSec}
}

// Summary formats the policy for logs.
func (p AnnouncePolicy) Summary() string {
	return fmt.Sprintf("retain_last=%t reliable=%t ttl=%ds", p.RetainLast, p.Reliable, p.TTLSec)
}

// AnnounceWriter publishes envelopes on the dedicated announce topic.
type AnnounceWriter struct {
	t      *Transport
	policy AnnouncePolicy
}

// NewAnnounceWriter opens a writer on the announce topic with the policy
// for ttlSec.
func (t *Transport) NewAnnounceWriter(ttlSec int64) *AnnounceWriter {
	policy := DefaultAnnouncePolicy(ttlSec)
	slog.Info(fmt.Sprintf("%s - writer policy: %s", announceLogPrefix, policy.Summary()))
	return &AnnounceWriter{t: t, policy: policy}
}

// Publish emits an envelope on the announce topic.
func (w *AnnounceWriter) Publish(msgType string, payload []byte) error {
	subject := SubjectFor(w.t.domain, topics.DiscoveryAnnounce)
	return w.t.publishOn(subject, topics.DiscoveryAnnounce, msgType, payload, "")
}

// Policy returns the writer's delivery policy.
func (w *AnnounceWriter) Policy() AnnouncePolicy { return w.policy }

// AnnounceReader subscribes to the announce topic and retains the last
// received envelope, honoring the retain-last policy on a bus that does
// not retain natively.
type AnnounceReader struct {
	t      *Transport
	policy AnnouncePolicy
	sub    Subscription

	mu     sync.Mutex
	latest *Envelope
}

// NewAnnounceReader opens a reader on the announce topic.
func (t *Transport) NewAnnounceReader(ttlSec int64) (*AnnounceReader, error) {
	r := &AnnounceReader{t: t, policy: DefaultAnnouncePolicy(ttlSec)}
	subject := SubjectFor(t.domain, topics.DiscoveryAnnounce)
	sub, err := t.bus.Subscribe(subject, r.onInbound)
	if err != nil {
		return nil, fmt.Errorf("%s - subscribe %s: %w", announceLogPrefix, subject, err)
	}
	r.sub = sub
	slog.Info(fmt.Sprintf("%s - reader policy: %s", announceLogPrefix, r.policy.Summary()))
	return r, nil
}

func (r *AnnounceReader) onInbound(data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping undecodable announce: %v", announceLogPrefix, err))
		return
	}
	if r.t.isSelfEcho(env) {
		return
	}
	r.mu.Lock()
	r.latest = env
	r.mu.Unlock()
}

// Take returns the retained envelope, or nil when none has arrived.
func (r *AnnounceReader) Take() *Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Wait blocks until an envelope is retained or the timeout elapses,
// returning nil on timeout.
func (r *AnnounceReader) Wait(timeout time.Duration) *Envelope {
	deadline := time.Now().Add(timeout)
	for {
		if env := r.Take(); env != nil {
			return env
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Close tears the reader's subscription down.
func (r *AnnounceReader) Close() {
	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe: %v", announceLogPrefix, err))
		}
	}
}

// Policy returns the reader's delivery policy.
func (r *AnnounceReader) Policy() AnnouncePolicy { return r.policy }
