package discovery

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openarcloud/spatialdds-discovery/pkg/manifest"
	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
	"github.com/openarcloud/spatialdds-discovery/pkg/topics"
	"github.com/openarcloud/spatialdds-discovery/pkg/transport"
)

const clientLogPrefix = "discovery:client"

// DefaultBootstrapAttemptWait is the per-attempt response wait while the
// client republishes its bootstrap query.
const DefaultBootstrapAttemptWait = 2 * time.Second

// ClientOptions configures a discovery Client.
type ClientOptions struct {
	// ClientID identifies this client on the bus; generated when empty.
	ClientID string
	// Domain is the transport domain identifier.
	Domain int
	// ManifestURI, when set, is resolved to override canonical topics.
	ManifestURI string
	// Resolver resolves ManifestURI. Nil skips manifest resolution.
	Resolver *manifest.Resolver
	// ManifestTTLSec is the resolver cache TTL.
	ManifestTTLSec int64
	// BootstrapAttemptWait overrides the per-attempt bootstrap wait.
	BootstrapAttemptWait time.Duration
}

// Client is the requester side of the discovery protocol. Each method runs
// one request/response exchange; a nil result means no response arrived in
// time, a recoverable condition the caller may retry.
type Client struct {
	t       *transport.Transport
	inbox   *transport.Inbox
	opts    ClientOptions
	anchors *AnchorSets

	reader    *transport.AnnounceReader
	readerTTL int64
}

// NewClient opens a client transport on the bus and starts its inbound
// loop.
func NewClient(bus transport.Bus, opts ClientOptions) (*Client, error) {
	if opts.ClientID == "" {
		opts.ClientID = "client-" + uuid.NewString()
	}
	if opts.BootstrapAttemptWait <= 0 {
		opts.BootstrapAttemptWait = DefaultBootstrapAttemptWait
	}
	inbox := transport.NewInbox()
	t, err := transport.New(bus, transport.Options{
		Domain:        opts.Domain,
		LocalSenderID: opts.ClientID,
		Callback:      inbox.Put,
	})
	if err != nil {
		return nil, err
	}
	if err := t.Start(); err != nil {
		return nil, err
	}
	return &Client{t: t, inbox: inbox, opts: opts, anchors: NewAnchorSets()}, nil
}

// ClientID returns the identity this client publishes under.
func (c *Client) ClientID() string {
	return c.opts.ClientID
}

// Close stops the announce reader and the transport.
func (c *Client) Close() {
	if c.reader != nil {
		c.reader.Close()
	}
	c.t.Stop()
}

// Bootstrap republishes a bootstrap query until a response addressed to
// this client arrives or the overall timeout elapses. Nil means no
// bootstrap service answered.
func (c *Client) Bootstrap(timeout time.Duration) (*protocol.BootstrapResponse, error) {
	deadline := time.Now().Add(timeout)
	attempt := 0
	for time.Now().Before(deadline) {
		attempt++
		q := protocol.BootstrapQuery{
			Proto:    protocol.Version,
			ClientID: c.opts.ClientID,
			Stamp:    spatial.Now(),
		}
		if err := c.publish(topics.BootstrapQuery, protocol.MsgBootstrapQuery, q, c.opts.ClientID); err != nil {
			return nil, err
		}

		wait := c.opts.BootstrapAttemptWait
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		env := c.inbox.WaitFor(protocol.MsgBootstrapResponse, wait)
		if env == nil {
			slog.Debug(fmt.Sprintf("%s - bootstrap attempt %d: no response", clientLogPrefix, attempt))
			continue
		}
		var resp protocol.BootstrapResponse
		if err := decode(env.Payload, &resp); err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping bootstrap response: %v", clientLogPrefix, err))
			continue
		}
		if resp.ClientID != "" && resp.ClientID != c.opts.ClientID {
			continue
		}
		slog.Info(fmt.Sprintf("%s - bootstrapped after %d attempts: domain=%d manifests=%d", clientLogPrefix, attempt, resp.Domain, len(resp.ManifestURIs)))
		return &resp, nil
	}
	return nil, nil
}

// Discover publishes a coverage query and waits for the correlated
// response. Validation errors surface before anything reaches the bus; a
// nil response means timeout.
func (c *Client) Discover(coverage []spatial.CoverageElement, expr string, timeout time.Duration) (*protocol.CoverageResponse, error) {
	if err := spatial.ValidateCoverage(coverage, nil); err != nil {
		return nil, err
	}
	q := protocol.CoverageQuery{
		Proto:      protocol.Version,
		QueryID:    uuid.NewString(),
		Coverage:   coverage,
		Expr:       expr,
		ReplyTopic: topics.CoverageReplies,
		Stamp:      spatial.Now(),
	}
	topic, source := c.selectTopic("coverage_query", topics.CoverageQuery)
	slog.Debug(fmt.Sprintf("%s - coverage query %s on %s (%s)", clientLogPrefix, q.QueryID, topic, source))
	if err := c.publish(topic, protocol.MsgCoverageQuery, q, q.QueryID); err != nil {
		return nil, err
	}

	env := c.waitCorrelated(protocol.MsgCoverageResponse, q.QueryID, timeout)
	if env == nil {
		return nil, nil
	}
	var resp protocol.CoverageResponse
	if err := decode(env.Payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Localize publishes a localize request and waits for the correlated
// response. A response with quality.success=false is a normal outcome; nil
// means no response arrived.
func (c *Client) Localize(req protocol.LocalizeRequest, timeout time.Duration) (*protocol.LocalizeResponse, error) {
	if req.PriorGeoPose != nil {
		if err := spatial.ValidateGeoPose(*req.PriorGeoPose, spatial.UnitNormTolerance); err != nil {
			return nil, err
		}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.Proto = protocol.Version
	req.Stamp = spatial.Now()

	topic, source := c.selectTopic("localize_request", topics.LocalizeRequest)
	slog.Debug(fmt.Sprintf("%s - localize %s on %s (%s)", clientLogPrefix, req.RequestID, topic, source))
	if err := c.publish(topic, protocol.MsgLocalizeRequest, req, req.RequestID); err != nil {
		return nil, err
	}

	env := c.waitCorrelated(protocol.MsgLocalizeResponse, req.RequestID, timeout)
	if env == nil {
		return nil, nil
	}
	var resp protocol.LocalizeResponse
	if err := decode(env.Payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueryCatalog publishes one catalog query page and waits for the
// correlated response. Nil means timeout.
func (c *Client) QueryCatalog(q protocol.CatalogQuery, timeout time.Duration) (*protocol.CatalogResponse, error) {
	if len(q.Coverage) > 0 {
		if err := spatial.ValidateCoverage(q.Coverage, q.CoverageFrameRef); err != nil {
			return nil, err
		}
	}
	if q.QueryID == "" {
		q.QueryID = uuid.NewString()
	}
	if q.ReplyTopic == "" {
		q.ReplyTopic = topics.CatalogReplies(c.opts.ClientID)
	}
	q.Proto = protocol.Version
	q.Stamp = spatial.Now()

	topic, source := c.selectTopic("catalog_query", topics.CatalogQuery)
	slog.Debug(fmt.Sprintf("%s - catalog query %s on %s (%s)", clientLogPrefix, q.QueryID, topic, source))
	if err := c.publish(topic, protocol.MsgCatalogQuery, q, q.QueryID); err != nil {
		return nil, err
	}

	env := c.waitCorrelated(protocol.MsgCatalogResponse, q.QueryID, timeout)
	if env == nil {
		return nil, nil
	}
	var resp protocol.CatalogResponse
	if err := decode(env.Payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublishAnchorDelta stamps, checksums, and publishes a fire-and-forget
// anchor delta on the set's delta topic. The delta is folded into this
// client's own view of the set first; post_checksum covers the resulting
// state so receivers can detect divergence after applying it.
func (c *Client) PublishAnchorDelta(delta protocol.AnchorDelta) error {
	if delta.SetID == "" {
		return &spatial.ValidationError{Kind: spatial.MissingField, Field: "set_id", Message: "set_id is required"}
	}
	if delta.Op == protocol.AnchorOpUpsert {
		if err := spatial.ValidateGeoPose(delta.Entry.GeoPose, spatial.UnitNormTolerance); err != nil {
			return err
		}
	}
	delta.Proto = protocol.Version
	delta.Stamp = spatial.Now()
	delta.Entry.Checksum = protocol.EntryChecksum(delta.Entry)
	c.anchors.Apply(&delta)
	entries, _ := c.anchors.Entries(delta.SetID)
	delta.PostChecksum = protocol.SetChecksum(entries)
	return c.publish(topics.AnchorsDelta(delta.SetID), protocol.MsgAnchorDelta, delta, "")
}

// FreshAnnounce waits for an announce on the retained announce topic and
// returns it only when still within its freshness window. Nil means none
// arrived in time or the retained one went stale. The reader is rebuilt
// when ttlSec differs from the previous call, so the policy always
// reflects the caller's TTL.
func (c *Client) FreshAnnounce(ttlSec int64, timeout time.Duration) (*protocol.Announce, error) {
	if c.reader != nil && c.readerTTL != ttlSec {
		c.reader.Close()
		c.reader = nil
	}
	if c.reader == nil {
		reader, err := c.t.NewAnnounceReader(ttlSec)
		if err != nil {
			return nil, err
		}
		c.reader = reader
		c.readerTTL = ttlSec
	}
	env := c.reader.Wait(timeout)
	if env == nil {
		return nil, nil
	}
	ann, err := protocol.DecodeAnnounce(env.Payload)
	if err != nil {
		return nil, err
	}
	if !protocol.Fresh(ann.Stamp, ann.TTLSec) {
		return nil, nil
	}
	return ann, nil
}

func (c *Client) publish(topic, msgType string, body interface{}, requestID string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s - encode %s: %w", clientLogPrefix, msgType, err)
	}
	return c.t.Publish(topic, msgType, payload, requestID)
}

// waitCorrelated drains the inbox for an envelope of the given type whose
// request id matches, until the deadline. Non-matching envelopes of the
// same type belong to another exchange and are discarded.
func (c *Client) waitCorrelated(msgType, requestID string, timeout time.Duration) *transport.Envelope {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			slog.Debug(fmt.Sprintf("%s - %s %s: correlation timeout", clientLogPrefix, msgType, requestID))
			return nil
		}
		env := c.inbox.WaitFor(msgType, remaining)
		if env == nil {
			return nil
		}
		if requestID == "" || env.RequestID == requestID {
			return env
		}
	}
}

// selectTopic resolves a logical role via the configured manifest, falling
// back to the canonical topic when resolution fails or no manifest is set.
func (c *Client) selectTopic(role, fallback string) (string, string) {
	if c.opts.Resolver == nil || c.opts.ManifestURI == "" {
		return fallback, topics.SourceSpec
	}
	m, status := c.opts.Resolver.Resolve(c.opts.ManifestURI, c.opts.ManifestTTLSec)
	if m == nil {
		slog.Debug(fmt.Sprintf("%s - manifest unavailable (%s), using canonical %s", clientLogPrefix, status.Mode, fallback))
		return fallback, topics.SourceFallback
	}
	return manifest.SelectTopic(m.TopicIndex(), role, fallback)
}
