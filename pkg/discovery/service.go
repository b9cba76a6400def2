// Package discovery implements the protocol state machines on both sides of
// the bus: the service answers coverage, localize, catalog, and bootstrap
// exchanges; the client issues them and correlates responses by request id.
package discovery

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openarcloud/spatialdds-discovery/pkg/catalog"
	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/registry"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
	"github.com/openarcloud/spatialdds-discovery/pkg/topics"
	"github.com/openarcloud/spatialdds-discovery/pkg/transport"
)

const serviceLogPrefix = "discovery:service"

// ServiceOptions configures a discovery Service.
type ServiceOptions struct {
	// Announce is this service's own advertisement. Required.
	Announce protocol.Announce
	// AnnounceTTLSec bounds announce freshness; defaults to the announce's
	// own ttl_sec.
	AnnounceTTLSec int64
	// Localizer answers localize requests. Nil disables localization.
	Localizer Localizer
	// Catalog answers catalog queries. Nil disables the catalog exchange.
	Catalog *catalog.Service
	// Registry receives this service's announce and any fresh peer
	// announces seen on the bus. Required.
	Registry *registry.Store
	// Domain and ManifestURIs are returned to bootstrap queries.
	Domain       int
	ManifestURIs []string
	BootstrapTTL int64
}

// Service is the responder side of the discovery protocol. Wire it as the
// transport callback; every inbound envelope is dispatched on msg_type.
type Service struct {
	t       *transport.Transport
	opts    ServiceOptions
	anchors *AnchorSets
	writer  *transport.AnnounceWriter
}

// NewService validates the service's own announce and prepares the
// responder. The announce is registered immediately so local searches see
// the service before its first publish.
func NewService(t *transport.Transport, opts ServiceOptions) (*Service, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%s - registry store is required", serviceLogPrefix)
	}
	if err := spatial.ValidateCoverage(opts.Announce.Coverage, opts.Announce.CoverageFrameRef); err != nil {
		return nil, err
	}
	if opts.AnnounceTTLSec == 0 {
		opts.AnnounceTTLSec = opts.Announce.TTLSec
	}
	svc := &Service{
		t:       t,
		opts:    opts,
		anchors: NewAnchorSets(),
	}
	if err := opts.Registry.Register(registry.Entry{Announce: opts.Announce}); err != nil {
		return nil, err
	}
	return svc, nil
}

// Anchors exposes the anchor sets assembled from received deltas.
func (s *Service) Anchors() *AnchorSets {
	return s.anchors
}

// PublishAnnounce stamps and publishes this service's announce on the
// retained announce topic.
func (s *Service) PublishAnnounce() error {
	if s.writer == nil {
		s.writer = s.t.NewAnnounceWriter(s.opts.AnnounceTTLSec)
	}
	ann := s.opts.Announce
	ann.Proto = protocol.Version
	ann.Stamp = spatial.Now()
	if ann.TTLSec == 0 {
		ann.TTLSec = s.opts.AnnounceTTLSec
	}
	payload, err := json.Marshal(ann)
	if err != nil {
		return fmt.Errorf("%s - encode announce: %w", serviceLogPrefix, err)
	}
	return s.writer.Publish(protocol.MsgAnnounce, payload)
}

// HandleEnvelope dispatches one inbound envelope. Intended as the transport
// callback; unknown message types are ignored.
func (s *Service) HandleEnvelope(env *transport.Envelope) {
	switch env.MsgType {
	case protocol.MsgAnnounce:
		s.onAnnounce(env)
	case protocol.MsgCoverageQuery:
		s.onCoverageQuery(env)
	case protocol.MsgLocalizeRequest:
		s.onLocalizeRequest(env)
	case protocol.MsgCatalogQuery:
		s.onCatalogQuery(env)
	case protocol.MsgBootstrapQuery:
		s.onBootstrapQuery(env)
	case protocol.MsgAnchorDelta:
		s.onAnchorDelta(env)
	}
}

// onAnnounce records fresh peer announces so coverage queries can return
// them alongside this service's own.
func (s *Service) onAnnounce(env *transport.Envelope) {
	ann, err := protocol.DecodeAnnounce(env.Payload)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping announce: %v", serviceLogPrefix, err))
		return
	}
	if !protocol.Fresh(ann.Stamp, ann.TTLSec) {
		slog.Debug(fmt.Sprintf("%s - ignoring stale announce from %s", serviceLogPrefix, ann.ServiceID))
		return
	}
	if err := s.opts.Registry.Register(registry.Entry{Announce: *ann}); err != nil {
		slog.Warn(fmt.Sprintf("%s - rejecting peer announce %s: %v", serviceLogPrefix, ann.ServiceID, err))
	}
}

func (s *Service) onCoverageQuery(env *transport.Envelope) {
	var q protocol.CoverageQuery
	if err := decode(env.Payload, &q); err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping coverage query: %v", serviceLogPrefix, err))
		return
	}

	entries := s.opts.Registry.Search(registry.Filter{Coverage: q.Coverage, Expr: q.Expr})
	results := make([]protocol.Announce, 0, len(entries))
	for _, entry := range entries {
		results = append(results, entry.Announce)
	}

	resp := protocol.CoverageResponse{
		Proto:   protocol.Version,
		QueryID: q.QueryID,
		Results: results,
		Stamp:   spatial.Now(),
	}
	replyTopic := q.ReplyTopic
	if replyTopic == "" {
		replyTopic = topics.CoverageReplies
	}
	s.reply(replyTopic, protocol.MsgCoverageResponse, resp, q.QueryID)
	slog.Info(fmt.Sprintf("%s - coverage query %s: %d results", serviceLogPrefix, q.QueryID, len(results)))
}

func (s *Service) onLocalizeRequest(env *transport.Envelope) {
	if s.opts.Localizer == nil {
		return
	}
	var req protocol.LocalizeRequest
	if err := decode(env.Payload, &req); err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping localize request: %v", serviceLogPrefix, err))
		return
	}
	// Requests may address a specific service; answer only our own.
	if req.ServiceID != "" && req.ServiceID != s.opts.Announce.ServiceID {
		return
	}

	pose, quality := s.opts.Localizer.Localize(&req)
	quality.Success = GradeQuality(quality, req.QualityRequirements)

	resp := protocol.LocalizeResponse{
		Proto:     protocol.Version,
		RequestID: req.RequestID,
		ServiceID: s.opts.Announce.ServiceID,
		Quality:   quality,
		Stamp:     spatial.Now(),
	}
	if pose != nil && quality.Success {
		resp.NodeGeo = &protocol.NodeGeo{GeoPose: *pose}
	}
	s.reply(topics.LocalizeResponse, protocol.MsgLocalizeResponse, resp, req.RequestID)
	slog.Info(fmt.Sprintf("%s - localize %s: success=%t confidence=%.2f", serviceLogPrefix, req.RequestID, quality.Success, quality.Confidence))
}

func (s *Service) onCatalogQuery(env *transport.Envelope) {
	if s.opts.Catalog == nil {
		return
	}
	var q protocol.CatalogQuery
	if err := decode(env.Payload, &q); err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping catalog query: %v", serviceLogPrefix, err))
		return
	}
	resp := s.opts.Catalog.Query(&q)
	replyTopic := q.ReplyTopic
	if replyTopic == "" {
		replyTopic = topics.CatalogReplies(q.QueryID)
	}
	s.reply(replyTopic, protocol.MsgCatalogResponse, resp, q.QueryID)
}

func (s *Service) onBootstrapQuery(env *transport.Envelope) {
	if len(s.opts.ManifestURIs) == 0 {
		return
	}
	var q protocol.BootstrapQuery
	if err := decode(env.Payload, &q); err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping bootstrap query: %v", serviceLogPrefix, err))
		return
	}
	resp := protocol.BootstrapResponse{
		Proto:        protocol.Version,
		ClientID:     q.ClientID,
		Domain:       s.opts.Domain,
		ManifestURIs: s.opts.ManifestURIs,
		TTLSec:       s.opts.BootstrapTTL,
		Stamp:        spatial.Now(),
	}
	s.reply(topics.BootstrapResponse, protocol.MsgBootstrapResponse, resp, env.RequestID)
	slog.Info(fmt.Sprintf("%s - bootstrap %s -> domain %d, %d manifests", serviceLogPrefix, q.ClientID, s.opts.Domain, len(s.opts.ManifestURIs)))
}

func (s *Service) onAnchorDelta(env *transport.Envelope) {
	var delta protocol.AnchorDelta
	if err := decode(env.Payload, &delta); err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping anchor delta: %v", serviceLogPrefix, err))
		return
	}
	s.anchors.Apply(&delta)
	if delta.PostChecksum != "" {
		entries, _ := s.anchors.Entries(delta.SetID)
		if sum := protocol.SetChecksum(entries); sum != delta.PostChecksum {
			slog.Warn(fmt.Sprintf("%s - anchor set %s diverged after delta rev=%d", serviceLogPrefix, delta.SetID, delta.Revision))
		}
	}
}

func (s *Service) reply(topic, msgType string, body interface{}, requestID string) {
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - encode %s: %v", serviceLogPrefix, msgType, err))
		return
	}
	if err := s.t.Publish(topic, msgType, payload, requestID); err != nil {
		slog.Error(fmt.Sprintf("%s - publish %s: %v", serviceLogPrefix, msgType, err))
	}
}

// decode unmarshals a payload and enforces the protocol version window.
func decode(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return err
	}
	var versioned struct {
		Proto string `json:"proto"`
	}
	if err := json.Unmarshal(payload, &versioned); err == nil {
		if err := protocol.CheckVersion(versioned.Proto); err != nil {
			return err
		}
	}
	return nil
}
