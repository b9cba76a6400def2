// Package protocol defines the SpatialDDS discovery message shapes and the
// shared protocol rules: versioning, freshness, filter expressions,
// pagination tokens, and content checksums.
package protocol

import "github.com/openarcloud/spatialdds-discovery/pkg/spatial"

// Message type discriminators carried in the transport envelope.
const (
	MsgAnnounce          = "ANNOUNCE"
	MsgCoverageQuery     = "COVERAGE_QUERY"
	MsgCoverageResponse  = "COVERAGE_RESPONSE"
	MsgLocalizeRequest   = "LOCALIZE_REQUEST"
	MsgLocalizeResponse  = "LOCALIZE_RESPONSE"
	MsgCatalogQuery      = "CATALOG_QUERY"
	MsgCatalogResponse   = "CATALOG_RESPONSE"
	MsgAnchorDelta       = "ANCHOR_DELTA"
	MsgBootstrapQuery    = "BOOTSTRAP_QUERY"
	MsgBootstrapResponse = "BOOTSTRAP_RESPONSE"
)

// Announce is a service's capability and coverage advertisement.
type Announce struct {
	Proto            string                    `json:"proto,omitempty"`
	ServiceID        string                    `json:"service_id"`
	Name             string                    `json:"name"`
	Kind             string                    `json:"kind"`
	Coverage         []spatial.CoverageElement `json:"coverage"`
	CoverageFrameRef *spatial.FrameRef         `json:"coverage_frame_ref,omitempty"`
	ManifestURI      string                    `json:"manifest_uri,omitempty"`
	TTLSec           int64                     `json:"ttl_sec,omitempty"`
	Stamp            spatial.Time              `json:"stamp"`
	Tags             []string                  `json:"tags,omitempty"`
}

// CoverageQuery asks which services cover the given area.
type CoverageQuery struct {
	Proto            string                    `json:"proto,omitempty"`
	QueryID          string                    `json:"query_id"`
	Coverage         []spatial.CoverageElement `json:"coverage"`
	CoverageFrameRef *spatial.FrameRef         `json:"coverage_frame_ref,omitempty"`
	Expr             string                    `json:"expr,omitempty"`
	ReplyTopic       string                    `json:"reply_topic,omitempty"`
	Stamp            spatial.Time              `json:"stamp"`
	TTLSec           int64                     `json:"ttl_sec,omitempty"`
}

// CoverageResponse returns the announces whose coverage intersected the
// query. Results are re-derived per call, never cached.
type CoverageResponse struct {
	Proto         string       `json:"proto,omitempty"`
	QueryID       string       `json:"query_id"`
	Results       []Announce   `json:"results"`
	NextPageToken string       `json:"next_page_token,omitempty"`
	Stamp         spatial.Time `json:"stamp"`
}

// BlobRef references an out-of-band sensor payload by content hash.
type BlobRef struct {
	MediaType string `json:"media_type"`
	SizeBytes int64  `json:"size_bytes"`
	Hash      string `json:"hash"`
	URI       string `json:"uri,omitempty"`
}

// VisionFrame carries one camera frame's metadata and payload references.
type VisionFrame struct {
	StreamID string       `json:"stream_id"`
	FrameSeq int64        `json:"frame_seq"`
	Codec    string       `json:"codec,omitempty"`
	Stamp    spatial.Time `json:"stamp"`
	Blobs    []BlobRef    `json:"blobs,omitempty"`
}

// QualityRequirements are the thresholds a localize response is graded
// against.
type QualityRequirements struct {
	MaxRMSEm      float64 `json:"max_rmse_m,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

// LocalizeRequest asks a VPS service for a pose fix. RequestID is the
// correlation key for matching the response envelope.
type LocalizeRequest struct {
	Proto               string               `json:"proto,omitempty"`
	RequestID           string               `json:"request_id"`
	ClientFrameRef      *spatial.FrameRef    `json:"client_frame_ref,omitempty"`
	ServiceID           string               `json:"service_id"`
	PriorGeoPose        *spatial.GeoPose     `json:"prior_geopose,omitempty"`
	VisionFrame         *VisionFrame         `json:"vision_frame,omitempty"`
	QualityRequirements *QualityRequirements `json:"quality_requirements,omitempty"`
	Stamp               spatial.Time         `json:"stamp"`
}

// Quality grades a localize result. Success=false is a normal outcome,
// not an error.
type Quality struct {
	Confidence float64 `json:"confidence"`
	RMSEm      float64 `json:"rmse_m"`
	Success    bool    `json:"success"`
}

// NodeGeo anchors a localize result to a geographic pose.
type NodeGeo struct {
	GeoPose spatial.GeoPose `json:"geopose"`
}

// LocalizeResponse is the correlated answer to a LocalizeRequest.
type LocalizeResponse struct {
	Proto     string       `json:"proto,omitempty"`
	RequestID string       `json:"request_id"`
	ServiceID string       `json:"service_id"`
	NodeGeo   *NodeGeo     `json:"node_geo,omitempty"`
	Quality   Quality      `json:"quality"`
	Stamp     spatial.Time `json:"stamp"`
}

// CatalogEntry is one content item in a catalog dataset.
type CatalogEntry struct {
	ContentID  string                    `json:"content_id"`
	Kind       string                    `json:"kind"`
	Title      string                    `json:"title,omitempty"`
	Coverage   []spatial.CoverageElement `json:"coverage,omitempty"`
	UpdatedSec int64                     `json:"updated_sec"`
	URI        string                    `json:"uri,omitempty"`
	Tags       []string                  `json:"tags,omitempty"`
}

// CatalogQuery asks for content intersecting the given coverage.
type CatalogQuery struct {
	Proto            string                    `json:"proto,omitempty"`
	QueryID          string                    `json:"query_id"`
	ReplyTopic       string                    `json:"reply_topic"`
	Coverage         []spatial.CoverageElement `json:"coverage,omitempty"`
	CoverageFrameRef *spatial.FrameRef         `json:"coverage_frame_ref,omitempty"`
	Expr             string                    `json:"expr,omitempty"`
	Limit            int                       `json:"limit,omitempty"`
	PageToken        string                    `json:"page_token,omitempty"`
	Stamp            spatial.Time              `json:"stamp"`
	TTLSec           int64                     `json:"ttl_sec,omitempty"`
}

// CatalogResponse is one page of catalog results.
type CatalogResponse struct {
	Proto         string         `json:"proto,omitempty"`
	QueryID       string         `json:"query_id"`
	Results       []CatalogEntry `json:"results"`
	NextPageToken string         `json:"next_page_token,omitempty"`
	Stamp         spatial.Time   `json:"stamp"`
}

// AnchorEntry is one anchor's pose and integrity checksum.
type AnchorEntry struct {
	AnchorID   string          `json:"anchor_id"`
	GeoPose    spatial.GeoPose `json:"geopose"`
	Confidence float64         `json:"confidence"`
	Checksum   string          `json:"checksum,omitempty"`
}

// Anchor delta operations.
const (
	AnchorOpUpsert = "upsert"
	AnchorOpRemove = "remove"
)

// AnchorDelta is a fire-and-forget incremental anchor-set update. The
// checksums carry integrity, not identity, and are never re-verified
// against the bus.
type AnchorDelta struct {
	Proto        string       `json:"proto,omitempty"`
	SetID        string       `json:"set_id"`
	Op           string       `json:"op"`
	Entry        AnchorEntry  `json:"entry"`
	Revision     int64        `json:"revision"`
	PostChecksum string       `json:"post_checksum,omitempty"`
	Stamp        spatial.Time `json:"stamp"`
}

// BootstrapQuery asks the bootstrap service for the site's transport
// domain and manifest URIs.
type BootstrapQuery struct {
	Proto        string       `json:"proto,omitempty"`
	ClientID     string       `json:"client_id"`
	ClientKind   string       `json:"client_kind,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty"`
	LocationHint string       `json:"location_hint,omitempty"`
	Stamp        spatial.Time `json:"stamp"`
}

// BootstrapResponse returns the transport domain and manifests for a site.
type BootstrapResponse struct {
	Proto        string       `json:"proto,omitempty"`
	ClientID     string       `json:"client_id"`
	Domain       int          `json:"domain"`
	ManifestURIs []string     `json:"manifest_uris,omitempty"`
	TTLSec       int64        `json:"ttl_sec,omitempty"`
	Stamp        spatial.Time `json:"stamp"`
}
