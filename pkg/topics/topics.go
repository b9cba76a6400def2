// Package topics defines the canonical SpatialDDS topic names and the
// bit-exact naming contract every manifest-supplied topic must satisfy.
package topics

import "fmt"

// Canonical SpatialDDS topics.
const (
	Envelope          = "spatialdds/envelope/v1"
	DiscoveryAnnounce = "spatialdds/discovery/announce/v1"
	CoverageQuery     = "spatialdds/vps/coverage/query/v1"
	CoverageReplies   = "spatialdds/vps/coverage/replies/v1"
	LocalizeRequest   = "spatialdds/vps/localize/request/v1"
	LocalizeResponse  = "spatialdds/vps/localize/response/v1"
	CatalogQuery      = "spatialdds/catalog/query/v1"
	BootstrapQuery    = "spatialdds/bootstrap/query/v1"
	BootstrapResponse = "spatialdds/bootstrap/response/v1"
)

// Sources record where a topic choice came from when a manifest may
// override the canonical name.
const (
	SourceSpec     = "spec"
	SourceManifest = "manifest"
	SourceFallback = "fallback"
	SourceRequest  = "request"
)

// CatalogReplies builds the reply-per-client catalog topic.
func CatalogReplies(clientID string) string {
	return fmt.Sprintf("spatialdds/catalog/replies/%s/v1", clientID)
}

// AnchorsDelta builds the delta topic for a named anchor set.
func AnchorsDelta(setID string) string {
	return fmt.Sprintf("spatialdds/anchors/%s/delta/v1", setID)
}
