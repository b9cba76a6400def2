package spatial

import (
	"fmt"
	"regexp"
)

// spatialURIPattern matches spatialdds://<authority>/zone:<zone_id>/<rtype>:<rid>.
var spatialURIPattern = regexp.MustCompile(`^spatialdds://([^/]+)/zone:([^/]+)/([^:]+):(.+)$`)

// validResourceTypes is the whitelist of resource types a spatial URI may name.
var validResourceTypes = map[string]bool{
	"service": true, "anchor": true, "tile": true, "node": true,
	"edge": true, "feature": true, "blob": true, "manifest": true,
	"query": true, "response": true, "client": true, "request": true,
}

// SpatialURI is a parsed spatialdds:// resource identifier.
type SpatialURI struct {
	Authority string
	ZoneID    string
	RType     string
	RID       string
}

// String formats the URI back to its canonical form.
func (u SpatialURI) String() string {
	return fmt.Sprintf("spatialdds://%s/zone:%s/%s:%s", u.Authority, u.ZoneID, u.RType, u.RID)
}

// ParseSpatialURI validates and parses a spatialdds:// URI.
func ParseSpatialURI(uri string) (SpatialURI, error) {
	if uri == "" {
		return SpatialURI{}, validationErr(MissingField, "uri", "uri is empty")
	}
	m := spatialURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return SpatialURI{}, validationErr(BadGeometry, "uri",
			"invalid SpatialDDS URI %q, expected spatialdds://<authority>/zone:<zone_id>/<rtype>:<rid>", uri)
	}
	parsed := SpatialURI{Authority: m[1], ZoneID: m[2], RType: m[3], RID: m[4]}
	if !validResourceTypes[parsed.RType] {
		return SpatialURI{}, validationErr(OutOfRange, "uri", "invalid resource type %q", parsed.RType)
	}
	return parsed, nil
}
