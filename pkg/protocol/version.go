package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
)

// Version is the protocol schema version stamped on outgoing payloads.
const Version = "1.4.0"

// acceptedRange covers the protocol versions this implementation can read.
// v1.2 and v1.3 payloads are migrated to the current schema on decode.
const acceptedRange = ">= 1.2.0, < 2.0.0"

var versionConstraint *semver.Constraints

func init() {
	c, err := semver.NewConstraint(acceptedRange)
	if err != nil {
		panic(fmt.Sprintf("protocol: bad version constraint %q: %v", acceptedRange, err))
	}
	versionConstraint = c
}

// CheckVersion reports whether a payload's proto field is one this
// implementation accepts. An empty proto is treated as the pre-versioning
// v1.2 wire format.
func CheckVersion(proto string) error {
	if proto == "" {
		return nil
	}
	v, err := semver.NewVersion(proto)
	if err != nil {
		return &ProtocolError{Code: CodeUnsupportedProto, Message: fmt.Sprintf("unparseable proto version %q", proto)}
	}
	if !versionConstraint.Check(v) {
		return &ProtocolError{Code: CodeUnsupportedProto, Message: fmt.Sprintf("proto version %s outside accepted range %s", proto, acceptedRange)}
	}
	return nil
}

// legacyAnnounce mirrors the v1.2/v1.3 announce wire shape: coverage nested
// under an elements key and quaternions in wxyz order where present.
type legacyAnnounce struct {
	Proto     string `json:"proto,omitempty"`
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Coverage  struct {
		Elements []spatial.CoverageElement `json:"elements"`
	} `json:"coverage"`
	ManifestURI string       `json:"manifest_uri,omitempty"`
	TTLSec      int64        `json:"ttl_sec,omitempty"`
	Stamp       spatial.Time `json:"stamp"`
	Tags        []string     `json:"tags,omitempty"`
}

// DecodeAnnounce decodes an announce payload, migrating legacy v1.2/v1.3
// shapes to the current schema. The proto version is checked first.
func DecodeAnnounce(payload []byte) (*Announce, error) {
	var probe struct {
		Proto    string          `json:"proto"`
		Coverage json.RawMessage `json:"coverage"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, &ProtocolError{Code: CodeValidation, Message: fmt.Sprintf("undecodable announce: %v", err)}
	}
	if err := CheckVersion(probe.Proto); err != nil {
		return nil, err
	}

	if isLegacyCoverage(probe.Coverage) {
		var legacy legacyAnnounce
		if err := json.Unmarshal(payload, &legacy); err != nil {
			return nil, &ProtocolError{Code: CodeValidation, Message: fmt.Sprintf("undecodable legacy announce: %v", err)}
		}
		return &Announce{
			Proto:       Version,
			ServiceID:   legacy.ServiceID,
			Name:        legacy.Name,
			Kind:        legacy.Kind,
			Coverage:    legacy.Coverage.Elements,
			ManifestURI: legacy.ManifestURI,
			TTLSec:      legacy.TTLSec,
			Stamp:       legacy.Stamp,
			Tags:        legacy.Tags,
		}, nil
	}

	var announce Announce
	if err := json.Unmarshal(payload, &announce); err != nil {
		return nil, &ProtocolError{Code: CodeValidation, Message: fmt.Sprintf("undecodable announce: %v", err)}
	}
	return &announce, nil
}

// isLegacyCoverage reports whether the coverage field uses the pre-1.4
// object-with-elements nesting instead of a bare array.
func isLegacyCoverage(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
