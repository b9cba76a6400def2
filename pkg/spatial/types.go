// Package spatial provides the SpatialDDS geometry and identity model:
// timestamps, reference frames, coverage elements, geoposes, and the
// validation and intersection rules the discovery protocol depends on.
package spatial

import (
	"time"

	"github.com/google/uuid"
)

// FrameEarthFixed is the FQN of the shared earth-fixed reference frame.
const FrameEarthFixed = "earth-fixed"

// SupportedCRS lists the coordinate reference systems accepted for
// earth-fixed bbox coverage.
var SupportedCRS = map[string]bool{
	"EPSG:4979": true,
	"EPSG:4326": true,
}

// frameNamespace seeds deterministic FrameRef UUIDs. Same FQN, same UUID,
// on every process and every call.
var frameNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

// Time is a protocol timestamp split into whole seconds and nanoseconds.
type Time struct {
	Sec     int64  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

// Now returns the current wall-clock time as a protocol Time.
func Now() Time {
	now := time.Now()
	return Time{Sec: now.Unix(), Nanosec: uint32(now.Nanosecond())}
}

// Seconds returns the timestamp as fractional seconds since the epoch.
func (t Time) Seconds() float64 {
	return float64(t.Sec) + float64(t.Nanosec)/1e9
}

// FrameRef identifies a named reference frame. UUID is derived from FQN.
type FrameRef struct {
	UUID string `json:"uuid"`
	FQN  string `json:"fqn"`
}

// NewFrameRef builds a FrameRef whose UUID is a deterministic hash of the
// fully-qualified frame name.
func NewFrameRef(fqn string) FrameRef {
	return FrameRef{
		UUID: uuid.NewSHA1(frameNamespace, []byte(fqn)).String(),
		FQN:  fqn,
	}
}

// EarthFixedFrameRef returns the FrameRef for the shared earth-fixed frame.
func EarthFixedFrameRef() FrameRef {
	return NewFrameRef(FrameEarthFixed)
}

// CoverageType discriminates coverage element geometry.
type CoverageType string

// Coverage element types.
const (
	CoverageBbox   CoverageType = "bbox"
	CoverageVolume CoverageType = "volume"
)

// Aabb is a 3D axis-aligned bounding box in the element's frame.
type Aabb struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// CoverageElement is one piece of a service's or content item's spatial
// footprint. Exactly one of Bbox or Aabb must be present; nil pointers
// preserve field absence on the wire.
type CoverageElement struct {
	Type     CoverageType `json:"type"`
	Bbox     *[4]float64  `json:"bbox,omitempty"` // west, south, east, north (degrees)
	CRS      string       `json:"crs,omitempty"`
	Aabb     *Aabb        `json:"aabb,omitempty"`
	FrameRef *FrameRef    `json:"frame_ref,omitempty"`
	Global   bool         `json:"global,omitempty"`
}

// BboxCoverage builds a single-element earth-fixed bbox coverage.
func BboxCoverage(west, south, east, north float64) []CoverageElement {
	frameRef := EarthFixedFrameRef()
	bbox := [4]float64{west, south, east, north}
	return []CoverageElement{{
		Type:     CoverageBbox,
		Bbox:     &bbox,
		CRS:      "EPSG:4979",
		FrameRef: &frameRef,
	}}
}

// GeoPose is a geographic pose with an orientation quaternion in xyzw order.
type GeoPose struct {
	LatDeg    float64    `json:"lat_deg"`
	LonDeg    float64    `json:"lon_deg"`
	AltM      float64    `json:"alt_m"`
	QXYZW     [4]float64 `json:"q_xyzw"`
	FrameKind string     `json:"frame_kind,omitempty"`
	FrameRef  *FrameRef  `json:"frame_ref,omitempty"`
	Stamp     Time       `json:"stamp"`
	Cov       string     `json:"cov,omitempty"`
}
