package spatial

import (
	"fmt"
	"math"
)

const maxNanosec = 1_000_000_000

// ValidateTime checks that the nanosecond component is within [0, 1e9).
func ValidateTime(t Time) error {
	if t.Nanosec >= maxNanosec {
		return validationErr(OutOfRange, "nanosec", "nanosec %d out of range [0, 1e9)", t.Nanosec)
	}
	return nil
}

// ValidateFrameRef checks that both identity fields are present.
func ValidateFrameRef(f FrameRef) error {
	if f.UUID == "" {
		return validationErr(MissingField, "uuid", "frame ref uuid is empty")
	}
	if f.FQN == "" {
		return validationErr(MissingField, "fqn", "frame ref fqn is empty")
	}
	return nil
}

// ValidateCoverageElement checks a single coverage element. coverageFrameRef
// is the coverage-level frame used when the element carries none; nil means
// no coverage-level frame.
func ValidateCoverageElement(elem CoverageElement, coverageFrameRef *FrameRef) error {
	if elem.Type == "" {
		return validationErr(MissingField, "type", "coverage element type is empty")
	}
	if elem.Type != CoverageBbox && elem.Type != CoverageVolume {
		return validationErr(BadGeometry, "type", "unknown coverage type %q", elem.Type)
	}

	hasBbox := elem.Bbox != nil
	hasAabb := elem.Aabb != nil
	if !hasBbox && !hasAabb {
		return validationErr(BadGeometry, "bbox", "coverage element carries neither bbox nor aabb")
	}
	if hasBbox && hasAabb {
		return validationErr(BadGeometry, "bbox", "coverage element carries both bbox and aabb")
	}

	if elem.FrameRef != nil {
		if err := ValidateFrameRef(*elem.FrameRef); err != nil {
			return err
		}
	}

	if hasBbox {
		for i, v := range elem.Bbox {
			if !isFinite(v) {
				return validationErr(OutOfRange, "bbox", "bbox[%d] is not finite", i)
			}
		}
		if isEarthFixed(elem, coverageFrameRef) {
			if elem.CRS == "" {
				return validationErr(MissingField, "crs", "earth-fixed bbox requires a crs")
			}
			if !SupportedCRS[elem.CRS] {
				return validationErr(OutOfRange, "crs", "unsupported crs %q", elem.CRS)
			}
		}
	}

	if hasAabb {
		for i := 0; i < 3; i++ {
			if !isFinite(elem.Aabb.Min[i]) {
				return validationErr(OutOfRange, "aabb.min", "aabb.min[%d] is not finite", i)
			}
			if !isFinite(elem.Aabb.Max[i]) {
				return validationErr(OutOfRange, "aabb.max", "aabb.max[%d] is not finite", i)
			}
		}
	}

	return nil
}

// ValidateCoverage checks a coverage set: it must be non-empty and every
// element must be valid. Element errors carry the element index.
func ValidateCoverage(elements []CoverageElement, coverageFrameRef *FrameRef) error {
	if len(elements) == 0 {
		return validationErr(MissingField, "coverage", "coverage must have at least one element")
	}
	for i, elem := range elements {
		if err := ValidateCoverageElement(elem, coverageFrameRef); err != nil {
			if verr, ok := err.(*ValidationError); ok {
				return validationErr(verr.Kind, fmt.Sprintf("coverage[%d].%s", i, verr.Field), "%s", verr.Message)
			}
			return err
		}
	}
	return nil
}

// ValidateGeoPose checks coordinate ranges and the orientation quaternion.
func ValidateGeoPose(pose GeoPose, tolerance float64) error {
	if !isFinite(pose.LatDeg) || pose.LatDeg < -90 || pose.LatDeg > 90 {
		return validationErr(OutOfRange, "lat_deg", "latitude %v out of range [-90, 90]", pose.LatDeg)
	}
	if !isFinite(pose.LonDeg) || pose.LonDeg < -180 || pose.LonDeg > 180 {
		return validationErr(OutOfRange, "lon_deg", "longitude %v out of range [-180, 180]", pose.LonDeg)
	}
	if !isFinite(pose.AltM) {
		return validationErr(OutOfRange, "alt_m", "altitude is not finite")
	}
	if err := ValidateQuaternionXYZW(pose.QXYZW, tolerance); err != nil {
		return err
	}
	return ValidateTime(pose.Stamp)
}

// isEarthFixed reports whether the effective frame for an element is the
// earth-fixed frame. An explicit Global flag counts as earth-fixed.
func isEarthFixed(elem CoverageElement, coverageFrameRef *FrameRef) bool {
	if elem.Global {
		return true
	}
	frame := elem.FrameRef
	if frame == nil {
		frame = coverageFrameRef
	}
	return frame != nil && frame.FQN == FrameEarthFixed
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
