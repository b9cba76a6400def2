package discovery

import (
	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
)

// Localizer computes a pose fix for one request. Implementations return a
// nil pose when no fix is available; the quality's Success flag is set by
// the service after grading against the request's requirements.
type Localizer interface {
	Localize(req *protocol.LocalizeRequest) (*spatial.GeoPose, protocol.Quality)
}

// GradeQuality applies a request's quality requirements to a result.
// Absent requirements only demand a positive confidence.
func GradeQuality(q protocol.Quality, reqs *protocol.QualityRequirements) bool {
	if q.Confidence <= 0 {
		return false
	}
	if reqs == nil {
		return true
	}
	if reqs.MinConfidence > 0 && q.Confidence < reqs.MinConfidence {
		return false
	}
	if reqs.MaxRMSEm > 0 && q.RMSEm > reqs.MaxRMSEm {
		return false
	}
	return true
}

// StaticLocalizer answers every request with a fixed pose and quality.
// Useful for demos and tests; a real deployment plugs in a VPS backend.
type StaticLocalizer struct {
	Pose       spatial.GeoPose
	Confidence float64
	RMSEm      float64
}

// Localize returns the configured pose stamped at call time.
func (l *StaticLocalizer) Localize(req *protocol.LocalizeRequest) (*spatial.GeoPose, protocol.Quality) {
	pose := l.Pose
	pose.Stamp = spatial.Now()
	if pose.FrameKind == "" {
		pose.FrameKind = spatial.FrameEarthFixed
	}
	return &pose, protocol.Quality{Confidence: l.Confidence, RMSEm: l.RMSEm}
}
