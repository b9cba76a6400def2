package spatial

// Intersects reports whether any element of coverageA overlaps any element
// of coverageB. Only bbox-vs-bbox pairs are compared; overlap is
// closed-interval, so touching edges count. Longitude is treated as a flat
// scalar: antimeridian wraparound is a known approximation, not handled.
func Intersects(coverageA, coverageB []CoverageElement) bool {
	for _, a := range coverageA {
		if a.Bbox == nil {
			continue
		}
		for _, b := range coverageB {
			if b.Bbox == nil {
				continue
			}
			if bboxOverlap(*a.Bbox, *b.Bbox) {
				return true
			}
		}
	}
	return false
}

// bboxOverlap checks 2D overlap of [west, south, east, north] boxes.
func bboxOverlap(a, b [4]float64) bool {
	if a[2] < b[0] || b[2] < a[0] {
		return false
	}
	if a[3] < b[1] || b[3] < a[1] {
		return false
	}
	return true
}
