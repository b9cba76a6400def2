package spatial

import "math"

// minQuaternionNorm is the norm below which a quaternion cannot be
// meaningfully normalized.
const minQuaternionNorm = 1e-9

// UnitNormTolerance is the default tolerance for unit-norm checks.
const UnitNormTolerance = 1e-6

// ValidateQuaternionXYZW checks that q is unit-norm within tolerance.
func ValidateQuaternionXYZW(q [4]float64, tolerance float64) error {
	for i, v := range q {
		if !isFinite(v) {
			return validationErr(BadQuaternion, "q_xyzw", "q_xyzw[%d] is not finite", i)
		}
	}
	norm := quaternionNorm(q)
	if math.Abs(norm-1.0) > tolerance {
		return validationErr(BadQuaternion, "q_xyzw",
			"quaternion is not unit-norm: ||q|| = %.6f (expected 1.0 ± %g)", norm, tolerance)
	}
	return nil
}

// NormalizeQuaternionXYZW scales q to unit length. Near-zero quaternions
// (norm < 1e-9) are rejected.
func NormalizeQuaternionXYZW(q [4]float64) ([4]float64, error) {
	norm := quaternionNorm(q)
	if !isFinite(norm) || norm < minQuaternionNorm {
		return q, validationErr(BadQuaternion, "q_xyzw", "cannot normalize near-zero quaternion")
	}
	return [4]float64{q[0] / norm, q[1] / norm, q[2] / norm, q[3] / norm}, nil
}

func quaternionNorm(q [4]float64) float64 {
	return math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
}
