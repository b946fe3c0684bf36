package template

import (
	"math"
	"math/rand"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// radians converts degrees to radians.
func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// radiansVec converts a per-axis degree vector to radians.
func radiansVec(deg v3.Vec) v3.Vec {
	return v3.Vec{X: radians(deg.X), Y: radians(deg.Y), Z: radians(deg.Z)}
}

// uniform draws a sample from [lo, hi).
func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// trackEuler returns the XYZ Euler rotation that aims the +Y axis
// along dir while keeping +Z as the up reference. A zero direction
// yields the identity rotation.
func trackEuler(dir v3.Vec) v3.Vec {
	flat := math.Hypot(dir.X, dir.Y)
	if flat == 0 && dir.Z == 0 {
		return v3.Vec{}
	}
	return v3.Vec{
		X: math.Atan2(dir.Z, flat),
		Z: math.Atan2(-dir.X, dir.Y),
	}
}
