package scene

import (
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// EulerMatrix returns the rotation matrix for XYZ Euler angles in
// radians: X is applied first, then Y, then Z.
func EulerMatrix(rot v3.Vec) sdf.M44 {
	return sdf.RotateZ(rot.Z).Mul(sdf.RotateY(rot.Y)).Mul(sdf.RotateX(rot.X))
}

// EulerInverse returns the inverse of EulerMatrix(rot).
func EulerInverse(rot v3.Vec) sdf.M44 {
	return sdf.RotateX(-rot.X).Mul(sdf.RotateY(-rot.Y)).Mul(sdf.RotateZ(-rot.Z))
}

// RotateEuler rotates a vector by XYZ Euler angles in radians.
func RotateEuler(v, rot v3.Vec) v3.Vec {
	return EulerMatrix(rot).MulPosition(v)
}
