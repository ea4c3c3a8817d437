package geometry

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a position plus a unit quaternion orientation.
type Pose struct {
	Position    r3.Vector
	Orientation quat.Number
}

// NewPose builds a pose from a position and rotation matrix.
func NewPose(pos r3.Vector, rot Rotation) Pose {
	return Pose{Position: pos, Orientation: rot.Quaternion()}
}

// Rotation returns the orientation as a rotation matrix.
func (p Pose) Rotation() Rotation {
	return RotationFromQuaternion(p.Orientation)
}

// Affine returns the pose as a homogeneous transform.
func (p Pose) Affine() Affine {
	return NewAffine(p.Rotation(), p.Position)
}
