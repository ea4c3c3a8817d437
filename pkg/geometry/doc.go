// Package geometry provides the rigid-transform math used to retarget VR
// controller motion onto the robot end effector.
//
// Affines are 4x4 homogeneous transforms backed by gonum for inversion and
// products. Positions are r3 vectors and orientations are gonum quaternions.
// Quaternions cross the wire in x, y, z, w order.
package geometry
