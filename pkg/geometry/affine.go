package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Affine is a 4x4 homogeneous rigid transform in row-major order.
// The bottom row is always [0 0 0 1] for transforms built by this package.
type Affine [4][4]float64

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// NewAffine assembles a transform from a rotation block and translation.
func NewAffine(rot Rotation, t r3.Vector) Affine {
	return Affine{
		{rot[0][0], rot[0][1], rot[0][2], t.X},
		{rot[1][0], rot[1][1], rot[1][2], t.Y},
		{rot[2][0], rot[2][1], rot[2][2], t.Z},
		{0, 0, 0, 1},
	}
}

// Translate returns a pure translation.
func Translate(x, y, z float64) Affine {
	return NewAffine(IdentityRotation(), r3.Vector{X: x, Y: y, Z: z})
}

// Rotation returns the top-left 3x3 block.
func (a Affine) Rotation() Rotation {
	var r Rotation
	for i := 0; i < 3; i++ {
		copy(r[i][:], a[i][:3])
	}
	return r
}

// Translation returns the top-right 3x1 block.
func (a Affine) Translation() r3.Vector {
	return r3.Vector{X: a[0][3], Y: a[1][3], Z: a[2][3]}
}

// Dense copies a into a gonum matrix.
func (a Affine) Dense() *mat.Dense {
	data := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		data = append(data, a[i][:]...)
	}
	return mat.NewDense(4, 4, data)
}

func affineFromDense(m mat.Matrix) Affine {
	var a Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a[i][j] = m.At(i, j)
		}
	}
	return a
}

// Mul returns a @ b.
func (a Affine) Mul(b Affine) Affine {
	var out mat.Dense
	out.Mul(a.Dense(), b.Dense())
	return affineFromDense(&out)
}

// Inverse returns the matrix inverse of a, or ErrSingular.
func (a Affine) Inverse() (Affine, error) {
	var inv mat.Dense
	if err := inv.Inverse(a.Dense()); err != nil {
		return Affine{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return affineFromDense(&inv), nil
}

// AlmostEqual reports whether every element of a and b differ by at most tol.
func (a Affine) AlmostEqual(b Affine, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(a[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// Flat returns the matrix as 16 row-major values.
func (a Affine) Flat() [16]float64 {
	var out [16]float64
	for i := 0; i < 4; i++ {
		copy(out[i*4:], a[i][:])
	}
	return out
}

// AffineFromFlat builds a transform from 16 row-major values.
func AffineFromFlat(v [16]float64) Affine {
	var a Affine
	for i := 0; i < 4; i++ {
		copy(a[i][:], v[i*4:i*4+4])
	}
	return a
}
