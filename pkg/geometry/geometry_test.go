package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
)

const tol = 1e-9

func rotZ(theta float64) Rotation {
	c, s := math.Cos(theta), math.Sin(theta)
	return Rotation{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

func rotX(theta float64) Rotation {
	c, s := math.Cos(theta), math.Sin(theta)
	return Rotation{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func TestRelativeTransform_SamePoseIsIdentity(t *testing.T) {
	poses := []Affine{
		Identity(),
		Translate(0.3, -0.2, 1.1),
		NewAffine(rotZ(0.7), r3.Vector{X: 1, Y: 2, Z: 3}),
		NewAffine(rotX(-1.2).Mul(rotZ(2.1)), r3.Vector{X: -0.5, Y: 0.01, Z: 0.4}),
	}
	for _, cal := range []Calibration{DefaultCalibration(), {HRV: Identity(), HRVStar: Identity()}} {
		for _, p := range poses {
			rel, err := RelativeTransform(p, p, cal)
			require.NoError(t, err)
			assert.True(t, rel.AlmostEqual(Identity(), tol), "got %v", rel)
		}
	}
}

func TestRelativeTransform_LocalTranslation(t *testing.T) {
	cal := Calibration{HRV: Identity(), HRVStar: Identity()}

	rel, err := RelativeTransform(Identity(), Translate(0.1, 0, 0), cal)
	require.NoError(t, err)

	tr := rel.Translation()
	assert.InDelta(t, 0.1, tr.X, tol)
	assert.InDelta(t, 0, tr.Y, tol)
	assert.InDelta(t, 0, tr.Z, tol)
	assert.True(t, rel.Rotation().AlmostEqual(IdentityRotation(), tol))
	assert.Equal(t, [4]float64{0, 0, 0, 1}, rel[3])
}

func TestRelativeTransform_DeltaIsInControllerFrame(t *testing.T) {
	cal := Calibration{HRV: Identity(), HRVStar: Identity()}
	// Controller rotated 90 degrees about z; moving along its local x moves world y.
	init := NewAffine(rotZ(math.Pi/2), r3.Vector{X: 1, Y: 1, Z: 0})
	current := init.Mul(Translate(0.2, 0, 0))

	rel, err := RelativeTransform(init, current, cal)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, rel.Translation().X, tol)
	assert.InDelta(t, 0, rel.Translation().Y, tol)
}

func TestRelativeTransform_AppliesAlignment(t *testing.T) {
	cal := DefaultCalibration()
	rel, err := RelativeTransform(Identity(), Translate(0.1, 0, 0), cal)
	require.NoError(t, err)

	inv, err := cal.HRVStar.Inverse()
	require.NoError(t, err)
	want := inv.Mul(Translate(0.1, 0, 0)).Mul(cal.HRVStar).Translation()
	assert.InDelta(t, want.X, rel.Translation().X, tol)
	assert.InDelta(t, want.Y, rel.Translation().Y, tol)
	assert.InDelta(t, want.Z, rel.Translation().Z, tol)
}

func TestRelativeTransform_SingularInit(t *testing.T) {
	var singular Affine
	singular[3][3] = 1

	_, err := RelativeTransform(singular, Identity(), DefaultCalibration())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingular))
}

func TestCalibration_Validate(t *testing.T) {
	assert.NoError(t, DefaultCalibration().Validate())
	assert.ErrorIs(t, Calibration{HRV: Identity()}.Validate(), ErrSingular)
}

func TestRotationQuaternionRoundTrip(t *testing.T) {
	rots := []Rotation{
		IdentityRotation(),
		rotZ(0.3),
		rotZ(math.Pi),
		rotX(2.5).Mul(rotZ(-1.1)),
		DefaultCalibration().HRV.Rotation(),
	}
	for _, r := range rots {
		q := r.Quaternion()
		assert.InDelta(t, 1, quat.Abs(q), tol)
		assert.True(t, RotationFromQuaternion(q).AlmostEqual(r, 1e-9), "rotation %v via %v", r, q)
	}
}

func TestRotationFromQuaternion_ZeroIsIdentity(t *testing.T) {
	assert.Equal(t, IdentityRotation(), RotationFromQuaternion(quat.Number{}))
}

func TestXYZWOrder(t *testing.T) {
	q := quat.Number{Real: 0.5, Imag: 0.1, Jmag: 0.2, Kmag: 0.3}
	assert.Equal(t, [4]float64{0.1, 0.2, 0.3, 0.5}, XYZW(q))
	assert.Equal(t, q, QuaternionFromXYZW(XYZW(q)))
}

func TestWorkspace_Clamp(t *testing.T) {
	ws := Workspace{
		Min: r3.Vector{X: -0.1, Y: -0.4, Z: 0.05},
		Max: r3.Vector{X: 0.75, Y: 0.4, Z: 0.7},
	}

	inside := r3.Vector{X: 0.3, Y: 0, Z: 0.3}
	assert.Equal(t, inside, ws.Clamp(inside))
	assert.True(t, ws.Contains(inside))

	got := ws.Clamp(r3.Vector{X: 2, Y: 0.1, Z: -1})
	assert.Equal(t, r3.Vector{X: 0.75, Y: 0.1, Z: 0.05}, got)
	assert.Equal(t, got, ws.Clamp(got), "clamp must be idempotent")
	assert.False(t, ws.Contains(r3.Vector{X: 2}))
}

func TestWorkspace_Validate(t *testing.T) {
	assert.NoError(t, Workspace{Max: r3.Vector{X: 1, Y: 1, Z: 1}}.Validate())
	assert.Error(t, Workspace{Min: r3.Vector{Y: 1}}.Validate())
}

func TestAffineFlatRoundTrip(t *testing.T) {
	a := NewAffine(rotZ(0.4), r3.Vector{X: 1, Y: 2, Z: 3})
	assert.Equal(t, a, AffineFromFlat(a.Flat()))
}
