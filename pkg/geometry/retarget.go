package geometry

import "fmt"

// Calibration holds the fixed frame alignment between the VR tracking frame and
// the robot base frame. HRV aligns rotations, HRVStar aligns translations.
type Calibration struct {
	HRV     Affine
	HRVStar Affine
}

// DefaultCalibration returns the alignment for a Quest controller tracked in
// front of a Franka base.
func DefaultCalibration() Calibration {
	return Calibration{
		HRV: Affine{
			{0, 0, -1, 0},
			{0, -1, 0, 0},
			{-1, 0, 0, 0},
			{0, 0, 0, 1},
		},
		HRVStar: Affine{
			{-1, 0, 0, 0},
			{0, 0, -1, 0},
			{0, -1, 0, 0},
			{0, 0, 0, 1},
		},
	}
}

// Validate checks both alignment matrices are invertible.
func (c Calibration) Validate() error {
	if _, err := c.HRV.Inverse(); err != nil {
		return fmt.Errorf("H_R_V: %w", err)
	}
	if _, err := c.HRVStar.Inverse(); err != nil {
		return fmt.Errorf("H_R_V_star: %w", err)
	}
	return nil
}

// RelativeTransform maps the controller motion from init to current into a
// robot-frame relative transform.
//
// The controller delta inverse(init) @ current is conjugated by HRV for the
// rotation block and by HRVStar for the translation block. init must be a
// valid rigid transform; a singular init returns ErrSingular.
func RelativeTransform(init, current Affine, cal Calibration) (Affine, error) {
	initInv, err := init.Inverse()
	if err != nil {
		return Affine{}, fmt.Errorf("initial controller pose: %w", err)
	}
	delta := initInv.Mul(current)

	rot, err := conjugate(delta, cal.HRV)
	if err != nil {
		return Affine{}, fmt.Errorf("H_R_V: %w", err)
	}
	trans, err := conjugate(delta, cal.HRVStar)
	if err != nil {
		return Affine{}, fmt.Errorf("H_R_V_star: %w", err)
	}
	return NewAffine(rot.Rotation(), trans.Translation()), nil
}

// conjugate returns inverse(frame) @ delta @ frame.
func conjugate(delta, frame Affine) (Affine, error) {
	inv, err := frame.Inverse()
	if err != nil {
		return Affine{}, err
	}
	return inv.Mul(delta).Mul(frame), nil
}
