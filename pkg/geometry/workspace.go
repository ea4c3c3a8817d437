package geometry

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Workspace is an axis-aligned box the commanded end effector must stay in.
type Workspace struct {
	Min r3.Vector
	Max r3.Vector
}

// Validate checks that Min does not exceed Max on any axis.
func (w Workspace) Validate() error {
	if w.Min.X > w.Max.X || w.Min.Y > w.Max.Y || w.Min.Z > w.Max.Z {
		return fmt.Errorf("workspace min %v exceeds max %v", w.Min, w.Max)
	}
	return nil
}

// Clamp pulls p into the box one axis at a time.
func (w Workspace) Clamp(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: clamp(p.X, w.Min.X, w.Max.X),
		Y: clamp(p.Y, w.Min.Y, w.Max.Y),
		Z: clamp(p.Z, w.Min.Z, w.Max.Z),
	}
}

// Contains reports whether p lies inside the box, bounds included.
func (w Workspace) Contains(p r3.Vector) bool {
	return p == w.Clamp(p)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
