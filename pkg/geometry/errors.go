package geometry

import "errors"

// ErrSingular is returned when a transform that must be inverted has no inverse.
// Callers are expected to only pass previously captured rigid poses, so seeing
// this error means a precondition was violated upstream.
var ErrSingular = errors.New("geometry: singular transform")
