package models

import "gonum.org/v1/gonum/spatial/r3"

// Axis returns the x, y or z component of v for axis 0, 1 or 2.
func Axis(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	default:
		panic("illegal axis")
	}
}

// SetAxis sets the x, y or z component of v for axis 0, 1 or 2.
func SetAxis(v *r3.Vec, axis int, val float64) {
	switch axis {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	case 2:
		v.Z = val
	default:
		panic("illegal axis")
	}
}
