package models

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// OrphanID is the reserved trajectory identifier carried by samples that the
// tracker could not assign to any trajectory.
const OrphanID = -1

// Sample represents one time-stamped observation of a tracked particle
type Sample struct {
	// TrajectoryID groups the samples of one physical path
	TrajectoryID int

	// Position, Velocity and Acceleration are the 3-D kinematic state
	Position     r3.Vec
	Velocity     r3.Vec
	Acceleration r3.Vec

	// Time is the frame index or timestamp of the observation
	Time float64

	// Interpolated marks samples synthesized to fill a stitched gap
	Interpolated bool
}

// IsOrphan reports whether the sample carries the reserved unassigned id.
func (s Sample) IsOrphan() bool {
	return s.TrajectoryID == OrphanID
}

// Candidate is a proposed connection from the end of trajectory Source to
// the start of trajectory Target.
type Candidate struct {
	Source int
	Target int

	// Gap is the time between the last sample of Source and the first
	// sample of Target. Always in (0, Ts].
	Gap float64

	// Score is the combined position/velocity residual. Always <= dm.
	Score float64
}

// Connection records an applied candidate together with the id its target
// resolved to at the moment it was applied.
type Connection struct {
	Candidate

	// Resolved is the surviving trajectory id the source was merged into
	Resolved int

	// Interpolated is the number of samples synthesized for the gap
	Interpolated int
}
