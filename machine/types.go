// Package machine is the layer between the G-code interpreter and the
// motion core. It keeps modal state and executes commands, passing
// stateless canonical moves to the planner queue.
package machine

import "gomill/core"

// MotionMode is the active G-code motion mode.
type MotionMode uint8

const (
	MotionRapid         MotionMode = iota // G0
	MotionFeed                            // G1
	MotionCWArc                           // G2
	MotionCCWArc                          // G3
	MotionProbeCloseErr                   // G38.2
	MotionProbeClose                      // G38.3
	MotionProbeOpenErr                    // G38.4
	MotionProbeOpen                       // G38.5
	MotionSeekCloseErr
	MotionSeekClose
	MotionSeekOpenErr
	MotionSeekOpen
	MotionCancel // G80
)

// Plane selects the arc plane.
type Plane uint8

const (
	PlaneXY Plane = iota // G17
	PlaneXZ              // G18
	PlaneYZ              // G19
)

// Units is the input unit mode.
type Units uint8

const (
	Millimeters Units = iota // G21
	Inches                   // G20
)

// DistanceMode selects absolute or incremental target interpretation.
type DistanceMode uint8

const (
	AbsoluteMode    DistanceMode = iota // G90
	IncrementalMode                     // G91
)

// FeedMode selects how the F word is interpreted.
type FeedMode uint8

const (
	UnitsPerMinute FeedMode = iota // G94
	InverseTime                    // G93
)

// PathMode selects the path control mode.
type PathMode uint8

const (
	PathExactPath  PathMode = iota // G61
	PathExactStop                  // G61.1
	PathContinuous                 // G64
)

// CoordSystem selects the work coordinate system G54..G59.
type CoordSystem uint8

const (
	G54 CoordSystem = iota
	G55
	G56
	G57
	G58
	G59
	Coords // count
)

// G-code modal defaults applied at init and program end.
const (
	DefaultUnits           = Millimeters
	DefaultCoordSystem     = G54
	DefaultPlane           = PlaneXY
	DefaultPathMode        = PathContinuous
	DefaultDistanceMode    = AbsoluteMode
	DefaultArcDistanceMode = IncrementalMode
)

// GCodeState is the core G-code model state.
type GCodeState struct {
	Line int32

	FeedRate float64 // mm/min, or minutes when feed mode is inverse time
	FeedMode FeedMode

	MotionMode      MotionMode
	Plane           Plane
	Units           Units
	DistanceMode    DistanceMode
	ArcDistanceMode DistanceMode
	CoordSystem     CoordSystem
	AbsoluteMode    bool // G53 absolute override
	PathMode        PathMode

	Tool int

	FeedOverride          float64
	FeedOverrideEnable    bool
	SpindleOverride       float64
	SpindleOverrideEnable bool
}

// planeAxes returns the two in-plane axes and the linear axis normal to
// the selected plane.
func planeAxes(plane Plane) (axis0, axis1, linear int) {
	switch plane {
	case PlaneXZ:
		return core.AxisX, core.AxisZ, core.AxisY
	case PlaneYZ:
		return core.AxisY, core.AxisZ, core.AxisX
	}
	return core.AxisX, core.AxisY, core.AxisZ
}
