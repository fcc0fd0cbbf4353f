// Package geo implements spec.md §4.G's solution exports: the home-point
// latch, flown-distance integrator, and local-tangent distance/bearing
// queries. It is grounded on the original's GPS_reset_home_position,
// GPS_calculateDistanceFlown, and GPS_distance_cm_bearing (io/gps.c), kept
// as a flat-earth approximation rather than the teacher's great-circle
// geo.Point helpers — that approximation is the original's actual
// production behaviour, not a simplification introduced here.
package geo

import (
	"math"

	"github.com/bramburn/fc-gps/internal/solution"
)

// degreesDivider is the fixed-point scale of lat/lon (1e-7 degrees).
const degreesDivider = 1e7

// earthAngleToCm is centimetres per integer unit of 1e-7 degrees of
// latitude (or of longitude at the equator), i.e. 1.113195 cm per unit —
// the exact constant the original carries inline as EARTH_ANGLE_TO_CM.
const earthAngleToCm = 1.113195

// minFlownSpeedCmS is the speed floor below which movement is not counted
// towards FlownDistanceCm, matching GPS_DISTANCE_FLOWN_MIN_SPEED_THRESHOLD_CM_S.
const minFlownSpeedCmS = 15

// Point is a position snapshot distance/bearing math operates on: fixed-
// point lat/lon (1e-7 degrees) and altitude (cm).
type Point struct {
	LatDeg7 int32
	LonDeg7 int32
	AltCm   int32
}

// Home tracks the latched home position, its longitude-scaling cosine, and
// the flown-distance accumulator and last-position memory needed to
// integrate it tick by tick.
type Home struct {
	set    bool
	pos    Point
	cosLat float64

	flownCm  uint32
	lastPos  Point
	haveLast bool
}

// IsSet reports whether ResetHome has ever latched a home position.
func (h *Home) IsSet() bool { return h.set }

// Position returns the latched home position; valid only when IsSet.
func (h *Home) Position() Point { return h.pos }

// ResetHome latches the current position as home when FIX is set and the
// satellite count meets minSats, recomputing the cached longitude-scaling
// cosine (spec.md §4.G). When keepAcrossArms is true and home is already
// set, the home position is kept and only the flown-distance accumulator is
// reset — this is gps_set_home_point_once (spec.md §6).
func (h *Home) ResetHome(sol *solution.Solution, minSats uint8, keepAcrossArms bool) {
	if h.set && keepAcrossArms {
		h.flownCm = 0
		h.haveLast = false
		return
	}
	if sol.Fix && sol.NumSat >= minSats {
		h.pos = Point{LatDeg7: sol.LatDeg7, LonDeg7: sol.LonDeg7, AltCm: sol.AltCm}
		h.cosLat = math.Cos(degToRad(float64(sol.LatDeg7) / degreesDivider))
		h.set = true
	}
	h.flownCm = 0
	h.haveLast = false
}

// FlownDistanceCm returns the cumulative distance flown since the last
// ResetHome, in centimetres.
func (h *Home) FlownDistanceCm() uint32 { return h.flownCm }

// OnNewData is the single entry point spec.md §4.G names: it updates the
// home distance/bearing outputs and, when armed, accumulates flown
// distance. The stamp bump (spec.md §3's "incremented exactly once per
// accepted nav solution") happens here, the one call site solution.go's
// BumpStamp indirection exists for.
func (h *Home) OnNewData(sol *solution.Solution, armed, use3DSpeed bool) (distCm uint32, bearingCentiDeg int32) {
	solution.BumpStamp(sol)

	here := Point{LatDeg7: sol.LatDeg7, LonDeg7: sol.LonDeg7, AltCm: sol.AltCm}

	if h.set {
		distCm, bearingCentiDeg = DistanceCmBearing(here, h.pos, h.cosLat, false)
	}

	if armed && h.set {
		speed := sol.GroundSpeedCmS
		if use3DSpeed {
			speed = sol.Speed3DCmS
		}
		if h.haveLast && speed > minFlownSpeedCmS {
			dist, _ := DistanceCmBearing(here, h.lastPos, h.cosLat, use3DSpeed)
			h.flownCm += dist
		}
	}
	h.lastPos = here
	h.haveLast = true

	return distCm, bearingCentiDeg
}

// DistanceCmBearing computes the local-tangent-plane distance (cm) and
// bearing (centidegrees, normalised to [0, 36000)) from `from` to `to`,
// using a caller-supplied cached cos(lat) for longitude scaling — exactly
// GPS_distance_cm_bearing's spherical-to-Cartesian approximation, valid
// only over the short ranges a flight controller actually needs.
func DistanceCmBearing(from, to Point, cosLat float64, in3D bool) (distCm uint32, bearingCentiDeg int32) {
	dLat := float64(to.LatDeg7-from.LatDeg7) * earthAngleToCm
	dLon := float64(to.LonDeg7-from.LonDeg7) * cosLat * earthAngleToCm
	var dAlt float64
	if in3D {
		dAlt = float64(to.AltCm - from.AltCm)
	}

	dist := math.Sqrt(dLat*dLat + dLon*dLon + dAlt*dAlt)

	bearing := 9000.0 - radToDeg(math.Atan2(dLat, dLon))*100.0
	if bearing < 0 {
		bearing += 36000
	}

	return uint32(dist), int32(bearing)
}

func degToRad(d float64) float64 { return d * math.Pi / 180.0 }
func radToDeg(r float64) float64 { return r * 180.0 / math.Pi }
