package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/fc-gps/internal/solution"
)

func fixedSolution(lat, lon, alt int32, numSat uint8) *solution.Solution {
	sol := solution.NewSolution()
	sol.Fix = true
	sol.LatDeg7 = lat
	sol.LonDeg7 = lon
	sol.AltCm = alt
	sol.NumSat = numSat
	return sol
}

// Spec scenario: after exactly one reset_home() with FIX and sufficient
// sats, distance_cm_bearing(home, home, false) returns (0, *).
func TestResetHomeThenSelfDistanceIsZero(t *testing.T) {
	var h Home
	sol := fixedSolution(123456789, -12345678, 5000, 8)
	h.ResetHome(sol, 5, false)
	require.True(t, h.IsSet())

	dist, _ := DistanceCmBearing(h.Position(), h.Position(), h.cosLat, false)
	assert.Zero(t, dist)
}

// ResetHome keeps an already-latched home position when
// gps_set_home_point_once keeps it across arms.
func TestResetHomeKeepsAcrossArmsWhenConfigured(t *testing.T) {
	var h Home
	first := fixedSolution(100, 200, 300, 8)
	h.ResetHome(first, 5, false)
	original := h.Position()

	second := fixedSolution(999, 999, 999, 8)
	h.ResetHome(second, 5, true)

	assert.Equal(t, original, h.Position())
}

// ResetHome below the minimum satellite count does not latch home.
func TestResetHomeRequiresMinSats(t *testing.T) {
	var h Home
	sol := fixedSolution(100, 200, 300, 3)
	h.ResetHome(sol, 5, false)
	assert.False(t, h.IsSet())
}

// on_new_data is idempotent with respect to a repeated identical solution:
// flown_distance_cm's increment is zero when successive positions match,
// even though speed exceeds the movement threshold.
func TestOnNewDataIdempotentForRepeatedPosition(t *testing.T) {
	var h Home
	sol := fixedSolution(100, 200, 300, 8)
	h.ResetHome(sol, 5, false)

	sol.GroundSpeedCmS = 500 // well above the 15cm/s floor
	h.OnNewData(sol, true, false)
	before := h.FlownDistanceCm()

	h.OnNewData(sol, true, false)
	assert.Equal(t, before, h.FlownDistanceCm())
}

// Flown distance only accumulates once speed exceeds the 15cm/s floor and
// the vehicle is armed with home set.
func TestFlownDistanceRequiresSpeedAboveFloor(t *testing.T) {
	var h Home
	sol := fixedSolution(0, 0, 0, 8)
	h.ResetHome(sol, 5, false)
	h.OnNewData(sol, true, false) // prior position sample

	sol.LatDeg7 = 1000
	sol.GroundSpeedCmS = 10 // below the 15cm/s floor
	h.OnNewData(sol, true, false)
	assert.Zero(t, h.FlownDistanceCm())

	sol.LatDeg7 = 2000
	sol.GroundSpeedCmS = 100
	h.OnNewData(sol, true, false)
	assert.NotZero(t, h.FlownDistanceCm())
}

func TestDistanceCmBearingNormalisesBearingToPositiveRange(t *testing.T) {
	from := Point{LatDeg7: 0, LonDeg7: 0}
	to := Point{LatDeg7: -100000, LonDeg7: 0} // due south
	_, bearing := DistanceCmBearing(from, to, 1.0, false)
	assert.GreaterOrEqual(t, bearing, int32(0))
	assert.Less(t, bearing, int32(36000))
	assert.InDelta(t, 18000, bearing, 1) // south is 180 degrees
}
