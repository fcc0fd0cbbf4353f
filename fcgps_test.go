package fcgps

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/fc-gps/internal/clock"
	"github.com/bramburn/fc-gps/internal/interp"
	"github.com/bramburn/fc-gps/internal/port"
	"github.com/bramburn/fc-gps/internal/wire/ubx"
)

func newTestDriver(t *testing.T) (*Driver, *clock.Mock, *bytes.Buffer) {
	t.Helper()
	fromDevice := &bytes.Buffer{}
	p := port.NewPipe(fromDevice, &bytes.Buffer{})
	clk := clock.NewMock()
	d := New(Default(), p, clk, Hooks{})
	return d, clk, fromDevice
}

// tickWithNewSolution writes one NAV-PVT frame carrying the fix, satellite
// count, position and ground speed currently held in d's solution, then
// ticks until the driver has decoded it as a new solution.
func tickWithNewSolution(t *testing.T, d *Driver, fromDevice *bytes.Buffer, armed bool) {
	t.Helper()
	sol := d.task.Sol
	payload := make([]byte, 92)
	if sol.Fix {
		payload[20] = 3    // fixType: 3D
		payload[21] = 0x01 // flags: fix valid
	}
	payload[23] = sol.NumSat
	binary.LittleEndian.PutUint32(payload[24:28], uint32(sol.LonDeg7))
	binary.LittleEndian.PutUint32(payload[28:32], uint32(sol.LatDeg7))
	binary.LittleEndian.PutUint32(payload[60:64], sol.GroundSpeedCmS*10) // gSpeed, mm/s
	fromDevice.Write(ubx.Encode(interp.ClassNav, interp.MsgNavPVT, payload))

	for i := 0; i < 1000; i++ {
		d.Tick(armed)
		if d.task.HadNewSolution {
			return
		}
	}
	t.Fatal("NAV-PVT frame was not decoded as a new solution")
}

func TestNewDriverStartsUnhealthyWithNoFix(t *testing.T) {
	d, _, _ := newTestDriver(t)
	assert.False(t, d.IsHealthy())
	assert.False(t, d.HasFix())
	assert.Zero(t, d.Stamp())
}

func TestHasNewDataTracksStampAdvance(t *testing.T) {
	d, _, fromDevice := newTestDriver(t)

	changed, seen := d.HasNewData(0)
	assert.False(t, changed)
	assert.Zero(t, seen)

	d.task.Sol.Fix = true
	d.task.Sol.NumSat = 9
	tickWithNewSolution(t, d, fromDevice, false)

	changed, seen = d.HasNewData(0)
	require.True(t, changed)
	assert.Equal(t, uint16(1), seen)

	changed, _ = d.HasNewData(seen)
	assert.False(t, changed)
}

func TestResetHomeRequiresFixAndMinSats(t *testing.T) {
	d, _, fromDevice := newTestDriver(t)
	d.SetMinSatsForHome(5)

	d.ResetHome()
	_, _, _, homeSet := d.HomePosition()
	assert.False(t, homeSet, "no fix yet, home must not latch")
	cm, bearing := d.DistanceToHomeCmBearing()
	assert.Zero(t, cm)
	assert.Zero(t, bearing)

	d.task.Sol.Fix = true
	d.task.Sol.NumSat = 9
	d.task.Sol.LatDeg7 = 473977400
	d.task.Sol.LonDeg7 = 85455900
	d.ResetHome()

	tickWithNewSolution(t, d, fromDevice, false)

	cm, _ = d.DistanceToHomeCmBearing()
	assert.Zero(t, cm, "self-distance from home should be zero")
}

func TestFlownDistanceAccumulatesOnlyWhileArmedAboveSpeedFloor(t *testing.T) {
	d, _, fromDevice := newTestDriver(t)
	d.task.Sol.Fix = true
	d.task.Sol.NumSat = 9
	d.task.Sol.LatDeg7 = 473977400
	d.task.Sol.LonDeg7 = 85455900
	d.ResetHome()

	tickWithNewSolution(t, d, fromDevice, true)
	assert.Zero(t, d.FlownDistanceCm(), "no prior position sample yet")

	d.task.Sol.LatDeg7 += 1000
	d.task.Sol.GroundSpeedCmS = 100
	tickWithNewSolution(t, d, fromDevice, true)

	assert.NotZero(t, d.FlownDistanceCm())
}
