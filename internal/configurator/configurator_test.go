package configurator

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/fc-gps/internal/clock"
	"github.com/bramburn/fc-gps/internal/config"
	"github.com/bramburn/fc-gps/internal/interp"
	"github.com/bramburn/fc-gps/internal/port"
	"github.com/bramburn/fc-gps/internal/solution"
	"github.com/bramburn/fc-gps/internal/wire/ubx"
)

func monVerFrameBytes(hwVersionHex string) []byte {
	payload := make([]byte, 40)
	copy(payload[30:40], hwVersionHex)
	return ubx.Encode(interp.ClassMon, interp.MsgMonVer, payload)
}

func ackFrameBytes(class, id byte) []byte {
	return ubx.Encode(interp.ClassAck, interp.MsgAckAck, []byte{class, id})
}

// newHarness wires a Configurator to an in-memory Pipe whose "remote" side a
// test can script responses onto, plus a mock clock for deterministic
// advancement.
func newHarness(t *testing.T, cfg config.Config) (*Configurator, *port.Pipe, *bytes.Buffer, *clock.Mock, *interp.Interpreter) {
	t.Helper()
	toDevice := &bytes.Buffer{}
	fromDevice := &bytes.Buffer{}
	p := port.NewPipe(fromDevice, toDevice)
	clk := clock.NewMock()
	intp := interp.New(interp.GNSSConfig{})
	c := New(cfg, p, intp, clk)
	return c, p, toDevice, clk, intp
}

// Spec scenario 1: cold start against an M8 module at 115200 reaches
// RECEIVING_DATA after DETECT_BAUD/CHANGE_BAUD/CONFIGURE.
func TestColdStartReachesReceivingData(t *testing.T) {
	cfg := config.Default()
	cfg.BaudRateIndex = 1 // 115200
	c, _, toDevice, clk, intp := newHarness(t, cfg)

	_ = toDevice // outbound bytes not asserted here, only state transitions

	// DETECT_BAUD: first candidate poll, then simulate the module replying.
	c.Tick(solution.NewSolution(), &solution.SatelliteList{})
	assert.Equal(t, StateDetectBaud, c.State())

	intp.ApplyUBX(mustDecodeOne(t, monVerFrameBytes("00080000")), solution.NewSolution(), &solution.SatelliteList{})
	c.Tick(solution.NewSolution(), &solution.SatelliteList{})
	require.Equal(t, StateChangeBaud, c.State())

	clk.Add(baudSettleWait + time.Millisecond)
	c.Tick(solution.NewSolution(), &solution.SatelliteList{})
	require.Equal(t, StateConfigure, c.State())

	sol, sats := solution.NewSolution(), &solution.SatelliteList{}
	for i := 0; i < totalConfigureSteps+5 && c.State() == StateConfigure; i++ {
		clk.Add(configureEntryGrace + interStepSpacing + time.Millisecond)
		c.Tick(sol, sats)
		if c.awaitingAck {
			intp.BeginAckWait(c.pendingAckClass, c.pendingAckID) // no-op safety; no ACK is sent, the implicit timeout below advances the step
			clk.Add(ackImplicitTimeout + time.Millisecond)
			c.Tick(sol, sats)
		}
	}

	assert.Equal(t, StateReceivingData, c.State())
	assert.True(t, c.IsHealthy())
}

// Spec scenario 4: an ACK never arrives and the 150ms implicit timeout
// advances CONFIGURE anyway rather than stalling forever.
func TestConfigureAdvancesOnImplicitAckTimeout(t *testing.T) {
	cfg := config.Default()
	c, _, _, clk, _ := newHarness(t, cfg)
	c.state = StateConfigure
	c.stepIdx = 0
	c.enteredConfigureAt = clk.Now()

	clk.Add(configureEntryGrace + time.Millisecond)
	c.Tick(solution.NewSolution(), &solution.SatelliteList{})
	require.True(t, c.awaitingAck)
	require.Equal(t, 0, c.stepIdx)

	clk.Add(ackImplicitTimeout + time.Millisecond)
	c.Tick(solution.NewSolution(), &solution.SatelliteList{})
	assert.False(t, c.awaitingAck)
	assert.Equal(t, 1, c.stepIdx)
}

// Spec scenario 6: RECEIVING_DATA drops to LOST_COMMUNICATION after the nav
// message timeout, clears the fix, and re-enters DETECT_BAUD.
func TestNavTimeoutEntersLostCommunicationAndRecovers(t *testing.T) {
	cfg := config.Default()
	c, _, _, clk, _ := newHarness(t, cfg)
	c.state = StateReceivingData
	c.OnNavMessage(clk.Now())

	sol := solution.NewSolution()
	sol.Fix = true
	sol.NumSat = 9
	sats := &solution.SatelliteList{}

	clk.Add(navMessageTimeout + time.Millisecond)
	c.Tick(sol, sats)

	assert.Equal(t, StateDetectBaud, c.State())
	assert.False(t, sol.Fix)
	assert.Zero(t, sol.NumSat)
	assert.Equal(t, 1, c.TimeoutsCount)
}

func mustDecodeOne(t *testing.T, frame []byte) *ubx.Frame {
	t.Helper()
	d := ubx.NewDecoder()
	var got *ubx.Frame
	for _, b := range frame {
		if f := d.Feed(b); f != nil {
			got = f
		}
	}
	require.NotNil(t, got)
	return got
}
