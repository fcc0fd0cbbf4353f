package task

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
	"github.com/bramburn/fc-gps/internal/wire/ubx"
)

func TestTickPromotesPeriodWhileBytesArrive(t *testing.T) {
	fromDevice := &bytes.Buffer{}
	toDevice := &bytes.Buffer{}
	p := port.NewPipe(fromDevice, toDevice)
	clk := clock.NewMock()
	cfg := config.Default()
	cfg.Provider = config.ProviderUBLOX
	d := New(cfg, p, clk, Hooks{})

	monVer := ubx.Encode(interp.ClassMon, interp.MsgMonVer, make([]byte, 40))
	fromDevice.Write(monVer)

	// The 25us byte budget is a real-time bound, not a byte-count bound, so
	// draining a whole frame may take more than one Tick on a loaded
	// machine; keep ticking until the buffered bytes are gone.
	for i := 0; i < 1000 && (fromDevice.Len() > 0 || p.BytesWaiting() > 0); i++ {
		d.Tick(false)
	}
	require.Zero(t, fromDevice.Len())
	assert.Equal(t, FastPeriod, d.NextPeriod())

	d.Tick(false)
	assert.Equal(t, SlowPeriod, d.NextPeriod())
}

func TestTickFiresLEDHookWhileFixed(t *testing.T) {
	fromDevice := &bytes.Buffer{}
	toDevice := &bytes.Buffer{}
	p := port.NewPipe(fromDevice, toDevice)
	clk := clock.NewMock()
	cfg := config.Default()
	toggles := 0
	d := New(cfg, p, clk, Hooks{OnLEDToggle: func(on bool) { toggles++ }})

	d.Sol.Fix = true
	d.Sol.NumSat = 9
	d.MinSatsForFix = 5

	d.Tick(true)
	require.Equal(t, 1, toggles)

	clk.Add(100 * time.Millisecond)
	d.Tick(true)
	assert.Equal(t, 1, toggles) // within 150ms window, no second toggle yet

	clk.Add(100 * time.Millisecond)
	d.Tick(true)
	assert.Equal(t, 2, toggles)
}

func TestTickBeepsOnceWhenFixFirstMetWhileDisarmed(t *testing.T) {
	fromDevice := &bytes.Buffer{}
	toDevice := &bytes.Buffer{}
	p := port.NewPipe(fromDevice, toDevice)
	clk := clock.NewMock()
	cfg := config.Default()
	beeps := 0
	d := New(cfg, p, clk, Hooks{OnBeep: func() { beeps++ }})

	d.Sol.Fix = true
	d.Sol.NumSat = 9
	d.MinSatsForFix = 5

	d.Tick(false)
	d.Tick(false)
	assert.Equal(t, 1, beeps)
}
