// Package task implements the cooperative per-tick driver of spec.md §4.F:
// a single entry point, called by an external scheduler, that drains
// buffered serial bytes under a strict time budget, runs the configurator,
// and republishes scheduling/indicator state. It is grounded on the
// original's gpsUpdate() (io/gps.c) task function, generalized from a
// single global gpsData_t into an explicit Driver value so multiple
// instances (or a mock clock in tests) can coexist.
package task

import (
	"time"

	"github.com/bramburn/fc-gps/internal/clock"
	"github.com/bramburn/fc-gps/internal/config"
	"github.com/bramburn/fc-gps/internal/configurator"
	"github.com/bramburn/fc-gps/internal/geo"
	"github.com/bramburn/fc-gps/internal/interp"
	"github.com/bramburn/fc-gps/internal/port"
	"github.com/bramburn/fc-gps/internal/solution"
	"github.com/bramburn/fc-gps/internal/telemetry"
	"github.com/bramburn/fc-gps/internal/wire/nmea"
	"github.com/bramburn/fc-gps/internal/wire/ubx"
)

const (
	// byteBudget bounds the time this tick may spend feeding buffered bytes
	// to the parser (spec.md §4.F step 2, §5 "25 µs of real time per tick").
	// This is measured against the wall clock, not the injected clock.Clock,
	// since it is a genuine real-time budget rather than simulated time.
	byteBudget = 25 * time.Microsecond

	// SlowPeriod and FastPeriod are the scheduler period hint published via
	// NextPeriod: fast while bytes are actively arriving, slow otherwise
	// (spec.md §4.F step 3).
	SlowPeriod = 100 * time.Millisecond
	FastPeriod = 10 * time.Millisecond

	// ledBlinkPeriod is the LED toggle interval while a fix is held
	// (spec.md §4.F step 6).
	ledBlinkPeriod = 150 * time.Millisecond

	// emaDecayDown and emaDecayUp are the filter's asymmetric step weights,
	// grounded on GPS_TASK_DECAY_SHIFT (1/512) and its "add 2 units on
	// overrun" fast-attack rule (io/gps.c).
	emaDecayDown = 1.0 / 512.0
	emaDecayUp   = 2.0 / 512.0
)

// Hooks are the external, hardware-facing callbacks the driver invokes; the
// driver itself never touches LEDs or beepers directly (spec.md §2 treats
// those as external collaborators).
type Hooks struct {
	OnLEDToggle func(on bool)
	OnBeep      func()
}

// frameFeeder adapts either wire decoder + interpreter pairing behind one
// interface so Driver.Tick need not branch on provider per byte.
type frameFeeder interface {
	feed(b byte) (newSolution bool, outbound []byte)
}

type ubxFeeder struct {
	dec  *ubx.Decoder
	intp *interp.Interpreter
	sol  *solution.Solution
	sats *solution.SatelliteList
}

func (f *ubxFeeder) feed(b byte) (bool, []byte) {
	frame := f.dec.Feed(b)
	if frame == nil {
		return false, nil
	}
	res := f.intp.ApplyUBX(frame, f.sol, f.sats)
	return res.NewSolution, res.Outbound
}

type nmeaFeeder struct {
	dec  *nmea.Decoder
	intp *interp.Interpreter
	sol  *solution.Solution
	sats *solution.SatelliteList
}

func (f *nmeaFeeder) feed(b byte) (bool, []byte) {
	msg := f.dec.Feed(b)
	if msg == nil {
		return false, nil
	}
	res := f.intp.ApplyNMEA(msg, f.sol, f.sats)
	return res.NewSolution, res.Outbound
}

// Driver is the cooperative task entry point. One Tick() call drains
// buffered bytes, runs the configurator, and updates scheduling/indicator
// state; it never blocks and never spawns a goroutine.
type Driver struct {
	clock clock.Clock
	port  port.Port
	cfg   config.Config

	intp    *interp.Interpreter
	cfgr    *configurator.Configurator
	feeder  frameFeeder
	Home    *geo.Home
	Sol     *solution.Solution
	Sats    *solution.SatelliteList

	hooks Hooks

	promoted bool

	emaUs float64

	fixLedOn      bool
	lastLedToggle time.Time
	everBeeped    bool

	MinSatsForFix uint8

	// HadNewSolution is true for the remainder of the tick that completed a
	// gated position+speed (UBX) or GGA-line (NMEA) update, per spec.md §4.D.
	// The façade package uses this to know when to call geo.Home.OnNewData.
	HadNewSolution bool

	log *telemetry.Logger
}

// SetLogger replaces the driver's logger; the zero value is a no-op.
func (d *Driver) SetLogger(l *telemetry.Logger) { d.log = l.Named("task") }

// New wires a Driver for the given config/port/clock. The provider in cfg
// selects the UBX or NMEA wire decoder and interpreter entry point.
func New(cfg config.Config, p port.Port, clk clock.Clock, hooks Hooks) *Driver {
	sol := solution.NewSolution()
	sats := &solution.SatelliteList{}
	intp := interp.New(interp.GNSSConfig{
		SBASEnabled:   cfg.SBASMode != config.SBASNone,
		GalileoEnable: cfg.UbloxUseGalileo,
	})

	d := &Driver{
		clock:         clk,
		port:          p,
		cfg:           cfg,
		intp:          intp,
		cfgr:          configurator.New(cfg, p, intp, clk),
		Home:          &geo.Home{},
		Sol:           sol,
		Sats:          sats,
		hooks:         hooks,
		MinSatsForFix: 5,
		log:           telemetry.Nop().Named("task"),
	}

	if cfg.Provider == config.ProviderNMEA {
		d.feeder = &nmeaFeeder{dec: nmea.NewDecoder(), intp: intp, sol: sol, sats: sats}
	} else {
		d.feeder = &ubxFeeder{dec: ubx.NewDecoder(), intp: intp, sol: sol, sats: sats}
	}
	return d
}

// Configurator exposes the underlying state machine for health/diagnostic
// queries (spec.md §7's is_healthy()).
func (d *Driver) Configurator() *configurator.Configurator { return d.cfgr }

// NextPeriod reports the scheduler period hint this tick leaves behind
// (spec.md §4.F step 3).
func (d *Driver) NextPeriod() time.Duration {
	if d.promoted {
		return FastPeriod
	}
	return SlowPeriod
}

// EMAExecutionMicros is the published per-state execution time estimate
// (spec.md §4.F step 5), in microseconds.
func (d *Driver) EMAExecutionMicros() float64 { return d.emaUs }

// Tick drains buffered bytes under the real-time byte budget, runs the
// configurator, tracks the EMA execution time hint, and updates the LED and
// one-shot arm-beep indicators. armed reflects the flight controller's
// current ARMING_FLAG(ARMED) state.
func (d *Driver) Tick(armed bool) {
	tickStart := time.Now()
	now := d.clock.Now()
	d.HadNewSolution = false

	bytesRead := d.drainBytes()

	if bytesRead > 0 {
		d.promoted = true
	} else {
		d.promoted = false
	}

	d.cfgr.Tick(d.Sol, d.Sats)

	elapsedUs := float64(time.Since(tickStart).Microseconds())
	if elapsedUs > d.emaUs {
		d.emaUs += (elapsedUs - d.emaUs) * emaDecayUp
	} else {
		d.emaUs += (elapsedUs - d.emaUs) * emaDecayDown
	}

	d.updateIndicators(now, armed)
}

// drainBytes feeds buffered bytes to the active wire decoder until either
// the byte budget is exhausted or the port has nothing left to read,
// applying any outbound reply frames the interpreter produces along the
// way (e.g. the CFG-GNSS echo).
func (d *Driver) drainBytes() int {
	if d.port == nil {
		return 0
	}
	deadline := time.Now().Add(byteBudget)
	n := 0
	for time.Now().Before(deadline) {
		b, ok := d.port.ReadByte()
		if !ok {
			break
		}
		n++
		newSolution, outbound := d.feeder.feed(b)
		if newSolution {
			d.HadNewSolution = true
			d.cfgr.OnNavMessage(d.clock.Now())
		}
		if outbound != nil && d.port.TxBufferEmpty() {
			_ = d.port.WriteAll(outbound)
		}
	}
	return n
}

// updateIndicators applies spec.md §4.F step 6: a 150ms LED blink while a
// fix is held, and a one-shot beep (for the lifetime of this Driver, same
// as the original's static hasBeeped) the first time fix requirements are
// met while disarmed.
func (d *Driver) updateIndicators(now time.Time, armed bool) {
	fixed := d.Sol.Fix && d.Sol.NumSat >= d.MinSatsForFix

	if fixed {
		if now.Sub(d.lastLedToggle) >= ledBlinkPeriod {
			d.fixLedOn = !d.fixLedOn
			d.lastLedToggle = now
			if d.hooks.OnLEDToggle != nil {
				d.hooks.OnLEDToggle(d.fixLedOn)
			}
		}
	} else if d.fixLedOn {
		d.fixLedOn = false
		if d.hooks.OnLEDToggle != nil {
			d.hooks.OnLEDToggle(false)
		}
	}

	if !armed && !d.everBeeped && fixed {
		d.everBeeped = true
		d.log.Info("home fix requirements met, beeping")
		if d.hooks.OnBeep != nil {
			d.hooks.OnBeep()
		}
	}
}
