// Package fcgps is the public façade of the GPS acquisition and decoding
// subsystem: it wires the wire decoders, message interpreter, configurator
// state machine, and solution exports behind the single cooperative entry
// point an external scheduler drives. It is grounded on the "Global mutable
// driver state" design note of the original gpsData_t/gpsSol singleton
// (io/gps.c), generalized into an explicit, instantiable Driver value.
package fcgps

import (
	"time"

	"github.com/bramburn/fc-gps/internal/clock"
	"github.com/bramburn/fc-gps/internal/config"
	"github.com/bramburn/fc-gps/internal/geo"
	"github.com/bramburn/fc-gps/internal/port"
	"github.com/bramburn/fc-gps/internal/solution"
	"github.com/bramburn/fc-gps/internal/task"
	"github.com/bramburn/fc-gps/internal/telemetry"
)

// Re-exported types so callers need only import this one package for the
// common path; internal/* remains the place for anything deeper.
type (
	Config = config.Config
	Hooks  = task.Hooks
	Port   = port.Port
	Clock  = clock.Clock
)

// Default returns the baseline Config (spec.md §6), matching the teacher's
// DefaultSerialConfig posture.
func Default() Config { return config.Default() }

// Driver is the single entry point of the subsystem (spec.md §5): one
// Tick() call per scheduler invocation, no background goroutines, no
// locking. All other methods are read-only queries or callbacks invoked
// from that same cooperative context.
type Driver struct {
	cfg  Config
	task *task.Driver
	home *geo.Home

	minSatsForHome uint8

	homeDistCm     uint32
	homeBearingCdg int32
}

// New wires a Driver against the given port and time source. A nil Port
// leaves the configurator permanently in its unknown/no-op state, matching
// spec.md §7's "no serial port configured" behaviour (MSP/VIRTUAL
// providers, or test harnesses that drive the interpreter directly).
func New(cfg Config, p Port, clk Clock, hooks Hooks) *Driver {
	t := task.New(cfg, p, clk, hooks)
	return &Driver{
		cfg:            cfg,
		task:           t,
		home:           t.Home,
		minSatsForHome: 5,
	}
}

// SetLogger attaches structured logging to the driver and its configurator.
func (d *Driver) SetLogger(l *telemetry.Logger) {
	d.task.SetLogger(l)
	d.task.Configurator().SetLogger(l)
}

// SetMinSatsForHome overrides the satellite-count floor ResetHome and the
// LED/beep "fix requirements met" check both use (spec.md §4.F, §4.G); the
// default of 5 matches gpsRescueConfig()->minSats' usual flight value.
func (d *Driver) SetMinSatsForHome(n uint8) {
	d.minSatsForHome = n
	d.task.MinSatsForFix = n
}

// Tick is the sole entry point (spec.md §4.F): it drains buffered bytes,
// runs the configurator, updates indicators, and — when a gated solution
// completed this tick — advances the stamp and recomputes home
// distance/bearing and flown distance.
func (d *Driver) Tick(armed bool) {
	d.task.Tick(armed)
	if d.task.HadNewSolution {
		d.homeDistCm, d.homeBearingCdg = d.home.OnNewData(d.task.Sol, armed, d.cfg.Use3DSpeed)
	}
}

// ResetHome latches the current position as home (spec.md §4.G); call on
// arming or gyro calibration, matching GPS_reset_home_position's two call
// sites in the original.
func (d *Driver) ResetHome() {
	d.home.ResetHome(d.task.Sol, d.minSatsForHome, d.cfg.SetHomePointOnce)
}

// IsHealthy is true iff the configurator has reached RECEIVING_DATA
// (spec.md §7).
func (d *Driver) IsHealthy() bool { return d.task.Configurator().IsHealthy() }

// HasFix reports whether the last solution carries a valid fix with at
// least the configured minimum satellite count.
func (d *Driver) HasFix() bool {
	sol := d.task.Sol
	return sol.Fix && sol.NumSat >= d.minSatsForHome
}

// Stamp returns the monotonic (mod 2^16) solution update counter (spec.md
// §3, §8); consumers diff this against their last-observed value to
// implement has_new_data(stamp).
func (d *Driver) Stamp() uint16 { return d.task.Sol.Stamp() }

// HasNewData reports whether the stamp has advanced past lastSeen, and
// returns the current stamp to store for the next call — the has_new_data
// contract of spec.md §7/§8.
func (d *Driver) HasNewData(lastSeen uint16) (bool, uint16) {
	cur := d.Stamp()
	return cur != lastSeen, cur
}

// Solution returns the current, read-only navigation solution snapshot.
func (d *Driver) Solution() solution.Solution { return *d.task.Sol }

// Satellites returns the current, read-only satellite list snapshot.
func (d *Driver) Satellites() solution.SatelliteList { return *d.task.Sats }

// DistanceToHomeCmBearing returns the distance (cm) and bearing
// (centidegrees) from the position as of the last new solution to home, or
// (0, 0) if home is not yet set. These are the values geo.Home.OnNewData
// computed during Tick, not recomputed here, so they share its cached
// cos(lat) longitude scaling exactly.
func (d *Driver) DistanceToHomeCmBearing() (cm uint32, bearingCentiDeg int32) {
	if !d.home.IsSet() {
		return 0, 0
	}
	return d.homeDistCm, d.homeBearingCdg
}

// HomePosition returns the latched home position and whether one has ever
// been set, for debug tooling that wants to cross-check the production
// distance/bearing math against an independent library.
func (d *Driver) HomePosition() (latDeg7, lonDeg7, altCm int32, ok bool) {
	if !d.home.IsSet() {
		return 0, 0, 0, false
	}
	p := d.home.Position()
	return p.LatDeg7, p.LonDeg7, p.AltCm, true
}

// FlownDistanceCm is the cumulative distance flown since the last
// ResetHome (spec.md §4.G).
func (d *Driver) FlownDistanceCm() uint32 { return d.home.FlownDistanceCm() }

// NextPeriod is the scheduler period hint (spec.md §4.F step 3).
func (d *Driver) NextPeriod() time.Duration { return d.task.NextPeriod() }
