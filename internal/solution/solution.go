// Package solution holds the navigation solution record and satellite list
// described in spec.md §3. It is written only by the message interpreter
// (internal/interp) and read by everyone else; per spec.md §5 there is
// exactly one writer on the cooperative task context, so no locking is
// used — this mirrors the teacher's Position struct in
// internal/position/position.go, generalized from a float/JSON-tagged
// record into the fixed-point fields the wire formats actually carry.
package solution

const (
	// MinNavIntervalMs and MaxNavIntervalMs bound navIntervalMs per the
	// invariant in spec.md §3 and §8.
	MinNavIntervalMs = 50
	MaxNavIntervalMs = 2500

	// MaxSatellites is the satellite list capacity (spec.md §3).
	MaxSatellites = 32

	// LegacySatelliteCap is the populated cap for M7-and-earlier modules.
	LegacySatelliteCap = 16

	// EmptySatelliteChannel is the NAV-SAT sentinel for an unused slot.
	EmptySatelliteChannel = 255
)

// Accuracy groups the horizontal/vertical/speed accuracy estimates, each in
// the millimetre or millimetre/second scale the originating message
// provides (spec.md §3 "acc group").
type Accuracy struct {
	HorizontalMm uint32
	VerticalMm   uint32
	SpeedMmPerS  uint32
}

// DOP groups the dilution-of-precision figures, each in 0.01 units
// (spec.md §3 "dop group").
type DOP struct {
	PDOP uint16
	HDOP uint16
	VDOP uint16
}

// Solution is the single mutable navigation-state record. Fields use the
// exact semantic types of spec.md §3: lat/lon in 1e-7 degrees, altitude in
// centimetres MSL, speeds in cm/s, ground course in decidegrees.
type Solution struct {
	LatDeg7 int32
	LonDeg7 int32
	AltCm   int32

	GroundSpeedCmS uint32 // 2D speed
	Speed3DCmS     uint32
	GroundCourseDd uint16 // decidegrees, 0..35999

	NumSat uint8

	DOP      DOP
	Accuracy Accuracy

	// TimeMs is milliseconds-of-GNSS-week, as delivered by the receiver.
	TimeMs uint32

	// NavIntervalMs is always clamped to [MinNavIntervalMs, MaxNavIntervalMs].
	NavIntervalMs uint32

	// Fix is true once a message has reported a valid 3D fix.
	Fix bool

	// stamp increments exactly once per accepted nav solution
	// (spec.md §4.G, §8) and wraps modulo 1<<16.
	stamp uint16
}

// NewSolution returns a Solution with NavIntervalMs at its floor, matching
// the invariant that the field is always within bounds even before the
// first message arrives.
func NewSolution() *Solution {
	return &Solution{NavIntervalMs: MinNavIntervalMs}
}

// Stamp returns the current monotonic (mod 2^16) update stamp.
func (s *Solution) Stamp() uint16 { return s.stamp }

// bumpStamp advances the stamp exactly once. Only internal/geo's OnNewData
// may call this — it is unexported to keep that invariant enforceable from
// a single call site, mirroring spec.md's "funnel writes through 4.D/4.E"
// design note.
func (s *Solution) bumpStamp() { s.stamp++ }

// BumpStamp is the package-internal hook geo.OnNewData uses; exported only
// within the module via this indirection so interp and geo share one
// authoritative counter without a public setter leaking into the façade.
func BumpStamp(s *Solution) { s.bumpStamp() }

// ClampNavInterval clamps an interval candidate into spec.md's
// [50, 2500] ms window.
func ClampNavInterval(ms int64) uint32 {
	if ms < MinNavIntervalMs {
		return MinNavIntervalMs
	}
	if ms > MaxNavIntervalMs {
		return MaxNavIntervalMs
	}
	return uint32(ms)
}

// SatelliteInfo is one entry of the bounded satellite list.
type SatelliteInfo struct {
	Channel uint8
	SVID    uint8
	CNO     uint8
	Quality uint8
}

// SatelliteList is the bounded channel->satellite mapping (spec.md §3).
// It is overwritten in place by each SVINFO/SAT message, never grown
// dynamically, so callers may hold a pointer across ticks safely.
type SatelliteList struct {
	Entries [MaxSatellites]SatelliteInfo
	NumCh   uint8
}

// Reset clears all entries beyond, and including, numCh down to zero so a
// shorter subsequent message does not leak stale satellites.
func (l *SatelliteList) Reset() {
	for i := range l.Entries {
		l.Entries[i] = SatelliteInfo{}
	}
	l.NumCh = 0
}
