// Package interp is the message interpreter of spec.md §4.D: it consumes
// validated frames from internal/wire/ubx and internal/wire/nmea and is the
// single writer of internal/solution's Solution and SatelliteList records.
//
// It is grounded on the teacher's internal/rtk/processor.go Processor
// (consumes parsed messages, updates a shared position record), generalized
// from RTK-specific fields to the full UBX NAV dispatch table of spec.md
// §4.C/§4.D, plus the class/id description tables of the teacher's
// internal/parser/ubx.go reused as the dispatch key space.
package interp

import (
	"encoding/binary"
	"math"

	"github.com/bramburn/fc-gps/internal/solution"
	"github.com/bramburn/fc-gps/internal/wire/nmea"
	"github.com/bramburn/fc-gps/internal/wire/ubx"
)

// UBX class identifiers used by the dispatch table below.
const (
	ClassNav = 0x01
	ClassAck = 0x05
	ClassCfg = 0x06
	ClassMon = 0x0A
)

// UBX message ids, namespaced by class.
const (
	MsgNavPosLLH  = 0x02
	MsgNavStatus  = 0x03
	MsgNavDOP     = 0x04
	MsgNavSOL     = 0x06
	MsgNavPVT     = 0x07
	MsgNavVelNED  = 0x12
	MsgNavSVInfo  = 0x30
	MsgNavSat     = 0x35
	MsgAckNak     = 0x00
	MsgAckAck     = 0x01
	MsgCfgGNSS    = 0x3E
	MsgMonVer     = 0x04
)

// PlatformVersion is the receiver generation detected from MON-VER, used by
// the configurator to pick classic CFG-* vs CFG-VALSET wire forms.
type PlatformVersion int

const (
	PlatformUndef PlatformVersion = iota
	PlatformM5
	PlatformM6
	PlatformM7
	PlatformM8
	PlatformM9
	PlatformM10
)

// platformHWVersions mirrors the teacher-grounded ubloxVersionMap table:
// each platform's hwVersion field from MON-VER is matched exactly, not by
// range, since u-blox does not guarantee hwVersion ordering across lines.
var platformHWVersions = map[uint32]PlatformVersion{
	0x00040005: PlatformM5,
	0x00040007: PlatformM6,
	0x00070000: PlatformM7,
	0x00080000: PlatformM8,
	0x00190000: PlatformM9,
	0x000A0000: PlatformM10,
}

// AckState tracks the configurator's outstanding command acknowledgement.
type AckState int

const (
	AckIdle AckState = iota
	AckWaiting
	AckGotAck
	AckGotNack
)

// GNSSConfig carries the user-facing toggles the CFG-GNSS echo handler
// needs (spec.md §6 option table).
type GNSSConfig struct {
	SBASEnabled   bool
	GalileoEnable bool
}

const (
	ubloxGNSSSBAS    = 0x01
	ubloxGNSSGalileo = 0x02
	ubloxGNSSEnable  = 0x01
)

// Interpreter is the single writer of Solution and SatelliteList. It also
// tracks the parse-session state the original groups as "latched" flags:
// the platform version, the pending-fix validity flag latched by
// NAV-STATUS/NAV-SOL ahead of NAV-POSLLH, and the have-new-position/
// have-new-speed gate that decides when a solution is ready to publish.
type Interpreter struct {
	Config GNSSConfig

	platform PlatformVersion

	havePendingValidFix bool
	haveNewPosition     bool
	haveNewSpeed        bool

	lastNavTimeMs uint32
	haveLastNav   bool

	ack           AckState
	ackWaitClass  byte
	ackWaitID     byte
}

// New returns an Interpreter with the platform undetected.
func New(cfg GNSSConfig) *Interpreter {
	return &Interpreter{Config: cfg}
}

// Platform reports the receiver generation detected via MON-VER.
func (in *Interpreter) Platform() PlatformVersion { return in.platform }

func (in *Interpreter) M7OrAbove() bool { return in.platform >= PlatformM7 && in.platform != PlatformUndef }
func (in *Interpreter) M8OrAbove() bool { return in.platform >= PlatformM8 && in.platform != PlatformUndef }
func (in *Interpreter) M9OrAbove() bool { return in.platform >= PlatformM9 && in.platform != PlatformUndef }

// BeginAckWait arms the ACK/NAK latch for an outstanding command, as the
// configurator does before sending a configuration message.
func (in *Interpreter) BeginAckWait(class, id byte) {
	in.ack = AckWaiting
	in.ackWaitClass = class
	in.ackWaitID = id
}

// AckState reports the outcome of the most recently armed ACK wait.
func (in *Interpreter) AckState() AckState { return in.ack }

// ConsumeAck resets the latch to idle and returns the state it held,
// matching the configurator's read-then-clear usage.
func (in *Interpreter) ConsumeAck() AckState {
	s := in.ack
	in.ack = AckIdle
	return s
}

// Result reports side effects an Apply call produced beyond the Solution
// mutation itself.
type Result struct {
	// NewSolution is true exactly when both position and speed have been
	// refreshed since the last report (UBX gating rule, spec.md §4.D), or
	// a GGA sentence completed (NMEA gating rule).
	NewSolution bool

	// Outbound carries a command frame the caller must transmit (the
	// CFG-GNSS echo), nil otherwise.
	Outbound []byte
}

// ApplyUBX dispatches one validated UBX frame, mutating sol and sats in
// place. It returns whether the frame produced a publishable new solution
// and any outbound command the caller must send.
func (in *Interpreter) ApplyUBX(f *ubx.Frame, sol *solution.Solution, sats *solution.SatelliteList) Result {
	switch {
	case f.Class == ClassMon && f.ID == MsgMonVer:
		in.handleMonVer(f.Payload)

	case f.Class == ClassNav && f.ID == MsgNavPosLLH:
		in.handleNavPosLLH(f.Payload, sol)

	case f.Class == ClassNav && f.ID == MsgNavStatus:
		in.handleNavStatus(f.Payload, sol)

	case f.Class == ClassNav && f.ID == MsgNavDOP:
		in.handleNavDOP(f.Payload, sol)

	case f.Class == ClassNav && f.ID == MsgNavSOL:
		in.handleNavSol(f.Payload, sol)

	case f.Class == ClassNav && f.ID == MsgNavVelNED:
		in.handleNavVelNED(f.Payload, sol)

	case f.Class == ClassNav && f.ID == MsgNavPVT:
		in.handleNavPVT(f.Payload, sol)

	case f.Class == ClassNav && f.ID == MsgNavSVInfo:
		in.handleNavSVInfo(f.Payload, sats)

	case f.Class == ClassNav && f.ID == MsgNavSat:
		in.handleNavSat(f.Payload, sats)

	case f.Class == ClassCfg && f.ID == MsgCfgGNSS:
		return Result{Outbound: in.handleCfgGNSS(f.Payload)}

	case f.Class == ClassAck && f.ID == MsgAckAck:
		in.handleAck(f.Payload, AckGotAck)

	case f.Class == ClassAck && f.ID == MsgAckNak:
		in.handleAck(f.Payload, AckGotNack)
	}

	// We only signal a new solution once we have new position and speed
	// data; this ensures consumers never see a stale half-updated record.
	if in.haveNewPosition && in.haveNewSpeed {
		in.haveNewPosition, in.haveNewSpeed = false, false
		return Result{NewSolution: true}
	}
	return Result{}
}

func (in *Interpreter) handleMonVer(payload []byte) {
	if len(payload) < 40 {
		return
	}
	hwVersionASCII := trimNulls(payload[30:40])
	hw := parseHexUint32(hwVersionASCII)
	in.platform = PlatformUndef
	for v, p := range platformHWVersions {
		if v == hw {
			in.platform = p
			break
		}
	}
}

func (in *Interpreter) handleNavPosLLH(payload []byte, sol *solution.Solution) {
	if len(payload) < 28 {
		return
	}
	timeMs := binary.LittleEndian.Uint32(payload[0:4])
	lon := int32(binary.LittleEndian.Uint32(payload[4:8]))
	lat := int32(binary.LittleEndian.Uint32(payload[8:12]))
	altMSLmm := int32(binary.LittleEndian.Uint32(payload[16:20]))

	sol.LonDeg7 = lon
	sol.LatDeg7 = lat
	sol.AltCm = altMSLmm / 10
	in.updateNavInterval(sol, timeMs)
	sol.Fix = in.havePendingValidFix
	in.haveNewPosition = true
}

func (in *Interpreter) handleNavStatus(payload []byte, sol *solution.Solution) {
	if len(payload) < 6 {
		return
	}
	fixType := payload[4]
	fixStatus := payload[5]
	const navStatusFixValid = 0x01
	in.havePendingValidFix = fixStatus&navStatusFixValid != 0 && fixType == 3
	if !in.havePendingValidFix {
		sol.Fix = false
	}
}

func (in *Interpreter) handleNavDOP(payload []byte, sol *solution.Solution) {
	if len(payload) < 18 {
		return
	}
	sol.DOP.PDOP = binary.LittleEndian.Uint16(payload[6:8])
	sol.DOP.VDOP = binary.LittleEndian.Uint16(payload[10:12])
	sol.DOP.HDOP = binary.LittleEndian.Uint16(payload[12:14])
}

func (in *Interpreter) handleNavSol(payload []byte, sol *solution.Solution) {
	if len(payload) < 48 {
		return
	}
	fixType := payload[10]
	fixStatus := payload[11]
	const navStatusFixValid = 0x01
	in.havePendingValidFix = fixStatus&navStatusFixValid != 0 && fixType == 3
	if !in.havePendingValidFix {
		sol.Fix = false
	}
	sol.NumSat = payload[47]
}

func (in *Interpreter) handleNavVelNED(payload []byte, sol *solution.Solution) {
	if len(payload) < 28 {
		return
	}
	speed3D := binary.LittleEndian.Uint32(payload[16:20])
	speed2D := binary.LittleEndian.Uint32(payload[20:24])
	heading2D := int32(binary.LittleEndian.Uint32(payload[24:28]))

	sol.Speed3DCmS = speed3D
	sol.GroundSpeedCmS = speed2D
	sol.GroundCourseDd = uint16(heading2D / 10000)
	in.haveNewSpeed = true
}

func (in *Interpreter) handleNavPVT(payload []byte, sol *solution.Solution) {
	if len(payload) < 92 {
		return
	}
	timeMs := binary.LittleEndian.Uint32(payload[0:4])
	flags := payload[21]
	fixType := payload[20]
	const navValidFix = 0x01
	in.havePendingValidFix = flags&navValidFix != 0 && fixType == 3

	lon := int32(binary.LittleEndian.Uint32(payload[24:28]))
	lat := int32(binary.LittleEndian.Uint32(payload[28:32]))
	hMSL := int32(binary.LittleEndian.Uint32(payload[36:40]))
	numSV := payload[23]
	hAcc := binary.LittleEndian.Uint32(payload[40:44])
	vAcc := binary.LittleEndian.Uint32(payload[44:48])
	velD := int32(binary.LittleEndian.Uint32(payload[56:60]))
	gSpeed := int32(binary.LittleEndian.Uint32(payload[60:64]))
	headMot := int32(binary.LittleEndian.Uint32(payload[64:68]))
	sAcc := binary.LittleEndian.Uint32(payload[68:72])
	pDOP := binary.LittleEndian.Uint16(payload[76:78])

	sol.LonDeg7 = lon
	sol.LatDeg7 = lat
	sol.AltCm = hMSL / 10
	in.updateNavInterval(sol, timeMs)
	sol.Fix = in.havePendingValidFix
	sol.NumSat = numSV
	sol.Accuracy.HorizontalMm = hAcc
	sol.Accuracy.VerticalMm = vAcc
	sol.Accuracy.SpeedMmPerS = sAcc
	sol.DOP.PDOP = pDOP

	// Preserved verbatim from the original: the per-axis division by 10
	// happens before squaring, so up to ~1 cm/s of precision is lost. This
	// is a documented, intentional bit-compatibility decision, not a bug.
	gSpeedDs := float64(gSpeed / 10)
	velDDs := float64(velD / 10)
	sol.Speed3DCmS = uint32(math.Sqrt(gSpeedDs*gSpeedDs + velDDs*velDDs))
	sol.GroundSpeedCmS = uint32(gSpeed / 10)
	sol.GroundCourseDd = uint16(headMot / 10000)

	in.haveNewPosition = true
	in.haveNewSpeed = true
}

func (in *Interpreter) handleNavSVInfo(payload []byte, sats *solution.SatelliteList) {
	if len(payload) < 8 {
		return
	}
	numCh := int(payload[4])
	if numCh > solution.LegacySatelliteCap {
		numCh = solution.LegacySatelliteCap
	}
	sats.Reset()
	for i := 0; i < solution.MaxSatellites; i++ {
		if i >= numCh {
			continue
		}
		off := 8 + i*12
		if off+5 > len(payload) {
			break
		}
		sats.Entries[i] = solution.SatelliteInfo{
			Channel: payload[off],
			SVID:    payload[off+1],
			Quality: payload[off+3],
			CNO:     payload[off+4],
		}
	}
	sats.NumCh = uint8(numCh)
}

func (in *Interpreter) handleNavSat(payload []byte, sats *solution.SatelliteList) {
	if len(payload) < 8 {
		return
	}
	numSvs := int(payload[5])
	if numSvs > solution.MaxSatellites {
		numSvs = solution.MaxSatellites
	}
	sats.Reset()
	for i := 0; i < solution.MaxSatellites; i++ {
		off := 8 + i*12
		if i >= numSvs || off+12 > len(payload) {
			sats.Entries[i] = solution.SatelliteInfo{Channel: solution.EmptySatelliteChannel}
			continue
		}
		sats.Entries[i] = solution.SatelliteInfo{
			Channel: payload[off],
			SVID:    payload[off+1],
			CNO:     payload[off+2],
			Quality: uint8(binary.LittleEndian.Uint32(payload[off+8 : off+12])),
		}
	}
	// Reporting a channel count above the legacy cap is the protocol marker
	// downstream tools use to know the richer satellite list format applies.
	sats.NumCh = solution.MaxSatellites
}

func (in *Interpreter) handleCfgGNSS(payload []byte) []byte {
	if len(payload) < 4 {
		return nil
	}
	numBlocks := int(payload[3])
	out := append([]byte(nil), payload...)
	for i := 0; i < numBlocks; i++ {
		off := 4 + i*8
		if off+8 > len(out) {
			break
		}
		gnssID := out[off]
		flags := binary.LittleEndian.Uint32(out[off+4 : off+8])
		switch gnssID {
		case ubloxGNSSSBAS:
			if !in.Config.SBASEnabled {
				flags &^= ubloxGNSSEnable
			}
		case ubloxGNSSGalileo:
			if in.Config.GalileoEnable {
				flags |= ubloxGNSSEnable
			} else {
				flags &^= ubloxGNSSEnable
			}
		}
		binary.LittleEndian.PutUint32(out[off+4:off+8], flags)
	}
	return ubx.Encode(ClassCfg, MsgCfgGNSS, out)
}

func (in *Interpreter) handleAck(payload []byte, outcome AckState) {
	if len(payload) < 2 {
		return
	}
	clsID, msgID := payload[0], payload[1]
	if in.ack == AckWaiting && in.ackWaitClass == clsID && in.ackWaitID == msgID {
		in.ack = outcome
	}
}

// updateNavInterval recomputes NavIntervalMs from the GNSS-week millisecond
// clock, wrapping modulo one week the way the original wraps modulo
// msInTenSeconds for its cruder NMEA timestamp.
func (in *Interpreter) updateNavInterval(sol *solution.Solution, timeMs uint32) {
	const weekMs = 7 * 24 * 60 * 60 * 1000
	if in.haveLastNav {
		delta := (int64(weekMs) + int64(timeMs) - int64(in.lastNavTimeMs)) % weekMs
		sol.NavIntervalMs = solution.ClampNavInterval(delta)
	}
	in.lastNavTimeMs = timeMs
	in.haveLastNav = true
	sol.TimeMs = timeMs
}

// ApplyNMEA dispatches one decoded NMEA sentence. Only a completed GGA
// triggers NewSolution, matching the original's "one newGpsDataReady per
// GPS loop" comment — RMC/GSV/GSA refine auxiliary fields only.
func (in *Interpreter) ApplyNMEA(m *nmea.Message, sol *solution.Solution, sats *solution.SatelliteList) Result {
	switch m.Kind {
	case nmea.KindGGA:
		sol.Fix = m.FixValid
		if m.FixValid {
			sol.LatDeg7 = m.LatDeg7
			sol.LonDeg7 = m.LonDeg7
			sol.NumSat = m.NumSat
			sol.AltCm = m.AltCm
		}
		in.updateNavIntervalDayWrap(sol, m.TimeMs)
		return Result{NewSolution: true}

	case nmea.KindRMC:
		sol.GroundSpeedCmS = m.GroundSpeedCmS
		sol.GroundCourseDd = m.GroundCourseDd

	case nmea.KindGSA:
		sol.DOP.PDOP = m.PDOP
		sol.DOP.HDOP = m.HDOP
		sol.DOP.VDOP = m.VDOP

	case nmea.KindGSV:
		*sats = m.Satellites
	}
	return Result{}
}

// updateNavIntervalDayWrap mirrors updateNavInterval but wraps modulo one
// day of milliseconds, since NMEA's hhmmss.ss clock only ever encodes
// time-of-day, never a week number.
func (in *Interpreter) updateNavIntervalDayWrap(sol *solution.Solution, timeMs uint32) {
	const dayMs = 24 * 60 * 60 * 1000
	if in.haveLastNav {
		delta := (int64(dayMs) + int64(timeMs) - int64(in.lastNavTimeMs)) % dayMs
		sol.NavIntervalMs = solution.ClampNavInterval(delta)
	}
	in.lastNavTimeMs = timeMs
	in.haveLastNav = true
	sol.TimeMs = timeMs
}

func trimNulls(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

func parseHexUint32(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		var d uint32
		switch {
		case c >= '0' && c <= '9':
			d = uint32(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint32(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint32(c-'A') + 10
		default:
			continue
		}
		v = v*16 + d
	}
	return v
}
