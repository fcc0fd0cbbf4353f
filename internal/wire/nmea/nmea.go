// Package nmea implements the NMEA 0183 ASCII sentence parser of spec.md
// §4.B: a byte-fed, XOR-parity-validated decoder over `$`-delimited
// GGA/RMC/GSV/GSA sentences, with bounded 15-byte fields and the exact
// fixed-point dm.f-to-degrees transform.
//
// It is grounded on the teacher's internal/parser/nmea.go NMEASentence/Parse
// shape, generalized from a single whole-line Parse(string) call into a
// byte-fed streaming Decoder — spec.md §4.B requires "accepts one byte at a
// time", which a whole-line parser cannot express without first buffering a
// complete line itself.
package nmea

import "github.com/bramburn/fc-gps/internal/solution"

const fieldCap = 15

// Kind identifies which sentence type a completed Message carries.
type Kind int

const (
	KindNone Kind = iota
	KindGGA
	KindRMC
	KindGSV
	KindGSA
)

// Message is the decoded content of one validated sentence. Only the fields
// relevant to Kind are meaningful; the rest carry zero values.
type Message struct {
	Kind Kind

	// GGA
	LatDeg7, LonDeg7 int32
	NumSat           uint8
	AltCm            int32
	TimeMs           uint32 // milliseconds since midnight UTC, from hhmmss.ss
	FixValid         bool

	// RMC
	GroundSpeedCmS uint32
	GroundCourseDd uint16
	DateDDMMYY     uint32

	// GSA
	PDOP, HDOP, VDOP uint16

	// GSV: satellites observed this cycle, valid when Kind == KindGSV.
	Satellites solution.SatelliteList
}

type lineState int

const (
	stateWaitDollar lineState = iota
	stateField
)

// Decoder accumulates one NMEA sentence's worth of bytes at a time, exactly
// as the teacher's protocol machines do for UBX, and produces a Message
// whenever a checksum-valid, recognised sentence completes.
//
// A GGA completion is the only trigger for "new navigation solution" per
// spec.md §4.D — RMC/GSV/GSA only refine auxiliary fields.
type Decoder struct {
	state lineState

	param   int
	field   [fieldCap]byte
	fieldN  int
	parity  byte
	inCksum bool
	cksum   [2]byte
	cksumN  int

	kind Kind
	acc  accumulator

	gsvMessageNum uint8
	satellites    solution.SatelliteList
}

// accumulator mirrors the original's static gpsDataNmea_t: fields gathered
// across a sentence, latched into a Message only once the line's checksum
// validates.
type accumulator struct {
	lat, lon     int32
	numSat       uint8
	altCm        int32
	timeMs       uint32
	fix          bool
	groundSpeed  uint32
	groundCourse uint16
	date         uint32
	pdop, hdop, vdop uint16
}

// NewDecoder returns an empty Decoder ready to receive sentence bytes.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed advances the decoder by one input byte. It returns a non-nil Message
// exactly when this byte completes a checksum-valid, recognised sentence.
func (d *Decoder) Feed(c byte) *Message {
	switch c {
	case '$':
		d.param = 0
		d.fieldN = 0
		d.parity = 0
		d.inCksum = false
		d.cksumN = 0
		d.kind = KindNone
		return nil

	case ',', '*':
		d.commitField()
		d.param++
		d.fieldN = 0
		if c == '*' {
			d.inCksum = true
		} else {
			d.parity ^= c
		}
		return nil

	case '\r', '\n':
		if !d.inCksum {
			return nil
		}
		d.inCksum = false
		if d.cksumN != 2 {
			return nil
		}
		want := hexNibble(d.cksum[0])<<4 | hexNibble(d.cksum[1])
		if want != d.parity {
			return nil
		}
		return d.finish()

	default:
		if d.inCksum {
			if d.cksumN < 2 {
				d.cksum[d.cksumN] = c
				d.cksumN++
			}
			return nil
		}
		if d.fieldN < fieldCap {
			d.field[d.fieldN] = c
			d.fieldN++
		}
		d.parity ^= c
		return nil
	}
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

// commitField applies the just-completed field to the in-progress sentence,
// identifying the sentence kind on field 0 and dispatching by (kind, param)
// exactly as the original parseFieldNmea switch does.
func (d *Decoder) commitField() {
	field := d.field[:d.fieldN]

	if d.param == 0 {
		d.kind = identifyKind(field)
		return
	}

	switch d.kind {
	case KindGGA:
		d.parseGGA(field)
	case KindRMC:
		d.parseRMC(field)
	case KindGSV:
		d.parseGSV(field)
	case KindGSA:
		d.parseGSA(field)
	}
}

func identifyKind(talkerAndType []byte) Kind {
	if len(talkerAndType) < 5 {
		return KindNone
	}
	switch string(talkerAndType[2:5]) {
	case "GGA":
		return KindGGA
	case "RMC":
		return KindRMC
	case "GSV":
		return KindGSV
	case "GSA":
		return KindGSA
	default:
		return KindNone
	}
}

// parseGGA dispatches GGA fields 1..9 (time, lat, N/S, lon, E/W, fix, numSat,
// hdop, altitude), matching the teacher-grounded original's field indices.
func (d *Decoder) parseGGA(field []byte) {
	switch d.param {
	case 1: // hhmmss.ss
		d.acc.timeMs = parseHHMMSSToMillis(field)
	case 2:
		d.acc.lat = coordToDegrees(field)
	case 3:
		if len(field) > 0 && field[0] == 'S' {
			d.acc.lat = -d.acc.lat
		}
	case 4:
		d.acc.lon = coordToDegrees(field)
	case 5:
		if len(field) > 0 && field[0] == 'W' {
			d.acc.lon = -d.acc.lon
		}
	case 6:
		d.acc.fix = len(field) > 0 && field[0] > '0'
	case 7:
		d.acc.numSat = uint8(grabFields(field, 0))
	case 9:
		// NMEA altitude carries 1-3 fractional digits; keep one decimal
		// digit then scale to centimetres, same as the original's comment.
		d.acc.altCm = grabFields(field, 1) * 10
	}
}

// parseRMC dispatches RMC fields 1 (time), 7 (speed, knots*10), 8 (ground
// course, deg*10) and 9 (date ddmmyy).
func (d *Decoder) parseRMC(field []byte) {
	switch d.param {
	case 1:
		d.acc.timeMs = parseHHMMSSToMillis(field)
	case 7:
		// knots*10 -> cm/s: 1 knot == 51.444 cm/s.
		d.acc.groundSpeed = uint32((int64(grabFields(field, 1)) * 5144) / 1000)
	case 8:
		d.acc.groundCourse = uint16(grabFields(field, 1))
	case 9:
		d.acc.date = uint32(grabFields(field, 0))
	}
}

// parseGSV accumulates the teacher-grounded multi-sentence satellite table:
// each GSV sentence carries up to 4 satellites, with global index computed
// from the message number (field 2) and in-sentence satellite slot.
func (d *Decoder) parseGSV(field []byte) {
	switch d.param {
	case 2:
		d.gsvMessageNum = uint8(grabFields(field, 0))
		return
	case 3:
		n := grabFields(field, 0)
		if n > solution.LegacySatelliteCap {
			n = solution.LegacySatelliteCap
		}
		d.satellites.NumCh = uint8(n)
		return
	}
	if d.param < 4 {
		return
	}
	slotInSentence := (d.param-4)/4 + 1 // 1..4
	globalSat := slotInSentence + 4*(int(d.gsvMessageNum)-1)
	paramInSat := d.param - 3 - 4*(slotInSentence-1)
	if globalSat < 1 || globalSat > solution.LegacySatelliteCap {
		return
	}
	idx := globalSat - 1
	switch paramInSat {
	case 1: // PRN
		d.satellites.Entries[idx].Channel = uint8(globalSat)
		d.satellites.Entries[idx].SVID = uint8(grabFields(field, 0))
	case 4: // SNR
		d.satellites.Entries[idx].CNO = uint8(grabFields(field, 0))
		d.satellites.Entries[idx].Quality = 0
	}
}

// parseGSA dispatches fields 15/16/17 (pDOP, hDOP, vDOP, each *100).
func (d *Decoder) parseGSA(field []byte) {
	switch d.param {
	case 15:
		d.acc.pdop = uint16(grabFields(field, 2))
	case 16:
		d.acc.hdop = uint16(grabFields(field, 2))
	case 17:
		d.acc.vdop = uint16(grabFields(field, 2))
	}
}

// finish builds the Message for the just-validated sentence. Only GGA
// returns with a signal that a new navigation solution is ready — matching
// "return only one true statement to trigger one newGpsDataReady flag per
// GPS loop" in the grounding source.
func (d *Decoder) finish() *Message {
	switch d.kind {
	case KindGGA:
		m := &Message{Kind: KindGGA, TimeMs: d.acc.timeMs, FixValid: d.acc.fix}
		if d.acc.fix {
			m.LatDeg7 = d.acc.lat
			m.LonDeg7 = d.acc.lon
			m.NumSat = d.acc.numSat
			m.AltCm = d.acc.altCm
		}
		return m
	case KindRMC:
		return &Message{
			Kind:           KindRMC,
			GroundSpeedCmS: d.acc.groundSpeed,
			GroundCourseDd: d.acc.groundCourse,
			DateDDMMYY:     d.acc.date,
		}
	case KindGSA:
		return &Message{Kind: KindGSA, PDOP: d.acc.pdop, HDOP: d.acc.hdop, VDOP: d.acc.vdop}
	case KindGSV:
		return &Message{Kind: KindGSV, Satellites: d.satellites}
	default:
		return nil
	}
}

// grabFields mirrors the original's string-to-fixed-point conversion: it
// drops the decimal point and keeps exactly `mult` digits after it,
// discarding the rest, over a field bounded to fieldCap bytes.
func grabFields(field []byte, mult int) int32 {
	var tmp int32
	neg := false
	dotSeen := false
	kept := 0
	for i := 0; i < len(field) && i < fieldCap; i++ {
		c := field[i]
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c == '.' {
			dotSeen = true
			if mult == 0 {
				break
			}
			continue
		}
		if dotSeen {
			if kept >= mult {
				break
			}
			kept++
		}
		tmp *= 10
		if c >= '0' && c <= '9' {
			tmp += int32(c - '0')
		}
	}
	for ; kept < mult; kept++ {
		tmp *= 10
	}
	if neg {
		tmp = -tmp
	}
	return tmp
}

// coordToDegrees converts an NMEA "dm.f" latitude/longitude field (degrees,
// then 2-digit minutes, then a fractional-minutes tail) into 1e-7 degree
// units: deg*1e7 + (min*1e5 + frac)*10/6.
func coordToDegrees(field []byte) int32 {
	dot := -1
	for i, c := range field {
		if c == '.' {
			dot = i
			break
		}
	}
	if dot < 2 {
		return 0
	}

	var frac uint32
	mult := uint32(10000)
	for i := dot + 1; i < len(field); i++ {
		if field[i] < '0' || field[i] > '9' {
			continue
		}
		frac += uint32(field[i]-'0') * mult
		if mult >= 10 {
			mult /= 10
		} else {
			mult = 0
		}
	}

	min := uint32(field[dot-1]-'0') + uint32(field[dot-2]-'0')*10
	var deg uint32
	for i := 0; i < dot-2; i++ {
		deg = deg*10 + uint32(field[i]-'0')
	}
	return int32(deg*10000000 + (min*100000+frac)*10/6)
}

// parseHHMMSSToMillis converts an "hhmmss.ss" field into milliseconds since
// midnight UTC. This generalizes the original's crude two-digit partial
// timestamp (used only as a mod-10000 interval hint) into a full clock
// reading, so nav-interval computation can use the same week/day-wrap
// technique UBX's GNSS-week-ms field uses instead of a separate formula.
func parseHHMMSSToMillis(field []byte) uint32 {
	if len(field) < 6 {
		return 0
	}
	digit := func(i int) uint32 {
		if i >= len(field) || field[i] < '0' || field[i] > '9' {
			return 0
		}
		return uint32(field[i] - '0')
	}
	hh := digit(0)*10 + digit(1)
	mm := digit(2)*10 + digit(3)
	ss := digit(4)*10 + digit(5)
	var frac uint32
	if len(field) > 7 && field[6] == '.' {
		mult := uint32(100)
		for i := 7; i < len(field) && i < 10; i++ {
			frac += digit(i) * mult
			mult /= 10
		}
	}
	return hh*3600000 + mm*60000 + ss*1000 + frac
}
