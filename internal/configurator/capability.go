// Package configurator implements spec.md §4.E: a UBX state machine driving
// internal/port and consuming internal/interp's ACK signals to bring a
// u-blox receiver from an unknown baud rate into a configured, streaming
// state. There is no separate NMEA configurator: the configured provider
// is not consulted here, so an NMEA-provider driver runs the same UBX
// sequence, nmeaCustomCommands is never sent, and no fixed 57600 baud
// switch is made.
//
// It is grounded on the teacher's internal/device.GNSSDevice interface and
// TOPGNSSDevice (device identity + connect/baud-change lifecycle),
// generalized from a connect-once lifecycle into the step-scripted state
// machine spec.md §9's "cooperative await pattern" design note describes
// (send/expectAck/delay steps).
package configurator

import (
	"encoding/binary"

	"github.com/bramburn/fc-gps/internal/config"
	"github.com/bramburn/fc-gps/internal/interp"
	"github.com/bramburn/fc-gps/internal/wire/ubx"
)

// Generation is the receiver platform tag the capability object dispatches
// on, mirroring interp.PlatformVersion but decoupled from the interpreter
// package so capability.go has no import cycle concerns.
type Generation int

const (
	GenUndef Generation = iota
	GenM5
	GenM6
	GenM7
	GenM8
	GenM9
	GenM10
)

func generationFromPlatform(p interp.PlatformVersion) Generation {
	return Generation(p)
}

// Capability builds outbound UBX commands appropriate to a receiver
// generation. DisableNMEA, SetDynamicModel, SetPowerMode and SetUTCStandard
// emit CFG-VALSET items for M9+ and classic CFG-* messages otherwise;
// SetMessageRate, SetNavRate, SetSBAS and PollCfgGNSS emit the classic
// CFG-* form for every generation. Which steps run at all for a given
// generation is still decided in configurator.go.
type Capability struct {
	Gen Generation
}

const (
	classCFG = 0x06

	msgCfgMsg    = 0x01
	msgCfgRate   = 0x08
	msgCfgSBAS   = 0x16
	msgCfgNav5   = 0x24
	msgCfgPMS    = 0x86
	msgCfgGNSS   = 0x3E
	msgCfgValSet = 0x8A
)

// nmeaMsgIDs are the classic CFG-MSG ids for the six disable-NMEA steps, in
// the order the original CONFIGURE sequence issues them.
var nmeaMsgIDs = []byte{
	0x0F, // VTG (VGS in the original's step naming)
	0x03, // GSV
	0x01, // GLL
	0x00, // GGA
	0x02, // GSA
	0x04, // RMC
}

// valsetKey identifiers used by DisableNMEA's M9+ path (CFG-MSGOUT-*
// keys), one per NMEA sentence id above, in the same order.
var nmeaValsetKeys = []uint32{
	0x209100b1, // CFG-MSGOUT-NMEA_ID_VTG_UART1
	0x209100c5, // CFG-MSGOUT-NMEA_ID_GSV_UART1
	0x209100cb, // CFG-MSGOUT-NMEA_ID_GLL_UART1
	0x209100ba, // CFG-MSGOUT-NMEA_ID_GGA_UART1
	0x209100bf, // CFG-MSGOUT-NMEA_ID_GSA_UART1
	0x209100ac, // CFG-MSGOUT-NMEA_ID_RMC_UART1
}

// DisableNMEA returns the command to silence the idx'th NMEA sentence
// (0..5, same order as the CONFIGURE step list).
func (c Capability) DisableNMEA(idx int) []byte {
	if c.Gen >= GenM9 {
		return c.valSet1(nmeaValsetKeys[idx], 0)
	}
	return c.cfgMsg(0xF0, nmeaMsgIDs[idx], 0)
}

// SetMessageRate sets a UBX NAV message's output rate (classic CFG-MSG) —
// used for NAV-PVT/SOL/POSLLH/STATUS/VELNED/DOP/SAT enable-disable steps.
func (c Capability) SetMessageRate(msgClass, msgID, rate byte) []byte {
	return c.cfgMsg(msgClass, msgID, rate)
}

// SetNavRate sets the measurement/nav solution interval in milliseconds.
func (c Capability) SetNavRate(measRateMs uint16) []byte {
	payload := make([]byte, 6)
	binary.LittleEndian.PutUint16(payload[0:2], measRateMs)
	binary.LittleEndian.PutUint16(payload[2:4], 1) // navRate: 1 measurement per solution
	binary.LittleEndian.PutUint16(payload[4:6], 0) // timeRef: UTC
	return ubx.Encode(classCFG, msgCfgRate, payload)
}

// SetDynamicModel sets CFG-NAV5's dynamic platform model. The "+1 offset"
// from spec.md §6 is applied by the caller before the model id reaches
// here, since model id 1 is reserved and must never reach the receiver.
func (c Capability) SetDynamicModel(model byte) []byte {
	if c.Gen >= GenM9 {
		return c.valSet1(0x20110021, model) // CFG-NAVSPG-DYNMODEL
	}
	payload := make([]byte, 36)
	binary.LittleEndian.PutUint16(payload[0:2], 0x0001) // mask: apply dynModel only
	payload[2] = model
	return ubx.Encode(classCFG, msgCfgNav5, payload)
}

// SetSBAS writes the SBAS PRN scan mask and enable bit. M9+ receivers have
// no single CFG-VALSET replacement for the classic CFG-SBAS message (the
// PRN mask has no VALSET item at all, only the coarse CFG-SBAS-USE_TEST_MODE
// and CFG-SBAS-PRNSCANMASK-style keys some firmware revisions omit), so
// every generation this configurator targets keeps using the classic
// CFG-SBAS wire form here rather than guess at an unverified VALSET key.
func (c Capability) SetSBAS(enable bool, prnMask uint32) []byte {
	payload := make([]byte, 8)
	if enable {
		payload[0] = 0x01
	}
	payload[1] = 0x03 // usage: range + diffCorr
	payload[2] = 3    // maxSBAS
	binary.LittleEndian.PutUint32(payload[4:8], prnMask)
	return ubx.Encode(classCFG, msgCfgSBAS, payload)
}

// SetPowerMode sets CFG-PMS (M8+ only per spec.md §4.E).
func (c Capability) SetPowerMode(mode byte) []byte {
	if c.Gen >= GenM9 {
		return c.valSet1(0x20d00001, mode) // CFG-PM-OPERATEMODE
	}
	payload := make([]byte, 8)
	payload[1] = mode
	return ubx.Encode(classCFG, msgCfgPMS, payload)
}

// SetUTCStandard writes CFG-NAVSPG-UTCSTANDARD (M9+) — classic receivers
// have no equivalent item, so this is a no-op (nil) pre-M9.
func (c Capability) SetUTCStandard(std byte) []byte {
	if c.Gen >= GenM9 {
		return c.valSet1(0x20110024, std)
	}
	return nil
}

// PollCfgGNSS requests the current CFG-GNSS block list; the interpreter
// answers the receiver's CFG-GNSS reply by echoing a toggled copy (spec.md
// table row "CFG-GNSS (06.3E)").
func (c Capability) PollCfgGNSS() []byte {
	return ubx.Encode(classCFG, msgCfgGNSS, nil)
}

// PollMonVer requests MON-VER, used during DETECT_BAUD.
func PollMonVer() []byte {
	return ubx.Encode(interp.ClassMon, interp.MsgMonVer, nil)
}

func (c Capability) cfgMsg(msgClass, msgID, rate byte) []byte {
	return ubx.Encode(classCFG, msgCfgMsg, []byte{msgClass, msgID, rate})
}

// valSet1 builds a single-item CFG-VALSET command (RAM layer only, per
// spec.md §6 "Persisted state: None").
func (c Capability) valSet1(key uint32, value byte) []byte {
	payload := make([]byte, 4+4+1)
	payload[0] = 0 // version
	payload[1] = 0x01 // layer: RAM
	binary.LittleEndian.PutUint32(payload[4:8], key)
	payload[8] = value
	return ubx.Encode(classCFG, msgCfgValSet, payload)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// PUBXBaudCommand builds the `$PUBX,41,1,0003,0001,<baud>,0*<CS>` command
// used to force a UBX module reachable only via NMEA onto a target baud
// rate (spec.md §6).
func PUBXBaudCommand(baud int) []byte {
	body := []byte("PUBX,41,1,0003,0001," + itoa(baud) + ",0")
	var parity byte
	for _, b := range body {
		parity ^= b
	}
	out := make([]byte, 0, len(body)+6)
	out = append(out, '$')
	out = append(out, body...)
	out = append(out, '*')
	out = append(out, hexDigit(parity>>4), hexDigit(parity&0xF), '\r', '\n')
	return out
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + (n - 10)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// sbasConfig derives the Capability's SBAS enable flag and PRN mask from
// user config, so Configurator's SET_SBAS step stays a one-liner.
func sbasConfig(cfg config.Config) (enable bool, prnMask uint32) {
	enable = cfg.SBASMode != config.SBASNone
	prnMask = config.SBASPRNMask(cfg.SBASMode)
	return enable, prnMask
}
